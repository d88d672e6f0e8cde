/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Typed run errors. Every failure that ends a run carries a kind, and the kind alone
decides the process exit code.
*/

package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindConnection
)

// Process exit codes
const (
	ExitOK         = 0
	ExitRuntime    = 1
	ExitConfig     = 2
	ExitConnection = 3
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindConnection:
		return "connection"
	default:
		return "runtime"
	}
}

// RunError is returned by the orchestrator for any failure that ends a run
type RunError struct {
	Kind ErrorKind
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func newRunError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var existing *RunError
	if errors.As(err, &existing) {
		return err
	}
	return &RunError{Kind: kind, Err: err}
}

// ExitCode maps an error returned by a run to the process exit code.
// Untyped errors count as runtime failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var runErr *RunError
	if !errors.As(err, &runErr) {
		return ExitRuntime
	}
	switch runErr.Kind {
	case KindConfig:
		return ExitConfig
	case KindConnection:
		return ExitConnection
	default:
		return ExitRuntime
	}
}
