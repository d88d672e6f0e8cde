/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: driver.go
Description: Shared contracts for the payload drivers. A driver produces candidates, builds the
concrete request from the target template and hands it to a dispatcher, one at a time.
*/

package drivers

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Modes label where a payload came from
const (
	ModeWordlist = "wordlist"
	ModeFuzz     = "fuzz"
)

// Dispatcher sends one concrete request to the device
type Dispatcher interface {
	Dispatch(ctx context.Context, mode string, request string) error
}

// MutationObserver is notified after every engine call
type MutationObserver interface {
	OnMutation(engine string)
}

type nopObserver struct{}

func (nopObserver) OnMutation(string) {}

func loggerOrDefault(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}
