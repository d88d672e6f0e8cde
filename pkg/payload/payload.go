/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: payload.go
Description: Payload construction helpers for deep-link fuzzing. Handles the FUZZ marker in
target templates, substitution of candidates, the minimal space encoding applied before an
intent is sent, and lossy decoding of mutated bytes back into text.
*/

package payload

import (
	"errors"
	"fmt"
	"strings"
)

// Marker is the placeholder that indicates where a candidate is inserted
const Marker = "FUZZ"

// DefaultTarget is the template used when the operator does not supply one
const DefaultTarget = "https://app?" + Marker

var (
	// ErrMissingMarker is returned when a template has no insertion point
	ErrMissingMarker = errors.New("no FUZZ position specified")
	// ErrMultipleMarkers is returned when a template has more than one insertion point
	ErrMultipleMarkers = errors.New("more than one FUZZ position specified")
)

// Template is a validated target template containing exactly one marker
type Template struct {
	raw string
}

// ParseTemplate validates raw and returns a Template
func ParseTemplate(raw string) (*Template, error) {
	switch n := strings.Count(raw, Marker); {
	case n == 0:
		return nil, fmt.Errorf("%w in target %q", ErrMissingMarker, raw)
	case n > 1:
		return nil, fmt.Errorf("%w in target %q (%d found)", ErrMultipleMarkers, raw, n)
	}
	return &Template{raw: raw}, nil
}

// Substitute returns the concrete request for a candidate.
// Only the marker is replaced; the rest of the template is left untouched.
func (t *Template) Substitute(candidate string) string {
	return strings.Replace(t.raw, Marker, candidate, 1)
}

// String returns the raw template
func (t *Template) String() string {
	return t.raw
}

// Encode applies the dispatch encoding: spaces become %20, nothing else changes
func Encode(request string) string {
	return strings.ReplaceAll(request, " ", "%20")
}

// DecodeLossy converts mutated bytes to text, silently dropping invalid UTF-8 sequences
func DecodeLossy(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
