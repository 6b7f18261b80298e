package tle

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord matches every *MalformedRecordError via errors.Is.
	ErrMalformedRecord = errors.New("malformed TLE record")

	// ErrNotFound is returned by catalog lookups for unknown satellites.
	ErrNotFound = errors.New("satellite not found")
)

// MalformedRecordError describes why an element set was rejected.
// Line is 0 for the name line, 1 or 2 for the element lines.
type MalformedRecordError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed TLE record: line %d", e.Line)
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func malformed(line int, field, value string, err error) error {
	return &MalformedRecordError{Line: line, Field: field, Value: value, Err: err}
}
