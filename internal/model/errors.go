package model

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCategory = errors.New("unknown category")

	// ErrStaleRef means the referenced message no longer exists or can't be edited.
	ErrStaleRef = errors.New("stale message reference")

	ErrTransport = errors.New("transport failure")
)

// StoreError is a failed durable read or write. It is never a duplicate or a success.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
