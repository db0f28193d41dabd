package reconcile

import (
	"errors"
	"fmt"
)

// ErrNoBaseDate is returned for reservations carrying neither a start nor an
// end timestamp; they cannot be placed on a day.
var ErrNoBaseDate = errors.New("reservation has no start or end timestamp")

// UnresolvableRefError reports a space reference that maps to no key.
type UnresolvableRefError struct {
	Value string
	Err   error
}

func (e *UnresolvableRefError) Error() string {
	return fmt.Sprintf("unresolvable space reference %q: %v", e.Value, e.Err)
}

func (e *UnresolvableRefError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failed read or commit against the document store.
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

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
