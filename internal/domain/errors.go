package domain

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when pagination is attempted past the last page.
var ErrExhausted = errors.New("no more pages")

// FetchError describes a single failed upstream request: network error,
// non-2xx status or malformed payload. Cancellation is not a FetchError;
// it surfaces as context.Canceled / context.DeadlineExceeded.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError describes a durable-store failure. It is fatal for the
// enclosing operation; in-memory state must be left as it was.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
