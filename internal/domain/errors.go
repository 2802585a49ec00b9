package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFetch            = errors.New("page fetch failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store operations reported in StoreError.Op
const (
	OpIncrement = "increment"
	OpGet       = "get"
	OpSet       = "set"
	OpCount     = "count"
)

// FetchError reports that the upstream page could not be retrieved.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// StoreError reports which phase of a fetch failed against the key-value store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
