package retrieval

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("retrieval: message access not granted")
	ErrStoreUnavailable = errors.New("retrieval: message store unavailable")
)

// StoreError reports a failed store read. It matches ErrStoreUnavailable
// and unwraps to the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }
