package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable   = errors.New("entitlement service unavailable")
	ErrBadResponse   = errors.New("entitlement service bad response")
	ErrUnknownResult = errors.New("unknown paywall result")
)

// ServiceError is a failed call to the remote gate.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string { return fmt.Sprintf("entitlement %s: %v", e.Op, e.Err) }

func (e *ServiceError) Unwrap() error { return e.Err }
