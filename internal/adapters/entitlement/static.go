// Package entitlement provides entitlement gates: a static gate for local
// runs and tests, and an HTTP gate backed by a remote paywall service.
package entitlement

import (
	"context"

	"go.uber.org/atomic"
)

// StaticOption applies a configuration option to the Static gate.
type StaticOption func(*Static)

// WithGrantOnPresent makes every presented paywall end in a purchase.
func WithGrantOnPresent(grant bool) StaticOption {
	return func(s *Static) {
		s.grantOnPresent.Store(grant)
	}
}

// Static answers from a fixed flag. PresentGate resolves immediately.
type Static struct {
	entitled       atomic.Bool
	grantOnPresent atomic.Bool
	checks         atomic.Int64
	presented      atomic.Int64
	lastPlacement  atomic.String
}

// NewStatic creates a gate reporting entitled.
func NewStatic(entitled bool, opts ...StaticOption) *Static {
	s := &Static{}
	s.entitled.Store(entitled)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Static) IsEntitled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.checks.Inc()
	return s.entitled.Load(), nil
}

func (s *Static) PresentGate(ctx context.Context, placementID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.presented.Inc()
	s.lastPlacement.Store(placementID)
	if s.grantOnPresent.Load() {
		s.entitled.Store(true)
	}
	return nil
}

// SetEntitled changes the reported entitlement.
func (s *Static) SetEntitled(v bool) { s.entitled.Store(v) }

// Checks returns how many entitlement checks were answered.
func (s *Static) Checks() int64 { return s.checks.Load() }

// Presented returns how many paywalls were presented.
func (s *Static) Presented() int64 { return s.presented.Load() }

// LastPlacement returns the placement of the last presented paywall.
func (s *Static) LastPlacement() string { return s.lastPlacement.Load() }
