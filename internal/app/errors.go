package app

import "errors"

var (
	// ErrStopped is returned for commands submitted before Start or after Stop.
	ErrStopped = errors.New("runner stopped")
	// ErrMailboxFull is returned when the command mailbox is at capacity.
	ErrMailboxFull = errors.New("runner mailbox full")
	// ErrUnknownIntent is returned by Dispatch for events that are not argument-less intents.
	ErrUnknownIntent = errors.New("unknown intent")
)
