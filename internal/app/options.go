package app

import "github.com/okian/skincheck/pkg/logger"

const defaultMailboxSize = 64

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithMailboxSize sets the number of commands that may wait for the loop.
func WithMailboxSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}
