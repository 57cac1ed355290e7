package smoke

import (
	"time"

	"github.com/okian/skincheck/internal/domain/types"
)

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Image        string        // Image to upload; a synthetic one when empty
	Timeout      time.Duration // HTTP request timeout
	Wait         time.Duration // How long the analysis may take
	PollInterval time.Duration // How often /state is polled while analyzing
}

// Step is one request made by the run.
type Step struct {
	Name    string        `json:"name" yaml:"name"`
	Status  int           `json:"status" yaml:"status"`
	Screen  string        `json:"screen,omitempty" yaml:"screen,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Report summarizes a smoke run.
type Report struct {
	Steps    []Step             `json:"steps" yaml:"steps"`
	Replayed bool               `json:"replayed" yaml:"replayed"`
	Outcome  *types.OutcomeView `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Failure  *types.FailureView `json:"failure,omitempty" yaml:"failure,omitempty"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Wait <= 0 {
		c.Wait = defaultWait
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}
