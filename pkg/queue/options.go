// Package queue provides the Queue orchestrator for the taskqueue package.
package queue

import (
	"time"

	"github.com/ledgerline/taskqueue/pkg/security"
)

// Options holds configuration for task enqueueing and registration.
type Options struct {
	Priority   int
	MaxRetries int
	Delay      time.Duration
	RunAt      *time.Time
	Timeout    time.Duration
}

// DefaultMaxRetries is the retry budget applied when none is specified.
var DefaultMaxRetries = 3

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Priority:   0,
		MaxRetries: DefaultMaxRetries,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Priority sets the task priority (higher runs sooner).
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// Retries sets the maximum retry count.
// Values are clamped to [0, MaxRetries] (100).
func Retries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxRetries = security.ClampRetries(n)
	})
}

// Delay schedules the task to run after a duration.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// At schedules the task to run at a specific time.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// WithTimeout bounds each handler invocation for a registered task type.
// Only meaningful as a Register option.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Timeout = d
	})
}
