// Package scheduler provides the wave scheduler that drives task execution.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/ledgerline/taskqueue/pkg/security"
)

// Config holds scheduler configuration.
type Config struct {
	// ConcurrencyLimit bounds how many tasks are in processing at once;
	// each wave dispatches at most this many.
	ConcurrencyLimit int

	// PollInterval is the fallback tick for delayed tasks and recurring
	// schedules; normal work is signalled through the wake channel.
	PollInterval time.Duration

	// RecoverOrphans requeues tasks left in processing by a crash before
	// the first wave.
	RecoverOrphans bool

	Logger *slog.Logger

	// StorageRetry governs retries of store writes during task completion
	// and failure.
	StorageRetry *RetryConfig
}

// Option configures a Scheduler.
type Option interface {
	ApplyScheduler(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyScheduler(c *Config) { f(c) }

// Concurrency sets the concurrency limit.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) Option {
	return optionFunc(func(c *Config) {
		c.ConcurrencyLimit = security.ClampConcurrency(n)
	})
}

// PollInterval sets the fallback poll interval.
func PollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.PollInterval = d
	})
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}

// WithOrphanRecovery toggles requeueing of crash-orphaned processing tasks
// at startup.
func WithOrphanRecovery(enabled bool) Option {
	return optionFunc(func(c *Config) {
		c.RecoverOrphans = enabled
	})
}

// WithStorageRetry sets the retry policy for store writes.
func WithStorageRetry(cfg RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.StorageRetry = &cfg
	})
}
