package futex

import (
	"time"

	"go.uber.org/zap"
)

// Config defines configurable options for Table initialization.
type Config struct {
	// logger receives lock failures and debug traces of every operation.
	// If nil, a no-op logger is used.
	logger *zap.Logger

	// lockTimeout bounds how long an operation waits for a bucket mutex.
	// Zero means the wait is bounded only by the caller's context.
	lockTimeout time.Duration

	// reschedule controls whether Wake and Requeue ask the scheduler to
	// reschedule after waking at least one task. Enabled by default.
	reschedule bool
}

// WithLogger sets the logger used by the Table.
func WithLogger(l *zap.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = l
	}
}

// WithLockTimeout bounds bucket mutex acquisition. Operations that cannot
// take their bucket in time fail with ErrLockFailed.
func WithLockTimeout(d time.Duration) func(*Config) {
	return func(c *Config) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithoutReschedule disables the reschedule requests issued after a wake.
func WithoutReschedule() func(*Config) {
	return func(c *Config) {
		c.reschedule = false
	}
}
