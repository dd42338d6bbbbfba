package ulock

import "github.com/llxisdsh/futex"

const defaultSpin = 4

// Config defines configurable options for the locks of this package.
type Config struct {
	// shared places the lock word in memory mapped by several processes.
	// Private words are keyed by (address, pid) and can only be used by
	// tasks of one process.
	shared bool

	// spin is the number of passive spin rounds Mutex.Lock tries before
	// sleeping in the futex.
	spin int
}

// WithShared marks the lock word as shared between processes.
func WithShared() func(*Config) {
	return func(c *Config) {
		c.shared = true
	}
}

// WithSpin sets the number of spin rounds before Lock sleeps. Zero sleeps
// right after the first failed attempt.
func WithSpin(n int) func(*Config) {
	return func(c *Config) {
		if n >= 0 {
			c.spin = n
		}
	}
}

func newConfig(options []func(*Config)) Config {
	cfg := Config{spin: defaultSpin}
	for _, o := range options {
		o(&cfg)
	}
	return cfg
}

func (c Config) flags() futex.Flags {
	if c.shared {
		return 0
	}
	return futex.FlagPrivate
}
