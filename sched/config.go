package sched

import "time"

// Config defines configurable options for Scheduler initialization.
type Config struct {
	// capacity is the size of the task pool. Task ids are indices into
	// this pool and never exceed capacity-1.
	capacity int

	// tick is the wall-clock length of one scheduler tick. Timeouts passed
	// to Pend are expressed in ticks.
	tick time.Duration
}

const (
	defaultCapacity = 64
	defaultTick     = time.Millisecond
)

// WithCapacity sets the number of task slots. Values below 1 are ignored.
func WithCapacity(n int) func(*Config) {
	return func(c *Config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTick sets the duration of one tick. Non-positive values are ignored.
func WithTick(d time.Duration) func(*Config) {
	return func(c *Config) {
		if d > 0 {
			c.tick = d
		}
	}
}
