package ulock

import (
	"context"
	"errors"
	"math"

	"github.com/llxisdsh/futex"
	"github.com/llxisdsh/futex/sched"
)

// Cond is a condition variable paired with a Mutex. Its word is a sequence
// number bumped by every Signal and Broadcast; Wait sleeps only while the
// sequence is unchanged, so a signal between Unlock and the sleep is not
// lost.
//
// Broadcast wakes one waiter and moves the others onto the mutex word with
// a requeue. They are then released one by one by Unlock instead of all
// waking to contend for the mutex.
type Cond struct {
	_   noCopy
	L   *Mutex
	seq uintptr
}

// NewCond returns a Cond whose sequence word is at seq, in the same memory
// and with the same sharing as l.
func NewCond(l *Mutex, seq uintptr) *Cond {
	return &Cond{L: l, seq: seq}
}

// Wait unlocks c.L, waits for a Signal or Broadcast and locks c.L again
// before returning. The caller must hold c.L.
//
// On timeout Wait still relocks c.L and returns futex.ErrTimeout.
func (c *Cond) Wait(ctx context.Context, tid sched.TaskID, timeout sched.Ticks) error {
	m := c.L
	s, err := m.mem.Load(c.seq)
	if err != nil {
		return err
	}
	if err := m.Unlock(ctx, tid); err != nil {
		return err
	}
	werr := m.fx.Wait(ctx, tid, c.seq, m.flags, s, timeout)
	if errors.Is(werr, futex.ErrValueMismatch) {
		werr = nil
	}
	if err := m.lockSleeping(ctx, tid); err != nil {
		return err
	}
	return werr
}

// Signal wakes one waiter, if any.
func (c *Cond) Signal(ctx context.Context, tid sched.TaskID) error {
	m := c.L
	if _, err := m.mem.Add(c.seq, 1); err != nil {
		return err
	}
	return wakeIgnoringEmpty(m.fx.Wake(ctx, tid, c.seq, m.flags, 1))
}

// Broadcast wakes all waiters. The caller must hold c.L.
func (c *Cond) Broadcast(ctx context.Context, tid sched.TaskID) error {
	m := c.L
	if err := m.markSleeping(); err != nil {
		return err
	}
	if _, err := m.mem.Add(c.seq, 1); err != nil {
		return err
	}
	_, _, err := m.fx.Requeue(ctx, tid, c.seq, m.flags, 1, math.MaxInt32, m.addr)
	if errors.Is(err, futex.ErrNotFound) {
		return nil
	}
	return err
}
