package ulock

import (
	"context"
	"errors"

	"github.com/llxisdsh/futex"
	"github.com/llxisdsh/futex/sched"
)

// Semaphore is a counting semaphore over a word in process memory holding
// the number of available permits.
//
// Acquire parks while the count is zero. Release adds permits and wakes as
// many parked tasks; a woken task that loses the race for a permit parks
// again.
type Semaphore struct {
	_     noCopy
	mem   Memory
	fx    Futex
	addr  uintptr
	flags futex.Flags
}

// NewSemaphore stores permits into the word at addr and returns a Semaphore
// over it.
func NewSemaphore(mem Memory, fx Futex, addr uintptr, permits uint32, options ...func(*Config)) (*Semaphore, error) {
	cfg := newConfig(options)
	if err := mem.Store(addr, permits); err != nil {
		return nil, err
	}
	return &Semaphore{
		mem:   mem,
		fx:    fx,
		addr:  addr,
		flags: cfg.flags(),
	}, nil
}

// Permits returns the number of available permits.
func (s *Semaphore) Permits() (uint32, error) {
	return s.mem.Load(s.addr)
}

// TryAcquire takes one permit if one is available.
func (s *Semaphore) TryAcquire() (bool, error) {
	for {
		v, err := s.mem.Load(s.addr)
		if err != nil || v == 0 {
			return false, err
		}
		ok, err := s.mem.CompareAndSwap(s.addr, v, v-1)
		if err != nil || ok {
			return ok, err
		}
	}
}

// Acquire takes one permit, parking task tid while none is available.
// timeout applies to each park, not to the whole call.
func (s *Semaphore) Acquire(ctx context.Context, tid sched.TaskID, timeout sched.Ticks) error {
	for {
		ok, err := s.TryAcquire()
		if err != nil || ok {
			return err
		}
		err = s.fx.Wait(ctx, tid, s.addr, s.flags, 0, timeout)
		if err != nil && !errors.Is(err, futex.ErrValueMismatch) {
			return err
		}
	}
}

// Release returns n permits.
func (s *Semaphore) Release(ctx context.Context, tid sched.TaskID, n uint32) error {
	if n == 0 {
		return nil
	}
	if _, err := s.mem.Add(s.addr, n); err != nil {
		return err
	}
	return wakeIgnoringEmpty(s.fx.Wake(ctx, tid, s.addr, s.flags, int(n)))
}
