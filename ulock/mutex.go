// Package ulock builds user-space locks on a futex Table.
//
// The lock word lives in process memory. The uncontended path is a single
// atomic operation on it; only contended operations enter the Table.
package ulock

import (
	"context"
	"errors"
	"runtime"

	"github.com/llxisdsh/futex"
	"github.com/llxisdsh/futex/sched"
)

var (
	ErrNotLocked = errors.New("ulock: unlock of unlocked mutex")
)

// Memory is the process memory holding lock words. *vm.Process implements
// it.
type Memory interface {
	Load(addr uintptr) (uint32, error)
	Store(addr uintptr, v uint32) error
	CompareAndSwap(addr uintptr, old, new uint32) (bool, error)
	Swap(addr uintptr, v uint32) (uint32, error)
	Add(addr uintptr, delta uint32) (uint32, error)
}

// Futex is the waiting side of the locks. *futex.Table implements it.
type Futex interface {
	Wait(ctx context.Context, tid sched.TaskID, addr uintptr, flags futex.Flags, expected uint32, timeout sched.Ticks) error
	Wake(ctx context.Context, tid sched.TaskID, addr uintptr, flags futex.Flags, n int) (int, error)
	Requeue(ctx context.Context, tid sched.TaskID, oldAddr uintptr, flags futex.Flags, wakeCount, requeueCount int, newAddr uintptr) (int, int, error)
}

// Lock word states.
//
// mutexSleeping means some task is presumably parked on the word. A task
// that ever changes the word away from mutexSleeping must restore it before
// it returns from Lock, so the parked task still gets its wakeup.
const (
	mutexUnlocked uint32 = 0
	mutexLocked   uint32 = 1
	mutexSleeping uint32 = 2
)

// Mutex is a mutual exclusion lock over a 32-bit word in process memory.
//
// Ownership is not recorded: any task may unlock a locked Mutex. Lock
// sleeps without a timeout; use TryLock to poll.
type Mutex struct {
	_     noCopy
	mem   Memory
	fx    Futex
	addr  uintptr
	flags futex.Flags
	spin  int
}

// NewMutex returns a Mutex over the word at addr. The word must already
// hold zero (unlocked) or be shared with another Mutex handle.
func NewMutex(mem Memory, fx Futex, addr uintptr, options ...func(*Config)) *Mutex {
	cfg := newConfig(options)
	return &Mutex{
		mem:   mem,
		fx:    fx,
		addr:  addr,
		flags: cfg.flags(),
		spin:  cfg.spin,
	}
}

// Addr returns the address of the lock word.
func (m *Mutex) Addr() uintptr { return m.addr }

// TryLock locks m if it is unlocked and reports whether it did.
func (m *Mutex) TryLock() (bool, error) {
	return m.mem.CompareAndSwap(m.addr, mutexUnlocked, mutexLocked)
}

// Lock locks m on behalf of task tid, parking the task while the lock is
// held by someone else.
func (m *Mutex) Lock(ctx context.Context, tid sched.TaskID) error {
	v, err := m.mem.Swap(m.addr, mutexLocked)
	if err != nil || v == mutexUnlocked {
		return err
	}
	wait := v
	for {
		for range m.spin {
			for {
				v, err = m.mem.Load(m.addr)
				if err != nil {
					return err
				}
				if v != mutexUnlocked {
					break
				}
				ok, err := m.mem.CompareAndSwap(m.addr, mutexUnlocked, wait)
				if err != nil || ok {
					return err
				}
			}
			runtime.Gosched()
		}

		v, err = m.mem.Swap(m.addr, mutexSleeping)
		if err != nil || v == mutexUnlocked {
			return err
		}
		wait = mutexSleeping
		if err := m.sleep(ctx, tid); err != nil {
			return err
		}
	}
}

// lockSleeping takes m assuming other tasks are parked on it. Cond uses it
// after a wait, since the waiter may have been moved onto m's word.
func (m *Mutex) lockSleeping(ctx context.Context, tid sched.TaskID) error {
	for {
		v, err := m.mem.Swap(m.addr, mutexSleeping)
		if err != nil || v == mutexUnlocked {
			return err
		}
		if err := m.sleep(ctx, tid); err != nil {
			return err
		}
	}
}

func (m *Mutex) sleep(ctx context.Context, tid sched.TaskID) error {
	err := m.fx.Wait(ctx, tid, m.addr, m.flags, mutexSleeping, sched.Forever)
	if errors.Is(err, futex.ErrValueMismatch) {
		return nil
	}
	return err
}

// Unlock unlocks m and wakes one parked task if there may be any.
func (m *Mutex) Unlock(ctx context.Context, tid sched.TaskID) error {
	v, err := m.mem.Swap(m.addr, mutexUnlocked)
	if err != nil {
		return err
	}
	switch v {
	case mutexUnlocked:
		return ErrNotLocked
	case mutexSleeping:
		return wakeIgnoringEmpty(m.fx.Wake(ctx, tid, m.addr, m.flags, 1))
	}
	return nil
}

// markSleeping forces a held m into the sleeping state so that the next
// Unlock issues a wake.
func (m *Mutex) markSleeping() error {
	for {
		v, err := m.mem.Load(m.addr)
		switch {
		case err != nil:
			return err
		case v == mutexUnlocked:
			return ErrNotLocked
		case v == mutexSleeping:
			return nil
		}
		ok, err := m.mem.CompareAndSwap(m.addr, v, mutexSleeping)
		if err != nil || ok {
			return err
		}
	}
}

func wakeIgnoringEmpty(_ int, err error) error {
	if errors.Is(err, futex.ErrNotFound) {
		return nil
	}
	return err
}

// noCopy may be added to structs which must not be copied
// after the first use.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
