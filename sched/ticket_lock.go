package sched

import (
	"sync/atomic"
	"time"
	_ "unsafe" // for linkname
)

// TicketLock is a fair, FIFO spin-lock. It backs the global scheduler lock.
//
// Unlike sync.Mutex, which allows "barging", TicketLock hands the lock to
// callers in the exact order they called Lock(). The scheduler lock is held
// only for a handful of field updates, so a spinning lock with an adaptive
// delay is cheaper than parking the goroutine.
type TicketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until the lock is available.
func (m *TicketLock) Lock() {
	my := m.next.Add(1) - 1
	var spins int
	for m.serving.Load() != my {
		delay(&spins)
	}
}

// TryLock acquires the lock only if nobody holds or waits for it.
func (m *TicketLock) TryLock() bool {
	s := m.serving.Load()
	return m.next.CompareAndSwap(s, s+1)
}

// Unlock releases the lock.
func (m *TicketLock) Unlock() {
	m.serving.Add(1)
}

// Locked reports whether the lock is held. Intended for assertions.
func (m *TicketLock) Locked() bool {
	return m.next.Load() != m.serving.Load()
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

func delay(spins *int) {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return
	}
	*spins = 0
	// Millisecond-level sleeps work as backoff under high concurrency,
	// see folly's Sleeper.
	time.Sleep(500 * time.Microsecond)
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()
