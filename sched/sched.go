// Package sched is a small priority-aware task scheduler model used as the
// blocking and waking collaborator of the futex engine.
//
// Tasks live in a fixed pool created by NewScheduler; a TaskID is the index
// of a task in that pool and stays stable for the task's lifetime. Every
// blocked task carries a pend indicator. It is set by Pend and cleared by
// exactly one of Wake or the task's own timeout, always under the global
// scheduler lock, so "linked into a wait structure but not pending" reliably
// means "already dequeued by someone else".
package sched

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// TaskID identifies a task. It is the task's index in the scheduler pool.
type TaskID int32

// InvalidTask is the TaskID sentinel for "no task".
const InvalidTask TaskID = -1

// Ticks is a relative timeout in scheduler ticks.
type Ticks uint32

// Forever disables the timeout of a pended task.
const Forever Ticks = ^Ticks(0)

// BlockReason records why a task is blocked.
type BlockReason uint8

const (
	ReasonNone BlockReason = iota
	ReasonFutex
	ReasonSleep
)

func (r BlockReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonFutex:
		return "futex"
	case ReasonSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

var (
	ErrNoTasks     = errors.New("sched: task pool exhausted")
	ErrUnknownTask = errors.New("sched: unknown task")
	ErrTaskBlocked = errors.New("sched: task is blocked")
)

// Task is one schedulable entity. Fields guarded by the scheduler lock are
// written only while it is held; pending and priority may be read without it.
type Task struct {
	_        noCopy
	id       TaskID
	pid      uint32
	priority atomic.Uint32
	pending  atomic.Bool
	inUse    atomic.Bool

	// guarded by Scheduler.mu
	reason  BlockReason
	timeout Ticks

	// wake carries one token per Wake so the parked goroutine can return.
	wake chan struct{}
}

// ID returns the task id.
func (t *Task) ID() TaskID { return t.id }

// Pid returns the id of the process owning the task.
func (t *Task) Pid() uint32 { return t.pid }

// Priority returns the task priority. Lower values are more urgent.
func (t *Task) Priority() uint16 { return uint16(t.priority.Load()) }

// Scheduler owns the task pool and the global scheduler lock.
//
// The zero value is not usable; create one with NewScheduler.
type Scheduler struct {
	_     noCopy
	mu    TicketLock
	tasks []Task
	tick  time.Duration
	irq   atomic.Int32

	reschedules     atomic.Uint64
	peerReschedules atomic.Uint64
	wakes           atomic.Uint64
	timeouts        atomic.Uint64
}

// Stats is a point-in-time copy of the scheduler counters.
type Stats struct {
	Tasks           int
	Pending         int
	Reschedules     uint64
	PeerReschedules uint64
	Wakes           uint64
	Timeouts        uint64
}

// NewScheduler creates a scheduler with a fixed task pool.
func NewScheduler(options ...func(*Config)) *Scheduler {
	cfg := Config{capacity: defaultCapacity, tick: defaultTick}
	for _, o := range options {
		o(&cfg)
	}
	s := &Scheduler{
		tasks: make([]Task, cfg.capacity),
		tick:  cfg.tick,
	}
	for i := range s.tasks {
		s.tasks[i].id = TaskID(i)
		s.tasks[i].wake = make(chan struct{}, 1)
	}
	return s
}

// Capacity returns the size of the task pool.
func (s *Scheduler) Capacity() int { return len(s.tasks) }

// Tick returns the duration of one tick.
func (s *Scheduler) Tick() time.Duration { return s.tick }

// NewTask claims a free slot for a task owned by process pid.
func (s *Scheduler) NewTask(pid uint32, priority uint16) (*Task, error) {
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.inUse.CompareAndSwap(false, true) {
			t.pid = pid
			t.priority.Store(uint32(priority))
			return t, nil
		}
	}
	return nil, ErrNoTasks
}

// DestroyTask returns the task slot to the pool. A task that is still
// pending must be removed from every wait structure first.
func (s *Scheduler) DestroyTask(id TaskID) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	if t.pending.Load() {
		return ErrTaskBlocked
	}
	select {
	case <-t.wake:
	default:
	}
	t.inUse.Store(false)
	return nil
}

// Task returns the task for id, or nil if id is out of range or unclaimed.
func (s *Scheduler) Task(id TaskID) *Task {
	t, err := s.task(id)
	if err != nil {
		return nil
	}
	return t
}

func (s *Scheduler) task(id TaskID) (*Task, error) {
	if id < 0 || int(id) >= len(s.tasks) || !s.tasks[id].inUse.Load() {
		return nil, ErrUnknownTask
	}
	return &s.tasks[id], nil
}

// SetPriority changes a task's priority. Waiters already queued keep their
// position; the new value applies to the next enqueue or requeue.
func (s *Scheduler) SetPriority(id TaskID, priority uint16) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	t.priority.Store(uint32(priority))
	return nil
}

// Lock acquires the global scheduler lock.
func (s *Scheduler) Lock() { s.mu.Lock() }

// Unlock releases the global scheduler lock.
func (s *Scheduler) Unlock() { s.mu.Unlock() }

// Locked reports whether the scheduler lock is currently held.
func (s *Scheduler) Locked() bool { return s.mu.Locked() }

// EnterInterrupt marks the current execution as interrupt context.
// Calls nest; each must be paired with ExitInterrupt.
func (s *Scheduler) EnterInterrupt() { s.irq.Add(1) }

// ExitInterrupt leaves one level of interrupt context.
func (s *Scheduler) ExitInterrupt() { s.irq.Add(-1) }

// InInterrupt reports whether interrupt context is active.
func (s *Scheduler) InInterrupt() bool { return s.irq.Load() > 0 }

// ProcessID returns the owning process of id.
func (s *Scheduler) ProcessID(id TaskID) uint32 { return s.tasks[id].pid }

// Priority returns the priority of id.
func (s *Scheduler) Priority(id TaskID) uint16 {
	return uint16(s.tasks[id].priority.Load())
}

// Pending reports the pend indicator of id. It may be called without the
// scheduler lock; the answer is only stable while the lock is held.
func (s *Scheduler) Pending(id TaskID) bool { return s.tasks[id].pending.Load() }

// Reason returns why id is blocked. Must be called with the lock held.
func (s *Scheduler) Reason(id TaskID) BlockReason { return s.tasks[id].reason }

// Pend marks id as blocked for reason with the given timeout.
// Must be called with the lock held.
func (s *Scheduler) Pend(id TaskID, reason BlockReason, timeout Ticks) {
	t := &s.tasks[id]
	t.reason = reason
	t.timeout = timeout
	t.pending.Store(true)
}

// Yield releases the scheduler lock and parks the calling goroutine as
// task id until Wake or until its timeout expires. It reports whether the
// task timed out. Must be called with the lock held, after Pend.
func (s *Scheduler) Yield(id TaskID) (timedOut bool) {
	t := &s.tasks[id]
	timeout := t.timeout
	s.mu.Unlock()

	if timeout == Forever {
		<-t.wake
		return false
	}

	timer := time.NewTimer(s.tick * time.Duration(timeout))
	select {
	case <-t.wake:
		timer.Stop()
		return false
	case <-timer.C:
	}

	s.mu.Lock()
	if t.pending.Load() {
		t.pending.Store(false)
		t.reason = ReasonNone
		s.mu.Unlock()
		s.timeouts.Add(1)
		return true
	}
	s.mu.Unlock()
	// Woken concurrently with the timer: the token is on its way.
	<-t.wake
	return false
}

// Wake clears the pend indicator of id and makes it runnable. It reports
// false if id was not pending. Must be called with the lock held.
func (s *Scheduler) Wake(id TaskID) bool {
	t := &s.tasks[id]
	if !t.pending.Load() {
		return false
	}
	t.pending.Store(false)
	t.reason = ReasonNone
	select {
	case t.wake <- struct{}{}:
	default:
	}
	s.wakes.Add(1)
	return true
}

// Reschedule yields the current processor.
func (s *Scheduler) Reschedule() {
	s.reschedules.Add(1)
	runtime.Gosched()
}

// ReschedulePeers asks the other processors to reschedule. Goroutines are
// preempted by the Go runtime, so this only records the request.
func (s *Scheduler) ReschedulePeers() {
	s.peerReschedules.Add(1)
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Reschedules:     s.reschedules.Load(),
		PeerReschedules: s.peerReschedules.Load(),
		Wakes:           s.wakes.Load(),
		Timeouts:        s.timeouts.Load(),
	}
	for i := range s.tasks {
		if s.tasks[i].inUse.Load() {
			st.Tasks++
			if s.tasks[i].pending.Load() {
				st.Pending++
			}
		}
	}
	return st
}
