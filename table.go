package futex

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/llxisdsh/futex/internal/opt"
	"github.com/llxisdsh/futex/sched"
)

// Scheduler is the blocking and waking collaborator. *sched.Scheduler
// implements it.
//
// Lock/Unlock guard the pend indicators. Pend, Wake and Yield must be
// called with the lock held; Yield releases it. Pending may be read without
// the lock.
type Scheduler interface {
	Capacity() int
	Lock()
	Unlock()
	InInterrupt() bool
	ProcessID(id sched.TaskID) uint32
	Priority(id sched.TaskID) uint16
	Pending(id sched.TaskID) bool
	Pend(id sched.TaskID, reason sched.BlockReason, timeout sched.Ticks)
	Yield(id sched.TaskID) (timedOut bool)
	Wake(id sched.TaskID) bool
	Reschedule()
	ReschedulePeers()
}

// AddressSpace is the user memory collaborator. *vm.Space implements it.
type AddressSpace interface {
	ValidRange(addr, size uintptr) bool
	Translate(pid uint32, addr uintptr) (uintptr, bool)
	LoadWord(pid uint32, addr uintptr) (uint32, error)
}

type bucket struct {
	mu   *semaphore.Weighted
	keys span
}

type paddedBucket struct {
	bucket
	_ [(opt.CacheLineSize_ - unsafe.Sizeof(bucket{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

// Table is the futex hash table together with the waiter arena.
//
// Create it with Init. A Table is bound to one Scheduler and one
// AddressSpace for its whole life.
type Table struct {
	_       noCopy
	buckets [bucketCount]paddedBucket
	nodes   []waiterNode
	sched   Scheduler
	mem     AddressSpace
	cfg     Config
	log     *zap.Logger

	waits      atomic.Uint64
	woken      atomic.Uint64
	timeouts   atomic.Uint64
	mismatches atomic.Uint64
	requeued   atomic.Uint64
	recycled   atomic.Uint64
	lockFails  atomic.Uint64
}

// Init builds a Table whose waiter arena covers every task of s.
func Init(s Scheduler, mem AddressSpace, options ...func(*Config)) *Table {
	cfg := Config{reschedule: true}
	for _, o := range options {
		o(&cfg)
	}
	t := &Table{
		nodes: make([]waiterNode, s.Capacity()),
		sched: s,
		mem:   mem,
		cfg:   cfg,
		log:   cfg.logger,
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	for i := range t.buckets {
		t.buckets[i].mu = semaphore.NewWeighted(1)
		t.buckets[i].keys = emptySpan()
	}
	for i := range t.nodes {
		t.nodes[i].reset()
	}
	return t
}

// Close checks that no key is present. The Table must not be used after a
// successful Close.
func (t *Table) Close(ctx context.Context) error {
	for i := range t.buckets {
		g, err := t.lockBucket(ctx, int32(i))
		if err != nil {
			return err
		}
		empty := g.b.keys.empty()
		g.unlock()
		if !empty {
			return fmt.Errorf("%w: bucket %d", ErrBusy, i)
		}
	}
	t.log.Debug("futex table closed")
	return nil
}

func (t *Table) checkTask(tid sched.TaskID) error {
	if tid < 0 || int(tid) >= len(t.nodes) {
		return ErrBadTask
	}
	return nil
}

func (t *Table) reschedule() {
	if !t.cfg.reschedule {
		return
	}
	t.sched.ReschedulePeers()
	t.sched.Reschedule()
}

// bucketGuard is a held bucket mutex. It is the outer lock.
type bucketGuard struct {
	t   *Table
	b   *bucket
	idx int32
}

// schedGuard is the held scheduler lock. It can only be obtained from a
// bucketGuard, which fixes the acquisition order.
type schedGuard struct {
	s Scheduler
}

func (t *Table) lockBucket(ctx context.Context, idx int32) (*bucketGuard, error) {
	return t.lockBucketBounded(ctx, idx, true)
}

// lockBucketBounded applies the configured lock timeout only if bounded.
// Cleanup paths that must not give up pass false with a context that is
// never cancelled.
func (t *Table) lockBucketBounded(ctx context.Context, idx int32, bounded bool) (*bucketGuard, error) {
	b := &t.buckets[idx].bucket
	if bounded && t.cfg.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.lockTimeout)
		defer cancel()
	}
	if err := b.mu.Acquire(ctx, 1); err != nil {
		t.lockFails.Add(1)
		t.log.Warn("futex bucket lock failed", zap.Int32("bucket", idx), zap.Error(err))
		return nil, fmt.Errorf("%w: bucket %d: %w", ErrLockFailed, idx, err)
	}
	return &bucketGuard{t: t, b: b, idx: idx}, nil
}

func (g *bucketGuard) unlock() {
	g.b.mu.Release(1)
}

func (g *bucketGuard) lockSched() schedGuard {
	g.t.sched.Lock()
	return schedGuard{s: g.t.sched}
}

func (sg schedGuard) unlock() {
	sg.s.Unlock()
}

func (sg schedGuard) wake(id sched.TaskID) bool {
	return sg.s.Wake(id)
}

// park marks id blocked, drops the bucket mutex and yields. The bucket is
// released only once the task is pending, so a waker that takes the bucket
// next always finds a parked task. Both locks are released on return.
func (sg schedGuard) park(g *bucketGuard, id sched.TaskID, timeout sched.Ticks) (timedOut bool) {
	sg.s.Pend(id, sched.ReasonFutex, timeout)
	g.unlock()
	return sg.s.Yield(id)
}

// pairGuard holds the buckets of a requeue. Distinct buckets are locked in
// ascending index order; equal buckets are locked once.
type pairGuard struct {
	from, to *bucketGuard
}

func (t *Table) lockPair(ctx context.Context, from, to int32) (pairGuard, error) {
	if from == to {
		g, err := t.lockBucket(ctx, from)
		if err != nil {
			return pairGuard{}, err
		}
		return pairGuard{from: g, to: g}, nil
	}
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	first, err := t.lockBucket(ctx, lo)
	if err != nil {
		return pairGuard{}, err
	}
	second, err := t.lockBucket(ctx, hi)
	if err != nil {
		first.unlock()
		return pairGuard{}, err
	}
	if lo == from {
		return pairGuard{from: first, to: second}, nil
	}
	return pairGuard{from: second, to: first}, nil
}

func (p pairGuard) unlock() {
	p.to.unlock()
	if p.from != p.to {
		p.from.unlock()
	}
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
