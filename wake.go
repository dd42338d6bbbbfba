package futex

import (
	"context"

	"go.uber.org/zap"

	"github.com/llxisdsh/futex/sched"
)

// Wake wakes up to n tasks waiting on the word at addr, most urgent first,
// and returns how many it woke.
//
// ErrNotFound means no task waits on the key, the usual outcome of an
// uncontended unlock. A key whose remaining waiters all timed out, or
// n == 0, yields (0, nil).
func (t *Table) Wake(ctx context.Context, tid sched.TaskID, addr uintptr, flags Flags, n int) (int, error) {
	if t.sched.InInterrupt() {
		return 0, ErrInterruptContext
	}
	if err := flags.check(OpWake); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrBadCount
	}
	if err := t.checkTask(tid); err != nil {
		return 0, err
	}
	key, err := t.ResolveKey(tid, addr, flags)
	if err != nil {
		return 0, err
	}

	idx := BucketIndexOf(key)
	g, err := t.lockBucket(ctx, idx)
	if err != nil {
		return 0, err
	}
	head := t.findNode(g, key)
	if head == invalidIndex {
		g.unlock()
		return 0, ErrNotFound
	}
	woken, _ := t.wakeFront(g, head, n)
	g.unlock()

	if ce := t.log.Check(zap.DebugLevel, "futex wake"); ce != nil {
		ce.Write(zap.Stringer("key", key), zap.Int("want", n), zap.Int("woken", woken))
	}
	if woken > 0 {
		t.reschedule()
	}
	return woken, nil
}

// wakeFront pops and wakes up to n pending waiters from the queue headed by
// head, skipping stale ones, and returns the number woken and the new head
// (invalidIndex if the key left the bucket).
//
// Every popped node is fully unlinked before its task is made runnable, so
// the task may return from Wait and wait again right away.
func (t *Table) wakeFront(g *bucketGuard, head int32, n int) (woken int, next int32) {
	if n == 0 {
		return 0, head
	}
	sg := g.lockSched()
	for woken < n && head != invalidIndex {
		i := head
		head = t.removeHead(g, i)
		if !sg.wake(sched.TaskID(i)) {
			// Timed out, its owner has not cleaned up yet.
			t.recycled.Add(1)
			continue
		}
		woken++
	}
	sg.unlock()
	t.woken.Add(uint64(woken))
	return woken, head
}
