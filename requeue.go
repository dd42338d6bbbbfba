package futex

import (
	"context"

	"go.uber.org/zap"

	"github.com/llxisdsh/futex/sched"
)

// Requeue wakes up to wakeCount waiters of oldAddr and moves up to
// requeueCount of the remaining ones, in queue order, onto newAddr. It
// returns how many tasks were woken and how many were moved.
//
// This is the condition variable broadcast path: wake one waiter and park
// the rest on the mutex instead of letting all of them race for it.
//
// Both buckets stay locked for the whole operation, so a moved waiter is
// always reachable from one of them. Moved waiters are merged into the new
// key by their current priority.
func (t *Table) Requeue(ctx context.Context, tid sched.TaskID, oldAddr uintptr, flags Flags, wakeCount, requeueCount int, newAddr uintptr) (woken, moved int, err error) {
	if t.sched.InInterrupt() {
		return 0, 0, ErrInterruptContext
	}
	if err := flags.check(OpRequeue); err != nil {
		return 0, 0, err
	}
	if oldAddr == newAddr {
		return 0, 0, ErrSameAddress
	}
	if wakeCount < 0 || requeueCount < 0 {
		return 0, 0, ErrBadCount
	}
	if err := t.checkTask(tid); err != nil {
		return 0, 0, err
	}
	oldKey, err := t.ResolveKey(tid, oldAddr, flags)
	if err != nil {
		return 0, 0, err
	}
	newKey, err := t.ResolveKey(tid, newAddr, flags)
	if err != nil {
		return 0, 0, err
	}

	oldIdx, newIdx := BucketIndexOf(oldKey), BucketIndexOf(newKey)
	pg, err := t.lockPair(ctx, oldIdx, newIdx)
	if err != nil {
		return 0, 0, err
	}

	head := t.findNode(pg.from, oldKey)
	if head == invalidIndex {
		pg.unlock()
		return 0, 0, ErrNotFound
	}
	woken, head = t.wakeFront(pg.from, head, wakeCount)

	if requeueCount > 0 && head != invalidIndex {
		var run int32
		run, moved = t.splitFront(pg.from, head, requeueCount)
		if moved > 0 {
			t.relabel(run, newKey, newIdx)
			t.mergeRun(pg.to, run)
		}
	}
	pg.unlock()

	t.requeued.Add(uint64(moved))
	if ce := t.log.Check(zap.DebugLevel, "futex requeue"); ce != nil {
		ce.Write(zap.Stringer("from", oldKey), zap.Stringer("to", newKey), zap.Int("woken", woken), zap.Int("moved", moved))
	}
	if woken > 0 {
		t.reschedule()
	}
	if woken == 0 && moved == 0 {
		return 0, 0, ErrNotFound
	}
	return woken, moved, nil
}

// splitFront detaches up to n pending waiters from the front of the queue
// headed by head and returns them as a separate ring together with its
// length. Stale waiters inside the run are dropped. The remainder, if any,
// keeps the key's place in the bucket under a new head.
func (t *Table) splitFront(g *bucketGuard, head int32, n int) (run int32, count int) {
	head = t.recycleWokenAndFindNext(g, head)
	if head == invalidIndex {
		return invalidIndex, 0
	}
	last, count := head, 1
	for cur := t.nodes[head].q.next; count < n && cur != head; {
		next := t.nodes[cur].q.next
		if !t.pending(cur) {
			t.deinitNode(cur)
			t.recycled.Add(1)
			cur = next
			continue
		}
		last = cur
		count++
		cur = next
	}

	rest := t.ringSplit(head, last)
	if rest == invalidIndex {
		t.chainRemove(&g.b.keys, head)
	} else {
		t.chainReplace(&g.b.keys, head, rest)
		t.nodes[rest].role = roleHead
	}
	t.nodes[head].role = roleMember
	return head, count
}

// relabel gives every node of run the identity of key in bucket idx.
func (t *Table) relabel(run int32, key Key, idx int32) {
	i := run
	for {
		n := &t.nodes[i]
		n.key = key
		n.index.Store(idx)
		i = n.q.next
		if i == run {
			return
		}
	}
}

// mergeRun inserts every node of run into its (already relabelled) key in
// g's bucket, each by its task's current priority.
func (t *Table) mergeRun(g *bucketGuard, run int32) {
	for run != invalidIndex {
		i := run
		run = t.ringRemove(i)
		t.ringInit(i)
		t.enqueue(g, i)
	}
}
