package futex

import (
	"context"
	"fmt"
	"io"

	"github.com/llxisdsh/futex/sched"
)

// Stats is a snapshot of Table activity.
type Stats struct {
	Waits      uint64
	Woken      uint64
	Timeouts   uint64
	Mismatches uint64
	Requeued   uint64
	Recycled   uint64
	LockFails  uint64

	// Buckets lists only non-empty buckets.
	Buckets []BucketStats
}

// BucketStats describes the keys present in one bucket.
type BucketStats struct {
	Index   int
	Shared  bool
	Keys    int
	Waiters int
}

// Stats returns the counters and, bucket by bucket, the number of keys and
// linked waiters. Each bucket is locked in turn; the result is not an atomic
// view of the whole table.
func (t *Table) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Waits:      t.waits.Load(),
		Woken:      t.woken.Load(),
		Timeouts:   t.timeouts.Load(),
		Mismatches: t.mismatches.Load(),
		Requeued:   t.requeued.Load(),
		Recycled:   t.recycled.Load(),
		LockFails:  t.lockFails.Load(),
	}
	for idx := range t.buckets {
		g, err := t.lockBucket(ctx, int32(idx))
		if err != nil {
			return st, err
		}
		bs := BucketStats{Index: idx, Shared: idx >= sharedBase}
		for h := g.b.keys.first; h != invalidIndex; h = t.nodes[h].k.next {
			bs.Keys++
			bs.Waiters += t.queueLen(h)
		}
		g.unlock()
		if bs.Keys > 0 {
			st.Buckets = append(st.Buckets, bs)
		}
	}
	return st, nil
}

// Waiter is one queued task as reported by Waiters.
type Waiter struct {
	Task     sched.TaskID
	Priority uint16
	Pending  bool
}

// Waiters returns the queue of the key at addr, as seen by task tid, from
// front to back. Tasks that timed out but are still linked are included
// with Pending false.
func (t *Table) Waiters(ctx context.Context, tid sched.TaskID, addr uintptr, flags Flags) ([]Waiter, error) {
	if err := t.checkTask(tid); err != nil {
		return nil, err
	}
	key, err := t.ResolveKey(tid, addr, flags)
	if err != nil {
		return nil, err
	}
	g, err := t.lockBucket(ctx, BucketIndexOf(key))
	if err != nil {
		return nil, err
	}
	defer g.unlock()
	head := t.findNode(g, key)
	if head == invalidIndex {
		return nil, nil
	}
	var out []Waiter
	i := head
	for {
		out = append(out, Waiter{
			Task:     sched.TaskID(i),
			Priority: t.priority(i),
			Pending:  t.pending(i),
		})
		i = t.nodes[i].q.next
		if i == head {
			return out, nil
		}
	}
}

// Dump writes every non-empty bucket with its keys and queues to w.
func (t *Table) Dump(ctx context.Context, w io.Writer) error {
	for idx := range t.buckets {
		g, err := t.lockBucket(ctx, int32(idx))
		if err != nil {
			return err
		}
		err = t.dumpBucket(g, w)
		g.unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) dumpBucket(g *bucketGuard, w io.Writer) error {
	for h := g.b.keys.first; h != invalidIndex; h = t.nodes[h].k.next {
		if _, err := fmt.Fprintf(w, "bucket %d %v:", g.idx, t.nodes[h].key); err != nil {
			return err
		}
		i := h
		for {
			if _, err := fmt.Fprintf(w, " %d(p%d)", i, t.priority(i)); err != nil {
				return err
			}
			i = t.nodes[i].q.next
			if i == h {
				break
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) queueLen(head int32) int {
	n := 1
	for i := t.nodes[head].q.next; i != head; i = t.nodes[i].q.next {
		n++
	}
	return n
}
