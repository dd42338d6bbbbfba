package futex

import (
	"context"
	"sync/atomic"

	"github.com/llxisdsh/futex/sched"
)

type nodeRole uint8

const (
	roleUnlinked nodeRole = iota
	// roleMember: queued behind a head, not visible in the bucket list.
	roleMember
	// roleHead: front of its key's queue and linked into the bucket list.
	roleHead
)

func (r nodeRole) String() string {
	switch r {
	case roleUnlinked:
		return "unlinked"
	case roleMember:
		return "member"
	case roleHead:
		return "head"
	default:
		return "invalid"
	}
}

// waiterNode is the per-task waiter record. Node i belongs to task i.
//
// All fields except index and inUse are guarded by the mutex of the bucket
// named by index. index is also read without the lock to find that bucket,
// so it is accessed atomically.
type waiterNode struct {
	key   Key
	index atomic.Int32
	role  nodeRole
	q     link // key queue ring
	k     link // bucket key list, heads only
	inUse atomic.Bool
}

func (n *waiterNode) reset() {
	n.key = Key{}
	n.index.Store(invalidIndex)
	n.role = roleUnlinked
	n.q.reset()
	n.k.reset()
}

func (n *waiterNode) linked() bool {
	return n.index.Load() != invalidIndex
}

func (t *Table) pending(i int32) bool {
	return t.sched.Pending(sched.TaskID(i))
}

func (t *Table) priority(i int32) uint16 {
	return t.sched.Priority(sched.TaskID(i))
}

// insertNewKey makes i the sole waiter and head of a key that is not yet in
// the bucket. The bucket list is kept in ascending key order so findNode
// can stop early.
func (t *Table) insertNewKey(g *bucketGuard, i int32) {
	n := &t.nodes[i]
	n.role = roleHead
	t.ringInit(i)

	keys := &g.b.keys
	switch {
	case keys.empty() || n.key.cmp(t.nodes[keys.last].key) >= 0:
		t.chainPushBack(keys, i)
	case n.key.cmp(t.nodes[keys.first].key) <= 0:
		t.chainPushFront(keys, i)
	default:
		at := keys.first
		for t.nodes[at].key.cmp(n.key) <= 0 {
			at = t.nodes[at].k.next
		}
		t.chainInsertBefore(keys, at, i)
	}
}

// findNode returns the head of key in the bucket, or invalidIndex. Private
// keys of different processes never match since the pid is part of the key.
func (t *Table) findNode(g *bucketGuard, key Key) int32 {
	for i := g.b.keys.first; i != invalidIndex; i = t.nodes[i].k.next {
		switch t.nodes[i].key.cmp(key) {
		case 0:
			return i
		case 1:
			return invalidIndex
		}
	}
	return invalidIndex
}

// promoteNextHead hands the bucket list slot of old to the next node of its
// queue and returns that node. old stays in the ring as a member; the caller
// unlinks it.
func (t *Table) promoteNextHead(g *bucketGuard, old int32) int32 {
	next := t.nodes[old].q.next
	t.chainReplace(&g.b.keys, old, next)
	t.nodes[next].role = roleHead
	t.nodes[old].role = roleMember
	return next
}

// replaceHead puts i, which must be detached, in front of head and makes it
// the new head.
func (t *Table) replaceHead(g *bucketGuard, head, i int32) {
	t.chainReplace(&g.b.keys, head, i)
	t.ringInsertBefore(head, i)
	t.nodes[i].role = roleHead
	t.nodes[head].role = roleMember
}

// deinitNode unlinks i from its queue ring and clears it. The caller must
// already have removed i from the bucket list if it was a head.
func (t *Table) deinitNode(i int32) {
	n := &t.nodes[i]
	t.ringRemove(i)
	n.k.reset()
	n.key = Key{}
	n.role = roleUnlinked
	n.index.Store(invalidIndex)
}

// removeHead unlinks head i and returns the new head of its key, or
// invalidIndex if the key left the bucket.
func (t *Table) removeHead(g *bucketGuard, i int32) int32 {
	next := invalidIndex
	if t.ringSingleton(i) {
		t.chainRemove(&g.b.keys, i)
	} else {
		next = t.promoteNextHead(g, i)
	}
	t.deinitNode(i)
	return next
}

// removeNode unlinks i whatever its role.
func (t *Table) removeNode(g *bucketGuard, i int32) {
	if t.nodes[i].role == roleHead {
		t.removeHead(g, i)
		return
	}
	t.deinitNode(i)
}

// recycleWokenAndFindNext drops heads whose task is no longer pending,
// starting at head, and returns the first pending head. It returns
// invalidIndex once the queue, and with it the key, is gone.
//
// A node that is linked but not pending was dequeued by its own timeout
// and has not been cleaned up yet.
func (t *Table) recycleWokenAndFindNext(g *bucketGuard, head int32) int32 {
	for head != invalidIndex && !t.pending(head) {
		head = t.removeHead(g, head)
		t.recycled.Add(1)
	}
	return head
}

// insertByPriority queues detached node i on the key headed by head and
// returns the key's head afterwards. Lower priority values go first; i goes
// behind every waiter of equal priority.
//
// The scan starts from whichever end of the queue has the closer priority.
// Stale nodes met on the way are dropped.
func (t *Table) insertByPriority(g *bucketGuard, head, i int32) int32 {
	prio := int(t.priority(i))
	tail := t.nodes[head].q.prev
	fromTail := abs(int(t.priority(tail))-prio) < abs(int(t.priority(head))-prio)
	t.nodes[i].role = roleMember
	if fromTail {
		return t.insertFromTail(g, head, i, prio)
	}
	return t.insertFromHead(g, head, i, prio)
}

func (t *Table) insertFromTail(g *bucketGuard, head, i int32, prio int) int32 {
	for cur := t.nodes[head].q.prev; cur != head; {
		prev := t.nodes[cur].q.prev
		if !t.pending(cur) {
			t.deinitNode(cur)
			t.recycled.Add(1)
			cur = prev
			continue
		}
		if prio >= int(t.priority(cur)) {
			t.ringInsertAfter(cur, i)
			return head
		}
		cur = prev
	}
	if prio >= int(t.priority(head)) {
		t.ringInsertAfter(head, i)
		return head
	}
	t.replaceHead(g, head, i)
	return i
}

func (t *Table) insertFromHead(g *bucketGuard, head, i int32, prio int) int32 {
	if prio < int(t.priority(head)) {
		t.replaceHead(g, head, i)
		return i
	}
	for cur := t.nodes[head].q.next; cur != head; {
		next := t.nodes[cur].q.next
		if !t.pending(cur) {
			t.deinitNode(cur)
			t.recycled.Add(1)
			cur = next
			continue
		}
		if prio < int(t.priority(cur)) {
			t.ringInsertBefore(cur, i)
			return head
		}
		cur = next
	}
	t.ringInsertBefore(head, i)
	return head
}

// enqueue links populated node i into its key in g's bucket.
func (t *Table) enqueue(g *bucketGuard, i int32) {
	head := t.findNode(g, t.nodes[i].key)
	if head != invalidIndex {
		head = t.recycleWokenAndFindNext(g, head)
	}
	if head == invalidIndex {
		t.insertNewKey(g, i)
		return
	}
	t.insertByPriority(g, head, i)
}

// ForceDeleteNode removes the waiter node of task tid from whatever key it
// is queued on. It is meant for task destruction while parked; the task's
// scheduler state is left to the caller. Removing a node that is not
// linked is a no-op.
func (t *Table) ForceDeleteNode(ctx context.Context, tid sched.TaskID) error {
	if err := t.checkTask(tid); err != nil {
		return err
	}
	_, err := t.forceDelete(ctx, int32(tid), true)
	return err
}

// forceDelete reports whether this call removed node i. A requeue may move
// the node to another bucket between reading index and locking; the index
// is checked again under the lock.
func (t *Table) forceDelete(ctx context.Context, i int32, bounded bool) (bool, error) {
	n := &t.nodes[i]
	for {
		idx := n.index.Load()
		if idx == invalidIndex {
			return false, nil
		}
		g, err := t.lockBucketBounded(ctx, idx, bounded)
		if err != nil {
			return false, err
		}
		if n.index.Load() != idx {
			g.unlock()
			continue
		}
		if n.role == roleHead {
			next := t.removeHead(g, i)
			t.recycleWokenAndFindNext(g, next)
		} else {
			t.deinitNode(i)
		}
		g.unlock()
		return true, nil
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
