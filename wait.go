package futex

import (
	"context"

	"go.uber.org/zap"

	"github.com/llxisdsh/futex/sched"
)

// Wait blocks task tid on the word at addr as long as the word still holds
// expected, until a Wake or Requeue reaches it or timeout ticks pass.
//
// The word is re-read under the bucket mutex, so a Wake issued after the
// caller changed the word cannot be missed. Wait does not retry: after
// ErrValueMismatch, ErrTimeout or a successful return the caller re-checks
// its own lock word.
//
// ctx bounds only the bucket mutex acquisition. Once parked, the task is
// released by a wake or by its timeout.
func (t *Table) Wait(ctx context.Context, tid sched.TaskID, addr uintptr, flags Flags, expected uint32, timeout sched.Ticks) error {
	if t.sched.InInterrupt() {
		return ErrInterruptContext
	}
	if err := flags.check(OpWait); err != nil {
		return err
	}
	if err := t.checkTask(tid); err != nil {
		return err
	}
	key, err := t.ResolveKey(tid, addr, flags)
	if err != nil {
		return err
	}
	if timeout == 0 {
		return ErrZeroTimeout
	}

	i := int32(tid)
	n := &t.nodes[i]
	if !n.inUse.CompareAndSwap(false, true) {
		return ErrTaskBusy
	}
	defer n.inUse.Store(false)

	idx := BucketIndexOf(key)
	g, err := t.lockBucket(ctx, idx)
	if err != nil {
		return err
	}

	cur, err := t.mem.LoadWord(t.sched.ProcessID(tid), addr)
	if err != nil {
		g.unlock()
		return ErrFault
	}
	if cur != expected {
		g.unlock()
		t.mismatches.Add(1)
		return ErrValueMismatch
	}

	n.key = key
	n.index.Store(idx)
	t.enqueue(g, i)
	t.waits.Add(1)

	if ce := t.log.Check(zap.DebugLevel, "futex wait"); ce != nil {
		ce.Write(zap.Int32("task", i), zap.Stringer("key", key), zap.Int32("bucket", idx), zap.Uint32("timeout", uint32(timeout)))
	}

	sg := g.lockSched()
	if !sg.park(g, tid, timeout) {
		return nil
	}

	// Timed out: the node may still be linked. Whoever finds it stale first
	// removes it; forceDelete does nothing if that already happened.
	t.timeouts.Add(1)
	if _, err := t.forceDelete(context.WithoutCancel(ctx), i, false); err != nil {
		t.log.Error("futex timeout cleanup failed", zap.Int32("task", i), zap.Error(err))
	}
	return ErrTimeout
}
