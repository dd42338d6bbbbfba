package futex

import (
	"context"

	"github.com/llxisdsh/futex/sched"
)

// Futex is the single entry point used by a system call layer. The
// operation is taken from the sub-code bits of op:
//
//   - OpWait: Wait(addr, op, val, sched.Ticks(val2)); returns 0.
//   - OpWake: Wake(addr, op, val); returns the number woken.
//   - OpRequeue: Requeue(addr, op, val, val2, newAddr); returns woken+moved.
func (t *Table) Futex(ctx context.Context, tid sched.TaskID, addr uintptr, op Flags, val, val2 uint32, newAddr uintptr) (int, error) {
	switch op.Op() {
	case OpWait:
		return 0, t.Wait(ctx, tid, addr, op, val, sched.Ticks(val2))
	case OpWake:
		return t.Wake(ctx, tid, addr, op, int(val))
	case OpRequeue:
		woken, moved, err := t.Requeue(ctx, tid, addr, op, int(val), int(val2), newAddr)
		return woken + moved, err
	default:
		return 0, ErrBadFlags
	}
}
