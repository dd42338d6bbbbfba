package futex

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/llxisdsh/futex/sched"
	"github.com/llxisdsh/futex/vm"
)

type testEnv struct {
	t    *testing.T
	s    *sched.Scheduler
	mem  *vm.Space
	proc *vm.Process
	tab  *Table
	base uintptr
}

func newTestEnv(t *testing.T, options ...func(*Config)) *testEnv {
	t.Helper()
	s := sched.NewScheduler(sched.WithCapacity(64), sched.WithTick(time.Millisecond))
	mem := vm.NewSpace()
	proc, err := mem.NewProcess(1)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	base := vm.DefaultUserBase + 0x10000
	if _, err := proc.MapNew(base); err != nil {
		t.Fatalf("MapNew: %v", err)
	}
	opts := append([]func(*Config){WithLogger(zaptest.NewLogger(t))}, options...)
	return &testEnv{
		t:    t,
		s:    s,
		mem:  mem,
		proc: proc,
		tab:  Init(s, mem, opts...),
		base: base,
	}
}

// task creates a task of process 1.
func (e *testEnv) task(priority uint16) sched.TaskID {
	return e.taskOf(1, priority)
}

func (e *testEnv) taskOf(pid uint32, priority uint16) sched.TaskID {
	e.t.Helper()
	task, err := e.s.NewTask(pid, priority)
	if err != nil {
		e.t.Fatalf("NewTask: %v", err)
	}
	return task.ID()
}

// word returns the address of the n-th word of the mapped page.
func (e *testEnv) word(n int) uintptr {
	return e.base + uintptr(n)*4
}

func (e *testEnv) store(addr uintptr, v uint32) {
	e.t.Helper()
	if err := e.proc.Store(addr, v); err != nil {
		e.t.Fatalf("Store: %v", err)
	}
}

// goWait starts Wait on its own goroutine and returns once the task is
// parked.
func (e *testEnv) goWait(tid sched.TaskID, addr uintptr, flags Flags, val uint32, timeout sched.Ticks) <-chan error {
	e.t.Helper()
	ch := make(chan error, 1)
	go func() {
		ch <- e.tab.Wait(context.Background(), tid, addr, flags, val, timeout)
	}()
	e.waitPending(tid)
	return ch
}

func (e *testEnv) waitPending(tid sched.TaskID) {
	e.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !e.s.Pending(tid) {
		if time.Now().After(deadline) {
			e.t.Fatalf("task %d never parked", tid)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (e *testEnv) wake(tid sched.TaskID, addr uintptr, flags Flags, n int) (int, error) {
	return e.tab.Wake(context.Background(), tid, addr, flags, n)
}

// order returns the queue of addr as task ids, front first.
func (e *testEnv) order(tid sched.TaskID, addr uintptr, flags Flags) []sched.TaskID {
	e.t.Helper()
	ws, err := e.tab.Waiters(context.Background(), tid, addr, flags)
	if err != nil {
		e.t.Fatalf("Waiters: %v", err)
	}
	var out []sched.TaskID
	for _, w := range ws {
		out = append(out, w.Task)
	}
	return out
}

// assertEmpty checks that no key is left in any bucket.
func (e *testEnv) assertEmpty() {
	e.t.Helper()
	st, err := e.tab.Stats(context.Background())
	if err != nil {
		e.t.Fatalf("Stats: %v", err)
	}
	if len(st.Buckets) != 0 {
		e.t.Fatalf("table not empty: %+v", st.Buckets)
	}
}

func (e *testEnv) assertUnlinked(tid sched.TaskID) {
	e.t.Helper()
	n := &e.tab.nodes[tid]
	if n.linked() {
		e.t.Fatalf("task %d node still linked in bucket %d", tid, n.index.Load())
	}
	if n.q != (link{invalidIndex, invalidIndex}) || n.k != (link{invalidIndex, invalidIndex}) {
		e.t.Fatalf("task %d node links not cleared: q=%+v k=%+v", tid, n.q, n.k)
	}
	if n.role != roleUnlinked || n.key != (Key{}) {
		e.t.Fatalf("task %d node not reset: role=%v key=%v", tid, n.role, n.key)
	}
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return")
		return nil
	}
}

func expectBlocked(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("waiter returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}
