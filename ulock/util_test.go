package ulock

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/llxisdsh/futex"
	"github.com/llxisdsh/futex/sched"
	"github.com/llxisdsh/futex/vm"
)

type testEnv struct {
	t    *testing.T
	s    *sched.Scheduler
	mem  *vm.Space
	proc *vm.Process
	tab  *futex.Table
	base uintptr
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := sched.NewScheduler(sched.WithCapacity(32), sched.WithTick(time.Millisecond))
	mem := vm.NewSpace()
	proc, err := mem.NewProcess(1)
	if err != nil {
		t.Fatal(err)
	}
	base := vm.DefaultUserBase
	if _, err := proc.MapNew(base); err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		t:    t,
		s:    s,
		mem:  mem,
		proc: proc,
		tab:  futex.Init(s, mem, futex.WithLogger(zaptest.NewLogger(t))),
		base: base,
	}
}

func (e *testEnv) task(pid uint32) sched.TaskID {
	e.t.Helper()
	task, err := e.s.NewTask(pid, 5)
	if err != nil {
		e.t.Fatal(err)
	}
	return task.ID()
}

func (e *testEnv) waitPending(ids ...sched.TaskID) {
	e.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for _, id := range ids {
		for !e.s.Pending(id) {
			if time.Now().After(deadline) {
				e.t.Fatalf("task %d never parked", id)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}
}
