package sched

import (
	"sync"
	"testing"
)

func TestTicketLock(t *testing.T) {
	var m TicketLock
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	var counter int64
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestTicketLock_TryLock(t *testing.T) {
	var m TicketLock
	if !m.TryLock() {
		t.Fatal("TryLock failed on a free lock")
	}
	if !m.Locked() {
		t.Fatal("Locked() = false after TryLock")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a held lock")
	}
	m.Unlock()
	if m.Locked() {
		t.Fatal("Locked() = true after Unlock")
	}
}
