// Package futex is a hashed, priority-ordered wait-queue manager that
// arbitrates contended user-space locks.
//
// A lock word lives in user memory and is manipulated with compare-and-swap
// by its owner; the Table is only involved when a caller must block (Wait)
// or must hand the lock to blocked callers (Wake, Requeue). Each lock word
// is identified by a Key: its virtual address plus owning process for
// private futexes, or its physical address for futexes shared between
// processes.
//
// Layout:
//   - 80 buckets, each guarded by its own mutex: 64 for private keys and 16
//     for shared keys.
//   - Each bucket holds the ascending list of key heads that hash to it.
//   - Each key head anchors the priority-ordered queue of its waiters.
//     Lower priority values are woken first; equal priorities are FIFO.
//
// Waiter nodes are not allocated. They live in an arena indexed by the
// scheduler's TaskID, and all links between them are arena indices.
//
// Lock order: bucket mutex (outer) before the scheduler lock (inner). The
// only path to the scheduler lock is through a held bucket guard.
package futex
