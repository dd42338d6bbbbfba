package futex

import (
	"fmt"

	"github.com/llxisdsh/futex/sched"
)

const (
	privateBuckets = 64
	sharedBuckets  = 16
	sharedBase     = privateBuckets
	bucketCount    = privateBuckets + sharedBuckets

	privateMask = privateBuckets - 1
	sharedMask  = sharedBuckets - 1

	invalidIndex int32 = -1

	// SharedPid is the pid recorded in shared keys and their nodes.
	SharedPid = ^uint32(0)

	wordSize = 4
)

// Key identifies a lock word.
//
// Private keys hold the virtual address and the owning pid. Shared keys
// hold the physical address and SharedPid, so every process mapping the
// same page resolves to the same key.
type Key struct {
	Addr   uintptr
	Pid    uint32
	Shared bool
}

func (k Key) String() string {
	if k.Shared {
		return fmt.Sprintf("shared:%#x", k.Addr)
	}
	return fmt.Sprintf("private:%d:%#x", k.Pid, k.Addr)
}

// cmp orders keys by address, then pid.
func (k Key) cmp(o Key) int {
	switch {
	case k.Addr < o.Addr:
		return -1
	case k.Addr > o.Addr:
		return 1
	case k.Pid < o.Pid:
		return -1
	case k.Pid > o.Pid:
		return 1
	}
	return 0
}

// ResolveKey validates addr and returns the key for it as seen by task tid.
func (t *Table) ResolveKey(tid sched.TaskID, addr uintptr, flags Flags) (Key, error) {
	if addr%wordSize != 0 {
		return Key{}, ErrUnaligned
	}
	if !t.mem.ValidRange(addr, wordSize) {
		return Key{}, ErrOutOfRange
	}
	pid := t.sched.ProcessID(tid)
	if flags.Private() {
		return Key{Addr: addr, Pid: pid}, nil
	}
	phys, ok := t.mem.Translate(pid, addr)
	if !ok {
		return Key{}, ErrFault
	}
	return Key{Addr: phys, Pid: SharedPid, Shared: true}, nil
}

// BucketIndexOf returns the bucket of k: [0,64) for private keys and
// [64,80) for shared keys.
func BucketIndexOf(k Key) int32 {
	h := fnv32a(uint64(k.Addr))
	if k.Shared {
		return sharedBase + int32(h&sharedMask)
	}
	return int32(h & privateMask)
}

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// fnv32a hashes the 8 little-endian bytes of v.
func fnv32a(v uint64) uint32 {
	h := uint32(fnvOffset32)
	for range 8 {
		h ^= uint32(v & 0xff)
		h *= fnvPrime32
		v >>= 8
	}
	return h
}
