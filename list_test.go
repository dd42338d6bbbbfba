package futex

import (
	"slices"
	"testing"
)

func ringOf(tab *Table, first int32) []int32 {
	out := []int32{first}
	for i := tab.nodes[first].q.next; i != first; i = tab.nodes[i].q.next {
		out = append(out, i)
		if len(out) > len(tab.nodes) {
			panic("ring does not close")
		}
	}
	return out
}

func chainOf(tab *Table, s span) []int32 {
	var out []int32
	prev := invalidIndex
	for i := s.first; i != invalidIndex; i = tab.nodes[i].k.next {
		if tab.nodes[i].k.prev != prev {
			panic("chain back link broken")
		}
		out = append(out, i)
		prev = i
	}
	if s.last != prev {
		panic("chain last mismatch")
	}
	return out
}

func TestRing_InsertSplitRemove(t *testing.T) {
	e := newTestEnv(t)
	tab := e.tab
	tab.ringInit(0)
	for i := int32(1); i < 6; i++ {
		tab.ringInsertBefore(0, i) // append at tail
	}
	if got := ringOf(tab, 0); !slices.Equal(got, []int32{0, 1, 2, 3, 4, 5}) {
		t.Fatalf("ring = %v", got)
	}

	rest := tab.ringSplit(0, 2)
	if rest != 3 {
		t.Fatalf("rest = %d, want 3", rest)
	}
	if got := ringOf(tab, 0); !slices.Equal(got, []int32{0, 1, 2}) {
		t.Fatalf("run = %v", got)
	}
	if got := ringOf(tab, 3); !slices.Equal(got, []int32{3, 4, 5}) {
		t.Fatalf("rest ring = %v", got)
	}
	if tab.ringSplit(3, 5) != invalidIndex {
		t.Fatal("split at tail returned a remainder")
	}

	if next := tab.ringRemove(1); next != 2 {
		t.Fatalf("ringRemove(1) = %d, want 2", next)
	}
	tab.ringInsertAfter(2, 1)
	if got := ringOf(tab, 0); !slices.Equal(got, []int32{0, 2, 1}) {
		t.Fatalf("ring after reinsertion = %v", got)
	}
	tab.ringRemove(2)
	tab.ringRemove(1)
	if !tab.ringSingleton(0) {
		t.Fatal("ring of one is not a singleton")
	}
	if next := tab.ringRemove(0); next != invalidIndex {
		t.Fatalf("removing the last node returned %d", next)
	}
	if tab.nodes[0].q != (link{invalidIndex, invalidIndex}) {
		t.Fatalf("removed node links = %+v", tab.nodes[0].q)
	}
}

func TestChain_Operations(t *testing.T) {
	e := newTestEnv(t)
	tab := e.tab
	s := emptySpan()
	tab.chainPushBack(&s, 1)
	tab.chainPushBack(&s, 2)
	tab.chainPushFront(&s, 0)
	tab.chainInsertBefore(&s, 2, 3)
	tab.chainInsertBefore(&s, 0, 4)
	if got := chainOf(tab, s); !slices.Equal(got, []int32{4, 0, 1, 3, 2}) {
		t.Fatalf("chain = %v", got)
	}
	tab.chainReplace(&s, 4, 5)
	tab.chainReplace(&s, 2, 6)
	tab.chainReplace(&s, 1, 7)
	if got := chainOf(tab, s); !slices.Equal(got, []int32{5, 0, 7, 3, 6}) {
		t.Fatalf("chain after replace = %v", got)
	}
	for _, i := range []int32{5, 6, 3, 0, 7} {
		tab.chainRemove(&s, i)
		chainOf(tab, s)
	}
	if !s.empty() || s.last != invalidIndex {
		t.Fatalf("chain not empty: %+v", s)
	}
}

func TestInsertNewKey_Ordered(t *testing.T) {
	e := newTestEnv(t)
	tab := e.tab
	g, err := tab.lockBucket(t.Context(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer g.unlock()
	addrs := []uintptr{0x50, 0x10, 0x90, 0x30, 0x70, 0x10}
	for i, a := range addrs {
		n := &tab.nodes[i]
		n.key = Key{Addr: a, Pid: uint32(i)}
		n.index.Store(0)
		tab.insertNewKey(g, int32(i))
	}
	var got []uintptr
	for _, i := range chainOf(tab, g.b.keys) {
		got = append(got, tab.nodes[i].key.Addr)
	}
	want := []uintptr{0x10, 0x10, 0x30, 0x50, 0x70, 0x90}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key order = %#x, want %#x", got, want)
		}
	}
	if h := tab.findNode(g, Key{Addr: 0x10, Pid: 5}); h != 5 {
		t.Fatalf("findNode pid 5 = %d", h)
	}
	if h := tab.findNode(g, Key{Addr: 0x10, Pid: 1}); h != 1 {
		t.Fatalf("findNode pid 1 = %d", h)
	}
	if h := tab.findNode(g, Key{Addr: 0x10, Pid: 2}); h != invalidIndex {
		t.Fatalf("findNode foreign pid = %d", h)
	}
	if h := tab.findNode(g, Key{Addr: 0x60, Pid: 0}); h != invalidIndex {
		t.Fatalf("findNode missing key = %d", h)
	}
	for i := range addrs {
		tab.removeNode(g, int32(i))
	}
	if !g.b.keys.empty() {
		t.Fatal("bucket not empty after removing every head")
	}
}
