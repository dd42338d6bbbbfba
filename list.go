package futex

// Waiter nodes are linked by arena index, never by pointer. Two shapes are
// used:
//
//   - ring: the circular doubly linked queue of one key. Its handle is the
//     index of the key head, and head.q.prev is the tail.
//   - chain: the nil-terminated, ascending key list of one bucket, with a
//     span{first, last} handle held by the bucket.

type link struct {
	prev, next int32
}

func (l *link) reset() {
	l.prev, l.next = invalidIndex, invalidIndex
}

type span struct {
	first, last int32
}

func emptySpan() span { return span{invalidIndex, invalidIndex} }

func (s span) empty() bool { return s.first == invalidIndex }

// ring operations on the q links.

func (t *Table) ringInit(i int32) {
	n := &t.nodes[i]
	n.q.prev, n.q.next = i, i
}

func (t *Table) ringSingleton(i int32) bool {
	return t.nodes[i].q.next == i
}

// ringInsertBefore links i, which must be detached, in front of at.
func (t *Table) ringInsertBefore(at, i int32) {
	prev := t.nodes[at].q.prev
	n := &t.nodes[i]
	n.q.prev, n.q.next = prev, at
	t.nodes[prev].q.next = i
	t.nodes[at].q.prev = i
}

// ringInsertAfter links i, which must be detached, behind at.
func (t *Table) ringInsertAfter(at, i int32) {
	t.ringInsertBefore(t.nodes[at].q.next, i)
}

// ringRemove unlinks i and returns its successor, or invalidIndex if i was
// alone.
func (t *Table) ringRemove(i int32) int32 {
	n := &t.nodes[i]
	if n.q.next == i || n.q.next == invalidIndex {
		n.q.reset()
		return invalidIndex
	}
	next := n.q.next
	t.nodes[n.q.prev].q.next = next
	t.nodes[next].q.prev = n.q.prev
	n.q.reset()
	return next
}

// ringSplit cuts the ring headed by first after last. The run
// [first..last] and the remainder become two separate rings. It returns
// the remainder's first element, or invalidIndex if last was the tail.
func (t *Table) ringSplit(first, last int32) int32 {
	tail := t.nodes[first].q.prev
	if last == tail {
		return invalidIndex
	}
	rest := t.nodes[last].q.next
	t.nodes[rest].q.prev = tail
	t.nodes[tail].q.next = rest
	t.nodes[first].q.prev = last
	t.nodes[last].q.next = first
	return rest
}

// chain operations on the k links of a bucket's key list.

func (t *Table) chainPushFront(s *span, i int32) {
	n := &t.nodes[i]
	n.k.prev, n.k.next = invalidIndex, s.first
	if s.empty() {
		s.last = i
	} else {
		t.nodes[s.first].k.prev = i
	}
	s.first = i
}

func (t *Table) chainPushBack(s *span, i int32) {
	n := &t.nodes[i]
	n.k.prev, n.k.next = s.last, invalidIndex
	if s.empty() {
		s.first = i
	} else {
		t.nodes[s.last].k.next = i
	}
	s.last = i
}

func (t *Table) chainInsertBefore(s *span, at, i int32) {
	prev := t.nodes[at].k.prev
	if prev == invalidIndex {
		t.chainPushFront(s, i)
		return
	}
	n := &t.nodes[i]
	n.k.prev, n.k.next = prev, at
	t.nodes[prev].k.next = i
	t.nodes[at].k.prev = i
}

func (t *Table) chainRemove(s *span, i int32) {
	n := &t.nodes[i]
	if n.k.prev == invalidIndex {
		s.first = n.k.next
	} else {
		t.nodes[n.k.prev].k.next = n.k.next
	}
	if n.k.next == invalidIndex {
		s.last = n.k.prev
	} else {
		t.nodes[n.k.next].k.prev = n.k.prev
	}
	n.k.reset()
}

// chainReplace puts i, which must be detached, at old's position.
func (t *Table) chainReplace(s *span, old, i int32) {
	o := &t.nodes[old]
	n := &t.nodes[i]
	n.k = o.k
	if o.k.prev == invalidIndex {
		s.first = i
	} else {
		t.nodes[o.k.prev].k.next = i
	}
	if o.k.next == invalidIndex {
		s.last = i
	} else {
		t.nodes[o.k.next].k.prev = i
	}
	o.k.reset()
}
