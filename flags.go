package futex

// Flags carries the operation sub-code in its low bits and the scope bit.
type Flags uint32

const (
	OpWait    Flags = 0
	OpWake    Flags = 1
	OpRequeue Flags = 3

	// FlagPrivate selects process-private scope. Without it the futex is
	// shared and keyed by physical address.
	FlagPrivate Flags = 128

	opMask    Flags = 0x0f
	validMask       = opMask | FlagPrivate
)

// Private reports whether the private scope bit is set.
func (f Flags) Private() bool { return f&FlagPrivate != 0 }

// Op returns the operation sub-code.
func (f Flags) Op() Flags { return f & opMask }

// check accepts flags whose sub-code is zero or op and that carry no
// unknown bits.
func (f Flags) check(op Flags) error {
	if f&^validMask != 0 {
		return ErrBadFlags
	}
	if sub := f.Op(); sub != 0 && sub != op {
		return ErrBadFlags
	}
	return nil
}

func (f Flags) String() string {
	var s string
	switch f.Op() {
	case OpWait:
		s = "WAIT"
	case OpWake:
		s = "WAKE"
	case OpRequeue:
		s = "REQUEUE"
	default:
		s = "OP?"
	}
	if f.Private() {
		s += "|PRIVATE"
	}
	if f&^validMask != 0 {
		s += "|?"
	}
	return s
}
