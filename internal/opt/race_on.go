//go:build race

package opt

// Race_ reports whether the race detector is compiled in.
// Stress tests shrink their iteration counts when it is.
const Race_ = true
