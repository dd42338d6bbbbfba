package vm

// Config defines configurable options for Space initialization.
type Config struct {
	base     uintptr
	size     uintptr
	pageSize uintptr
	physBase uintptr
	procs    int
}

const (
	// DefaultUserBase and DefaultUserSize describe the default user window.
	DefaultUserBase uintptr = 0x0100_0000
	DefaultUserSize uintptr = 0x3e00_0000
	// DefaultPageSize is the default page size.
	DefaultPageSize uintptr = 4096
	// DefaultPhysBase is where the physical page pool starts.
	DefaultPhysBase uintptr = 0x8000_0000

	defaultProcs = 16
)

// WithWindow sets the user address window. A zero size is ignored.
func WithWindow(base, size uintptr) func(*Config) {
	return func(c *Config) {
		if size != 0 {
			c.base = base
			c.size = size
		}
	}
}

// WithPageSize sets the page size. It must be a power of two no smaller
// than 64 bytes; other values are ignored.
func WithPageSize(n uintptr) func(*Config) {
	return func(c *Config) {
		if n >= 64 && n&(n-1) == 0 {
			c.pageSize = n
		}
	}
}

// WithProcesses presizes the process registry.
func WithProcesses(n int) func(*Config) {
	return func(c *Config) {
		if n > 0 {
			c.procs = n
		}
	}
}
