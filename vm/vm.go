// Package vm models the user address spaces the futex engine resolves keys
// against: a user address window, per-process page tables, and physical
// pages that several processes may map to share memory.
//
// Page tables are github.com/llxisdsh/pb MapOf instances keyed by virtual
// page number, so lookups from any number of goroutines never take a lock.
package vm

import (
	"errors"
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

var (
	ErrUnaligned     = errors.New("vm: address not aligned")
	ErrOutOfRange    = errors.New("vm: address outside user window")
	ErrFault         = errors.New("vm: address not mapped")
	ErrMapped        = errors.New("vm: page already mapped")
	ErrProcessExists = errors.New("vm: process already exists")
	ErrNoProcess     = errors.New("vm: no such process")
)

// Page is one physical page. Its contents are 32-bit words accessed
// atomically.
type Page struct {
	phys  uintptr
	words []uint32
}

// Phys returns the physical base address of the page.
func (p *Page) Phys() uintptr { return p.phys }

// Space is the set of user address spaces plus the physical page pool.
type Space struct {
	_        noCopy
	base     uintptr
	size     uintptr
	pageSize uintptr
	physBase uintptr
	nextPage atomic.Uintptr
	procs    pb.MapOf[uint32, *Process]
}

// Process is one user address space.
type Process struct {
	pid   uint32
	space *Space
	pages pb.MapOf[uintptr, *Page]
}

// NewSpace creates an empty Space.
func NewSpace(options ...func(*Config)) *Space {
	cfg := Config{
		base:     DefaultUserBase,
		size:     DefaultUserSize,
		pageSize: DefaultPageSize,
		physBase: DefaultPhysBase,
		procs:    defaultProcs,
	}
	for _, o := range options {
		o(&cfg)
	}
	s := &Space{
		base:     cfg.base,
		size:     cfg.size,
		pageSize: cfg.pageSize,
		physBase: cfg.physBase,
	}
	s.procs.InitWithOptions(pb.WithPresize(cfg.procs))
	return s
}

// PageSize returns the page size.
func (s *Space) PageSize() uintptr { return s.pageSize }

// Window returns the user address window [base, base+size).
func (s *Space) Window() (base, size uintptr) { return s.base, s.size }

// NewProcess registers a new address space for pid.
func (s *Space) NewProcess(pid uint32) (*Process, error) {
	p := &Process{pid: pid, space: s}
	if _, loaded := s.procs.LoadOrStore(pid, p); loaded {
		return nil, ErrProcessExists
	}
	return p, nil
}

// Process returns the address space of pid.
func (s *Space) Process(pid uint32) (*Process, bool) {
	return s.procs.Load(pid)
}

// RemoveProcess drops the address space of pid. Its pages stay alive while
// other processes map them.
func (s *Space) RemoveProcess(pid uint32) bool {
	_, ok := s.procs.LoadAndDelete(pid)
	return ok
}

// AllocPage returns a zeroed physical page.
func (s *Space) AllocPage() *Page {
	n := s.nextPage.Add(1) - 1
	return &Page{
		phys:  s.physBase + n*s.pageSize,
		words: make([]uint32, s.pageSize/4),
	}
}

// ValidRange reports whether [addr, addr+size) lies inside the user window.
func (s *Space) ValidRange(addr, size uintptr) bool {
	if addr < s.base || size > s.size {
		return false
	}
	return addr-s.base <= s.size-size
}

// Translate returns the physical address backing addr in process pid.
func (s *Space) Translate(pid uint32, addr uintptr) (uintptr, bool) {
	p, ok := s.procs.Load(pid)
	if !ok {
		return 0, false
	}
	pg, off, err := p.lookup(addr)
	if err != nil {
		return 0, false
	}
	return pg.phys + off, true
}

// LoadWord reads the 32-bit word at addr in process pid.
func (s *Space) LoadWord(pid uint32, addr uintptr) (uint32, error) {
	p, ok := s.procs.Load(pid)
	if !ok {
		return 0, ErrNoProcess
	}
	return p.Load(addr)
}

// Pid returns the process id.
func (p *Process) Pid() uint32 { return p.pid }

// Map installs pg at the page containing vaddr, which must be page aligned.
func (p *Process) Map(vaddr uintptr, pg *Page) error {
	s := p.space
	if vaddr%s.pageSize != 0 {
		return ErrUnaligned
	}
	if !s.ValidRange(vaddr, s.pageSize) {
		return ErrOutOfRange
	}
	if _, loaded := p.pages.LoadOrStore(vaddr/s.pageSize, pg); loaded {
		return ErrMapped
	}
	return nil
}

// MapNew allocates a fresh page and maps it at vaddr.
func (p *Process) MapNew(vaddr uintptr) (*Page, error) {
	pg := p.space.AllocPage()
	if err := p.Map(vaddr, pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// Unmap removes the mapping of the page containing vaddr.
func (p *Process) Unmap(vaddr uintptr) bool {
	_, ok := p.pages.LoadAndDelete(vaddr / p.space.pageSize)
	return ok
}

// Load atomically reads the word at addr.
func (p *Process) Load(addr uintptr) (uint32, error) {
	w, err := p.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(w), nil
}

// Store atomically writes the word at addr.
func (p *Process) Store(addr uintptr, v uint32) error {
	w, err := p.word(addr)
	if err != nil {
		return err
	}
	atomic.StoreUint32(w, v)
	return nil
}

// CompareAndSwap executes the compare-and-swap on the word at addr.
func (p *Process) CompareAndSwap(addr uintptr, old, new uint32) (bool, error) {
	w, err := p.word(addr)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapUint32(w, old, new), nil
}

// Swap atomically stores v into the word at addr and returns the old value.
func (p *Process) Swap(addr uintptr, v uint32) (uint32, error) {
	w, err := p.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.SwapUint32(w, v), nil
}

// Add atomically adds delta to the word at addr and returns the new value.
func (p *Process) Add(addr uintptr, delta uint32) (uint32, error) {
	w, err := p.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint32(w, delta), nil
}

func (p *Process) word(addr uintptr) (*uint32, error) {
	if addr%4 != 0 {
		return nil, ErrUnaligned
	}
	pg, off, err := p.lookup(addr)
	if err != nil {
		return nil, err
	}
	return &pg.words[off/4], nil
}

func (p *Process) lookup(addr uintptr) (*Page, uintptr, error) {
	s := p.space
	if !s.ValidRange(addr, 4) {
		return nil, 0, ErrOutOfRange
	}
	pg, ok := p.pages.Load(addr / s.pageSize)
	if !ok {
		return nil, 0, ErrFault
	}
	return pg, addr % s.pageSize, nil
}

// noCopy may be added to structs which must not be copied
// after the first use.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
