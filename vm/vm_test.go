package vm

import (
	"errors"
	"sync"
	"testing"
)

func TestSpace_ValidRange(t *testing.T) {
	s := NewSpace(WithWindow(0x1000, 0x4000))
	cases := []struct {
		addr, size uintptr
		want       bool
	}{
		{0x1000, 4, true},
		{0x0ffc, 4, false},
		{0x4ffc, 4, true},
		{0x5000, 4, false},
		{0x4ffe, 4, false},
		{0x1000, 0x4000, true},
		{0x1000, 0x4001, false},
	}
	for _, c := range cases {
		if got := s.ValidRange(c.addr, c.size); got != c.want {
			t.Fatalf("ValidRange(%#x, %d) = %v, want %v", c.addr, c.size, got, c.want)
		}
	}
}

func TestProcess_LoadStore(t *testing.T) {
	s := NewSpace()
	p, err := s.NewProcess(1)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	if _, err := s.NewProcess(1); !errors.Is(err, ErrProcessExists) {
		t.Fatalf("duplicate NewProcess: err = %v", err)
	}
	base := DefaultUserBase + 0x10000
	if _, err := p.Load(base); !errors.Is(err, ErrFault) {
		t.Fatalf("Load unmapped: err = %v", err)
	}
	if _, err := p.MapNew(base); err != nil {
		t.Fatalf("MapNew: %v", err)
	}
	if _, err := p.MapNew(base); !errors.Is(err, ErrMapped) {
		t.Fatalf("double map: err = %v", err)
	}
	if err := p.Store(base+8, 42); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if v, err := s.LoadWord(1, base+8); err != nil || v != 42 {
		t.Fatalf("LoadWord = %d, %v", v, err)
	}
	if _, err := p.Load(base + 2); !errors.Is(err, ErrUnaligned) {
		t.Fatalf("Load unaligned: err = %v", err)
	}
	ok, err := p.CompareAndSwap(base+8, 42, 7)
	if err != nil || !ok {
		t.Fatalf("CompareAndSwap = %v, %v", ok, err)
	}
	if v, _ := p.Add(base+8, 3); v != 10 {
		t.Fatalf("Add = %d, want 10", v)
	}
	if old, err := p.Swap(base+8, 2); err != nil || old != 10 {
		t.Fatalf("Swap = %d, %v", old, err)
	}
	if !p.Unmap(base) {
		t.Fatal("Unmap reported no mapping")
	}
	if _, err := p.Load(base + 8); !errors.Is(err, ErrFault) {
		t.Fatalf("Load after Unmap: err = %v", err)
	}
}

func TestSpace_SharedTranslate(t *testing.T) {
	s := NewSpace()
	a, _ := s.NewProcess(1)
	b, _ := s.NewProcess(2)
	pg := s.AllocPage()
	va := DefaultUserBase + 0x2000
	vb := DefaultUserBase + 0x9000
	if err := a.Map(va, pg); err != nil {
		t.Fatalf("Map a: %v", err)
	}
	if err := b.Map(vb, pg); err != nil {
		t.Fatalf("Map b: %v", err)
	}
	pa, ok := s.Translate(1, va+16)
	if !ok {
		t.Fatal("Translate a failed")
	}
	pbAddr, ok := s.Translate(2, vb+16)
	if !ok {
		t.Fatal("Translate b failed")
	}
	if pa != pbAddr || pa != pg.Phys()+16 {
		t.Fatalf("phys a=%#x b=%#x page=%#x", pa, pbAddr, pg.Phys())
	}
	if err := a.Store(va+16, 9); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Load(vb + 16); v != 9 {
		t.Fatalf("shared word = %d, want 9", v)
	}
	if _, ok := s.Translate(3, va); ok {
		t.Fatal("Translate for unknown pid succeeded")
	}
}

func TestProcess_ConcurrentAdd(t *testing.T) {
	s := NewSpace()
	p, _ := s.NewProcess(1)
	addr := DefaultUserBase
	if _, err := p.MapNew(addr); err != nil {
		t.Fatal(err)
	}
	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = p.Add(addr, 1)
			}
		}()
	}
	wg.Wait()
	if v, _ := p.Load(addr); v != n*100 {
		t.Fatalf("word = %d, want %d", v, n*100)
	}
}
