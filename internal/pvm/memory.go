package pvm

import (
	"errors"
	"maps"
)

var (
	ErrForbiddenMemoryAccess = ErrPanicf("forbidden memory access")
	ErrPageOutOfRange        = errors.New("page index out of range")
	ErrInaccessiblePage      = errors.New("page is not accessible")
)

type MemoryAccess int

const (
	Inaccessible MemoryAccess = iota // ∅ (Inaccessible)
	ReadOnly                         // R (Read-Only)
	ReadWrite                        // W (Read-Write)
)

type page struct {
	access MemoryAccess
	data   []byte
}

// Memory M ≡ (v ∈ B_(2^32), a ∈ ⟦{W, R, ∅}⟧p) (eq. 4.24 v0.7.2)
// Only accessible pages are backed, an absent page is inaccessible and reads as zero.
// Copies of a Memory value share their pages, use Clone for an independent copy.
type Memory struct {
	pages map[uint32]*page
}

func NewMemory() Memory {
	return Memory{pages: make(map[uint32]*page)}
}

// Clone deep copies all pages
func (m Memory) Clone() Memory {
	cloned := Memory{pages: make(map[uint32]*page, len(m.pages))}
	for idx, p := range m.pages {
		cloned.pages[idx] = &page{access: p.access, data: append([]byte(nil), p.data...)}
	}
	return cloned
}

// Pages returns the number of accessible pages
func (m Memory) Pages() int {
	return len(m.pages)
}

// Read reads from the set of readable indices (Vμ) (implements eq. A.7 v0.7.2)
func (m Memory) Read(address uint32, data []byte) error {
	return m.access(address, data, ReadOnly, func(chunk, pageData []byte) {
		copy(chunk, pageData)
	})
}

// Write writes to the set of writeable indices (Vμ*) (implements eq. A.7 v0.7.2)
func (m Memory) Write(address uint32, data []byte) error {
	return m.access(address, data, ReadWrite, func(chunk, pageData []byte) {
		copy(pageData, chunk)
	})
}

// access checks every touched page before copying anything so a fault leaves memory unchanged
func (m Memory) access(address uint32, data []byte, required MemoryAccess, do func(chunk, pageData []byte)) error {
	if err := m.Check(address, uint64(len(data)), required); err != nil {
		return err
	}

	pos := uint64(address)
	for len(data) > 0 {
		p := m.pages[uint32(pos/PageSize)]
		offset := pos % PageSize
		n := min(uint64(len(data)), PageSize-offset)
		do(data[:n], p.data[offset:offset+n])
		data = data[n:]
		pos += n
	}
	return nil
}

// Check reports the fault a read (ReadOnly) or write (ReadWrite) of length bytes at
// address would raise, without touching memory. An empty range never faults.
func (m Memory) Check(address uint32, length uint64, required MemoryAccess) error {
	if length == 0 {
		return nil
	}

	// ☇ if min(x) mod 2^32 < 2^16
	if address < 1<<16 {
		return ErrForbiddenMemoryAccess
	}
	end := uint64(address) + length
	if end > AddressSpaceSize {
		return ErrPanicf("inaccessible memory; address overflow")
	}

	first, last := address/PageSize, uint32((end-1)/PageSize)
	// F × ZP ⌊ min(x) mod 2^32 ÷ ZP ⌋ (eq. A.8 v0.7.2)
	for idx := first; idx <= last; idx++ {
		p, ok := m.pages[idx]
		if !ok || p.access < required {
			reason := "inaccessible memory"
			if required == ReadWrite {
				reason = "memory at address is not writeable"
			}
			return &ErrPageFault{Reason: reason, Address: idx * PageSize}
		}
	}
	return nil
}

// SetAccess updates the access mode of a page. Making a page inaccessible drops its contents.
func (m *Memory) SetAccess(pageIndex uint32, access MemoryAccess) error {
	if pageIndex >= MaxPageIndex {
		return ErrPageOutOfRange
	}
	if access == Inaccessible {
		delete(m.pages, pageIndex)
		return nil
	}
	if m.pages == nil {
		m.pages = make(map[uint32]*page)
	}
	if p, ok := m.pages[pageIndex]; ok {
		p.access = access
		return nil
	}
	m.pages[pageIndex] = &page{access: access, data: make([]byte, PageSize)}
	return nil
}

func (m Memory) GetAccess(pageIndex uint32) MemoryAccess {
	if p, ok := m.pages[pageIndex]; ok {
		return p.access
	}
	return Inaccessible
}

// Zero makes count pages starting at pageIndex zeroed and writeable, allocating them if needed.
func (m *Memory) Zero(pageIndex, count uint32) error {
	if uint64(pageIndex)+uint64(count) > MaxPageIndex {
		return ErrPageOutOfRange
	}
	if m.pages == nil {
		m.pages = make(map[uint32]*page)
	}
	for idx := pageIndex; idx < pageIndex+count; idx++ {
		if p, ok := m.pages[idx]; ok {
			clear(p.data)
			p.access = ReadWrite
			continue
		}
		m.pages[idx] = &page{access: ReadWrite, data: make([]byte, PageSize)}
	}
	return nil
}

// Void deallocates count pages starting at pageIndex. Nothing is changed unless every page is accessible.
func (m *Memory) Void(pageIndex, count uint32) error {
	if uint64(pageIndex)+uint64(count) > MaxPageIndex {
		return ErrPageOutOfRange
	}
	for idx := pageIndex; idx < pageIndex+count; idx++ {
		if _, ok := m.pages[idx]; !ok {
			return ErrInaccessiblePage
		}
	}
	for idx := pageIndex; idx < pageIndex+count; idx++ {
		delete(m.pages, idx)
	}
	return nil
}

// mapRegion backs [address, address+size) with pages of the given access and copies data to its start.
// address must be page aligned.
func (m *Memory) mapRegion(address, size uint32, data []byte, access MemoryAccess) {
	if m.pages == nil {
		m.pages = make(map[uint32]*page)
	}
	for offset := uint32(0); offset < size; offset += PageSize {
		p := &page{access: access, data: make([]byte, PageSize)}
		if int(offset) < len(data) {
			copy(p.data, data[offset:])
		}
		m.pages[(address+offset)/PageSize] = p
	}
}

// Equal reports whether both memories have the same accessible pages with the same contents
func (m Memory) Equal(other Memory) bool {
	return maps.EqualFunc(m.pages, other.pages, func(a, b *page) bool {
		return a.access == b.access && string(a.data) == string(b.data)
	})
}
