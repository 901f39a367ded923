// Package sv39 implements the three-level Sv39 page-table walk, mapping,
// dump and teardown used to build the kernel's own address space.
//
// A PageTable is simply the physical address of a page-aligned array of
// 512 eight-byte PTEs; unlike a recursively self-mapped x86 page
// directory, supervisor mode on this target can address physical memory
// directly before and after paging is enabled, so no temporary mapping
// trick is needed to reach an inactive table.
package sv39

import (
	"unsafe"

	kernel "github.com/Alexander-Porter/riscv-os"
	"github.com/Alexander-Porter/riscv-os/internal/kmem"
)

// PTE flag bits (DAGUXWRV, bit 0 upward).
const (
	PteV uint64 = 1 << 0
	PteR uint64 = 1 << 1
	PteW uint64 = 1 << 2
	PteX uint64 = 1 << 3
	PteU uint64 = 1 << 4
	PteG uint64 = 1 << 5
	PteA uint64 = 1 << 6
	PteD uint64 = 1 << 7
)

// satpModeSv39 is the SATP MODE field value selecting Sv39 paging.
const satpModeSv39 = uint64(8)

// WriteSatpFn and SfenceVMAFn let KVMInitHart run on a hosted GOOS during
// tests; cmd/kernel wires these to internal/cpu's real CSR access.
var (
	WriteSatpFn = func(uint64) {}
	SfenceVMAFn = func() {}
)

// AllocPageFn allocates and returns the physical address of a fresh page.
type AllocPageFn func() (uintptr, *kernel.Error)

// FreePageFn returns a physical page to its allocator.
type FreePageFn func(uintptr)

// PageTable is the physical address of a 512-entry PTE array.
type PageTable uintptr

func (pt PageTable) entries() *[512]uint64 {
	return (*[512]uint64)(unsafe.Pointer(uintptr(pt)))
}

func pa2pte(pa uintptr) uint64  { return uint64(pa>>12) << 10 }
func pte2pa(pte uint64) uintptr { return uintptr(pte>>10) << 12 }
func vpn(va uintptr, level int) uintptr {
	return (va >> uint(12+9*level)) & 0x1FF
}

// Walk descends pt from the root to the level-0 PTE slot covering va,
// allocating interior pages along the way when alloc is true. It returns
// nil, nil if the slot doesn't exist and alloc is false. va must be
// below PHYSTOP; a va at or beyond it is a programming error, not a
// recoverable one.
func Walk(pt PageTable, va uintptr, alloc bool, allocPage AllocPageFn) (*uint64, *kernel.Error) {
	if va >= kmem.PHYSTOP {
		kernel.Panic(&kernel.Error{Module: "sv39", Message: "walk: address out of range"})
	}

	for level := 2; level > 0; level-- {
		entries := pt.entries()
		pte := &entries[vpn(va, level)]
		if *pte&PteV != 0 {
			pt = PageTable(pte2pa(*pte))
			continue
		}
		if !alloc {
			return nil, nil
		}
		child, err := allocPage()
		if err != nil {
			return nil, err
		}
		kernel.Memset(child, 0, kmem.PGSIZE)
		*pte = pa2pte(child) | PteV
		pt = PageTable(child)
	}

	entries := pt.entries()
	return &entries[vpn(va, 0)], nil
}

// MapPages installs a mapping for every page in [va, va+size) to the
// matching page of [pa, pa+size), with the given permission bits. Mapping
// onto an already-valid PTE is a logic bug and panics rather than
// returning an error.
func MapPages(pt PageTable, va, size, pa uintptr, perm uint64, allocPage AllocPageFn) *kernel.Error {
	if size == 0 {
		kernel.Panic(&kernel.Error{Module: "sv39", Message: "mappages: zero size"})
	}

	a := kmem.PGROUNDDOWN(va)
	last := kmem.PGROUNDDOWN(va + size - 1)
	for {
		pte, err := Walk(pt, a, true, allocPage)
		if err != nil {
			return err
		}
		if *pte&PteV != 0 {
			kernel.Panic(&kernel.Error{Module: "sv39", Message: "mappages: remap"})
		}
		*pte = pa2pte(pa) | perm | PteV

		if a == last {
			break
		}
		a += kmem.PGSIZE
		pa += kmem.PGSIZE
	}
	return nil
}

// KVMInit builds the kernel's root page table: an identity map of the
// UART MMIO page, kernel text as R|X up to etext, and kernel data plus
// the rest of managed RAM as R|W up to mapEnd. A test build passes a
// mapEnd short of PHYSTOP to leave a range deliberately unmapped, so the
// page-fault path has something to exercise.
func KVMInit(allocPage AllocPageFn, etext, mapEnd uintptr) (PageTable, *kernel.Error) {
	rootAddr, err := allocPage()
	if err != nil {
		return 0, err
	}
	kernel.Memset(rootAddr, 0, kmem.PGSIZE)
	root := PageTable(rootAddr)

	if err := MapPages(root, kmem.UART0, kmem.PGSIZE, kmem.UART0, PteR|PteW, allocPage); err != nil {
		return 0, err
	}
	if err := MapPages(root, kmem.KERNBASE, etext-kmem.KERNBASE, kmem.KERNBASE, PteR|PteX, allocPage); err != nil {
		return 0, err
	}
	if mapEnd > etext {
		if err := MapPages(root, etext, mapEnd-etext, etext, PteR|PteW, allocPage); err != nil {
			return 0, err
		}
	}
	return root, nil
}

// KVMInitHart installs root into SATP and flushes the TLB, turning on
// paging for the current hart (or re-pointing it, if paging is already
// active).
func KVMInitHart(root PageTable) {
	satp := (satpModeSv39 << 60) | uint64(uintptr(root)>>12)
	WriteSatpFn(satp)
	SfenceVMAFn()
}

const dumpEntryLimit = 16

// DumpPagetable prints up to dumpEntryLimit valid entries per level,
// recursing into interior tables.
func DumpPagetable(pt PageTable, printf func(format string, args ...interface{})) {
	dumpLevel(pt, 2, 0, printf)
}

func dumpLevel(pt PageTable, level, indent int, printf func(format string, args ...interface{})) {
	entries := pt.entries()
	shown := 0
	for i, pte := range entries {
		if pte&PteV == 0 {
			continue
		}
		shown++
		if shown > dumpEntryLimit {
			return
		}
		pa := pte2pa(pte)
		for s := 0; s < indent; s++ {
			printf(" ")
		}
		printf("[%3d] pa=%x %s\n", i, pa, flagString(pte))
		if level > 0 && pte&(PteR|PteW|PteX) == 0 {
			dumpLevel(PageTable(pa), level-1, indent+2, printf)
		}
	}
}

func flagString(pte uint64) string {
	flags := [5]byte{'-', '-', '-', '-', '-'}
	if pte&PteR != 0 {
		flags[0] = 'R'
	}
	if pte&PteW != 0 {
		flags[1] = 'W'
	}
	if pte&PteX != 0 {
		flags[2] = 'X'
	}
	if pte&PteU != 0 {
		flags[3] = 'U'
	}
	if pte&PteV != 0 {
		flags[4] = 'V'
	}
	return string(flags[:])
}

// DestroyPagetable recursively frees every interior (non-leaf) page
// reachable from pt, clearing their PTEs, and finally frees pt itself.
// Leaf-mapped physical frames are never touched: ownership of those
// belongs to whoever called MapPages, not to the page table.
func DestroyPagetable(pt PageTable, freePage FreePageFn) {
	entries := pt.entries()
	for i, pte := range entries {
		if pte&PteV == 0 {
			continue
		}
		if pte&(PteR|PteW|PteX) == 0 {
			DestroyPagetable(PageTable(pte2pa(pte)), freePage)
			entries[i] = 0
		}
	}
	freePage(uintptr(pt))
}

// UnmapAndFreeLeaves walks [vaStart, vaEnd) a page at a time, frees each
// mapped leaf frame and clears its PTE. DestroyPagetable deliberately
// never does this on its own, since it has no way to know whether a leaf
// frame is still referenced elsewhere; callers that know a range's
// leaves are exclusively theirs call this explicitly before (or instead
// of) destroying the table.
func UnmapAndFreeLeaves(pt PageTable, vaStart, vaEnd uintptr, freePage FreePageFn) {
	for a := kmem.PGROUNDDOWN(vaStart); a < vaEnd; a += kmem.PGSIZE {
		pte, _ := Walk(pt, a, false, nil)
		if pte == nil || *pte&PteV == 0 {
			continue
		}
		freePage(pte2pa(*pte))
		*pte = 0
	}
}
