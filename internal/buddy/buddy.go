// Package buddy implements a physical-memory buddy allocator over a
// contiguous byte range. Free blocks double as their own free-list nodes
// (see internal/klist); each size class additionally tracks two bitmaps:
// an XOR-compressed pair bitmap (one bit per buddy pair, flipped whenever
// either sibling's allocation state changes) and a split bitmap (one bit
// per block, set once a block has been divided into its two children). A
// single freelist_bitmap word records which size classes currently have a
// free block, so finding the smallest usable size class is O(1).
//
// All three metadata structures — the per-order descriptor array and both
// bitmaps — are placed inside the managed byte range itself, the same
// overlay technique used elsewhere in this kernel to host allocator
// bookkeeping in memory that has no backing Go allocation. That keeps the
// bootstrap allocator independent of any other allocator.
package buddy

import (
	"reflect"
	"unsafe"

	kernel "github.com/Alexander-Porter/riscv-os"
	"github.com/Alexander-Porter/riscv-os/internal/critsec"
	"github.com/Alexander-Porter/riscv-os/internal/klist"
	"github.com/Alexander-Porter/riscv-os/internal/kmem"
)

func errOutOfMemory() *kernel.Error {
	return &kernel.Error{Module: "buddy", Message: "out of memory"}
}

func errInitIntegrity() *kernel.Error {
	return &kernel.Error{Module: "buddy", Message: "init accounting mismatch"}
}

type sizeClass struct {
	free  klist.Node
	alloc []byte
	split []byte
}

// Allocator serves 2^k*LEAF-sized blocks out of a single managed byte
// range. The zero value is unusable; call Init first.
type Allocator struct {
	rootBase    uintptr
	maxOrder    uint
	classesHdr  reflect.SliceHeader
	classes     []sizeClass
	freeBitmap  uint64
	initialized bool

	// Poison fills a block with a recognizable byte pattern on Free, so a
	// use-after-free shows up as a run of 0xDE bytes instead of silently
	// reading whatever the next allocation wrote. Off by default since it
	// costs a full block write per free.
	Poison bool
}

// Default is the allocator instance wired to the kernel's own managed
// physical range. Package-level functions operate on it, mirroring a flat
// C-style allocation API for callers that don't need multiple arenas.
var Default Allocator

// Init prepares Default to serve allocations from [base, limit). See
// (*Allocator).Init.
func Init(base, limit uintptr) *kernel.Error { return Default.Init(base, limit) }

// AllocPage allocates a single page from Default.
func AllocPage() (uintptr, *kernel.Error) { return Default.AllocPage() }

// AllocPages allocates count pages (rounded up to a power of two) from
// Default.
func AllocPages(count uintptr) (uintptr, *kernel.Error) { return Default.AllocPages(count) }

// FreePage returns a single page to Default.
func FreePage(p uintptr) { Default.FreePage(p) }

// FreePages returns a multi-page block to Default.
func FreePages(p uintptr, order uint) { Default.FreePages(p, order) }

// Kmalloc allocates n bytes from Default.
func Kmalloc(n uintptr) (uintptr, *kernel.Error) { return Default.Kmalloc(n) }

// Kfree returns a kmalloc'd block to Default.
func Kfree(p uintptr) { Default.Kfree(p) }

// Dump prints Default's per-order free counts via printf.
func Dump(printf func(format string, args ...interface{})) { Default.Dump(printf) }

func roundUp(v, align uintptr) uintptr { return (v + align - 1) &^ (align - 1) }

func byteSliceAt(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{Data: addr, Len: n, Cap: n}))
}

func (a *Allocator) blkSize(k uint) uintptr { return uintptr(kmem.LEAF) << k }

// nblk returns the number of order-k blocks in the whole managed range.
func (a *Allocator) nblk(k uint) uintptr { return uintptr(1) << (a.maxOrder - k) }

func (a *Allocator) blkIndex(k uint, addr uintptr) uintptr {
	return (addr - a.rootBase) / a.blkSize(k)
}

func (a *Allocator) buddyAddr(k uint, addr uintptr) uintptr {
	idx := a.blkIndex(k, addr) ^ 1
	return a.rootBase + idx*a.blkSize(k)
}

func (a *Allocator) flipPairBit(k uint, addr uintptr) {
	bm := a.classes[k].alloc
	if len(bm) == 0 {
		return // order has no sibling (the root block), nothing to track
	}
	pair := a.blkIndex(k, addr) >> 1
	bm[pair/8] ^= 1 << (pair % 8)
}

func (a *Allocator) pairBitSet(k uint, addr uintptr) bool {
	bm := a.classes[k].alloc
	if len(bm) == 0 {
		return false
	}
	pair := a.blkIndex(k, addr) >> 1
	return bm[pair/8]&(1<<(pair%8)) != 0
}

func (a *Allocator) setSplitBit(k uint, addr uintptr) {
	idx := a.blkIndex(k, addr)
	bm := a.classes[k].split
	bm[idx/8] |= 1 << (idx % 8)
}

func (a *Allocator) clearSplitBit(k uint, addr uintptr) {
	idx := a.blkIndex(k, addr)
	bm := a.classes[k].split
	bm[idx/8] &^= 1 << (idx % 8)
}

func (a *Allocator) splitBitSet(k uint, addr uintptr) bool {
	idx := a.blkIndex(k, addr)
	bm := a.classes[k].split
	return bm[idx/8]&(1<<(idx%8)) != 0
}

// pushFree inserts at the head so that the most recently freed block is
// also the next one handed out.
func (a *Allocator) pushFree(k uint, addr uintptr) {
	head := &a.classes[k].free
	wasEmpty := head.Empty()
	head.PushHead(klist.NodeAt(addr))
	if wasEmpty {
		a.freeBitmap |= 1 << k
	}
}

func (a *Allocator) removeFree(k uint, addr uintptr) {
	klist.NodeAt(addr).Remove()
	if a.classes[k].free.Empty() {
		a.freeBitmap &^= 1 << k
	}
}

func (a *Allocator) popFree(k uint) uintptr {
	n := a.classes[k].free.PopHead()
	if a.classes[k].free.Empty() {
		a.freeBitmap &^= 1 << k
	}
	return n.Addr()
}

// splitBlock divides the free order-k block at addr into two order-(k-1)
// children and pushes both onto the order-(k-1) free list. The caller
// must already have taken addr off the order-k free list: the children
// reuse the same bytes for their own list nodes.
func (a *Allocator) splitBlock(k uint, addr uintptr) {
	a.setSplitBit(k, addr)
	half := a.blkSize(k - 1)
	a.pushFree(k-1, addr)
	a.pushFree(k-1, addr+half)
}

func (a *Allocator) detachAndMarkAllocated(k uint, addr uintptr) {
	a.removeFree(k, addr)
	a.flipPairBit(k, addr)
}

// reserveBlock permanently allocates the intersection of [start, stop)
// with the order-k block at blockAddr, splitting as needed. It is used
// only during Init, to carve the metadata and unavailable-tail regions
// out of the single free root block before any real allocation happens.
func (a *Allocator) reserveBlock(k uint, blockAddr, start, stop uintptr) {
	blockEnd := blockAddr + a.blkSize(k)
	lo, hi := start, stop
	if blockAddr > lo {
		lo = blockAddr
	}
	if blockEnd < hi {
		hi = blockEnd
	}
	if lo >= hi {
		return
	}

	if k > 0 && a.splitBitSet(k, blockAddr) {
		// Already divided by an earlier reservation in this same Init
		// call; descend into the existing children.
		half := a.blkSize(k - 1)
		a.reserveBlock(k-1, blockAddr, start, stop)
		a.reserveBlock(k-1, blockAddr+half, start, stop)
		return
	}

	if lo == blockAddr && hi == blockEnd {
		a.detachAndMarkAllocated(k, blockAddr)
		return
	}

	a.removeFree(k, blockAddr)
	a.splitBlock(k, blockAddr)
	// A split block counts as consumed at its own order, exactly as in
	// the allocation path; without this flip the seeded buddy's pair bit
	// reads "both free" and its first free would merge into the split
	// sibling.
	a.flipPairBit(k, blockAddr)
	half := a.blkSize(k - 1)
	a.reserveBlock(k-1, blockAddr, start, stop)
	a.reserveBlock(k-1, blockAddr+half, start, stop)
}

// placeMetadata lays out the per-order descriptor array followed by each
// order's alloc and split bitmaps starting at p, and returns the address
// immediately past the last one placed.
func (a *Allocator) placeMetadata(p uintptr) uintptr {
	n := a.maxOrder + 1

	p = roundUp(p, 8)
	a.classesHdr = reflect.SliceHeader{Data: p, Len: int(n), Cap: int(n)}
	a.classes = *(*[]sizeClass)(unsafe.Pointer(&a.classesHdr))
	p += uintptr(n) * unsafe.Sizeof(sizeClass{})

	for k := uint(0); k <= a.maxOrder; k++ {
		pairs := a.nblk(k) / 2
		allocBytes := (pairs + 7) / 8
		p = roundUp(p, 16)
		a.classes[k].alloc = byteSliceAt(p, int(allocBytes))
		p += allocBytes

		if k >= 1 {
			bits := a.nblk(k)
			splitBytes := (bits + 7) / 8
			p = roundUp(p, 8)
			a.classes[k].split = byteSliceAt(p, int(splitBytes))
			p += splitBytes
		}
	}
	return p
}

// Init prepares the allocator to serve blocks out of [base, limit). It is
// idempotent: a second call on an already-initialized allocator is a
// no-op, matching the boot sequence calling it defensively more than
// once.
func (a *Allocator) Init(base, limit uintptr) *kernel.Error {
	saved := critsec.Enter()
	defer critsec.Leave(saved)

	if a.initialized {
		return nil
	}

	rootBase := roundUp(base, uintptr(kmem.LEAF))
	limit &^= uintptr(kmem.LEAF) - 1

	var maxOrder uint
	for (uintptr(kmem.LEAF) << maxOrder) < limit-rootBase {
		maxOrder++
	}
	a.rootBase = rootBase
	a.maxOrder = maxOrder
	rootSize := a.blkSize(maxOrder)

	p := a.placeMetadata(rootBase)
	usableStart := roundUp(p, uintptr(kmem.LEAF))

	for k := range a.classes {
		for i := range a.classes[k].alloc {
			a.classes[k].alloc[i] = 0
		}
		for i := range a.classes[k].split {
			a.classes[k].split[i] = 0
		}
		a.classes[k].free.Init()
	}
	a.freeBitmap = 0

	a.classes[maxOrder].free.PushTail(klist.NodeAt(rootBase))
	a.freeBitmap |= 1 << maxOrder

	a.reserveBlock(maxOrder, rootBase, rootBase, usableStart)
	a.reserveBlock(maxOrder, rootBase, limit, rootBase+rootSize)

	metaSize := usableStart - rootBase
	tailSize := (rootBase + rootSize) - limit
	expected := rootSize - metaSize - tailSize
	if a.FreeBytes() != expected {
		return errInitIntegrity()
	}

	a.initialized = true
	return nil
}

func (a *Allocator) orderFor(n uintptr) uint {
	if n == 0 {
		n = 1
	}
	size := uintptr(kmem.LEAF)
	var k uint
	for size < n {
		size <<= 1
		k++
	}
	return k
}

// smallestNonEmptyAtLeast returns the smallest order >= fk whose free
// list is nonempty, or -1 if none exists.
func (a *Allocator) smallestNonEmptyAtLeast(fk uint) int {
	if fk >= 64 {
		return -1
	}
	mask := a.freeBitmap &^ ((uint64(1) << fk) - 1)
	if mask == 0 {
		return -1
	}
	k := 0
	for mask&1 == 0 {
		mask >>= 1
		k++
	}
	return k
}

// Allocate returns the address of a block of at least n bytes, or an
// OutOfMemory error.
func (a *Allocator) Allocate(n uintptr) (uintptr, *kernel.Error) {
	saved := critsec.Enter()
	defer critsec.Leave(saved)

	fk := a.orderFor(n)
	if fk > a.maxOrder {
		return 0, errOutOfMemory()
	}
	k := a.smallestNonEmptyAtLeast(fk)
	if k < 0 {
		return 0, errOutOfMemory()
	}

	p := a.popFree(uint(k))
	a.flipPairBit(uint(k), p)

	for ord := uint(k); ord > fk; ord-- {
		a.splitBlock(ord, p)
		a.removeFree(ord-1, p)
		a.flipPairBit(ord-1, p)
	}
	return p, nil
}

// sizeOfBlock returns the order of the block containing p, found by
// climbing ancestors until one is recorded as split.
func (a *Allocator) sizeOfBlock(p uintptr) uint {
	for k := uint(0); k < a.maxOrder; k++ {
		if a.splitBitSet(k+1, p) {
			return k
		}
	}
	return a.maxOrder
}

// Free returns a previously allocated block to the allocator, merging
// with its buddy up the tree for as long as the buddy is also free.
func (a *Allocator) Free(p uintptr) {
	saved := critsec.Enter()
	defer critsec.Leave(saved)

	if a.Poison {
		poisonBlock(p, a.blkSize(a.sizeOfBlock(p)))
	}

	k := a.sizeOfBlock(p)
	for k < a.maxOrder {
		a.flipPairBit(k, p)
		if a.pairBitSet(k, p) {
			break // buddy is still allocated
		}
		buddy := a.buddyAddr(k, p)
		a.removeFree(k, buddy)
		a.clearSplitBit(k+1, p)
		if buddy < p {
			p = buddy
		}
		k++
	}
	a.pushFree(k, p)
}

func poisonBlock(p, size uintptr) {
	kernel.Memset(p, 0xDE, size)
}

// AllocPage allocates a single page-sized block.
func (a *Allocator) AllocPage() (uintptr, *kernel.Error) { return a.Allocate(kmem.PGSIZE) }

// AllocPages allocates a block of at least count pages, rounded up to the
// allocator's next power-of-two size class.
func (a *Allocator) AllocPages(count uintptr) (uintptr, *kernel.Error) {
	return a.Allocate(count * kmem.PGSIZE)
}

// FreePage returns a single page-sized block.
func (a *Allocator) FreePage(p uintptr) { a.Free(p) }

// FreePages returns a multi-page block. order is accepted for symmetry
// with AllocPages's implicit rounding but is not required for
// correctness: Free recomputes the block's order from the split bitmap.
func (a *Allocator) FreePages(p uintptr, order uint) { a.Free(p) }

// Kmalloc allocates n bytes — an alias over Allocate for small-object
// callers that don't think in pages.
func (a *Allocator) Kmalloc(n uintptr) (uintptr, *kernel.Error) { return a.Allocate(n) }

// Kfree returns a Kmalloc'd block — an alias over Free.
func (a *Allocator) Kfree(p uintptr) { a.Free(p) }

func (a *Allocator) countFree(k uint) uintptr {
	head := &a.classes[k].free
	var n uintptr
	for cur := head.Next(); cur != head; cur = cur.Next() {
		n++
	}
	return n
}

// FreeBytes returns the total number of bytes currently available across
// every size class. It walks every free list, so it is a debug/test
// utility, not something called on a hot path.
func (a *Allocator) FreeBytes() uintptr {
	var total uintptr
	for k := uint(0); k <= a.maxOrder; k++ {
		total += a.countFree(k) * a.blkSize(k)
	}
	return total
}

// Dump prints one line per size class: block size, and free/total block
// counts, via printf (typically kfmt.Printf).
func (a *Allocator) Dump(printf func(format string, args ...interface{})) {
	printf("buddy: root=%x order=%d\n", a.rootBase, a.maxOrder)
	for k := uint(0); k <= a.maxOrder; k++ {
		printf("  order %2d block=%8d free=%6d/%d\n", k, a.blkSize(k), a.countFree(k), a.nblk(k))
	}
}
