package buddy

import (
	"runtime"
	"testing"

	"github.com/Alexander-Porter/riscv-os/internal/kmem"
)

// newRegion simulates a slab of physical memory for the allocator to
// manage: real hardware addresses are simply integers with no Go
// allocation behind them, so tests back them with a real slice and keep
// it alive with runtime.KeepAlive for as long as the region's addresses
// are in use.
func newRegion(t *testing.T, size uintptr) (buf []byte, base, limit uintptr) {
	t.Helper()
	buf = make([]byte, size+4096)
	raw := sliceAddr(buf)
	base = roundUp(raw, 4096)
	limit = base + size
	return buf, base, limit
}

func newAllocator(t *testing.T, size uintptr) (*Allocator, []byte) {
	t.Helper()
	buf, base, limit := newRegion(t, size)
	var a Allocator
	if err := a.Init(base, limit); err != nil {
		t.Fatalf("Init failed: %s", err.Error())
	}
	return &a, buf
}

func TestInitIdempotent(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	before := a.FreeBytes()
	if err := a.Init(a.rootBase, a.rootBase+a.blkSize(a.maxOrder)); err != nil {
		t.Fatalf("second Init returned an error: %s", err.Error())
	}
	if after := a.FreeBytes(); after != before {
		t.Fatalf("second Init changed free bytes: before=%d after=%d", before, after)
	}
}

// TestAllocatePartition checks that returned pointers never
// overlap and page-sized allocations come back page-aligned.
func TestAllocatePartition(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	seen := map[uintptr]bool{}
	for i := 0; i < 8; i++ {
		p, err := a.AllocPage()
		if err != nil {
			t.Fatalf("AllocPage %d failed: %s", i, err.Error())
		}
		if p&0xFFF != 0 {
			t.Fatalf("page %d not page-aligned: %#x", i, p)
		}
		if seen[p] {
			t.Fatalf("page %d address %#x returned twice", i, p)
		}
		seen[p] = true
	}
}

// allocNPages allocates n pages and returns them together with a set for
// membership checks; tests that depend on exact buddy relationships pick
// their victims out of this batch instead of trusting which block the
// allocator happens to serve first.
func allocNPages(t *testing.T, a *Allocator, n int) ([]uintptr, map[uintptr]bool) {
	t.Helper()
	pages := make([]uintptr, 0, n)
	held := map[uintptr]bool{}
	for i := 0; i < n; i++ {
		p, err := a.AllocPage()
		if err != nil {
			t.Fatalf("alloc %d: %s", i, err.Error())
		}
		pages = append(pages, p)
		held[p] = true
	}
	return pages, held
}

// TestMergeCorrectness checks that after freeing two buddies,
// a request for the combined size succeeds and returns the lower address.
// The buddy pair is picked out of a batch of allocations, and only a pair
// whose merged parent's own buddy is still (partly) allocated qualifies,
// so the merge stops exactly one order up and the next double-size
// request must be served from it.
func TestMergeCorrectness(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	pages, held := allocNPages(t, a, 8)
	pageOrder := a.orderFor(kmem.PGSIZE)

	var p, q uintptr
	for _, cand := range pages {
		buddy := a.buddyAddr(pageOrder, cand)
		if !held[buddy] {
			continue
		}
		parent := cand
		if buddy < parent {
			parent = buddy
		}
		parentBuddy := a.buddyAddr(pageOrder+1, parent)
		if held[parentBuddy] || held[parentBuddy+kmem.PGSIZE] {
			p, q = cand, buddy
			break
		}
	}
	if p == 0 {
		t.Fatal("no suitable buddy pair among the allocated pages")
	}
	lower := p
	if q < lower {
		lower = q
	}

	a.FreePage(p)
	a.FreePage(q)

	r, err := a.AllocPages(2)
	if err != nil {
		t.Fatalf("alloc merged pair: %s", err.Error())
	}
	if r != lower {
		t.Fatalf("expected merged allocation to return %x, got %x", lower, r)
	}
}

// TestLIFOAtEqualSizes checks that freeing two equal-size
// blocks and reallocating yields the freed addresses in reverse order.
// The two victims must not be buddies of each other and their buddies
// must stay allocated, or the frees would merge upward instead of
// landing on the page-order free list.
func TestLIFOAtEqualSizes(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	pages, held := allocNPages(t, a, 8)
	pageOrder := a.orderFor(kmem.PGSIZE)

	var p, q uintptr
	for _, cp := range pages {
		if !held[a.buddyAddr(pageOrder, cp)] {
			continue
		}
		for _, cq := range pages {
			if cq == cp || cq == a.buddyAddr(pageOrder, cp) {
				continue
			}
			if held[a.buddyAddr(pageOrder, cq)] {
				p, q = cp, cq
				break
			}
		}
		if p != 0 {
			break
		}
	}
	if p == 0 {
		t.Fatal("no suitable non-buddy page pair among the allocated pages")
	}

	a.FreePage(p)
	a.FreePage(q)

	r, err := a.AllocPage()
	if err != nil {
		t.Fatalf("re-alloc r: %s", err.Error())
	}
	s, err := a.AllocPage()
	if err != nil {
		t.Fatalf("re-alloc s: %s", err.Error())
	}

	if r != q || s != p {
		t.Fatalf("expected LIFO reuse [%x %x], got [%x %x]", q, p, r, s)
	}
}

func TestOutOfMemory(t *testing.T) {
	a, buf := newAllocator(t, 8*1024)
	defer runtime.KeepAlive(buf)

	total := a.FreeBytes()

	var allocated []uintptr
	for {
		p, err := a.Allocate(kmem.PGSIZE)
		if err != nil {
			break
		}
		allocated = append(allocated, p)
		if len(allocated) > 1000 {
			t.Fatal("allocator never reported OutOfMemory")
		}
	}

	if _, err := a.AllocPage(); err == nil {
		t.Fatal("expected OutOfMemory once the arena is exhausted")
	}

	for _, p := range allocated {
		a.FreePage(p)
	}
	if got := a.FreeBytes(); got != total {
		t.Fatalf("expected all memory to be free again: got %d want %d", got, total)
	}
}

// TestBoundaryBlockFreeDoesNotMergeIntoMetadata frees the block seeded
// next to the reserved metadata prefix: its buddy is the split region
// holding the allocator's own descriptors, so the free must stop at its
// own order instead of merging into (and unlinking nodes inside) the
// metadata.
func TestBoundaryBlockFreeDoesNotMergeIntoMetadata(t *testing.T) {
	a, buf := newAllocator(t, 8*1024)
	defer runtime.KeepAlive(buf)

	total := a.FreeBytes()

	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("alloc: %s", err.Error())
	}
	a.FreePage(p)

	if got := a.FreeBytes(); got != total {
		t.Fatalf("free bytes changed across alloc/free of the boundary block: got %d want %d", got, total)
	}

	q, err := a.AllocPage()
	if err != nil {
		t.Fatalf("re-alloc: %s", err.Error())
	}
	if q != p {
		t.Fatalf("expected the freed boundary block back at %x, got %x", p, q)
	}
}

func TestFreeBytesConservedAcrossManyOperations(t *testing.T) {
	// Each 10-page request rounds up to a 64KiB block, so 50 of them need
	// a few MiB of headroom.
	a, buf := newAllocator(t, 8*1024*1024)
	defer runtime.KeepAlive(buf)

	total := a.FreeBytes()

	var allocated []uintptr
	for i := 0; i < 50; i++ {
		p, err := a.AllocPages(10)
		if err != nil {
			t.Fatalf("alloc %d: %s", i, err.Error())
		}
		allocated = append(allocated, p)
	}
	for _, p := range allocated {
		a.FreePages(p, 0)
	}

	if got := a.FreeBytes(); got != total {
		t.Fatalf("expected free bytes restored to %d, got %d", total, got)
	}
}

func TestSizeOfBlockAfterSplit(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("alloc: %s", err.Error())
	}
	if got := a.sizeOfBlock(p); a.blkSize(got) != kmem.PGSIZE {
		t.Fatalf("expected block size %d, got order %d (%d bytes)", kmem.PGSIZE, got, a.blkSize(got))
	}
}

func TestDumpReportsEveryOrder(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)

	var lines int
	a.Dump(func(format string, args ...interface{}) { lines++ })

	// One banner line plus one line per size class.
	if want := 1 + int(a.maxOrder) + 1; lines != want {
		t.Fatalf("expected %d dump lines, got %d", want, lines)
	}
}

func TestPoisonOnFree(t *testing.T) {
	a, buf := newAllocator(t, 256*1024)
	defer runtime.KeepAlive(buf)
	a.Poison = true

	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("alloc: %s", err.Error())
	}
	a.FreePage(p)

	// The first 16 bytes now host the free-list node, so probe past it.
	got := byteSliceAt(p+16, 16)
	for i, b := range got {
		if b != 0xDE {
			t.Fatalf("byte %d not poisoned: got %#x", i, b)
		}
	}
}
