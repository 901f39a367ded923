package proc

import "testing"

func resetTable() {
	for i := range table {
		table[i] = Process{}
	}
}

func TestAllocAssignsUnusedSlot(t *testing.T) {
	resetTable()
	defer resetTable()

	p := Alloc(7, "init")
	if p == nil {
		t.Fatal("expected Alloc to succeed on an empty table")
	}
	if p.PID != 7 || p.State != Used {
		t.Fatalf("expected pid=7 state=Used, got pid=%d state=%s", p.PID, p.State)
	}
	if got := string(p.Name[:4]); got != "init" {
		t.Fatalf("expected name 'init', got %q", got)
	}
}

func TestFindLocatesAllocatedProcess(t *testing.T) {
	resetTable()
	defer resetTable()

	Alloc(3, "a")
	Alloc(4, "b")

	if p := Find(4); p == nil || p.PID != 4 {
		t.Fatal("expected to find pid 4")
	}
	if p := Find(99); p != nil {
		t.Fatal("expected not to find an unallocated pid")
	}
}

func TestFreeResetsSlotToUnused(t *testing.T) {
	resetTable()
	defer resetTable()

	p := Alloc(1, "x")
	Free(p)

	if p.State != Unused {
		t.Fatalf("expected state Unused after Free, got %s", p.State)
	}
	if Find(1) != nil {
		t.Fatal("expected Free'd pid to no longer be findable")
	}
}

func TestAllocTableFull(t *testing.T) {
	resetTable()
	defer resetTable()

	for i := 0; i < MaxProcs; i++ {
		if Alloc(i, "p") == nil {
			t.Fatalf("expected slot %d to be available", i)
		}
	}
	if Alloc(MaxProcs, "overflow") != nil {
		t.Fatal("expected Alloc to fail once the table is full")
	}
}
