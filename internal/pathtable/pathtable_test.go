package pathtable

import (
	"testing"

	"thingset-mesh-go/internal/mesherr"
)

// TestRegionGrowth reproduces spec §8 boundary scenario 4 verbatim:
// capacity 4, originatorStartIdx starting at 1. Two neighbours on
// distinct ports grow the neighbour region to 2; an originator then
// lands at index 3, leaving originatorStartIdx at 2.
func TestRegionGrowth(t *testing.T) {
	tbl := New(4)
	tbl.SetOriginatorStartIdxForTest(1)

	idx0, err := tbl.AllocNeighbour(1)
	if err != nil || idx0 != 0 {
		t.Fatalf("first neighbour alloc = (%d, %v), want (0, nil)", idx0, err)
	}

	idx1, err := tbl.AllocNeighbour(2)
	if err != nil || idx1 != 1 {
		t.Fatalf("second neighbour alloc = (%d, %v), want (1, nil)", idx1, err)
	}
	if got := tbl.OriginatorStartIdx(); got != 2 {
		t.Fatalf("originatorStartIdx after 2 neighbours = %d, want 2", got)
	}

	oidx, err := tbl.AllocOriginator(0)
	if err != nil || oidx != 3 {
		t.Fatalf("originator alloc = (%d, %v), want (3, nil)", oidx, err)
	}
	if got := tbl.OriginatorStartIdx(); got != 2 {
		t.Fatalf("originatorStartIdx after originator alloc = %d, want 2 (unchanged)", got)
	}
}

func TestAllocNeighbour_NoMemWhenRegionsMeet(t *testing.T) {
	tbl := New(2)
	tbl.SetOriginatorStartIdxForTest(2) // no room left for originators

	if _, err := tbl.AllocNeighbour(1); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := tbl.AllocNeighbour(2); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if _, err := tbl.AllocNeighbour(3); err != mesherr.NoMem {
		t.Fatalf("third alloc = %v, want NoMem", err)
	}
}

func TestFree_RestoresBothSentinels(t *testing.T) {
	tbl := New(4)
	idx, err := tbl.AllocNeighbour(1)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	tbl.Free(idx)
	if !tbl.slots[idx].freeAsNeighbour() || !tbl.slots[idx].freeAsOriginator() {
		t.Fatalf("freed slot %d does not carry the sentinel in both variants: %+v", idx, tbl.slots[idx])
	}
}

func TestAllocOriginator_NoMemWhenRegionsMeet(t *testing.T) {
	tbl := New(2)
	tbl.SetOriginatorStartIdxForTest(0)

	if _, err := tbl.AllocOriginator(0); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := tbl.AllocOriginator(0); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if _, err := tbl.AllocOriginator(0); err != mesherr.NoMem {
		t.Fatalf("third alloc = %v, want NoMem", err)
	}
}
