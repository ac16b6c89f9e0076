package protectwindow

import (
	"testing"

	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
)

func TestUpdate_SeqnoWrap(t *testing.T) {
	clock := meshid.NewFakeClock(0)
	w := NewWindow(8, 10, 3000)

	for _, s := range []meshid.Seqno{22, 23, 0, 1} {
		if err := w.Update(clock, s); err != nil {
			t.Fatalf("Update(%d) = %v, want nil", s, err)
		}
		clock.Advance(1)
	}

	// 11 lies 12 steps forward of 22 on the 24-value circle, outside the
	// expected range of 10.
	w2 := NewWindow(8, 10, 3000)
	if err := w2.Update(clock, 22); err != nil {
		t.Fatalf("Update(22) = %v, want nil", err)
	}
	if err := w2.Update(clock, 11); err != mesherr.Invalid {
		t.Fatalf("Update(11) after seqno=22 = %v, want Invalid (OutOfRange)", err)
	}
}

func TestUpdate_StaleReset(t *testing.T) {
	clock := meshid.NewFakeClock(0)
	w := NewWindow(8, 10, 3000)

	if err := w.Update(clock, 5); err != nil {
		t.Fatalf("initial update: %v", err)
	}
	clock.Advance(5000) // older than max age

	if err := w.Update(clock, 20); err != nil {
		t.Fatalf("Update after stale window = %v, want nil (any seqno accepted)", err)
	}
}

func TestUpdate_DuplicateDetection(t *testing.T) {
	clock := meshid.NewFakeClock(0)
	w := NewWindow(8, 10, 3000)

	if err := w.Update(clock, 5); err != nil {
		t.Fatalf("initial update: %v", err)
	}
	before := w.lastIdx

	if err := w.Update(clock, 5); err != mesherr.AlreadyPresent {
		t.Fatalf("Update(5) again = %v, want AlreadyPresent", err)
	}
	if w.lastIdx != before {
		t.Fatalf("lastIdx mutated on AlreadyPresent: got %d, want %d", w.lastIdx, before)
	}
}

func TestLatest_EmptyWindow(t *testing.T) {
	clock := meshid.NewFakeClock(0)
	w := NewWindow(8, 10, 3000)

	if _, err := w.Latest(clock); err != mesherr.NotAvailable {
		t.Fatalf("Latest on empty window = %v, want NotAvailable", err)
	}
}

func TestLatest_Stale(t *testing.T) {
	clock := meshid.NewFakeClock(0)
	w := NewWindow(8, 10, 3000)
	if err := w.Update(clock, 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	clock.Advance(3000)
	if _, err := w.Latest(clock); err != mesherr.TimedOut {
		t.Fatalf("Latest after max age = %v, want TimedOut", err)
	}
}
