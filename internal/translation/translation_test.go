package translation

import (
	"testing"

	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
)

func TestSetGetRoundTrip(t *testing.T) {
	tbl := New(2)
	created, err := tbl.Set(1, "node-a")
	if !created || err != nil {
		t.Fatalf("Set = (%v, %v), want (true, nil)", created, err)
	}
	name, ok := tbl.Get(1)
	if !ok || name != "node-a" {
		t.Fatalf("Get = (%q, %v), want (node-a, true)", name, ok)
	}
}

func TestSetFullTableRejected(t *testing.T) {
	tbl := New(1)
	if created, err := tbl.Set(1, "a"); !created || err != nil {
		t.Fatalf("first Set = (%v, %v)", created, err)
	}
	if created, err := tbl.Set(2, "b"); created || err != mesherr.NoMem {
		t.Fatalf("second Set on full table = (%v, %v), want (false, mesherr.NoMem)", created, err)
	}
}

func TestGetUnknownSentinel(t *testing.T) {
	tbl := New(2)
	if _, ok := tbl.Get(meshid.NameMappingUnknown); ok {
		t.Fatalf("Get(unknown sentinel) should never resolve")
	}
}
