package nodetable

import (
	"testing"

	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
	"thingset-mesh-go/internal/pathtable"
)

func newTestTable(capacity int) (*Table, *pathtable.Table) {
	clock := meshid.NewFakeClock(0)
	paths := pathtable.New(capacity * 2)
	ports := map[meshid.PortID]Port{
		1: NewStaticPort(1, 100),
		2: NewStaticPort(2, 50),
	}
	t2 := New(capacity, paths, ports, meshid.NodeID(0xFFFFFFFFFFFFFFFF), clock, 2, 8, 10, 3000)
	return t2, paths
}

func TestGetLookupRoundTrip(t *testing.T) {
	table, _ := newTestTable(4)
	id := meshid.NodeID(42)

	idx, err := table.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	lidx, err := table.Lookup(id)
	if err != nil || lidx != idx {
		t.Fatalf("Lookup = (%d, %v), want (%d, nil)", lidx, err, idx)
	}

	table.Free(idx)
	if _, err := table.Lookup(id); err != mesherr.NotFound {
		t.Fatalf("Lookup after Free = %v, want NotFound", err)
	}

	idx2, err := table.Get(id)
	if err != nil {
		t.Fatalf("Get after Free: %v", err)
	}
	if table.nodes[idx2].pathsRefs[0] != NoPathRef {
		t.Fatalf("re-Get did not produce a phantom entry: pathsRefs[0]=%d", table.nodes[idx2].pathsRefs[0])
	}
}

func TestNeighbourUpdate_SelfDropped(t *testing.T) {
	table, _ := newTestTable(4)
	self := table.self
	if err := table.NeighbourUpdate(0, self, meshid.ProtocolVersion, 10, 1, 1); err != nil {
		t.Fatalf("self heartbeat should be silently dropped, got error: %v", err)
	}
	if _, err := table.Lookup(self); err != mesherr.NotFound {
		t.Fatalf("self heartbeat must not create a node entry")
	}
}

func TestNeighbourUpdate_BadVersionDropped(t *testing.T) {
	table, _ := newTestTable(4)
	id := meshid.NodeID(7)
	if err := table.NeighbourUpdate(0, id, meshid.ProtocolVersion+1, 10, 1, 1); err != nil {
		t.Fatalf("bad version should be silently dropped, got: %v", err)
	}
	if _, err := table.Lookup(id); err != mesherr.NotFound {
		t.Fatalf("bad-version heartbeat must not create a node entry")
	}
}

func TestNeighbourUpdate_EstablishesBest(t *testing.T) {
	table, _ := newTestTable(4)
	id := meshid.NodeID(7)
	if err := table.NeighbourUpdate(3, id, meshid.ProtocolVersion, 10, 1, 1); err != nil {
		t.Fatalf("NeighbourUpdate: %v", err)
	}
	idx, err := table.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	hop, tp, err := table.BestNextHop(idx)
	if err != nil {
		t.Fatalf("BestNextHop: %v", err)
	}
	if hop != idx {
		t.Fatalf("BestNextHop hop = %d, want %d (the neighbour itself)", hop, idx)
	}
	if tp != 100 {
		t.Fatalf("BestNextHop throughput = %d, want 100 (port 1's throughput)", tp)
	}
}

// TestEvictionCascade reproduces spec §8 boundary scenario 5: fill the
// node table, force the oldest entry to be a neighbour used as router by
// one originator elsewhere, allocate a new node, and observe the
// originator's BEST collapse to NotAvailable.
func TestEvictionCascade(t *testing.T) {
	table, _ := newTestTable(2)
	clock := table.clock.(*meshid.FakeClock)

	routerID := meshid.NodeID(1)
	if err := table.NeighbourUpdate(0, routerID, meshid.ProtocolVersion, 10, 1, 1); err != nil {
		t.Fatalf("router heartbeat: %v", err)
	}
	routerIdx, _ := table.Lookup(routerID)
	clock.Advance(1000)

	originID := meshid.NodeID(2)
	if err := table.OriginatorUpdate(0, originID, meshid.ProtocolVersion, 0, 1, routerID, 50, 1); err != nil {
		t.Fatalf("originator statement: %v", err)
	}
	originIdx, _ := table.Lookup(originID)
	clock.Advance(1000)

	if hop, _, err := table.BestNextHop(originIdx); err != nil || hop != routerIdx {
		t.Fatalf("originator best-next-hop before eviction = (%d, %v), want (%d, nil)", hop, err, routerIdx)
	}

	// Table is full (capacity 2, both slots occupied by router and origin).
	// OriginatorUpdate stamped both at t=1000, so the eviction scan's tie
	// goes to the lower index, the router's. Allocating a third node
	// forces eviction of the router, cascading to orphan the originator.
	newID := meshid.NodeID(3)
	if _, err := table.Get(newID); err != nil {
		t.Fatalf("Get(new node) triggering eviction: %v", err)
	}

	if _, err := table.Lookup(routerID); err != mesherr.NotFound {
		t.Fatalf("evicted router should be gone, Lookup = %v", err)
	}
	if _, _, err := table.BestNextHop(originIdx); err != mesherr.NotAvailable {
		t.Fatalf("orphaned originator's BestNextHop = %v, want NotAvailable", err)
	}
}
