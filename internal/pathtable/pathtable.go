// Package pathtable implements component C: a single fixed-capacity array
// of path slots storing either a neighbour {heartbeat_period_s, port_id}
// or an originator {throughput, router_node_index}, discriminated by
// position relative to a movable split index originatorStartIdx.
//
// Grounded on original_source/src/mesh/thingset_mesh_priv.h's packed
// union layout and thingset_mesh.c's tsm_neighbour_get / tsm_originator_get
// region-growth logic; the node-level paths_refs scan that precedes
// allocation (spec §4.2 steps 1 and the Busy outcome) belongs to
// nodetable, which is the only caller that owns a node's reference list.
package pathtable

import (
	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
)

// sentinelU8 marks a slot free in whichever union interpretation reads
// it; spec §3 requires both fields to carry it so the discriminant flip
// at originatorStartIdx is always safe.
const sentinelU8 = 0xFF

// NoRouter marks the absence of a router reference; reused as the
// router-node-index value stored in a freed or neighbour-typed slot.
const NoRouter uint16 = 0xFFFF

// Slot is the packed union: HeartbeatPeriodS/PortID are the neighbour
// variant, Throughput/RouterNodeIndex are the originator variant. Exactly
// one variant is meaningful depending on the slot's position relative to
// the table's split index.
type Slot struct {
	HeartbeatPeriodS uint8
	PortID           meshid.PortID
	Throughput       meshid.Throughput
	RouterNodeIndex  uint16
}

func freeSlot() Slot {
	return Slot{HeartbeatPeriodS: sentinelU8, PortID: 0, Throughput: sentinelU8, RouterNodeIndex: NoRouter}
}

func (s Slot) freeAsNeighbour() bool  { return s.HeartbeatPeriodS == sentinelU8 }
func (s Slot) freeAsOriginator() bool { return uint8(s.Throughput) == sentinelU8 }

// Table is the fixed-capacity N-slot path table.
type Table struct {
	slots              []Slot
	originatorStartIdx int
}

// New allocates a Table of the given capacity. Per
// original_source/src/mesh/thingset_mesh.c's tsm_node_init, the split
// index starts at capacity/4, leaving room for both regions to grow
// before either is forced into the other's territory.
func New(capacity int) *Table {
	t := &Table{slots: make([]Slot, capacity), originatorStartIdx: capacity / 4}
	for i := range t.slots {
		t.slots[i] = freeSlot()
	}
	return t
}

// Capacity returns N.
func (t *Table) Capacity() int { return len(t.slots) }

// OriginatorStartIdx exposes the current split index, chiefly for
// invariant checks (spec §8 P1, P5).
func (t *Table) OriginatorStartIdx() int { return t.originatorStartIdx }

// IsNeighbour reports whether idx currently falls in the neighbour
// region.
func (t *Table) IsNeighbour(idx int) bool { return idx >= 0 && idx < t.originatorStartIdx }

// IsOriginator reports whether idx currently falls in the originator
// region.
func (t *Table) IsOriginator(idx int) bool {
	return idx >= t.originatorStartIdx && idx < len(t.slots)
}

// IsFree reports whether the slot at idx is unoccupied in whichever
// region it currently belongs to.
func (t *Table) IsFree(idx int) bool {
	if t.IsNeighbour(idx) {
		return t.slots[idx].freeAsNeighbour()
	}
	return t.slots[idx].freeAsOriginator()
}

// Neighbour returns the neighbour variant stored at idx. The caller must
// have already established idx is in the neighbour region and occupied.
func (t *Table) Neighbour(idx int) (periodS uint8, port meshid.PortID) {
	s := t.slots[idx]
	return s.HeartbeatPeriodS, s.PortID
}

// Originator returns the originator variant stored at idx. The caller
// must have already established idx is in the originator region and
// occupied.
func (t *Table) Originator(idx int) (throughput meshid.Throughput, routerIdx uint16) {
	s := t.slots[idx]
	return s.Throughput, s.RouterNodeIndex
}

// SetNeighbourFields updates the {period_s, port_id} of an already
// occupied neighbour slot (spec §4.3 Neighbour-update step 5).
func (t *Table) SetNeighbourFields(idx int, periodS uint8, port meshid.PortID) {
	t.slots[idx].HeartbeatPeriodS = periodS
	t.slots[idx].PortID = port
}

// SetOriginatorThroughput updates the throughput of an already occupied
// originator slot (spec §4.3 Originator-update step 7).
func (t *Table) SetOriginatorThroughput(idx int, throughput meshid.Throughput) {
	t.slots[idx].Throughput = throughput
}

// AllocNeighbour implements spec §4.2 Get-neighbour step 3: scan the
// neighbour region low-to-high for a free slot; if none, try growing the
// region by converting the adjacent originator-typed boundary slot, which
// must itself be free. Returns mesherr.NoMem if neither succeeds.
func (t *Table) AllocNeighbour(port meshid.PortID) (int, error) {
	for i := 0; i < t.originatorStartIdx; i++ {
		if t.slots[i].freeAsNeighbour() {
			t.slots[i] = Slot{HeartbeatPeriodS: 0, PortID: port, Throughput: sentinelU8, RouterNodeIndex: NoRouter}
			return i, nil
		}
	}
	if t.originatorStartIdx < len(t.slots) && t.slots[t.originatorStartIdx].freeAsOriginator() {
		idx := t.originatorStartIdx
		t.slots[idx] = Slot{HeartbeatPeriodS: 0, PortID: port, Throughput: sentinelU8, RouterNodeIndex: NoRouter}
		t.originatorStartIdx++
		return idx, nil
	}
	return -1, mesherr.NoMem
}

// AllocOriginator implements spec §4.2 Get-originator's symmetric growth:
// scan the originator region high-to-low (the region's "natural", growth
// side mirrors the neighbour region's low-to-high scan) for a free slot;
// if none, try growing the region downward by converting the adjacent
// neighbour-typed boundary slot. Returns mesherr.NoMem if the regions
// would meet.
func (t *Table) AllocOriginator(routerIdx uint16) (int, error) {
	for i := len(t.slots) - 1; i >= t.originatorStartIdx; i-- {
		if t.slots[i].freeAsOriginator() {
			t.slots[i] = Slot{HeartbeatPeriodS: sentinelU8, PortID: 0, Throughput: 0, RouterNodeIndex: routerIdx}
			return i, nil
		}
	}
	if t.originatorStartIdx > 0 && t.slots[t.originatorStartIdx-1].freeAsNeighbour() {
		t.originatorStartIdx--
		idx := t.originatorStartIdx
		t.slots[idx] = Slot{HeartbeatPeriodS: sentinelU8, PortID: 0, Throughput: 0, RouterNodeIndex: routerIdx}
		return idx, nil
	}
	return -1, mesherr.NoMem
}

// Free releases the slot at idx, writing the free sentinel into both
// union interpretations (spec §4.2 Free).
func (t *Table) Free(idx int) {
	t.slots[idx] = freeSlot()
}

// SetOriginatorStartIdxForTest pins the split index directly; exported
// under the Table type only for tests that must reproduce spec §8
// scenario 4's non-default starting layout (capacity 4, split at 1).
func (t *Table) SetOriginatorStartIdxForTest(idx int) { t.originatorStartIdx = idx }
