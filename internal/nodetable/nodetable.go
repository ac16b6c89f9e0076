// Package nodetable implements component D: the directory of remote
// nodes, each holding references into a shared pathtable.Table plus a
// best-next-hop slot, with LRU eviction under memory pressure.
//
// Grounded on original_source/src/mesh/thingset_mesh.c's tsm_node_get /
// tsm_node_free / tsm_node_evict / tsm_node_best_next_hop, and on
// flavio-simonelli-KoordeDHT/internal/node/routingtable/routingtable.go
// for the index-based-reference-into-a-fixed-array architecture and the
// functional-options constructor idiom.
package nodetable

import (
	"thingset-mesh-go/internal/logger"
	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
	"thingset-mesh-go/internal/pathtable"
	"thingset-mesh-go/internal/protectwindow"
)

// NoPathRef marks an empty paths_refs entry (spec §3: "A value of 0xFFFF
// marks an empty path reference").
const NoPathRef uint16 = 0xFFFF

// best is the reserved paths_refs index for the current best-next-hop.
const best = 0

// nodeEntry holds one node-table slot: remote NodeId, NameMappingId, the
// protection window, and the fixed-size paths_refs list. A slot is empty
// iff its window's last-index is out of range.
type nodeEntry struct {
	id          meshid.NodeID
	nameMapping meshid.NameMappingID
	window      *protectwindow.Window
	pathsRefs   []uint16
}

func (n *nodeEntry) empty() bool { return n.window.IsEmpty() }

// Option configures a Table at construction, mirroring the teacher's
// functional-options pattern.
type Option func(*Table)

// WithLogger sets the structured logger used for silent-drop and eviction
// events.
func WithLogger(l logger.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// Table is the fixed-capacity node directory.
type Table struct {
	logger logger.Logger
	clock  meshid.Clock
	self   meshid.NodeID

	nodes []nodeEntry
	paths *pathtable.Table
	ports map[meshid.PortID]Port

	pathsPerNode  int
	cacheSize     int
	expectedRange int
	maxAgeMillis  int64
}

// New allocates a Table of the given node capacity, backed by the given
// path table and ports, for the given local identity. pathsPerNode is the
// length of each node's paths_refs list (index 0 is BEST); cacheSize,
// expectedRange, and maxAgeMillis parameterize every node's protection
// window (spec §6 runtime tunables).
func New(
	capacity int,
	paths *pathtable.Table,
	ports map[meshid.PortID]Port,
	self meshid.NodeID,
	clock meshid.Clock,
	pathsPerNode, cacheSize, expectedRange int,
	maxAgeMillis int64,
	opts ...Option,
) *Table {
	t := &Table{
		logger:        &logger.NopLogger{},
		clock:         clock,
		self:          self,
		nodes:         make([]nodeEntry, capacity),
		paths:         paths,
		ports:         ports,
		pathsPerNode:  pathsPerNode,
		cacheSize:     cacheSize,
		expectedRange: expectedRange,
		maxAgeMillis:  maxAgeMillis,
	}
	for i := range t.nodes {
		t.nodes[i] = t.newPhantom(0)
		t.nodes[i].window.Clear() // ensure empty at startup
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// newPhantom builds a node entry marked occupied-but-seqno-less: its
// window's lastIdx is in range (via InitPhantom) so empty() is false
// immediately, matching tsm_node_init_phantom rather than leaving a
// just-allocated slot indistinguishable from an unused one.
func (t *Table) newPhantom(id meshid.NodeID) nodeEntry {
	refs := make([]uint16, t.pathsPerNode)
	for i := range refs {
		refs[i] = NoPathRef
	}
	w := protectwindow.NewWindow(t.cacheSize, t.expectedRange, t.maxAgeMillis)
	w.InitPhantom()
	return nodeEntry{
		id:          id,
		nameMapping: meshid.NameMappingUnknown,
		window:      w,
		pathsRefs:   refs,
	}
}

func (t *Table) port(id meshid.PortID) Port {
	if p, ok := t.ports[id]; ok {
		return p
	}
	return nilPort{id: id}
}

// Lookup is the non-allocating form of Get: it returns mesherr.NotFound
// instead of creating an entry.
func (t *Table) Lookup(id meshid.NodeID) (int, error) {
	for i := range t.nodes {
		if !t.nodes[i].empty() && t.nodes[i].id == id {
			return i, nil
		}
	}
	return -1, mesherr.NotFound
}

// Get returns the index of id's node entry, creating (or evicting to make
// room for) one if necessary (spec §4.3 Get).
func (t *Table) Get(id meshid.NodeID) (int, error) {
	if idx, err := t.Lookup(id); err == nil {
		return idx, nil
	}
	for i := range t.nodes {
		if t.nodes[i].empty() {
			t.nodes[i] = t.newPhantom(id)
			return i, nil
		}
	}
	victim, err := t.Evict()
	if err != nil {
		return -1, err
	}
	t.logger.Warn("evicting least-recently-seen node",
		logger.FNode("evicted", t.nodes[victim].id), logger.FNode("node", id))
	t.free(victim)
	t.nodes[victim] = t.newPhantom(id)
	return victim, nil
}

// Evict selects, without freeing, the node with the smallest
// last-seen-time (ties broken by lowest index via scan order). It is only
// ever called when the table is known full, so the result is guaranteed
// non-empty; returning mesherr.Fault would indicate that guarantee was
// violated by the caller.
func (t *Table) Evict() (int, error) {
	victim := -1
	var victimTime int64
	for i := range t.nodes {
		if t.nodes[i].empty() {
			continue
		}
		lt := t.nodes[i].window.LastSeenMillis()
		if victim == -1 || lt < victimTime {
			victim, victimTime = i, lt
		}
	}
	if victim == -1 {
		return -1, mesherr.Fault
	}
	return victim, nil
}

// free releases node idx's owned path references, cascading into any
// other node's originator paths that used idx as router, then marks idx
// empty. It does not install a new phantom entry; callers that want one
// must call newPhantom afterwards (Get does; a standalone Free does not
// need to).
func (t *Table) free(idx int) {
	entry := &t.nodes[idx]
	for _, ref := range entry.pathsRefs {
		if ref == NoPathRef {
			continue
		}
		pathIdx := int(ref)
		if t.paths.IsNeighbour(pathIdx) {
			t.orphanOriginatorsRoutedThrough(idx)
		}
		t.paths.Free(pathIdx)
	}
	entry.window.Clear()
	for i := range entry.pathsRefs {
		entry.pathsRefs[i] = NoPathRef
	}
}

// Free is the exported form of free, for explicit node removal outside
// the Get eviction path.
func (t *Table) Free(idx int) { t.free(idx) }

// orphanOriginatorsRoutedThrough scans every other non-empty node for an
// originator path slot whose router is routerIdx, clears that node's
// reference to it, and frees the originator slot. If the cleared
// reference was that node's BEST, it logs an orphan event (spec §4.3
// Free).
func (t *Table) orphanOriginatorsRoutedThrough(routerIdx int) {
	for j := range t.nodes {
		if j == routerIdx || t.nodes[j].empty() {
			continue
		}
		for k, ref := range t.nodes[j].pathsRefs {
			if ref == NoPathRef || !t.paths.IsOriginator(int(ref)) {
				continue
			}
			_, origRouterIdx := t.paths.Originator(int(ref))
			if int(origRouterIdx) != routerIdx {
				continue
			}
			orphanedPathIdx := int(ref)
			t.nodes[j].pathsRefs[k] = NoPathRef
			t.paths.Free(orphanedPathIdx)
			if k == best {
				t.logger.Warn("orphaned best-next-hop after router eviction",
					logger.FNode("node", t.nodes[j].id),
					logger.FNode("router", t.nodes[routerIdx].id),
				)
			}
		}
	}
}

// BestNextHop resolves the next hop and outgoing throughput for node idx
// (spec §4.3 Best-next-hop).
func (t *Table) BestNextHop(idx int) (hopIdx int, throughput meshid.Throughput, err error) {
	ref := t.nodes[idx].pathsRefs[best]
	if ref == NoPathRef {
		return -1, 0, mesherr.NotAvailable
	}
	pathIdx := int(ref)
	if t.paths.IsNeighbour(pathIdx) {
		_, portID := t.paths.Neighbour(pathIdx)
		return idx, t.port(portID).Throughput(), nil
	}
	tp, routerIdx := t.paths.Originator(pathIdx)
	return int(routerIdx), tp, nil
}

// throughputOfPath reports the live throughput a path slot currently
// offers: the port's probe for a neighbour slot, the stored value for an
// originator slot.
func (t *Table) throughputOfPath(pathIdx int) meshid.Throughput {
	if t.paths.IsNeighbour(pathIdx) {
		_, portID := t.paths.Neighbour(pathIdx)
		return t.port(portID).Throughput()
	}
	tp, _ := t.paths.Originator(pathIdx)
	return tp
}

// swapBestIfBetter implements the swap rule shared by Neighbour-update
// and Originator-update (spec §4.3): if slotIdx is already BEST, nothing
// to do; otherwise compare the candidate throughput against the current
// BEST's and swap the two paths_refs values if the candidate is strictly
// better.
func (t *Table) swapBestIfBetter(nodeIdx, slotIdx int, candidate meshid.Throughput) {
	if slotIdx == best {
		return
	}
	entry := &t.nodes[nodeIdx]
	bestRef := entry.pathsRefs[best]
	if bestRef == NoPathRef {
		entry.pathsRefs[best] = entry.pathsRefs[slotIdx]
		entry.pathsRefs[slotIdx] = bestRef
		return
	}
	if candidate > t.throughputOfPath(int(bestRef)) {
		entry.pathsRefs[best], entry.pathsRefs[slotIdx] = entry.pathsRefs[slotIdx], entry.pathsRefs[best]
	}
}

// findFreeRef returns the lowest-index free paths_refs slot for the node,
// or -1 if the reference list is full. Scanning from index 0 means a
// node's first ever path naturally lands in BEST.
func findFreeRef(refs []uint16) int {
	for i, r := range refs {
		if r == NoPathRef {
			return i
		}
	}
	return -1
}

// findNeighbourRef returns the paths_refs slot index already pointing to
// a neighbour path on the given port, or -1 if none.
func (t *Table) findNeighbourRef(nodeIdx int, port meshid.PortID) int {
	for k, ref := range t.nodes[nodeIdx].pathsRefs {
		if ref == NoPathRef || !t.paths.IsNeighbour(int(ref)) {
			continue
		}
		_, p := t.paths.Neighbour(int(ref))
		if p == port {
			return k
		}
	}
	return -1
}

// findOriginatorRef returns the paths_refs slot index already pointing to
// an originator path with the given router, or -1 if none.
func (t *Table) findOriginatorRef(nodeIdx, routerIdx int) int {
	for k, ref := range t.nodes[nodeIdx].pathsRefs {
		if ref == NoPathRef || !t.paths.IsOriginator(int(ref)) {
			continue
		}
		_, r := t.paths.Originator(int(ref))
		if int(r) == routerIdx {
			return k
		}
	}
	return -1
}

// getOrCreateNeighbourPath implements spec §4.2 Get-neighbour in full,
// operating on the node's owned paths_refs list plus the shared path
// table.
func (t *Table) getOrCreateNeighbourPath(nodeIdx int, port meshid.PortID) (pathIdx, slotIdx int, err error) {
	entry := &t.nodes[nodeIdx]
	if k := t.findNeighbourRef(nodeIdx, port); k >= 0 {
		return int(entry.pathsRefs[k]), k, nil
	}
	k := findFreeRef(entry.pathsRefs)
	if k < 0 {
		return -1, -1, mesherr.Busy
	}
	idx, err := t.paths.AllocNeighbour(port)
	if err != nil {
		return -1, -1, err
	}
	entry.pathsRefs[k] = uint16(idx)
	return idx, k, nil
}

// getOrCreateOriginatorPath implements spec §4.2 Get-originator.
func (t *Table) getOrCreateOriginatorPath(nodeIdx, routerIdx int) (pathIdx, slotIdx int, err error) {
	entry := &t.nodes[nodeIdx]
	if k := t.findOriginatorRef(nodeIdx, routerIdx); k >= 0 {
		return int(entry.pathsRefs[k]), k, nil
	}
	k := findFreeRef(entry.pathsRefs)
	if k < 0 {
		return -1, -1, mesherr.Busy
	}
	idx, err := t.paths.AllocOriginator(uint16(routerIdx))
	if err != nil {
		return -1, -1, err
	}
	entry.pathsRefs[k] = uint16(idx)
	return idx, k, nil
}
