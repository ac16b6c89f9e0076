package nodetable

import (
	"thingset-mesh-go/internal/logger"
	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
)

// NeighbourUpdate implements spec §4.3 Neighbour-update. A nil error
// covers both "processed" and every silently-dropped case; Busy/NoMem
// propagate from path allocation.
func (t *Table) NeighbourUpdate(
	seqno meshid.Seqno,
	nodeID meshid.NodeID,
	version uint8,
	periodS uint8,
	nameMapping meshid.NameMappingID,
	portID meshid.PortID,
) error {
	if version != meshid.ProtocolVersion {
		t.logger.Debug("dropping heartbeat: protocol version mismatch",
			logger.FNode("node", nodeID), logger.F("version", version))
		return nil
	}
	if nodeID == t.self {
		t.logger.Debug("dropping heartbeat: self-origin", logger.FNode("node", nodeID))
		return nil
	}

	nodeIdx, err := t.Get(nodeID)
	if err != nil {
		return err
	}

	pathIdx, slotIdx, err := t.getOrCreateNeighbourPath(nodeIdx, portID)
	if err != nil {
		return err
	}

	// Protection-window result is intentionally ignored (spec §9 open
	// question 1): neighbour fields and best-next-hop are still updated
	// even for an out-of-range seqno.
	_ = t.nodes[nodeIdx].window.Update(t.clock, seqno)

	t.nodes[nodeIdx].nameMapping = nameMapping
	t.paths.SetNeighbourFields(pathIdx, periodS, portID)

	t.swapBestIfBetter(nodeIdx, slotIdx, t.port(portID).Throughput())
	return nil
}

// OriginatorUpdate implements spec §4.3 Originator-update.
func (t *Table) OriginatorUpdate(
	seqno meshid.Seqno,
	nodeID meshid.NodeID,
	version uint8,
	ageMs uint32,
	nameMapping meshid.NameMappingID,
	routerNodeID meshid.NodeID,
	throughput meshid.Throughput,
	portID meshid.PortID,
) error {
	_ = ageMs // carried across the wire boundary (wire.OriginatorStatement); not consumed by the routing algorithm itself.

	if version != meshid.ProtocolVersion {
		t.logger.Debug("dropping originator statement: protocol version mismatch",
			logger.FNode("node", nodeID), logger.F("version", version))
		return nil
	}
	if nodeID == t.self {
		t.logger.Debug("dropping originator statement: own-node", logger.FNode("node", nodeID))
		return nil
	}
	if routerNodeID == t.self {
		t.logger.Debug("dropping originator statement: own-message", logger.FNode("router", routerNodeID))
		return nil
	}
	if routerNodeID == nodeID {
		t.logger.Debug("dropping originator statement: self-routed", logger.FNode("node", nodeID))
		return nil
	}

	routerIdx, err := t.Get(routerNodeID)
	if err != nil {
		return err
	}
	if _, _, err := t.getOrCreateNeighbourPath(routerIdx, portID); err != nil {
		return err
	}

	nodeIdx, err := t.Get(nodeID)
	if err != nil {
		return err
	}

	pathIdx, slotIdx, getErr := t.getOrCreateOriginatorPath(nodeIdx, routerIdx)

	werr := t.nodes[nodeIdx].window.Update(t.clock, seqno)
	switch werr {
	case mesherr.Invalid:
		t.logger.Debug("dropping originator statement: seqno out of range",
			logger.FNode("node", nodeID))
		return nil
	case mesherr.AlreadyPresent:
		if _, bestThroughput, bErr := t.BestNextHop(nodeIdx); bErr == nil && bestThroughput >= throughput {
			t.logger.Debug("dropping duplicate originator statement: not strictly better",
				logger.FNode("node", nodeID))
			return nil
		}
	}

	if getErr != nil {
		return getErr
	}

	t.nodes[routerIdx].window.Touch(t.clock)
	t.nodes[nodeIdx].window.Touch(t.clock)
	t.nodes[nodeIdx].nameMapping = nameMapping

	linkThroughput := t.port(portID).Throughput()
	if throughput > linkThroughput {
		throughput = linkThroughput
	}
	if nodeIdx != routerIdx && throughput > 1 {
		// Hop penalty. The half-duplex adjustment noted as TODO upstream
		// (spec §9 open question 3) is not implemented; it must not
		// regress this step, and it does not.
		throughput--
	}

	t.paths.SetOriginatorThroughput(pathIdx, throughput)
	t.swapBestIfBetter(nodeIdx, slotIdx, throughput)
	return nil
}
