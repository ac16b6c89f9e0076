// Package meshctx wires the node table, path table, translation table,
// and port set into one mesh context, exposing the entry points that
// receive heartbeat and originator statements and a periodic self-
// heartbeat stabilizer.
//
// Grounded on original_source/src/mesh/thingset_mesh.c's tsm_context,
// which owns exactly these four tables, and on
// KoordeDHT/internal/node/worker.go's ticker/select stabilizer loop
// shape.
package meshctx

import (
	"context"
	"time"

	"thingset-mesh-go/internal/logger"
	"thingset-mesh-go/internal/meshid"
	"thingset-mesh-go/internal/nodetable"
	"thingset-mesh-go/internal/pathtable"
	"thingset-mesh-go/internal/translation"
	"thingset-mesh-go/internal/wire"
)

// Context is one mesh routing context: a self-identity, its node/path/
// translation tables, and the set of local ports it receives statements
// over. Per spec §5, all table mutations on one Context are expected to
// happen on a single task; independent Contexts share nothing.
type Context struct {
	logger logger.Logger
	clock  meshid.Clock
	self   meshid.NodeID

	paths       *pathtable.Table
	nodes       *nodetable.Table
	translation *translation.Table

	heartbeatSeqno meshid.Seqno
	heartbeatName  string
}

// Option configures a Context at construction.
type Option func(*Context)

func WithLogger(l logger.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// New builds a mesh Context for self, backed by the given table
// capacities and port set (spec §6 runtime tunables).
func New(
	self meshid.NodeID,
	clock meshid.Clock,
	ports map[meshid.PortID]nodetable.Port,
	pathTableCapacity, nodeTableCapacity, pathsPerNode int,
	translationTableCapacity int,
	seqnoCacheSize, seqnoExpectedRange int,
	seqnoMaxAgeMillis int64,
	opts ...Option,
) *Context {
	paths := pathtable.New(pathTableCapacity)
	nodes := nodetable.New(
		nodeTableCapacity, paths, ports, self, clock,
		pathsPerNode, seqnoCacheSize, seqnoExpectedRange, seqnoMaxAgeMillis,
	)
	c := &Context{
		logger:      &logger.NopLogger{},
		clock:       clock,
		self:        self,
		paths:       paths,
		nodes:       nodes,
		translation: translation.New(translationTableCapacity),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Context) Self() meshid.NodeID { return c.self }

// HandleHeartbeat applies a decoded heartbeat statement to the node
// table (spec §4.3's Neighbour-update).
func (c *Context) HandleHeartbeat(hb wire.HeartbeatStatement, port meshid.PortID) error {
	err := c.nodes.NeighbourUpdate(hb.Seqno, hb.NodeID, hb.Version, hb.PeriodS, hb.NameMapping, port)
	if err != nil {
		return err
	}
	if hb.NameMapping != meshid.NameMappingUnknown && hb.Name != "" {
		c.translation.Set(hb.NameMapping, hb.Name)
	}
	return nil
}

// HandleOriginator applies a decoded originator statement to the node
// table (spec §4.3's Originator-update).
func (c *Context) HandleOriginator(os wire.OriginatorStatement, port meshid.PortID) error {
	err := c.nodes.OriginatorUpdate(
		os.Seqno, os.NodeID, os.Version, os.AgeMs,
		os.NameMapping, os.RouterNodeID, os.Throughput, port,
	)
	if err != nil {
		return err
	}
	if os.NameMapping != meshid.NameMappingUnknown && os.Name != "" {
		c.translation.Set(os.NameMapping, os.Name)
	}
	return nil
}

// BestNextHop reports the preferred path to id (spec §4.3).
func (c *Context) BestNextHop(id meshid.NodeID) (hopIdx int, throughput meshid.Throughput, err error) {
	idx, err := c.nodes.Lookup(id)
	if err != nil {
		return 0, 0, err
	}
	return c.nodes.BestNextHop(idx)
}

// ResolveName looks up a node's human-readable name by its name-mapping
// id, supplementing the wire protocol's numeric identifiers (S.1).
func (c *Context) ResolveName(id meshid.NameMappingID) (string, bool) {
	return c.translation.Get(id)
}

// nextHeartbeatSeqno advances and wraps this context's own outgoing
// sequence number (0..SeqnoMax), mirroring the receive-side circular
// arithmetic in protectwindow.
func (c *Context) nextHeartbeatSeqno() meshid.Seqno {
	s := c.heartbeatSeqno
	if s >= meshid.SeqnoMax {
		c.heartbeatSeqno = 0
	} else {
		c.heartbeatSeqno = s + 1
	}
	return s
}

// BuildHeartbeat constructs this context's next self-heartbeat statement.
func (c *Context) BuildHeartbeat(periodS uint8, nameMapping meshid.NameMappingID) wire.HeartbeatStatement {
	return wire.HeartbeatStatement{
		Version:     meshid.ProtocolVersion,
		NodeID:      c.self,
		Seqno:       c.nextHeartbeatSeqno(),
		PeriodS:     periodS,
		NameMapping: nameMapping,
	}
}

// RunHeartbeatStabilizer emits a self-heartbeat to emit every interval
// via emit, until ctx is canceled.
func (c *Context) RunHeartbeatStabilizer(ctx context.Context, interval time.Duration, periodS uint8, nameMapping meshid.NameMappingID, emit func(wire.HeartbeatStatement)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("heartbeat stabilizer stopped")
			return
		case <-ticker.C:
			emit(c.BuildHeartbeat(periodS, nameMapping))
		}
	}
}
