// Package wire defines the ThingSet-codec identifiers and function codes
// carried by mesh statements, and the two statement boundary types
// (HeartbeatStatement, OriginatorStatement) decoded from or encoded into
// them.
//
// Grounded on original_source/src/mesh/thingset_mesh_priv.h's data IDs
// and thingset_mesh.c's statement publish/parse routines.
package wire

import "thingset-mesh-go/internal/meshid"

// Data object identifiers carried in the enclosing ThingSet codec's
// identifier->value map (spec §6).
const (
	IDHeartbeatGroup  uint16 = 0x08
	IDOriginatorGroup uint16 = 0x09
	IDNodeName        uint16 = 0x17

	IDHeartbeatVersion     uint16 = 0x8000
	IDHeartbeatPeriod      uint16 = 0x8001
	IDHeartbeatNameMapping uint16 = 0x8002

	IDOriginatorVersion     uint16 = 0x8003
	IDOriginatorAge         uint16 = 0x8004
	IDOriginatorNameMapping uint16 = 0x8005
	IDOriginatorRouterNode  uint16 = 0x8006
	IDOriginatorThroughput  uint16 = 0x8007
)

// FunctionCode is a ThingSet request/response/statement function, with
// both its binary and text-mode encodings (spec §6).
type FunctionCode uint8

const (
	FuncGet       FunctionCode = 0x10
	FuncAppend    FunctionCode = 0x11
	FuncDelete    FunctionCode = 0x12
	FuncFetch     FunctionCode = 0x13
	FuncUpdate    FunctionCode = 0x14
	FuncResponse  FunctionCode = 0x15
	FuncStatement FunctionCode = 0x16
)

// textCode is the function's text-mode byte, used on the text-mode
// transport variant of the protocol.
var textCode = map[FunctionCode]byte{
	FuncGet:       'G',
	FuncAppend:    'A',
	FuncDelete:    'D',
	FuncFetch:     'F',
	FuncUpdate:    'U',
	FuncResponse:  'R',
	FuncStatement: 'S',
}

func (f FunctionCode) Text() (byte, bool) {
	b, ok := textCode[f]
	return b, ok
}

// HeartbeatStatement is the periodic self-announcement a neighbour
// decodes off the heartbeat group (spec §3, §6).
type HeartbeatStatement struct {
	Version     uint8
	NodeID      meshid.NodeID
	Seqno       meshid.Seqno
	PeriodS     uint8
	NameMapping meshid.NameMappingID
	Name        string
}

// OriginatorStatement is a router's periodic re-announcement of a node it
// can reach (spec §3, §6).
type OriginatorStatement struct {
	Version      uint8
	NodeID       meshid.NodeID
	Seqno        meshid.Seqno
	AgeMs        uint32
	NameMapping  meshid.NameMappingID
	RouterNodeID meshid.NodeID
	Throughput   meshid.Throughput
	Name         string
}
