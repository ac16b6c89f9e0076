package rbbq

import "sync/atomic"

// State is one point in the RBBQ lifecycle (spec §4.4):
// None -> Init -> Ready -> Start -> Running -> Stop -> Suspended -> Start -> Running ...
type State int32

const (
	StateNone State = iota
	StateInit
	StateReady
	StateStart
	StateRunning
	StateStop
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateStart:
		return "start"
	case StateRunning:
		return "running"
	case StateStop:
		return "stop"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// stateHolder wraps an atomic int32 guarding transitions with
// compare-and-swap, so only one task ever drives a given transition
// (spec §4.4: "Transitions are guarded by atomic compare-and-set so only
// one task drives state at a time").
type stateHolder struct {
	v atomic.Int32
}

func (h *stateHolder) load() State { return State(h.v.Load()) }

func (h *stateHolder) cas(from, to State) bool {
	return h.v.CompareAndSwap(int32(from), int32(to))
}

func (h *stateHolder) store(s State) { h.v.Store(int32(s)) }
