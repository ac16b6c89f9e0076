package rbbq

import "context"

// Device is the non-blocking hook contract an RBBQ instance drives (spec
// §4.4 "Device hook contract"). transmit and receive are upcalls
// notifying the device that the local indices changed; the device is
// free to defer actual publication until the shared medium is idle.
type Device interface {
	Init(ctx context.Context) error
	Start() error
	Stop() error

	// Transmit publishes this side's new write/watermark indices.
	Transmit(writeIdx, watermarkIdx uint16) error

	// Receive publishes this side's new read index (other_read_idx in
	// the peer's terms) back to the peer.
	Receive(readIdx uint16) error

	// Monitor lets the device perform housekeeping (link health checks,
	// etc.) on an implementor-defined schedule; the RBBQ core never calls
	// it itself, matching the spec's "non-blocking ... monitor" callback
	// being an external hook rather than a core operation.
	Monitor() error

	// PeerControl returns the last control record published by the
	// peer: its write/watermark indices (for Receive) and its
	// other_read_idx (for Alloc's room check).
	PeerControl() ControlRecord

	// PeerData exposes the peer's outgoing data region, which is this
	// side's read source.
	PeerData() []byte

	// WaitReceiveSignal blocks until the device observes new peer
	// activity or ctx is done, whichever comes first. It must return
	// promptly on ctx cancellation (spec §5: "Every blocking call takes
	// a timeout ... expiry yields a timeout error without side
	// effects").
	WaitReceiveSignal(ctx context.Context)
}
