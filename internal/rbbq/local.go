package rbbq

import (
	"context"
	"sync"
)

// LocalDevice pairs two in-process RBBQ instances over a pair of shared
// byte slices, used for intra-node channels and tests. Grounded on
// original_source/src/rbbq/rbbq_local.c's rbbq_device_local: each side's
// data buffer doubles as the peer's read source, and each side owns one
// control record that carries both its own write/watermark progress and
// its last-observed read progress of the peer's stream.
type LocalDevice struct {
	mu sync.Mutex

	myData []byte
	myCtl  ControlRecord

	peerData []byte
	peer     *LocalDevice

	signal chan struct{}
}

// NewLocalPair builds two directly-wired LocalDevices, each owning one of
// the two data buffers of the given size.
func NewLocalPair(bufSize int) (a, b *LocalDevice) {
	a2b := make([]byte, bufSize)
	b2a := make([]byte, bufSize)
	a = &LocalDevice{myData: a2b, peerData: b2a, signal: make(chan struct{}, 1)}
	b = &LocalDevice{myData: b2a, peerData: a2b, signal: make(chan struct{}, 1)}
	a.peer = b
	b.peer = a
	return a, b
}

func (d *LocalDevice) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.myCtl = ControlRecord{WriteIdx: 0, WatermarkIdx: uint16(len(d.myData)), ReadIdx: 0}
	return nil
}

func (d *LocalDevice) Start() error { return nil }
func (d *LocalDevice) Stop() error  { return nil }

func (d *LocalDevice) Transmit(writeIdx, watermarkIdx uint16) error {
	d.mu.Lock()
	d.myCtl.WriteIdx = writeIdx
	d.myCtl.WatermarkIdx = watermarkIdx
	d.mu.Unlock()
	d.peer.raiseReceiveSignal()
	return nil
}

func (d *LocalDevice) Receive(readIdx uint16) error {
	d.mu.Lock()
	d.myCtl.ReadIdx = readIdx
	d.mu.Unlock()
	d.peer.raiseReceiveSignal()
	return nil
}

func (d *LocalDevice) Monitor() error { return nil }

// PeerControl returns the peer's last published control record directly
// (no copy through shared memory is needed for the in-process case).
func (d *LocalDevice) PeerControl() ControlRecord {
	d.peer.mu.Lock()
	defer d.peer.mu.Unlock()
	return d.peer.myCtl
}

// PeerData exposes the peer's outgoing data buffer, which is this side's
// RX source.
func (d *LocalDevice) PeerData() []byte {
	return d.peerData
}

func (d *LocalDevice) raiseReceiveSignal() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *LocalDevice) WaitReceiveSignal(ctx context.Context) {
	select {
	case <-d.signal:
	case <-ctx.Done():
	}
}
