package rbbq

import (
	"context"

	"thingset-mesh-go/internal/logger"
	"thingset-mesh-go/internal/mesherr"
)

// Message is a reserved (producer) or delivered (consumer) frame. Its
// Payload slice aliases the shared buffer directly; callers must not
// retain it past the matching Transmit/Free call.
type Message struct {
	channel     uint16
	offset      uint16
	size        uint16 // header + payload
	nextReadIdx uint16 // consumer-side only: localReadIdx after Free
	payload     []byte
}

func (m *Message) Channel() uint16 { return m.channel }
func (m *Message) Payload() []byte { return m.payload }

// timedMutex is a channel-backed mutex whose Lock honours context
// cancellation, since spec §5 requires alloc/receive acquisition to
// "honour the caller-supplied timeout" and sync.Mutex cannot.
type timedMutex chan struct{}

func newTimedMutex() timedMutex {
	m := make(timedMutex, 1)
	m <- struct{}{}
	return m
}

func (m timedMutex) Lock(ctx context.Context) error {
	select {
	case <-m:
		return nil
	case <-ctx.Done():
		return mesherr.TimedOut
	}
}

func (m timedMutex) Unlock() { m <- struct{}{} }

// Option configures an RBBQ at construction.
type Option func(*RBBQ)

func WithLogger(l logger.Logger) Option {
	return func(r *RBBQ) { r.logger = l }
}

// RBBQ is one end of a single-producer/single-consumer contiguous-
// reservation ring buffer (spec §4.4). capacity is the producer-side TX
// data region size, excluding the control record.
type RBBQ struct {
	logger logger.Logger
	device Device

	capacity uint16
	txBuf    []byte

	state stateHolder

	timedAllocMu      timedMutex
	localWriteIdx     uint16
	localWatermarkIdx uint16
	allocActive       bool
	lastAllocOffset   uint16
	lastAllocSize     uint16

	timedReceiveMu      timedMutex
	localReadIdx        uint16
	recvActive          bool
	lastRecvOffset      uint16
	lastRecvSize        uint16
	peerWatermarkAtRecv uint16
	recvViaWatermark    bool
}

// New allocates an RBBQ with the given TX data capacity, bound to device.
func New(capacity int, device Device, opts ...Option) *RBBQ {
	r := &RBBQ{
		logger:         &logger.NopLogger{},
		device:         device,
		capacity:       uint16(capacity),
		txBuf:          make([]byte, capacity),
		timedAllocMu:   newTimedMutex(),
		timedReceiveMu: newTimedMutex(),
	}
	// Frames are written straight into the device's outgoing data region,
	// which the peer reads through its PeerData; other Device types keep
	// the private buffer above.
	switch d := device.(type) {
	case *LocalDevice:
		if len(d.myData) >= capacity {
			r.txBuf = d.myData[:capacity]
		}
	case *ShmDevice:
		if d.dataSize >= capacity {
			r.txBuf = d.txMap[:capacity]
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Init transitions None -> Init -> Ready, initializing the device (spec
// §4.4's rbbq_init).
func (r *RBBQ) Init(ctx context.Context) error {
	if !r.state.cas(StateNone, StateInit) {
		return mesherr.Fault
	}
	if err := r.device.Init(ctx); err != nil {
		r.state.store(StateNone)
		return err
	}
	r.state.store(StateReady)
	return nil
}

// Start transitions Ready or Suspended -> Start -> Running.
func (r *RBBQ) Start() error {
	prev := r.state.load()
	if prev != StateReady && prev != StateSuspended {
		return mesherr.Busy
	}
	if !r.state.cas(prev, StateStart) {
		return mesherr.Busy
	}
	if err := r.device.Start(); err != nil {
		r.state.store(prev)
		return err
	}
	r.state.store(StateRunning)
	return nil
}

// Stop transitions Running -> Stop -> Suspended.
func (r *RBBQ) Stop() error {
	if !r.state.cas(StateRunning, StateStop) {
		return mesherr.Busy
	}
	if err := r.device.Stop(); err != nil {
		r.state.store(StateRunning)
		return err
	}
	r.state.store(StateSuspended)
	return nil
}

func (r *RBBQ) running() bool { return r.state.load() == StateRunning }

// allocMode is the wrap-policy outcome of Alloc's placement decision
// (spec §4.4).
type allocMode int

const (
	modeNoMem allocMode = iota
	modeAtEnd
	modeAtStart
	modeAtMiddle
)

// chooseAllocMode reads the peer's other_read_idx live off the device's
// last published control record (the same source availableFromPeer uses
// on the receive side), so a consumer's advance is visible to the next
// Alloc as soon as the device observes it, without a separate shadow
// copy that would need its own update path.
func (r *RBBQ) chooseAllocMode(size uint16) (mode allocMode, offset uint16) {
	w := r.localWriteIdx
	peerRead := r.device.PeerControl().ReadIdx
	e := r.capacity
	if w >= peerRead {
		if size <= e-w {
			return modeAtEnd, w
		}
		if size < peerRead {
			return modeAtStart, 0
		}
		return modeNoMem, 0
	}
	if size < peerRead-w {
		return modeAtMiddle, w
	}
	return modeNoMem, 0
}

// Alloc reserves a contiguous span of size bytes for channel, returning a
// Message whose Payload the caller fills before calling Transmit.
func (r *RBBQ) Alloc(ctx context.Context, channel uint16, size int) (*Message, error) {
	if !r.running() {
		return nil, mesherr.Busy // EAGAIN outside Running
	}
	if err := r.timedAllocMu.Lock(ctx); err != nil {
		return nil, err
	}

	total := HeaderSize + size
	if size < 0 {
		r.timedAllocMu.Unlock()
		return nil, mesherr.Invalid
	}
	if total > int(r.capacity) {
		// a frame larger than the whole region can never be placed
		r.timedAllocMu.Unlock()
		return nil, mesherr.NoMem
	}
	s := uint16(total)

	mode, offset := r.chooseAllocMode(s)
	if mode == modeNoMem {
		r.timedAllocMu.Unlock()
		return nil, mesherr.NoMem
	}

	if mode == modeAtStart {
		r.localWatermarkIdx = r.localWriteIdx
	}

	MessageHeader{Channel: channel, Size: uint16(size)}.Encode(r.txBuf[offset:])
	r.localWriteIdx = offset + s

	r.allocActive = true
	r.lastAllocOffset = offset
	r.lastAllocSize = s

	return &Message{
		channel: channel,
		offset:  offset,
		size:    s,
		payload: r.txBuf[int(offset)+HeaderSize : int(offset)+int(s)],
	}, nil
}

// Transmit publishes the reservation and releases the alloc mutex.
func (r *RBBQ) Transmit(msg *Message) error {
	if !r.allocActive || msg.offset != r.lastAllocOffset || msg.size != r.lastAllocSize {
		return mesherr.Invalid
	}
	err := r.device.Transmit(r.localWriteIdx, r.localWatermarkIdx)
	r.allocActive = false
	r.timedAllocMu.Unlock()
	return err
}

func (r *RBBQ) availableFromPeer() (avail uint16, viaWatermark bool, peerWatermark uint16) {
	peer := r.device.PeerControl()
	if peer.WriteIdx >= r.localReadIdx {
		return peer.WriteIdx - r.localReadIdx, false, peer.WatermarkIdx
	}
	return peer.WatermarkIdx - r.localReadIdx, true, peer.WatermarkIdx
}

// Receive waits for and returns the next frame, blocking on the device's
// receive signal while no data is available, honouring ctx.
func (r *RBBQ) Receive(ctx context.Context) (*Message, error) {
	if !r.running() {
		return nil, mesherr.Busy
	}
	if err := r.timedReceiveMu.Lock(ctx); err != nil {
		return nil, err
	}

	for {
		avail, viaWatermark, peerWatermark := r.availableFromPeer()
		if avail == 0 {
			r.timedReceiveMu.Unlock()
			r.device.WaitReceiveSignal(ctx)
			if ctx.Err() != nil {
				return nil, mesherr.TimedOut
			}
			if err := r.timedReceiveMu.Lock(ctx); err != nil {
				return nil, err
			}
			continue
		}

		hdr := DecodeMessageHeader(r.device.PeerData()[r.localReadIdx:])
		total := HeaderSize + int(hdr.Size)
		if total > int(avail) {
			r.logger.Error("rbbq frame header exceeds available bytes",
				logger.F("size", hdr.Size), logger.F("avail", avail))
			r.timedReceiveMu.Unlock()
			return nil, mesherr.Corrupted
		}

		offset := r.localReadIdx
		nextRead := offset + uint16(total)
		if viaWatermark && nextRead >= peerWatermark {
			nextRead = 0
		}

		r.recvActive = true
		r.lastRecvOffset = offset
		r.lastRecvSize = uint16(total)
		r.peerWatermarkAtRecv = peerWatermark
		r.recvViaWatermark = viaWatermark

		data := r.device.PeerData()
		return &Message{
			channel:     hdr.Channel,
			offset:      offset,
			size:        uint16(total),
			nextReadIdx: nextRead,
			payload:     data[int(offset)+HeaderSize : int(offset)+total],
		}, nil
	}
}

// Free advances the local read index, publishes it to the peer, and
// releases the receive mutex. A repeated Free of a message already freed
// is rejected as a double-free.
func (r *RBBQ) Free(msg *Message) error {
	if !r.recvActive || msg.offset != r.lastRecvOffset || msg.size != r.lastRecvSize {
		return mesherr.NoMem // double-free, per spec §4.4
	}
	r.localReadIdx = msg.nextReadIdx
	err := r.device.Receive(r.localReadIdx)
	r.recvActive = false
	r.timedReceiveMu.Unlock()
	return err
}
