package rbbq

import (
	"context"
	"testing"
	"time"

	"thingset-mesh-go/internal/mesherr"
)

func mustInitStart(t *testing.T, r *RBBQ) {
	t.Helper()
	ctx := context.Background()
	if err := r.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestAllocRejectedBeforeRunning(t *testing.T) {
	a, _ := NewLocalPair(64)
	r := New(64, a)
	ctx := context.Background()
	if _, err := r.Alloc(ctx, 1, 4); err != mesherr.Busy {
		t.Fatalf("Alloc before Running = %v, want mesherr.Busy", err)
	}
}

func TestAllocTransmitReceiveFreeRoundTrip(t *testing.T) {
	devA, devB := NewLocalPair(64)
	a := New(64, devA)
	b := New(64, devB)
	mustInitStart(t, a)
	mustInitStart(t, b)

	ctx := context.Background()
	msg, err := a.Alloc(ctx, 7, 5)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	copy(msg.Payload(), []byte("hello"))
	if err := a.Transmit(msg); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Channel() != 7 || string(got.Payload()) != "hello" {
		t.Fatalf("Receive = channel %d payload %q, want 7 %q", got.Channel(), got.Payload(), "hello")
	}
	if err := b.Free(got); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestFreeDoubleFreeRejected(t *testing.T) {
	devA, devB := NewLocalPair(64)
	a := New(64, devA)
	b := New(64, devB)
	mustInitStart(t, a)
	mustInitStart(t, b)

	ctx := context.Background()
	msg, _ := a.Alloc(ctx, 1, 2)
	a.Transmit(msg)
	got, _ := b.Receive(ctx)
	if err := b.Free(got); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if err := b.Free(got); err != mesherr.NoMem {
		t.Fatalf("second Free = %v, want mesherr.NoMem", err)
	}
}

func TestReceiveTimesOutWithNoData(t *testing.T) {
	devA, devB := NewLocalPair(64)
	a := New(64, devA)
	b := New(64, devB)
	mustInitStart(t, a)
	mustInitStart(t, b)
	_ = a

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); err != mesherr.TimedOut {
		t.Fatalf("Receive with no data = %v, want mesherr.TimedOut", err)
	}
}

func TestAllocModeAtEndThenAtStart(t *testing.T) {
	devA, devB := NewLocalPair(16)
	r := &RBBQ{capacity: 16, txBuf: make([]byte, 16), device: devA}
	r.state.store(StateRunning)
	r.timedAllocMu = newTimedMutex()

	mode, offset := r.chooseAllocMode(16) // frame size 16 (12-byte payload + 4-byte header)
	if mode != modeAtEnd || offset != 0 {
		t.Fatalf("first chooseAllocMode = (%v, %d), want (AtEnd, 0)", mode, offset)
	}
	r.localWriteIdx = 16

	// devB is devA's peer: publishing its ReadIdx here is what the
	// consumer does on Free, and chooseAllocMode must observe it live
	// through devA.PeerControl() rather than a stale local copy.
	devB.Receive(8)
	mode, offset = r.chooseAllocMode(4)
	if mode != modeAtStart {
		t.Fatalf("second chooseAllocMode = %v, want AtStart", mode)
	}
	if offset != 0 {
		t.Fatalf("AtStart offset = %d, want 0", offset)
	}
}

func TestAllocNoMemWhenFrameExceedsRegion(t *testing.T) {
	devA, _ := NewLocalPair(16)
	a := New(16, devA)
	mustInitStart(t, a)

	ctx := context.Background()
	if _, err := a.Alloc(ctx, 1, 20); err != mesherr.NoMem {
		t.Fatalf("Alloc(20) on 16-byte buffer = %v, want mesherr.NoMem", err)
	}
}

func TestAllocUnblocksAfterPeerFreeAdvancesReadIdx(t *testing.T) {
	devA, devB := NewLocalPair(16)
	a := New(16, devA)
	b := New(16, devB)
	mustInitStart(t, a)
	mustInitStart(t, b)

	ctx := context.Background()
	msg, err := a.Alloc(ctx, 1, 12) // fills the 16-byte region exactly
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := a.Transmit(msg); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if _, err := a.Alloc(ctx, 1, 12); err != mesherr.NoMem {
		t.Fatalf("Alloc while full = %v, want mesherr.NoMem", err)
	}

	rmsg, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := b.Free(rmsg); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// b's Free published its advanced ReadIdx to devB's control record;
	// a's next Alloc must observe it live rather than stay stuck on a
	// stale read index frozen at Init time. With the write index at the
	// end, a frame wraps to the start only if it is smaller than the
	// peer's read index (16), so an 8-byte payload (12-byte frame) fits.
	if _, err := a.Alloc(ctx, 1, 8); err != nil {
		t.Fatalf("Alloc after peer Free = %v, want success", err)
	}
}

func TestStateMachineTransitions(t *testing.T) {
	devA, _ := NewLocalPair(16)
	a := New(16, devA)
	ctx := context.Background()

	if err := a.Start(); err != mesherr.Busy {
		t.Fatalf("Start before Init = %v, want mesherr.Busy", err)
	}
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.state.load() != StateRunning {
		t.Fatalf("state after Start = %v, want Running", a.state.load())
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.state.load() != StateSuspended {
		t.Fatalf("state after Stop = %v, want Suspended", a.state.load())
	}
	if err := a.Start(); err != nil {
		t.Fatalf("restart from Suspended: %v", err)
	}
}

func TestCorruptedOnOversizedDeclaredFrame(t *testing.T) {
	devA, devB := NewLocalPair(32)
	a := New(32, devA)
	b := New(32, devB)
	mustInitStart(t, a)
	mustInitStart(t, b)

	ctx := context.Background()
	msg, _ := a.Alloc(ctx, 1, 4)
	MessageHeader{Channel: 1, Size: 200}.Encode(devA.myData[msg.offset:])
	a.Transmit(msg)

	if _, err := b.Receive(ctx); err != mesherr.Corrupted {
		t.Fatalf("Receive with oversized declared size = %v, want mesherr.Corrupted", err)
	}
}
