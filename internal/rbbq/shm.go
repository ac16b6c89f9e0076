package rbbq

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

// ShmDevice is a Device backed by two /dev/shm-resident mmap regions, one
// per direction, each holding a data area followed by a trailing control
// record. Grounded on AlephTX-aleph-tx/feeder/shm/ring.go's mmap-over-
// truncated-/dev/shm-file pattern, adapted from that package's lock-free
// single-region ring to this buffer's two-region (tx/rx), reservation-
// style layout.
type ShmDevice struct {
	txFile *os.File
	rxFile *os.File
	txMap  []byte // this side's outgoing region: data || control
	rxMap  []byte // this side's incoming region: data || control

	dataSize int

	pollInterval time.Duration
	lastSeenCtl  atomic.Uint64 // packed generation counter bumped by Transmit/Receive on this process
}

// NewShmDevice opens (creating if absent) the two named shared-memory
// segments for one side of a channel. txName is this side's outgoing
// segment; rxName is the peer's outgoing segment, i.e. this side's
// incoming one. Each segment is mapped as dataSize+ControlRecordSize
// bytes, one per direction; a file smaller than that is extended.
func NewShmDevice(txName, rxName string, dataSize int, pollInterval time.Duration) (*ShmDevice, error) {
	txMap, txFile, err := openShmRegion(txName, dataSize+ControlRecordSize)
	if err != nil {
		return nil, err
	}
	rxMap, rxFile, err := openShmRegion(rxName, dataSize+ControlRecordSize)
	if err != nil {
		syscall.Munmap(txMap)
		txFile.Close()
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Millisecond
	}
	return &ShmDevice{
		txFile:       txFile,
		rxFile:       rxFile,
		txMap:        txMap,
		rxMap:        rxMap,
		dataSize:     dataSize,
		pollInterval: pollInterval,
	}, nil
}

func openShmRegion(name string, size int) ([]byte, *os.File, error) {
	path := "/dev/shm/" + name
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("rbbq: open %s: %w", path, err)
	}
	if info, statErr := f.Stat(); statErr == nil && info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("rbbq: truncate %s: %w", path, err)
		}
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("rbbq: mmap %s: %w", path, err)
	}
	return data, f, nil
}

func (d *ShmDevice) txControl() []byte { return d.txMap[d.dataSize:] }
func (d *ShmDevice) rxControl() []byte { return d.rxMap[d.dataSize:] }

func (d *ShmDevice) Init(ctx context.Context) error {
	ControlRecord{WriteIdx: 0, WatermarkIdx: uint16(d.dataSize), ReadIdx: 0}.Encode(d.txControl())
	return nil
}

func (d *ShmDevice) Start() error { return nil }
func (d *ShmDevice) Stop() error  { return nil }

func (d *ShmDevice) Transmit(writeIdx, watermarkIdx uint16) error {
	ctl := DecodeControlRecord(d.txControl())
	ctl.WriteIdx = writeIdx
	ctl.WatermarkIdx = watermarkIdx
	ctl.Encode(d.txControl())
	d.lastSeenCtl.Add(1)
	return nil
}

func (d *ShmDevice) Receive(readIdx uint16) error {
	ctl := DecodeControlRecord(d.txControl())
	ctl.ReadIdx = readIdx
	ctl.Encode(d.txControl())
	d.lastSeenCtl.Add(1)
	return nil
}

func (d *ShmDevice) Monitor() error { return nil }

func (d *ShmDevice) PeerControl() ControlRecord {
	return DecodeControlRecord(d.rxControl())
}

func (d *ShmDevice) PeerData() []byte {
	return d.rxMap[:d.dataSize]
}

// WaitReceiveSignal waits one pollInterval (or until ctx is done), since a
// plain mmap region carries no OS-level wakeup primitive; the caller then
// re-reads the peer's control record. pollInterval trades CPU for latency.
func (d *ShmDevice) WaitReceiveSignal(ctx context.Context) {
	t := time.NewTicker(d.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (d *ShmDevice) Close() error {
	err1 := syscall.Munmap(d.txMap)
	err2 := syscall.Munmap(d.rxMap)
	d.txFile.Close()
	d.rxFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
