// Package rbbq implements component E: the Bipartite Bip-Buffer, a
// shared-memory single-producer/single-consumer contiguous-reservation
// ring buffer with an alloc/transmit/receive/free state machine and a
// three-mode wrap policy, plus two concrete Device transports.
//
// Grounded on original_source/src/rbbq/rbbq.c, rbbq_priv.h, and
// rbbq_local.c for the algorithms and the control-record wire shape.
package rbbq

import "encoding/binary"

// ControlRecord is the 6-byte big-endian control word exchanged between
// the two ends of one directional channel (spec §4.4, §6): the
// producer's write and watermark indices, and the consumer's read index
// as last observed by the producer.
type ControlRecord struct {
	WriteIdx     uint16
	WatermarkIdx uint16
	ReadIdx      uint16
}

// ControlRecordSize is the wire size of a ControlRecord.
const ControlRecordSize = 6

// Encode writes the big-endian wire form of c into buf, which must be at
// least ControlRecordSize bytes.
func (c ControlRecord) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], c.WriteIdx)
	binary.BigEndian.PutUint16(buf[2:4], c.WatermarkIdx)
	binary.BigEndian.PutUint16(buf[4:6], c.ReadIdx)
}

// DecodeControlRecord parses the big-endian wire form of a ControlRecord.
func DecodeControlRecord(buf []byte) ControlRecord {
	return ControlRecord{
		WriteIdx:     binary.BigEndian.Uint16(buf[0:2]),
		WatermarkIdx: binary.BigEndian.Uint16(buf[2:4]),
		ReadIdx:      binary.BigEndian.Uint16(buf[4:6]),
	}
}

// MessageHeader is the 4-byte big-endian frame header (spec §4.4, §6):
// channel and payload size.
type MessageHeader struct {
	Channel uint16
	Size    uint16
}

// HeaderSize is the wire size of a MessageHeader.
const HeaderSize = 4

func (h MessageHeader) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.Channel)
	binary.BigEndian.PutUint16(buf[2:4], h.Size)
}

func DecodeMessageHeader(buf []byte) MessageHeader {
	return MessageHeader{
		Channel: binary.BigEndian.Uint16(buf[0:2]),
		Size:    binary.BigEndian.Uint16(buf[2:4]),
	}
}
