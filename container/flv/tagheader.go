/*
NAME
  tagheader.go

DESCRIPTION
  tagheader.go provides the 11-byte FLV tag header: parsing and encoding.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flv

import "errors"

// errBadTagType is returned by ParseTagHeader when tag_type is not one of
// Audio, Video or Script.
var errBadTagType = errors.New("tag type out of range")

// TagHeader is the 11-byte header preceding every FLV tag body.
type TagHeader struct {
	Type      uint8
	DataSize  uint32 // Length of the tag body in bytes.
	Timestamp int32  // Milliseconds; signed, per the FLV spec's sign-extended timestamp field.
	StreamID  uint32 // Always 0.
}

// ParseTagHeader decodes an 11-byte FLV tag header from b.
//
// The timestamp is reassembled from a 24-bit low part and an 8-bit
// extension byte that forms its most-significant byte, as described in the
// format spec.
func ParseTagHeader(b []byte) (TagHeader, error) {
	if len(b) < TagHeaderSize {
		return TagHeader{}, incomplete("tag header", TagHeaderSize, len(b))
	}
	typ := b[0]
	switch typ {
	case TagTypeAudio, TagTypeVideo, TagTypeScript:
	default:
		return TagHeader{}, malformed("tag header", errBadTagType)
	}
	dataSize := uint24(b[1:4])
	tsLo := uint24(b[4:7])
	tsHi := b[7]
	timestamp := int32(uint32(tsHi)<<24 | tsLo)
	streamID := uint24(b[8:11])
	return TagHeader{
		Type:      typ,
		DataSize:  dataSize,
		Timestamp: timestamp,
		StreamID:  streamID,
	}, nil
}

// Bytes encodes h as the 11-byte FLV tag header wire format. The timestamp is
// split back into a 24-bit low part written big-endian, followed by the
// extension byte, matching ParseTagHeader's reassembly exactly (round-trip
// identity).
func (h TagHeader) Bytes() []byte {
	b := make([]byte, TagHeaderSize)
	b[0] = h.Type
	putUint24(b[1:4], h.DataSize)
	u := uint32(h.Timestamp)
	putUint24(b[4:7], u&0xFFFFFF)
	b[7] = byte(u >> 24)
	putUint24(b[8:11], h.StreamID)
	return b
}
