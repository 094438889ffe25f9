/*
NAME
  flv.go

DESCRIPTION
  flv.go defines the FLV container's constants and the byte-order helpers
  shared by the package's parsers and writer.

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


// See https://wwwimages2.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10.pdf
// for format specification.

// Package flv provides streaming FLV decoding and encoding: a framed byte
// reader, a tag-level parser, and a tag-level writer. Package segmenter
// drives these together to rewrite an ingested FLV stream into a sequence of
// self-contained files.
package flv

import "encoding/binary"

// Tag types, as carried in the 1-byte tag_type field of a tag header.
const (
	TagTypeAudio  uint8 = 8
	TagTypeVideo  uint8 = 9
	TagTypeScript uint8 = 18
)

// Video frame types, packed into the high nibble of a video tag's first byte.
const (
	FrameKey             uint8 = 1
	FrameInter           uint8 = 2
	FrameDisposableInter uint8 = 3
	FrameGenerated       uint8 = 4
	FrameCommand         uint8 = 5
)

// Video codec IDs, packed into the low nibble of a video tag's first byte.
const (
	CodecH264 uint8 = 7
)

// AVC packet types; the byte immediately following an H264 video tag's nibble byte.
const (
	AVCSequenceHeader uint8 = 0
	AVCNALU           uint8 = 1
	AVCEndOfSequence  uint8 = 2
)

// Audio sound formats, packed into the high nibble of an audio tag's first byte.
const (
	SoundFormatPCM uint8 = 0
	SoundFormatAAC uint8 = 10
)

// AAC packet types; the byte immediately following an AAC audio tag's nibble byte.
const (
	AACSequenceHeader uint8 = 0
	AACRaw            uint8 = 1
)

// Fixed sizes, per the FLV container format.
const (
	FileHeaderSize  = 9
	TagHeaderSize   = 11
	PrevTagSizeSize = 4
)

// flvSignature is the 3-byte magic at the start of every FLV file/stream.
var flvSignature = [3]byte{'F', 'L', 'V'}

// flvVersion is the only FLV version this package produces.
const flvVersion uint8 = 0x01

// order is FLV's big-endian wire byte order.
var order = binary.BigEndian

// putUint24 writes the low 24 bits of v to b big-endian. b must have length
// at least 3.
func putUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// uint24 reads a 24-bit big-endian unsigned integer from b.
func uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// int24 reads a 24-bit big-endian two's-complement signed integer from b.
func int24(b []byte) int32 {
	u := uint24(b)
	if u&0x800000 != 0 {
		return int32(u | 0xFF000000)
	}
	return int32(u)
}

func btb(b bool) byte {
	if b {
		return 1
	}
	return 0
}
