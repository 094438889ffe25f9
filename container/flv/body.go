/*
NAME
  body.go

DESCRIPTION
  body.go parses and encodes FLV tag bodies, discriminated on tag type:
  audio, video, and script (AMF0 metadata) payloads.

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

var errEmptyBody = errors.New("tag body is empty")

// AudioData is the parsed body of an Audio tag.
type AudioData struct {
	SoundFormat uint8
	SoundRate   uint8
	SoundSize   bool
	SoundType   bool

	// AACPacketType and AACPacketTypeSet are only meaningful when
	// SoundFormat == SoundFormatAAC; AAC payloads carry an extra leading
	// byte distinguishing the sequence header from raw frames.
	AACPacketType    uint8
	AACPacketTypeSet bool

	// Payload is the codec payload following the header byte(s), sharing
	// storage with the tag body this AudioData was parsed from.
	Payload []byte
}

// ParseAudioData parses an Audio tag body.
func ParseAudioData(b []byte) (AudioData, error) {
	if len(b) < 1 {
		return AudioData{}, malformed("audio tag body", errEmptyBody)
	}
	h := b[0]
	a := AudioData{
		SoundFormat: h >> 4,
		SoundRate:   (h >> 2) & 0x03,
		SoundSize:   h&0x02 != 0,
		SoundType:   h&0x01 != 0,
	}
	rest := b[1:]
	if a.SoundFormat == SoundFormatAAC {
		if len(rest) < 1 {
			return AudioData{}, malformed("AAC audio packet header", errEmptyBody)
		}
		a.AACPacketType = rest[0]
		a.AACPacketTypeSet = true
		rest = rest[1:]
	}
	a.Payload = rest
	return a, nil
}

// Bytes encodes a as an Audio tag body.
func (a AudioData) Bytes() []byte {
	n := 1 + len(a.Payload)
	if a.AACPacketTypeSet {
		n++
	}
	b := make([]byte, n)
	b[0] = a.SoundFormat<<4 | a.SoundRate<<2 | btb(a.SoundSize)<<1 | btb(a.SoundType)
	off := 1
	if a.AACPacketTypeSet {
		b[1] = a.AACPacketType
		off = 2
	}
	copy(b[off:], a.Payload)
	return b
}

// VideoData is the parsed body of a Video tag.
type VideoData struct {
	FrameType uint8
	CodecID   uint8

	// AVCPacketType, AVCPacketTypeSet and CompositionTime are only
	// meaningful when CodecID == CodecH264.
	AVCPacketType    uint8
	AVCPacketTypeSet bool
	CompositionTime  int32

	// Payload is the codec payload following the header byte(s), sharing
	// storage with the tag body this VideoData was parsed from.
	Payload []byte
}

// ParseVideoData parses a Video tag body.
func ParseVideoData(b []byte) (VideoData, error) {
	if len(b) < 1 {
		return VideoData{}, malformed("video tag body", errEmptyBody)
	}
	h := b[0]
	v := VideoData{
		FrameType: h >> 4,
		CodecID:   h & 0x0F,
	}
	rest := b[1:]
	if v.CodecID == CodecH264 {
		if len(rest) < 4 {
			return VideoData{}, malformed("AVC video packet header", errEmptyBody)
		}
		v.AVCPacketType = rest[0]
		v.AVCPacketTypeSet = true
		v.CompositionTime = int24(rest[1:4])
		rest = rest[4:]
	}
	v.Payload = rest
	return v, nil
}

// Bytes encodes v as a Video tag body.
func (v VideoData) Bytes() []byte {
	n := 1 + len(v.Payload)
	if v.AVCPacketTypeSet {
		n += 4
	}
	b := make([]byte, n)
	b[0] = v.FrameType<<4 | v.CodecID
	off := 1
	if v.AVCPacketTypeSet {
		b[1] = v.AVCPacketType
		putUint24(b[2:5], uint32(v.CompositionTime)&0xFFFFFF)
		off = 5
	}
	copy(b[off:], v.Payload)
	return b
}

// ScriptData is the parsed body of a Script tag: opaque AMF0-encoded bytes.
// Only onMetaData is of interest to this package, and it is decoded lazily
// via DecodeOnMetaData, never eagerly at parse time.
type ScriptData struct {
	Payload []byte
}

// ParseScriptData wraps a Script tag body. The body is not AMF0-decoded here;
// call DecodeOnMetaData for that.
func ParseScriptData(b []byte) (ScriptData, error) {
	return ScriptData{Payload: b}, nil
}

// Bytes returns the raw AMF0 payload.
func (s ScriptData) Bytes() []byte { return s.Payload }

// IsKeyframe reports whether v represents a video keyframe (intra-coded
// frame), the boundary on which the segmenter is permitted to split.
func (v VideoData) IsKeyframe() bool { return v.FrameType == FrameKey }

// IsSequenceHeader reports whether v carries an H264 AVC sequence header
// (SPS/PPS), one of the three initialization-triad tags.
func (v VideoData) IsSequenceHeader() bool {
	return v.CodecID == CodecH264 && v.AVCPacketTypeSet && v.AVCPacketType == AVCSequenceHeader
}

// IsSequenceHeader reports whether a carries an AAC sequence header
// (AudioSpecificConfig), one of the three initialization-triad tags.
func (a AudioData) IsSequenceHeader() bool {
	return a.SoundFormat == SoundFormatAAC && a.AACPacketTypeSet && a.AACPacketType == AACSequenceHeader
}
