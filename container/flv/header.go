/*
NAME
  header.go

DESCRIPTION
  header.go provides the 9-byte FLV file header: parsing and encoding.

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

// FileHeader is the 9-byte header that opens every FLV file or stream.
type FileHeader struct {
	Version    uint8
	HasAudio   bool
	HasVideo   bool
	HeaderSize uint32 // Always FileHeaderSize (9) for valid input.
}

// ParseFileHeader decodes the 9-byte FLV file header from b. It rejects any
// input whose first three bytes are not the "FLV" signature.
func ParseFileHeader(b []byte) (FileHeader, error) {
	if len(b) < FileHeaderSize {
		return FileHeader{}, incomplete("file header", FileHeaderSize, len(b))
	}
	if b[0] != flvSignature[0] || b[1] != flvSignature[1] || b[2] != flvSignature[2] {
		return FileHeader{}, malformed("file header", errNotFLV)
	}
	flags := b[4]
	return FileHeader{
		Version:    b[3],
		HasAudio:   flags&0x04 != 0,
		HasVideo:   flags&0x01 != 0,
		HeaderSize: order.Uint32(b[5:9]),
	}, nil
}

// Bytes encodes h as the canonical 9-byte FLV file header.
func (h FileHeader) Bytes() []byte {
	b := make([]byte, FileHeaderSize)
	copy(b[0:3], flvSignature[:])
	b[3] = h.Version
	var flags byte
	if h.HasAudio {
		flags |= 0x04
	}
	if h.HasVideo {
		flags |= 0x01
	}
	b[4] = flags
	order.PutUint32(b[5:9], FileHeaderSize)
	return b
}

// NewFileHeader returns the canonical FLV file header this package writes:
// version 1, with the given audio/video flags.
func NewFileHeader(hasAudio, hasVideo bool) FileHeader {
	return FileHeader{
		Version:    flvVersion,
		HasAudio:   hasAudio,
		HasVideo:   hasVideo,
		HeaderSize: FileHeaderSize,
	}
}
