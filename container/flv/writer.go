/*
NAME
  writer.go

DESCRIPTION
  writer.go provides Writer, which re-emits FLV file headers and tags
  byte-exactly: a tag's header is encoded from its parsed TagHeader, whose
  encoding reproduces the parsed bytes exactly, and its body and trailer
  are written verbatim; no field (data size, trailer) is recomputed.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flv

import "io"

// zeroPrevTagSize is the 4-byte previous-tag-size trailer that follows the
// file header, always zero because no tag precedes it.
var zeroPrevTagSize = [PrevTagSizeSize]byte{}

// Writer emits a new FLV stream to an underlying io.Writer, writing the
// file header once, then whole tags (header, body and trailer) in order.
type Writer struct {
	dst io.Writer
}

// NewWriter returns a Writer writing to dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// WriteFileHeader writes h's 9-byte wire form followed by the zero
// previous-tag-size trailer that always follows it.
func (w *Writer) WriteFileHeader(h FileHeader) error {
	if _, err := w.dst.Write(h.Bytes()); err != nil {
		return err
	}
	_, err := w.dst.Write(zeroPrevTagSize[:])
	return err
}

// WriteTag writes t's header, body and trailer exactly as they were read,
// with no re-derivation of any field.
func (w *Writer) WriteTag(t *RawTag) error {
	if _, err := w.dst.Write(t.Header.Bytes()); err != nil {
		return err
	}
	if _, err := w.dst.Write(t.Body); err != nil {
		return err
	}
	_, err := w.dst.Write(t.Trailer)
	return err
}

// PrevTagSize encodes n, the size of the preceding tag (11-byte header plus
// body), as a 4-byte big-endian previous-tag-size trailer.
func PrevTagSize(n int) []byte {
	b := make([]byte, PrevTagSizeSize)
	order.PutUint32(b, uint32(n))
	return b
}
