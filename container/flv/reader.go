/*
NAME
  reader.go

DESCRIPTION
  reader.go provides FramedReader, a byte-exact fixed-size-frame reader over
  a blocking io.Reader, and Reader, which layers FLV tag parsing on top of it.

AUTHORS
  Dan Kortschak <dan@ausocean.org>
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flv

import (
	"errors"
	"io"
	"syscall"
)

const (
	readerSeedSize    = 8 * 1024 // Starting capacity of the accumulation buffer.
	readerScratchSize = 8 * 1024 // Size of the per-Read scratch slab.

	// readerMaxIdleCap bounds how large the accumulation buffer's backing
	// array is allowed to grow before it is replaced on a full drain, so
	// that an hour-long stream doesn't pin down an ever-growing allocation.
	readerMaxIdleCap = readerSeedSize * 8
)

// FramedReader pulls exactly-N-byte frames from a blocking byte source,
// retrying reads that fail with a transient "interrupted" condition.
//
// read_frame(n) returns exactly n bytes, or fewer only when src has reached
// end-of-stream, in which case the returned buffer holds whatever residual
// bytes were buffered (possibly empty). All other I/O errors propagate.
type FramedReader struct {
	src     io.Reader
	buf     []byte
	scratch []byte
}

// NewFramedReader returns a FramedReader reading from src.
func NewFramedReader(src io.Reader) *FramedReader {
	return &FramedReader{
		src:     src,
		buf:     make([]byte, 0, readerSeedSize),
		scratch: make([]byte, readerScratchSize),
	}
}

// ReadFrame returns exactly n bytes read from the underlying source, or
// fewer only if the source reached end-of-stream, in which case err is nil
// and the returned slice (possibly empty) holds whatever was buffered.
// Any other I/O error is returned with a nil frame.
func (r *FramedReader) ReadFrame(n int) ([]byte, error) {
	for len(r.buf) < n {
		nr, err := r.src.Read(r.scratch)
		if nr > 0 {
			r.buf = append(r.buf, r.scratch[:nr]...)
		}
		if err == nil {
			continue
		}
		if isInterrupted(err) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return r.drain(), nil
		}
		return nil, err
	}
	return r.take(n), nil
}

// take removes and returns the first n bytes of the accumulation buffer,
// compacting or resetting the backing array as appropriate.
func (r *FramedReader) take(n int) []byte {
	frame := make([]byte, n)
	copy(frame, r.buf[:n])
	remaining := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:remaining]
	if remaining == 0 && cap(r.buf) > readerMaxIdleCap {
		r.buf = make([]byte, 0, readerSeedSize)
	}
	return frame
}

// drain returns a copy of whatever remains buffered and resets the buffer.
func (r *FramedReader) drain() []byte {
	frame := make([]byte, len(r.buf))
	copy(frame, r.buf)
	r.buf = r.buf[:0]
	if cap(r.buf) > readerMaxIdleCap {
		r.buf = make([]byte, 0, readerSeedSize)
	}
	return frame
}

// isInterrupted reports whether err represents a transient interrupted
// system call, which FramedReader retries indefinitely rather than
// propagating.
func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// Reader layers FLV tag parsing over a FramedReader: it reads the file
// header once, then yields RawTag values until end of stream.
type Reader struct {
	fr *FramedReader
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return &Reader{fr: NewFramedReader(src)}
}

// ReadFileHeader reads and parses the 9-byte FLV file header. It must be
// called exactly once, before any call to ReadTag.
func (r *Reader) ReadFileHeader() (FileHeader, error) {
	b, err := r.fr.ReadFrame(FileHeaderSize)
	if err != nil {
		return FileHeader{}, err
	}
	if len(b) < FileHeaderSize {
		return FileHeader{}, io.ErrUnexpectedEOF
	}
	h, err := ParseFileHeader(b)
	if err != nil {
		return FileHeader{}, err
	}
	// Consume the file header's own zero previous-tag-size trailer.
	if _, err := r.fr.ReadFrame(PrevTagSizeSize); err != nil {
		return FileHeader{}, err
	}
	return h, nil
}

// ReadTag reads one tag: its 11-byte header, its body, and its 4-byte
// trailer. A nil RawTag with a nil error signals clean end of stream (the
// framed read of the tag header came back empty). A partially read tag
// header (non-empty but short) is end of stream too, and is discarded rather
// than surfaced, per the framed reader's contract.
func (r *Reader) ReadTag() (*RawTag, error) {
	hb, err := r.fr.ReadFrame(TagHeaderSize)
	if err != nil {
		return nil, err
	}
	if len(hb) == 0 {
		return nil, nil // Clean end of stream.
	}
	if len(hb) < TagHeaderSize {
		return nil, nil // Interrupted mid-header; discard, treat as end of stream.
	}
	header, err := ParseTagHeader(hb)
	if err != nil {
		return nil, err
	}

	body, err := r.fr.ReadFrame(int(header.DataSize))
	if err != nil {
		return nil, err
	}
	if len(body) < int(header.DataSize) {
		return nil, nil // Interrupted mid-body; discard partial tag.
	}

	trailer, err := r.fr.ReadFrame(PrevTagSizeSize)
	if err != nil {
		return nil, err
	}
	if len(trailer) < PrevTagSizeSize {
		return nil, nil // Interrupted mid-trailer; discard partial tag.
	}

	return &RawTag{Header: header, Body: body, Trailer: trailer}, nil
}
