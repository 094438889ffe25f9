/*
DESCRIPTION
  bitreader.go provides a bit reader over an io.Reader data source, reading
  most-significant bit first as H.264 syntax elements are laid out.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit reader implementation over an io.Reader data
// source.
package bits

import (
	"bufio"
	"io"
)

// BitReader reads bits from an io.Reader source, most-significant bit first.
type BitReader struct {
	r     io.ByteReader
	n     uint64
	bits  int
	nRead int
}

// NewBitReader returns a new BitReader reading from r.
func NewBitReader(r io.Reader) *BitReader {
	byter, ok := r.(io.ByteReader)
	if !ok {
		byter = bufio.NewReader(r)
	}
	return &BitReader{r: byter}
}

// ReadBits reads n bits from the source and returns them in the
// least-significant part of a uint64.
// For example, with a source as []byte{0x8f,0xe3} (1000 1111, 1110 0011), we
// would get the following results for consecutive reads with n values:
// n = 4, res = 0x8 (1000)
// n = 2, res = 0x3 (0011)
// n = 4, res = 0xf (1111)
// n = 6, res = 0x23 (0010 0011)
func (br *BitReader) ReadBits(n int) (uint64, error) {
	for n > br.bits {
		b, err := br.r.ReadByte()
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		if err != nil {
			return 0, err
		}
		br.nRead++
		br.n <<= 8
		br.n |= uint64(b)
		br.bits += 8
	}

	// Right shift the desired bits into the least-significant places and
	// mask off anything above.
	r := (br.n >> uint(br.bits-n)) & ((1 << uint(n)) - 1)
	br.bits -= n
	return r, nil
}

// BytesRead returns the number of bytes that have been consumed from the
// source so far.
func (br *BitReader) BytesRead() int {
	return br.nRead
}
