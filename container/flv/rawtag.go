/*
NAME
  rawtag.go

DESCRIPTION
  rawtag.go provides RawTag, the unparsed-payload unit the segmenter caches
  and the initialization triad is captured as: a tag header plus the exact
  body and trailer bytes read off the wire, so they can be re-emitted
  byte-identical at the head of every new segment.

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

// RawTag is one FLV tag as read off the wire: a parsed header plus the
// untouched body and trailer bytes.
type RawTag struct {
	Header  TagHeader
	Body    []byte // Exactly Header.DataSize bytes.
	Trailer []byte // Always 4 bytes; the previous-tag-size trailer following this tag's body.
}

// Size returns the number of bytes this tag occupies on the wire:
// 11 (header) + len(Body) + len(Trailer).
func (t RawTag) Size() int {
	return TagHeaderSize + len(t.Body) + len(t.Trailer)
}
