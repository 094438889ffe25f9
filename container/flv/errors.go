/*
NAME
  errors.go

DESCRIPTION
  errors.go defines the two error kinds this package's parsers distinguish:
  malformed (fatal, no resync possible) and incomplete (fewer bytes supplied
  than needed). The two are never collapsed into one generic parse error.

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

import (
	"errors"
	"fmt"
)

// errNotFLV is the malformed-context cause for a file header whose signature
// is not "FLV".
var errNotFLV = errors.New(`signature is not "FLV"`)

// MalformedError reports a byte sequence that can never be parsed, for a
// named context (e.g. "tag header", "AVC packet header"). There is no resync
// marker in FLV, so a malformed error is always fatal to the stream it came
// from.
type MalformedError struct {
	Context string
	Err     error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Context, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(context string, err error) error {
	return &MalformedError{Context: context, Err: err}
}

// IncompleteError reports that a parser was given fewer bytes than it needs.
// Package flv's streaming readers never produce this in ordinary operation
// because FramedReader always supplies exactly the requested byte count (or
// a short/empty read that signals end of stream, which callers must check
// for first); if ParseTagHeader or ParseFileHeader ever return it, that is a
// programming error in the caller, not a stream condition.
type IncompleteError struct {
	Context string
	Need    int
	Got     int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete %s: need %d bytes, got %d", e.Context, e.Need, e.Got)
}

func incomplete(context string, need, got int) error {
	return &IncompleteError{Context: context, Need: need, Got: got}
}
