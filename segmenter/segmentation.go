/*
NAME
  segmentation.go

DESCRIPTION
  segmentation.go defines Segmentation, the two-variant sum type selecting
  how the segmenter decides to roll to a new file: by elapsed keyframe time,
  or by accumulated segment size.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package segmenter

import (
	"fmt"
	"time"
)

// splitState is the subset of Segmenter state a Segmentation's predicate
// reads and, on roll, resets.
type splitState struct {
	firstTagTime   int32
	downloadedSize uint64
}

// Segmentation selects when the segmenter rolls to a new output file. The
// two constructors, ByTime and BySize, are the only implementations.
type Segmentation interface {
	shouldSplit(s *splitState, keyframeTimestamp int32) bool
	onRoll(s *splitState, keyframeTimestamp int32)
	fmt.Stringer
}

type byTime time.Duration

// ByTime returns a Segmentation that rolls to a new file once a keyframe's
// timestamp has advanced by at least d from the current segment's baseline
// keyframe.
func ByTime(d time.Duration) Segmentation { return byTime(d) }

func (d byTime) shouldSplit(s *splitState, ts int32) bool {
	return time.Duration(int64(ts)-int64(s.firstTagTime))*time.Millisecond >= time.Duration(d)
}

func (d byTime) onRoll(s *splitState, ts int32) { s.firstTagTime = ts }

func (d byTime) String() string { return fmt.Sprintf("ByTime(%s)", time.Duration(d)) }

type bySize uint64

// BySize returns a Segmentation that rolls to a new file once the current
// segment has accumulated at least n bytes.
func BySize(n uint64) Segmentation { return bySize(n) }

func (n bySize) shouldSplit(s *splitState, _ int32) bool { return s.downloadedSize >= uint64(n) }

// onRoll is a no-op for BySize: downloadedSize is reset unconditionally by
// the segmenter itself on every roll, not by the predicate.
func (n bySize) onRoll(*splitState, int32) {}

func (n bySize) String() string { return fmt.Sprintf("BySize(%d)", uint64(n)) }
