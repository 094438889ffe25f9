/*
NAME
  segmenter_test.go

DESCRIPTION
  segmenter_test.go provides testing to validate Segmenter against the
  end-to-end scenarios and invariants it must satisfy.

AUTHOR
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
	"bytes"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/streamvault/container/flv"
)

// discardLogger implements logging.Logger and drops everything; tests
// assert on segmenter-visible effects (files, cache), not log output.
type discardLogger struct{}

func (discardLogger) SetLevel(int8) {}
func (discardLogger) Log(int8, string, ...interface{}) {}
func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{}) {}
func (discardLogger) Warning(string, ...interface{}) {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

// memFile is an in-memory io.WriteCloser.
type memFile struct{ bytes.Buffer }

func (*memFile) Close() error { return nil }

// memOpener is a FileOpener that keeps every created file in memory, keyed
// by the name it was created with, in creation order. Segment names have
// one-second resolution, so a name reused within the same second gets a
// "#n" suffix on its key rather than overwriting the earlier file.
type memOpener struct {
	names []string
	files map[string]*memFile
}

func newMemOpener() *memOpener { return &memOpener{files: make(map[string]*memFile)} }

func (o *memOpener) Create(name string) (io.WriteCloser, error) {
	f := &memFile{}
	key := name
	for n := 1; o.files[key] != nil; n++ {
		key = fmt.Sprintf("%s#%d", name, n)
	}
	o.names = append(o.names, key)
	o.files[key] = f
	return f, nil
}

// buildTag constructs a RawTag with the given type, timestamp and body, and
// a correctly computed trailer.
func buildTag(typ uint8, ts int32, body []byte) *flv.RawTag {
	h := flv.TagHeader{Type: typ, DataSize: uint32(len(body)), Timestamp: ts}
	return &flv.RawTag{
		Header:  h,
		Body:    body,
		Trailer: flv.PrevTagSize(flv.TagHeaderSize + len(body)),
	}
}

func scriptTag(ts int32) *flv.RawTag {
	// A minimal onMetaData AMF0 payload is not required for the segmenter's
	// own logic (it never decodes script tags), only that it parses as a
	// script tag; an empty body is sufficient here.
	return buildTag(flv.TagTypeScript, ts, []byte{0x02, 0x00, 0x00})
}

func aacSeqTag(ts int32) *flv.RawTag {
	a := flv.AudioData{SoundFormat: flv.SoundFormatAAC, AACPacketType: flv.AACSequenceHeader, AACPacketTypeSet: true, Payload: []byte{0x12, 0x10}}
	return buildTag(flv.TagTypeAudio, ts, a.Bytes())
}

func aacRawTag(ts int32, n int) *flv.RawTag {
	a := flv.AudioData{SoundFormat: flv.SoundFormatAAC, AACPacketType: flv.AACRaw, AACPacketTypeSet: true, Payload: bytes.Repeat([]byte{0x01}, n)}
	return buildTag(flv.TagTypeAudio, ts, a.Bytes())
}

func h264SeqTag(ts int32) *flv.RawTag {
	v := flv.VideoData{FrameType: flv.FrameKey, CodecID: flv.CodecH264, AVCPacketType: flv.AVCSequenceHeader, AVCPacketTypeSet: true, Payload: []byte{1, 2, 3, 4}}
	return buildTag(flv.TagTypeVideo, ts, v.Bytes())
}

func videoTag(frameType uint8, ts int32, n int) *flv.RawTag {
	v := flv.VideoData{FrameType: frameType, CodecID: flv.CodecH264, AVCPacketType: flv.AVCNALU, AVCPacketTypeSet: true, Payload: bytes.Repeat([]byte{0xAB}, n)}
	return buildTag(flv.TagTypeVideo, ts, v.Bytes())
}

// encodeSource writes an FLV file header plus the given tags to a buffer,
// simulating the upstream byte source.
func encodeSource(t *testing.T, tags ...*flv.RawTag) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := flv.NewWriter(&buf)
	if err := w.WriteFileHeader(flv.NewFileHeader(true, true)); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	for _, tag := range tags {
		if err := w.WriteTag(tag); err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
	}
	return &buf
}

// run drives a Segmenter over the given source tags and returns the memory
// opener holding every produced segment file.
func run(t *testing.T, seg Segmentation, tags ...*flv.RawTag) *memOpener {
	t.Helper()
	src := encodeSource(t, tags...)
	r := flv.NewReader(src)
	if _, err := r.ReadFileHeader(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	s := New("out-", seg, discardLogger{})
	opener := newMemOpener()
	s.SetFileOpener(opener)
	if err := s.Run(r); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	return opener
}

// readBack parses a produced segment file from scratch and returns its file
// header and every tag in order.
func readBack(t *testing.T, b []byte) (flv.FileHeader, []*flv.RawTag) {
	t.Helper()
	r := flv.NewReader(bytes.NewReader(b))
	h, err := r.ReadFileHeader()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	var tags []*flv.RawTag
	for {
		tag, err := r.ReadTag()
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		if tag == nil {
			break
		}
		tags = append(tags, tag)
	}
	return h, tags
}

// TestMinimalPassThrough is scenario S1.
func TestMinimalPassThrough(t *testing.T) {
	tags := []*flv.RawTag{
		scriptTag(0),
		aacSeqTag(0),
		h264SeqTag(0),
		videoTag(flv.FrameKey, 0, 100),
		aacRawTag(23, 50),
	}
	opener := run(t, BySize(10_000_000_000), tags...)
	if len(opener.names) != 1 {
		t.Fatalf("got %d files, want 1", len(opener.names))
	}
	_, got := readBack(t, opener.files[opener.names[0]].Bytes())
	if len(got) != len(tags) {
		t.Fatalf("got %d tags, want %d", len(got), len(tags))
	}
	for i, g := range got {
		if g.Header != tags[i].Header {
			t.Errorf("tag %d header: got %+v, want %+v", i, g.Header, tags[i].Header)
		}
		if !bytes.Equal(g.Body, tags[i].Body) {
			t.Errorf("tag %d body: got %v, want %v", i, g.Body, tags[i].Body)
		}
	}
}

// TestSizeSplit is scenario S2.
func TestSizeSplit(t *testing.T) {
	tags := []*flv.RawTag{scriptTag(0), aacSeqTag(0), h264SeqTag(0), videoTag(flv.FrameKey, 0, 100)}
	for i := 0; i < 100; i++ {
		tags = append(tags, videoTag(flv.FrameInter, int32(i+1), 1<<20))
	}
	tags = append(tags, videoTag(flv.FrameKey, 5000, 100))

	opener := run(t, BySize(50_000_000), tags...)
	if len(opener.names) != 2 {
		t.Fatalf("got %d files, want 2", len(opener.names))
	}

	_, file2Tags := readBack(t, opener.files[opener.names[1]].Bytes())
	// The second file must open with the init triad, then the keyframe at ts=5000.
	if len(file2Tags) < 4 {
		t.Fatalf("second file has too few tags: %d", len(file2Tags))
	}
	if file2Tags[0].Header.Type != flv.TagTypeScript {
		t.Errorf("first tag of second file is not onMetaData: %+v", file2Tags[0].Header)
	}
	if file2Tags[3].Header.Timestamp != 5000 {
		t.Errorf("got timestamp %d, want 5000", file2Tags[3].Header.Timestamp)
	}
}

// TestTimeSplit is scenario S3: keyframes every 2000ms over 10s, split at
// 3000ms. Each segment measures its duration from its own baseline keyframe,
// so the boundaries must land at the first keyframes at or past 0+3000
// (KF@4000) and 4000+3000 (KF@8000), not one keyframe later.
func TestTimeSplit(t *testing.T) {
	tags := []*flv.RawTag{scriptTag(0), aacSeqTag(0), h264SeqTag(0)}
	for ts := int32(0); ts <= 10000; ts += 2000 {
		tags = append(tags, videoTag(flv.FrameKey, ts, 10))
	}

	opener := run(t, ByTime(3000*time.Millisecond), tags...)
	if len(opener.names) != 3 {
		t.Fatalf("got %d files, want 3", len(opener.names))
	}

	wantFirstKF := []int32{0, 4000, 8000}
	for i, name := range opener.names {
		_, got := readBack(t, opener.files[name].Bytes())
		if len(got) < 4 {
			t.Fatalf("file %d has too few tags: %d", i, len(got))
		}
		kf := got[3] // Init triad first, then the segment's opening keyframe.
		v, err := flv.ParseVideoData(kf.Body)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		if !v.IsKeyframe() || v.IsSequenceHeader() {
			t.Errorf("file %d does not open with a data keyframe: %+v", i, kf.Header)
		}
		if kf.Header.Timestamp != wantFirstKF[i] {
			t.Errorf("file %d opens with keyframe at %d ms, want %d", i, kf.Header.Timestamp, wantFirstKF[i])
		}
	}
}

// TestDuplicateH264SequenceHeader is scenario S4.
func TestDuplicateH264SequenceHeader(t *testing.T) {
	original := h264SeqTag(0)
	duplicate := h264SeqTag(6000)
	tags := []*flv.RawTag{
		scriptTag(0), aacSeqTag(0), original,
		videoTag(flv.FrameKey, 0, 10),
		videoTag(flv.FrameInter, 1000, 10),
		duplicate,
		videoTag(flv.FrameKey, 8000, 10),
	}

	opener := run(t, BySize(10_000_000_000), tags...)
	if len(opener.names) != 2 {
		t.Fatalf("got %d files, want 2", len(opener.names))
	}

	_, file2Tags := readBack(t, opener.files[opener.names[1]].Bytes())
	if len(file2Tags) == 0 {
		t.Fatal("second file has no tags")
	}
	// The re-emitted H264 sequence header in file 2 must be the original
	// captured bytes, not the duplicate.
	var gotSeq *flv.RawTag
	for _, tag := range file2Tags {
		if tag.Header.Type == flv.TagTypeVideo {
			v, err := flv.ParseVideoData(tag.Body)
			if err != nil {
				t.Fatalf("did not expect error: %v", err)
			}
			if v.IsSequenceHeader() {
				gotSeq = tag
				break
			}
		}
	}
	if gotSeq == nil {
		t.Fatal("no H264 sequence header found in second file")
	}
	if gotSeq.Header.Timestamp != original.Header.Timestamp {
		t.Errorf("got timestamp %d, want original's %d", gotSeq.Header.Timestamp, original.Header.Timestamp)
	}
}

// TestNonMonotonicTimestamp is scenario S5: a non-monotonic timestamp is
// written anyway, with no file roll triggered by it alone.
func TestNonMonotonicTimestamp(t *testing.T) {
	tags := []*flv.RawTag{
		scriptTag(0), aacSeqTag(0), h264SeqTag(0),
		videoTag(flv.FrameKey, 1000, 10),
		aacRawTag(900, 10), // Out of order relative to the keyframe before it.
		videoTag(flv.FrameKey, 2000, 10),
	}

	opener := run(t, BySize(10_000_000_000), tags...)
	if len(opener.names) != 1 {
		t.Fatalf("got %d files, want 1 (no roll from a timestamp anomaly alone)", len(opener.names))
	}
	_, got := readBack(t, opener.files[opener.names[0]].Bytes())
	if len(got) != len(tags) {
		t.Fatalf("got %d tags, want %d; the anomalous tag must still be written", len(got), len(tags))
	}
}

// TestMidTagEOF is scenario S6: the source is truncated mid tag-header; the
// partial tag must not appear in the output, and tags fully received before
// it must still be flushed.
func TestMidTagEOF(t *testing.T) {
	tags := []*flv.RawTag{
		scriptTag(0), aacSeqTag(0), h264SeqTag(0),
		videoTag(flv.FrameKey, 0, 10),
		aacRawTag(23, 10),
	}
	full := encodeSource(t, tags...)
	truncated := full.Bytes()[:full.Len()-22] // The final tag is 27 bytes; leave only 5 of its 11 header bytes.

	r := flv.NewReader(bytes.NewReader(truncated))
	if _, err := r.ReadFileHeader(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	s := New("out-", BySize(10_000_000_000), discardLogger{})
	opener := newMemOpener()
	s.SetFileOpener(opener)
	if err := s.Run(r); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if len(opener.names) != 1 {
		t.Fatalf("got %d files, want 1", len(opener.names))
	}
	_, got := readBack(t, opener.files[opener.names[0]].Bytes())
	if len(got) != len(tags)-1 {
		t.Fatalf("got %d tags, want %d (the truncated final tag must be dropped)", len(got), len(tags)-1)
	}
}

// TestDeferredRollBeforeTriadComplete checks that a keyframe arriving before
// the triad is fully captured does not attempt a roll.
func TestDeferredRollBeforeTriadComplete(t *testing.T) {
	tags := []*flv.RawTag{
		scriptTag(0),
		videoTag(flv.FrameKey, 0, 10), // Keyframe before the AAC/H264 triad members exist.
		aacSeqTag(10),
		h264SeqTag(10),
		videoTag(flv.FrameKey, 20, 10),
	}
	opener := run(t, BySize(1), tags...) // A threshold of 1 byte would split on every keyframe were rolls not deferred.
	if len(opener.names) != 1 {
		t.Fatalf("got %d files, want 1 (rolls must be deferred until the triad is complete)", len(opener.names))
	}
}

// TestSegmentValidity is invariant #2: every produced file parses as a valid
// FLV with a well-formed header/trailer relationship.
func TestSegmentValidity(t *testing.T) {
	tags := []*flv.RawTag{
		scriptTag(0), aacSeqTag(0), h264SeqTag(0),
		videoTag(flv.FrameKey, 0, 100),
		videoTag(flv.FrameKey, 1000, 100),
	}
	opener := run(t, BySize(1), tags...)
	for _, name := range opener.names {
		h, tags := readBack(t, opener.files[name].Bytes())
		if h.Version == 0 {
			t.Errorf("file %s: zero version", name)
		}
		for _, tag := range tags {
			if len(tag.Body) != int(tag.Header.DataSize) {
				t.Errorf("file %s: body length %d does not match data_size %d", name, len(tag.Body), tag.Header.DataSize)
			}
			want := flv.TagHeaderSize + len(tag.Body)
			got := int(byteOrderUint32(tag.Trailer))
			if got != want {
				t.Errorf("file %s: trailer %d does not match preceding tag size %d", name, got, want)
			}
		}
	}
}

func byteOrderUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

var _ logging.Logger = discardLogger{}
