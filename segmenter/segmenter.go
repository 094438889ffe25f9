/*
NAME
  segmenter.go

DESCRIPTION
  segmenter.go implements Segmenter, the state machine that holds the FLV
  initialization triad, buffers tags until a keyframe boundary, decides when
  to roll to a new output file, and prepends the initialization triad to
  every new file. This is the heart of the archiver.

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
	"io"
	"os"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/streamvault/codec/h264"
	"github.com/ausocean/streamvault/container/flv"
)

// filenameLayout is the timestamp format appended to the basename at every
// file roll, evaluated at roll time in the local timezone.
const filenameLayout = "2006-01-02T15_04_05"

// FileOpener creates the destination for a new segment file. The default,
// osFileOpener, creates a plain file on disk; tests substitute an in-memory
// opener.
type FileOpener interface {
	Create(name string) (io.WriteCloser, error)
}

type osFileOpener struct{}

func (osFileOpener) Create(name string) (io.WriteCloser, error) { return os.Create(name) }

// Segmenter drives the FLV rewriting loop: it reads tags from a flv.Reader,
// holds the initialization triad, buffers non-keyframe tags, and rolls to a
// new file at keyframe boundaries chosen by its Segmentation.
type Segmenter struct {
	base   string
	seg    Segmentation
	opener FileOpener
	log    logging.Logger
	report func(int) // Bitrate write-report callback; nil if not wired.

	fileHeader flv.FileHeader

	meta     *flv.RawTag
	aacSeq   *flv.RawTag
	h264Seq  *flv.RawTag
	cache    []*flv.RawTag
	split    splitState
	started  bool // True once a baseline keyframe has been observed for the current file.
	prevTS   int32
	haveTS   bool
	forceNew bool

	out      *flv.Writer
	outClose io.Closer

	// Files records every filename this segmenter has created, in order;
	// used by the orchestrator for logging and by tests for assertions.
	Files []string
}

// New returns a Segmenter writing segments named base+timestamp+".flv",
// split according to seg, logging through log.
func New(base string, seg Segmentation, log logging.Logger) *Segmenter {
	return &Segmenter{
		base:       base,
		seg:        seg,
		opener:     osFileOpener{},
		log:        log,
		fileHeader: flv.NewFileHeader(true, true),
	}
}

// SetReportFunc wires a write-report callback (e.g. bitrate.Calculator.Report)
// invoked with the byte count of every tag written to the current file.
func (s *Segmenter) SetReportFunc(f func(int)) { s.report = f }

// SetFileOpener overrides how new segment files are created; used by tests.
func (s *Segmenter) SetFileOpener(o FileOpener) { s.opener = o }

// Run consumes tags from r until end of stream or a fatal error, writing
// segment files as it goes. It creates the first segment file itself before
// reading any tags, per the component's lifecycle (a file exists from the
// moment the segmenter starts).
func (s *Segmenter) Run(r *flv.Reader) error {
	if err := s.roll(); err != nil {
		return fmt.Errorf("creating initial segment: %w", err)
	}
	for {
		tag, err := r.ReadTag()
		if err != nil {
			return fmt.Errorf("reading tag: %w", err)
		}
		if tag == nil {
			// Clean end of stream: flush whatever fully-formed tags remain
			// cached since the last keyframe, then leave the current file
			// as-is. Only a genuinely partial tag (handled by flv.Reader
			// itself returning nil here) is ever discarded.
			return s.flushCache()
		}
		if err := s.handle(tag); err != nil {
			return err
		}
	}
}

// handle processes one tag per the per-tag loop in the component design:
// update the initialization triad on first occurrence, classify the tag,
// and either buffer it or drive the keyframe split/flush/roll sequence.
func (s *Segmenter) handle(tag *flv.RawTag) error {
	switch tag.Header.Type {
	case flv.TagTypeScript:
		if s.meta == nil {
			s.meta = tag
		} else {
			s.log.Warning("duplicate onMetaData tag; ignoring")
		}
		s.cacheTag(tag)
		return nil

	case flv.TagTypeAudio:
		a, err := flv.ParseAudioData(tag.Body)
		if err != nil {
			return fmt.Errorf("parsing audio tag: %w", err)
		}
		if a.IsSequenceHeader() {
			if s.aacSeq == nil {
				s.aacSeq = tag
			} else {
				s.log.Warning("duplicate AAC sequence header; ignoring")
			}
		}
		s.cacheTag(tag)
		return nil

	case flv.TagTypeVideo:
		v, err := flv.ParseVideoData(tag.Body)
		if err != nil {
			return fmt.Errorf("parsing video tag: %w", err)
		}
		if v.IsSequenceHeader() {
			if s.h264Seq == nil {
				s.h264Seq = tag
				s.logSPS(v.Payload)
			} else {
				s.log.Warning("duplicate H264 sequence header; new file will be forced at next keyframe")
				s.forceNew = true
			}
		}
		// A sequence header tag conventionally carries frame_type == Key
		// too, but it is initialization data, not a picture; only a Key
		// tag carrying actual NALU data is a split boundary.
		if v.IsKeyframe() && !v.IsSequenceHeader() {
			return s.handleKeyframe(tag)
		}
		s.cacheTag(tag)
		return nil

	default:
		return fmt.Errorf("unreachable: tag type %d passed flv.ParseTagHeader validation", tag.Header.Type)
	}
}

// logSPS best-effort decodes the embedded sequence parameter set from an
// H264 sequence header's AVCDecoderConfigurationRecord and logs stream
// dimensions and frame rate. It is purely informational: a decode failure is
// logged at Debug and never propagated, since most encoders' SPS payloads
// decode fine but nothing downstream depends on it.
func (s *Segmenter) logSPS(avcConfig []byte) {
	nal, err := h264.FirstSPS(avcConfig)
	if err != nil {
		s.log.Debug("could not locate SPS in sequence header", "error", err.Error())
		return
	}
	info, err := h264.ParseSPS(nal)
	if err != nil {
		s.log.Debug("could not decode SPS", "error", err.Error())
		return
	}
	s.log.Info("H264 stream parameters", "width", info.Width, "height", info.Height, "frameRate", info.FrameRate)
}

// cacheTag appends tag to the pending cache and accounts for its size
// immediately, so the split predicate sees bytes as soon as they are queued
// for the current segment rather than only once physically flushed.
func (s *Segmenter) cacheTag(tag *flv.RawTag) {
	s.split.downloadedSize += uint64(tag.Size())
	s.cache = append(s.cache, tag)
}

// handleKeyframe implements the keyframe branch of the per-tag loop: split
// evaluation, cache flush, a forced roll for a duplicate H264 sequence
// header, and finally caching the keyframe itself for the next cycle.
func (s *Segmenter) handleKeyframe(tag *flv.RawTag) error {
	triadComplete := s.meta != nil && s.aacSeq != nil && s.h264Seq != nil

	switch {
	case !triadComplete:
		// Rolls are deferred until the triad is fully captured; the cache
		// is still flushed normally, it simply never triggers a split
		// while incomplete.
	case !s.started:
		// The first keyframe observed after the triad is complete
		// establishes the baseline rather than being evaluated against an
		// undefined baseline.
		s.seg.onRoll(&s.split, tag.Header.Timestamp)
		s.started = true
	default:
		if s.seg.shouldSplit(&s.split, tag.Header.Timestamp) {
			// The cache holds everything queued for the segment that is
			// about to close; flush it there before rolling, so the new
			// file starts clean with only its own triad and this keyframe.
			if err := s.flushCache(); err != nil {
				return fmt.Errorf("flushing cache before roll: %w", err)
			}
			if err := s.roll(); err != nil {
				return fmt.Errorf("rolling segment: %w", err)
			}
			s.seg.onRoll(&s.split, tag.Header.Timestamp)
			// The splitting keyframe is the new segment's baseline; without
			// this the next keyframe would re-establish it and every ByTime
			// boundary after the first would land one keyframe late.
			s.started = true
		}
	}

	if err := s.flushCache(); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}

	if s.forceNew {
		if err := s.roll(); err != nil {
			return fmt.Errorf("rolling segment after duplicate sequence header: %w", err)
		}
		s.seg.onRoll(&s.split, tag.Header.Timestamp)
		s.started = true
		s.forceNew = false
	}

	s.cacheTag(tag)
	return nil
}

// flushCache writes every cached tag to the current file in order, firing
// the write-report callback and warning on non-monotonic timestamps.
// downloadedSize is not touched here: it is accounted for as tags are
// queued into the cache (cacheTag), not when they are physically written.
func (s *Segmenter) flushCache() error {
	for _, tag := range s.cache {
		if err := s.out.WriteTag(tag); err != nil {
			return err
		}
		if s.report != nil {
			s.report(tag.Size())
		}
		if s.haveTS && tag.Header.Timestamp < s.prevTS {
			s.log.Warning("non-monotonic timestamp", "previous", s.prevTS, "current", tag.Header.Timestamp)
		}
		s.prevTS = tag.Header.Timestamp
		s.haveTS = true
	}
	s.cache = s.cache[:0]
	return nil
}

// roll closes the current file (if any), creates a new one, writes the file
// header and the initialization triad (using the originally captured raw
// bytes so framing and timestamps survive byte-identically), and resets
// downloadedSize to 13, the size of the header plus its zero trailer.
func (s *Segmenter) roll() error {
	if s.outClose != nil {
		if err := s.outClose.Close(); err != nil {
			s.log.Warning("closing previous segment file", "error", err.Error())
		}
	}

	name := s.filename(time.Now())
	f, err := s.opener.Create(name)
	if err != nil {
		return fmt.Errorf("creating segment file %s: %w", name, err)
	}
	s.Files = append(s.Files, name)
	s.outClose = f
	s.out = flv.NewWriter(f)
	s.split.downloadedSize = 13

	if err := s.out.WriteFileHeader(s.fileHeader); err != nil {
		return err
	}
	for _, tag := range []*flv.RawTag{s.meta, s.aacSeq, s.h264Seq} {
		if tag == nil {
			continue // Triad not yet complete; written triad members are emitted as they become available.
		}
		if err := s.out.WriteTag(tag); err != nil {
			return err
		}
		if s.report != nil {
			s.report(tag.Size())
		}
		s.split.downloadedSize += uint64(tag.Size())
	}
	s.started = false
	s.log.Info("opened new segment file", "name", name)
	return nil
}

// filename returns the full path for a new segment file created at t.
func (s *Segmenter) filename(t time.Time) string {
	return s.base + t.Format(filenameLayout) + ".flv"
}

// Close closes the current segment file, if one is open.
func (s *Segmenter) Close() error {
	if s.outClose == nil {
		return nil
	}
	return s.outClose.Close()
}
