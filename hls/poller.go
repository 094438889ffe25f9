/*
NAME
  poller.go

DESCRIPTION
  poller.go implements Poller, which follows a live HLS media playlist,
  fetches each newly listed segment exactly once, validates it as a whole
  number of MPEG-TS packets, and appends it to a single output file.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package hls

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Comcast/gots/packet"

	"github.com/ausocean/utils/logging"
)

// defaultPollInterval is used when neither the caller nor the playlist's own
// #EXT-X-TARGETDURATION supplies one.
const defaultPollInterval = 5 * time.Second

// Fetcher opens a byte stream for a URL with request headers. It has the
// same shape as archiver.Fetcher; any archiver.Fetcher value satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error)
}

// FileOpener creates the destination for the appended MPEG-TS output. The
// default, osFileOpener, creates a plain file on disk; tests substitute an
// in-memory opener.
type FileOpener interface {
	Create(name string) (io.WriteCloser, error)
}

type osFileOpener struct{}

func (osFileOpener) Create(name string) (io.WriteCloser, error) { return os.Create(name) }

// Poller follows a live HLS media playlist and appends each new segment to
// a single `{base}.ts` file, fetching every segment exactly once by
// tracking the playlist's media sequence number.
type Poller struct {
	fetch        Fetcher
	log          logging.Logger
	opener       FileOpener
	pollInterval time.Duration
	report       func(int)
}

// NewPoller returns a Poller that fetches playlists and segments via fetch,
// logging through log.
func NewPoller(fetch Fetcher, log logging.Logger) *Poller {
	return &Poller{fetch: fetch, log: log, opener: osFileOpener{}}
}

// SetPollInterval overrides the cadence between playlist refreshes. Zero (the
// default) falls back to the playlist's own #EXT-X-TARGETDURATION, or
// defaultPollInterval if that is also unset.
func (p *Poller) SetPollInterval(d time.Duration) { p.pollInterval = d }

// SetFileOpener overrides how the output file is created; used by tests.
func (p *Poller) SetFileOpener(o FileOpener) { p.opener = o }

// SetReportFunc wires a write-report callback (e.g. bitrate.Calculator.Report)
// invoked with the byte count of every segment appended.
func (p *Poller) SetReportFunc(f func(int)) { p.report = f }

// Run polls playlistURL until it carries #EXT-X-ENDLIST and every listed
// segment has been fetched, or until ctx is cancelled. initial is the
// playlist body already fetched by the caller (the archiver probes a
// stream's first bytes before it knows whether it's FLV or HLS, so the
// first playlist fetch has already happened by the time Run is called).
func (p *Poller) Run(ctx context.Context, playlistURL string, headers map[string]string, outBase string, initial io.Reader) error {
	out, err := p.opener.Create(outBase + ".ts")
	if err != nil {
		return fmt.Errorf("creating output file %s.ts: %w", outBase, err)
	}
	defer out.Close()

	pl, err := ParsePlaylist(playlistURL, initial)
	if err != nil {
		return fmt.Errorf("parsing initial playlist: %w", err)
	}

	// nextSeq is the absolute media sequence number of the next segment to
	// fetch; starts at the first playlist's own MediaSequence so its first
	// listed segment is fetched too.
	nextSeq := pl.MediaSequence

	for {
		// An empty segment list means the stream has finished: a live
		// playlist always lists its sliding window of recent segments.
		if len(pl.Segments) == 0 {
			p.log.Info("playlist listed no segments; stream finished")
			return nil
		}

		nextSeq, err = p.drain(ctx, pl, nextSeq, headers, out)
		if err != nil {
			return err
		}
		if pl.EndList {
			return nil
		}

		if err := p.sleep(ctx, pl.TargetDuration); err != nil {
			return err
		}

		body, err := p.fetch.Fetch(ctx, playlistURL, headers)
		if err != nil {
			return fmt.Errorf("fetching playlist: %w", err)
		}
		pl, err = ParsePlaylist(playlistURL, body)
		body.Close()
		if err != nil {
			return fmt.Errorf("parsing playlist: %w", err)
		}
	}
}

// drain fetches and appends every segment in pl whose absolute sequence
// number is >= nextSeq, returning the sequence number of the first segment
// not yet seen.
func (p *Poller) drain(ctx context.Context, pl Playlist, nextSeq uint64, headers map[string]string, out io.Writer) (uint64, error) {
	for i, uri := range pl.Segments {
		seq := pl.MediaSequence + uint64(i)
		if seq < nextSeq {
			continue // Already fetched on a previous poll.
		}

		p.log.Debug("fetching segment", "sequence", seq, "uri", uri)
		body, err := p.fetch.Fetch(ctx, uri, headers)
		if err != nil {
			return nextSeq, fmt.Errorf("fetching segment %d: %w", seq, err)
		}
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return nextSeq, fmt.Errorf("reading segment %d: %w", seq, err)
		}

		if !validTSAlignment(data) {
			p.log.Warning("segment is not cleanly aligned MPEG-TS; appending anyway", "sequence", seq, "bytes", len(data))
		}

		if _, err := out.Write(data); err != nil {
			return nextSeq, fmt.Errorf("writing segment %d: %w", seq, err)
		}
		if p.report != nil {
			p.report(len(data))
		}

		nextSeq = seq + 1
	}
	return nextSeq, nil
}

// validTSAlignment reports whether data is a non-empty whole number of
// 188-byte MPEG-TS packets, each passing gots' per-packet validity checks
// (sync byte and reserved header fields). A misaligned segment is a stream
// glitch, not fatal: it is still appended, since HLS segments are meant to
// be independently decodable.
func validTSAlignment(data []byte) bool {
	if len(data) == 0 || len(data)%packet.PacketSize != 0 {
		return false
	}
	var pkt packet.Packet
	for i := 0; i < len(data); i += packet.PacketSize {
		copy(pkt[:], data[i:i+packet.PacketSize])
		if err := pkt.CheckErrors(); err != nil {
			return false
		}
	}
	return true
}

// sleep waits for the poll interval or ctx cancellation, whichever comes
// first.
func (p *Poller) sleep(ctx context.Context, targetDuration int) error {
	d := p.pollInterval
	if d <= 0 {
		d = time.Duration(targetDuration) * time.Second
	}
	if d <= 0 {
		d = defaultPollInterval
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
