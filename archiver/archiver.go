/*
NAME
  archiver.go

DESCRIPTION
  archiver.go implements Archiver, the orchestrator that fetches a stream
  from a URL, probes its first bytes to tell an FLV stream from an HLS
  playlist, and drives the appropriate ingestion path to completion.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package archiver ties the FLV framed reader, parser, writer and segmenter
// together with a Fetcher to archive a live stream to a sequence of local
// files.
package archiver

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/utils/bitrate"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/streamvault/container/flv"
	"github.com/ausocean/streamvault/hls"
	"github.com/ausocean/streamvault/segmenter"
)

// Fetcher opens a byte stream for url, forwarding headers on the request.
// Retry/backoff of the initial connection is the Fetcher's job, not the
// archiver's.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error)
}

// DefaultHeaders returns the request headers forwarded on every fetch unless
// overridden by Config.Headers.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":          "*/*",
		"Accept-Encoding": "identity",
		"Accept-Language": "en-US,en;q=0.9",
		"User-Agent":      "streamvault/1.0",
		"Connection":      "keep-alive",
	}
}

// Config configures an Archiver run.
type Config struct {
	// URL is the source to fetch: either a raw FLV stream or an HLS media
	// playlist.
	URL string

	// OutBase is the basename passed to the segmenter (FLV path) or used to
	// derive the single output file (HLS path).
	OutBase string

	// Segmentation selects how the FLV path splits output files. Unused on
	// the HLS path, which always appends to one file.
	Segmentation segmenter.Segmentation

	// Headers are merged over DefaultHeaders for every fetch.
	Headers map[string]string

	// PollInterval is the HLS playlist poll cadence. Zero selects the
	// poller's own default.
	PollInterval time.Duration
}

// Archiver fetches a stream and archives it to local files, dispatching to
// the FLV or HLS ingestion path based on the stream's first bytes.
type Archiver struct {
	cfg     Config
	fetch   Fetcher
	log     logging.Logger
	bitrate bitrate.Calculator

	segOpener segmenter.FileOpener
	hlsOpener hls.FileOpener

	seg *segmenter.Segmenter
}

// New returns an Archiver that fetches cfg.URL via fetch, logging through log.
func New(cfg Config, fetch Fetcher, log logging.Logger) *Archiver {
	return &Archiver{cfg: cfg, fetch: fetch, log: log}
}

// SetSegmentFileOpener overrides how the FLV path creates segment files;
// used by tests.
func (a *Archiver) SetSegmentFileOpener(o segmenter.FileOpener) { a.segOpener = o }

// SetHLSFileOpener overrides how the HLS path creates its output file; used
// by tests.
func (a *Archiver) SetHLSFileOpener(o hls.FileOpener) { a.hlsOpener = o }

// Bitrate returns the result of the most recent write-rate calculation.
func (a *Archiver) Bitrate() int { return a.bitrate.Bitrate() }

// Files returns the names of every FLV segment file produced so far. The HLS
// path's output file is not recorded here: Files returns nil after an HLS
// run.
func (a *Archiver) Files() []string {
	if a.seg != nil {
		return a.seg.Files
	}
	return nil
}

// Run fetches a.cfg.URL and archives it to completion or until ctx is
// cancelled. ctx only unblocks the fetch and, on the HLS path, the poll
// sleep between playlist refreshes; cancelling a blocking read from an
// already-open body is the Fetcher's responsibility.
func (a *Archiver) Run(ctx context.Context) error {
	headers := DefaultHeaders()
	for k, v := range a.cfg.Headers {
		headers[k] = v
	}

	a.log.Debug("fetching source", "url", a.cfg.URL)
	body, err := a.fetch.Fetch(ctx, a.cfg.URL, headers)
	if err != nil {
		return errors.Wrap(err, "fetching source")
	}
	defer body.Close()

	probe := make([]byte, flv.FileHeaderSize)
	n, err := io.ReadFull(body, probe)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrap(err, "probing source")
	}
	probe = probe[:n]
	src := io.MultiReader(bytes.NewReader(probe), body)

	if isFLVSignature(probe) {
		a.log.Info("probe identified FLV stream", "url", a.cfg.URL)
		return a.runFLV(src)
	}

	a.log.Info("probe did not match FLV signature; treating as HLS playlist", "url", a.cfg.URL)
	return a.runHLS(ctx, src, headers)
}

// isFLVSignature reports whether probe begins with the 3-byte "FLV" magic.
// A probe shorter than that can never be a valid FLV stream either.
func isFLVSignature(probe []byte) bool {
	return len(probe) >= 3 && probe[0] == 'F' && probe[1] == 'L' && probe[2] == 'V'
}

func (a *Archiver) runFLV(src io.Reader) error {
	a.seg = segmenter.New(a.cfg.OutBase, a.cfg.Segmentation, a.log)
	a.seg.SetReportFunc(a.bitrate.Report)
	if a.segOpener != nil {
		a.seg.SetFileOpener(a.segOpener)
	}
	defer a.seg.Close()

	r := flv.NewReader(src)
	if _, err := r.ReadFileHeader(); err != nil {
		return errors.Wrap(err, "reading FLV file header")
	}
	if err := a.seg.Run(r); err != nil {
		return errors.Wrap(err, "running segmenter")
	}
	return nil
}

func (a *Archiver) runHLS(ctx context.Context, src io.Reader, headers map[string]string) error {
	p := hls.NewPoller(a.fetch, a.log)
	if a.cfg.PollInterval > 0 {
		p.SetPollInterval(a.cfg.PollInterval)
	}
	if a.hlsOpener != nil {
		p.SetFileOpener(a.hlsOpener)
	}
	p.SetReportFunc(a.bitrate.Report)
	return errors.Wrap(p.Run(ctx, a.cfg.URL, headers, a.cfg.OutBase, src), "running HLS poller")
}
