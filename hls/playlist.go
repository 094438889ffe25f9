/*
NAME
  playlist.go

DESCRIPTION
  playlist.go hand-parses an HLS media playlist (M3U8 text) into the handful
  of fields the poller needs: the starting media sequence number, the
  ordered segment URIs (resolved against the playlist's own URL), and
  whether the playlist is closed (VOD/ended).

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hls implements a minimal HLS media-playlist poller: enough to
// follow a live playlist's media sequence and fetch each new segment
// exactly once, appending it to a single MPEG-TS file.
package hls

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Playlist is the subset of an HLS media playlist the poller acts on.
type Playlist struct {
	// MediaSequence is the sequence number of Segments[0], per
	// #EXT-X-MEDIA-SEQUENCE. Segment i therefore has absolute sequence
	// number MediaSequence+i.
	MediaSequence uint64

	// TargetDuration is the advertised #EXT-X-TARGETDURATION in seconds,
	// used as a fallback poll interval when the caller hasn't set one.
	TargetDuration int

	// Segments holds every segment URI in the playlist, in order, resolved
	// to an absolute URL against the playlist's own URL.
	Segments []string

	// EndList is true once the playlist has carried #EXT-X-ENDLIST, meaning
	// no further segments will ever be appended; the poller stops after
	// draining the segments already listed.
	EndList bool
}

// ParsePlaylist parses the M3U8 text read from r. playlistURL is the URL the
// playlist itself was fetched from, used to resolve relative segment URIs.
func ParsePlaylist(playlistURL string, r io.Reader) (Playlist, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return Playlist{}, fmt.Errorf("parsing playlist URL: %w", err)
	}

	var p Playlist
	scanner := bufio.NewScanner(r)
	// Segment and tag lines can be arbitrarily long for custom attribute
	// lists; grow past bufio.Scanner's 64KiB default rather than erroring.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if _, err := fmt.Sscanf(line, "#EXT-X-MEDIA-SEQUENCE:%d", &p.MediaSequence); err != nil {
				return Playlist{}, fmt.Errorf("parsing media sequence %q: %w", line, err)
			}
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if _, err := fmt.Sscanf(line, "#EXT-X-TARGETDURATION:%d", &p.TargetDuration); err != nil {
				return Playlist{}, fmt.Errorf("parsing target duration %q: %w", line, err)
			}
		case line == "#EXT-X-ENDLIST":
			p.EndList = true
		case strings.HasPrefix(line, "#"):
			// Other tags (#EXTINF, #EXT-X-VERSION, etc.) carry no state the
			// poller needs.
		default:
			p.Segments = append(p.Segments, resolveURI(base, line))
		}
	}
	if err := scanner.Err(); err != nil {
		return Playlist{}, fmt.Errorf("scanning playlist: %w", err)
	}
	return p, nil
}

// resolveURI resolves a (possibly relative) segment URI against base. A URI
// that fails to parse is returned unchanged; the fetch that follows will
// fail with a clearer error than a silently dropped segment would.
func resolveURI(base *url.URL, uri string) string {
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
