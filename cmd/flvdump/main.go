/*
NAME
  main.go

DESCRIPTION
  flvdump is a debug utility that reads a single FLV file and writes a
  line-delimited JSON dump of its file header and every tag to
  "{path}.json", without touching the segmenter.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements the flvdump debug utility.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ausocean/streamvault/container/flv"
)

// headerDump is the first line of the output, describing the file header.
type headerDump struct {
	Kind     string `json:"kind"` // Always "header".
	Version  uint8  `json:"version"`
	HasAudio bool   `json:"has_audio"`
	HasVideo bool   `json:"has_video"`
}

// tagDump is one subsequent line of the output, describing one tag.
type tagDump struct {
	Kind      string `json:"kind"` // "audio", "video", "script" or "unknown".
	Timestamp int32  `json:"timestamp"`
	StreamID  uint32 `json:"stream_id"`
	DataSize  uint32 `json:"data_size"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <path.flv>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "flvdump: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".json")
	if err != nil {
		return fmt.Errorf("creating %s.json: %w", path, err)
	}
	defer dst.Close()

	w := bufio.NewWriter(dst)
	defer w.Flush()
	enc := json.NewEncoder(w)

	r := flv.NewReader(src)
	h, err := r.ReadFileHeader()
	if err != nil {
		return fmt.Errorf("reading file header: %w", err)
	}
	if err := enc.Encode(headerDump{Kind: "header", Version: h.Version, HasAudio: h.HasAudio, HasVideo: h.HasVideo}); err != nil {
		return fmt.Errorf("encoding file header: %w", err)
	}

	for {
		tag, err := r.ReadTag()
		if err != nil {
			return fmt.Errorf("reading tag: %w", err)
		}
		if tag == nil {
			break
		}
		if err := enc.Encode(tagDump{
			Kind:      tagKind(tag.Header.Type),
			Timestamp: tag.Header.Timestamp,
			StreamID:  tag.Header.StreamID,
			DataSize:  tag.Header.DataSize,
		}); err != nil {
			return fmt.Errorf("encoding tag: %w", err)
		}
	}
	return nil
}

func tagKind(t uint8) string {
	switch t {
	case flv.TagTypeAudio:
		return "audio"
	case flv.TagTypeVideo:
		return "video"
	case flv.TagTypeScript:
		return "script"
	default:
		return "unknown"
	}
}
