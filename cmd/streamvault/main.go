/*
NAME
  main.go

DESCRIPTION
  streamvault is a command-line archiver: it fetches a live FLV stream or
  HLS playlist from a URL and writes it to local files, splitting the FLV
  path into timestamped segments.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements the streamvault archive command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/streamvault/archiver"
	"github.com/ausocean/streamvault/segmenter"
)

const version = "v1.0.0"

// Logging configuration, matching cmd/rv's file-logging conventions.
const (
	logPath      = "streamvault.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// headerList accumulates repeated -header flags of the form "Key: Value".
type headerList map[string]string

func (h headerList) String() string {
	var parts []string
	for k, v := range h {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, ", ")
}

func (h headerList) Set(s string) error {
	k, v, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("header %q is not of the form Key: Value", s)
	}
	h[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}

func main() {
	showVersion := flag.Bool("version", false, "show version")
	url := flag.String("url", "", "source URL (FLV stream or HLS media playlist); may also be given positionally")
	out := flag.String("out", "", "output basename (required)")
	segTime := flag.Duration("seg-time", 0, "split FLV output by elapsed keyframe time (mutually exclusive with -seg-bytes)")
	segBytes := flag.Uint64("seg-bytes", 0, "split FLV output by accumulated segment size in bytes (mutually exclusive with -seg-time)")
	headers := make(headerList)
	flag.Var(headers, "header", "extra request header \"Key: Value\" (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *url == "" && flag.NArg() > 0 {
		*url = flag.Arg(0)
	}
	if *url == "" {
		fmt.Fprintln(os.Stderr, "streamvault: a source URL is required (-url or positional argument)")
		os.Exit(2)
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "streamvault: -out is required")
		os.Exit(2)
	}
	if *segTime != 0 && *segBytes != 0 {
		fmt.Fprintln(os.Stderr, "streamvault: -seg-time and -seg-bytes are mutually exclusive")
		os.Exit(2)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, fileLog, logSuppress)
	log.Info("starting streamvault", "version", version, "url", *url)

	seg := defaultSegmentation(*segTime, *segBytes)

	cfg := archiver.Config{
		URL:          *url,
		OutBase:      *out,
		Segmentation: seg,
		Headers:      headers,
	}
	a := archiver.New(cfg, newHTTPFetcher(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Error("archiver stopped with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("archiver finished", "files", a.Files(), "bitrate", a.Bitrate())
}

// defaultSegmentation builds the Segmentation named by the flags, falling
// back to a 10 minute time-based split when neither is given.
func defaultSegmentation(segTime time.Duration, segBytes uint64) segmenter.Segmentation {
	switch {
	case segBytes != 0:
		return segmenter.BySize(segBytes)
	case segTime != 0:
		return segmenter.ByTime(segTime)
	default:
		return segmenter.ByTime(10 * time.Minute)
	}
}
