// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package logstream demultiplexes a following log command into plain lines.

The cloud platform's "follow logs" command emits one-line JSON records
(`{"TimeStamp": ..., "Log": "..."}`) on stdout and diagnostics on stderr.
Both channels are drained concurrently; bytes are buffered per channel so
a record split across read chunks is reassembled before parsing. Records
that fail to parse as JSON pass through as trimmed raw lines, so the
multiplexer degrades gracefully when the platform changes its format.
*/
package logstream

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// LogField is the message field of the platform's structured log records.
const LogField = "Log"

// LineSink receives each extracted log line.
type LineSink func(string)

// Stream is a handle to a running follow-logs process.
//
// Stop is idempotent and safe to call after the process has exited.
type Stream struct {
	follower process.Follower
	group    *errgroup.Group
	stopOnce sync.Once
}

// Follow starts the given command and forwards its demultiplexed output
// to onLine until the process exits or Stop is called.
//
// # Description
//
// stdout and stderr are drained by independent readers feeding one
// serialized sink; callers must tolerate interleaving between the two
// channels — the only ordering guarantee is "line-complete, as received
// per channel".
func Follow(ctx context.Context, proc process.Manager, onLine LineSink, name string, args ...string) (*Stream, error) {
	follower, err := proc.StartFollowing(ctx, name, args...)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	sink := func(line string) {
		if onLine == nil || line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(line)
	}

	g := &errgroup.Group{}
	g.Go(func() error {
		demux(follower.Stdout(), sink)
		return nil
	})
	g.Go(func() error {
		demux(follower.Stderr(), sink)
		return nil
	})

	return &Stream{follower: follower, group: g}, nil
}

// Stop kills the underlying process and waits for both readers to drain.
// Safe to call multiple times and after the process already exited.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		_ = s.follower.Kill()
		_ = s.group.Wait()
		_ = s.follower.Wait()
	})
}

// Wait blocks until both channels are fully drained (process exited or
// killed), without initiating a stop.
func (s *Stream) Wait() {
	_ = s.group.Wait()
}

// demux accumulates bytes from one channel, splits on newline, and
// forwards every complete line through extractLine. Whatever remains in
// the buffer when the stream closes is flushed through the same path.
func demux(r io.Reader, sink func(string)) {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := indexNewline(buf)
				if idx < 0 {
					break
				}
				sink(extractLine(string(buf[:idx])))
				buf = buf[idx+1:]
			}
		}
		if err != nil {
			if len(buf) > 0 {
				sink(extractLine(string(buf)))
			}
			return
		}
	}
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

// extractLine unwraps a structured one-line JSON log record into its
// message text; anything else passes through trimmed.
func extractLine(raw string) string {
	line := strings.TrimRight(raw, "\r")

	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var record map[string]any
		if err := json.Unmarshal([]byte(trimmed), &record); err == nil {
			if msg, ok := record[LogField].(string); ok {
				return strings.TrimRight(msg, "\n")
			}
		}
	}
	return trimmed
}
