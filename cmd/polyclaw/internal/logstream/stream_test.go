// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logstream

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// pipeFollower is a controllable process.Follower backed by in-memory pipes.
type pipeFollower struct {
	outR, errR *io.PipeReader
	outW, errW *io.PipeWriter
	killOnce   sync.Once
}

func newPipeFollower() *pipeFollower {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	return &pipeFollower{outR: outR, outW: outW, errR: errR, errW: errW}
}

func (f *pipeFollower) Stdout() io.Reader { return f.outR }
func (f *pipeFollower) Stderr() io.Reader { return f.errR }
func (f *pipeFollower) Wait() error       { return nil }

func (f *pipeFollower) Kill() error {
	f.killOnce.Do(func() {
		f.outW.Close()
		f.errW.Close()
	})
	return nil
}

// lineCollector is a concurrency-safe LineSink.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func followWithPipes(t *testing.T) (*Stream, *pipeFollower, *lineCollector) {
	t.Helper()
	follower := newPipeFollower()
	proc := &process.MockManager{
		StartFollowingFunc: func(ctx context.Context, name string, args ...string) (process.Follower, error) {
			return follower, nil
		},
	}
	collector := &lineCollector{}
	stream, err := Follow(context.Background(), proc, collector.add,
		"az", "containerapp", "logs", "show", "--follow")
	require.NoError(t, err)
	return stream, follower, collector
}

// =============================================================================
// UNIT TESTS: line reassembly and extraction
// =============================================================================

func TestFollow_ReassemblesSplitRecord(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	// One structured record split at an arbitrary byte boundary.
	_, _ = follower.outW.Write([]byte(`{"Log":"hel`))
	_, _ = follower.outW.Write([]byte("lo\\n\"}\n"))
	follower.Kill()
	stream.Wait()

	assert.Equal(t, []string{"hello"}, collector.get())
}

func TestFollow_FlushesBufferedRemainderOnClose(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	// No trailing newline: the record only completes when the stream closes.
	_, _ = follower.outW.Write([]byte(`{"Log":"tail"}`))
	follower.Kill()
	stream.Wait()

	assert.Equal(t, []string{"tail"}, collector.get())
}

func TestFollow_RawLinePassthrough(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("  plain text line  \n"))
	_, _ = follower.outW.Write([]byte("{\"TimeStamp\":\"t\",\"Level\":\"info\"}\n"))
	follower.Kill()
	stream.Wait()

	lines := collector.get()
	require.Len(t, lines, 2)
	assert.Equal(t, "plain text line", lines[0])
	// JSON without the log field passes through as-is.
	assert.Equal(t, `{"TimeStamp":"t","Level":"info"}`, lines[1])
}

func TestFollow_StripsCarriageReturnAndTrailingNewline(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("{\"Log\":\"msg\\n\"}\r\n"))
	follower.Kill()
	stream.Wait()

	assert.Equal(t, []string{"msg"}, collector.get())
}

func TestFollow_SkipsEmptyLines(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("\n\none\n\n"))
	follower.Kill()
	stream.Wait()

	assert.Equal(t, []string{"one"}, collector.get())
}

// =============================================================================
// UNIT TESTS: dual-channel draining
// =============================================================================

func TestFollow_DrainsBothChannels(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("{\"Log\":\"from stdout\"}\n"))
	_, _ = follower.errW.Write([]byte("from stderr\n"))
	follower.Kill()
	stream.Wait()

	lines := collector.get()
	assert.ElementsMatch(t, []string{"from stdout", "from stderr"}, lines)
}

// =============================================================================
// UNIT TESTS: Stop semantics
// =============================================================================

func TestStream_StopIsIdempotent(t *testing.T) {
	stream, follower, _ := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("{\"Log\":\"x\"}\n"))

	done := make(chan struct{})
	go func() {
		stream.Stop()
		stream.Stop()
		stream.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

func TestStream_StopAfterProcessExit(t *testing.T) {
	stream, follower, collector := followWithPipes(t)

	_, _ = follower.outW.Write([]byte("{\"Log\":\"last\"}\n"))
	follower.Kill() // process already gone
	stream.Wait()

	assert.NotPanics(t, func() { stream.Stop() })
	assert.Equal(t, []string{"last"}, collector.get())
}

func TestFollow_NilSinkDiscardsOutput(t *testing.T) {
	follower := newPipeFollower()
	proc := &process.MockManager{
		StartFollowingFunc: func(ctx context.Context, name string, args ...string) (process.Follower, error) {
			return follower, nil
		},
	}

	stream, err := Follow(context.Background(), proc, nil, "az", "containerapp", "logs", "show")
	require.NoError(t, err)

	_, _ = follower.outW.Write([]byte("discarded\n"))
	follower.Kill()
	assert.NotPanics(t, stream.Wait)
}
