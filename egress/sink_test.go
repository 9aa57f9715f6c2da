// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/castpack/castpack/av/codec"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	connected []string
	lost      []error
}

func (l *recordingListener) OnConnected(remote string)  { l.connected = append(l.connected, remote) }
func (l *recordingListener) OnConnectionLost(err error) { l.lost = append(l.lost, err) }

func TestConnStateLatchesOncePerEpisode(t *testing.T) {
	listener := &recordingListener{}
	state := &ConnState{}
	state.SetListener(listener)

	require.NoError(t, state.Opened("remote:1"))
	assert.Equal(t, []string{"remote:1"}, listener.connected)
	assert.ErrorIs(t, state.Opened("remote:1"), ErrAlreadyOpen)

	cause := errors.New("socket reset")
	first := state.Fail("write", cause)
	second := state.Fail("write", errors.New("another"))
	assert.Same(t, first, second, "subsequent failures return the latched error")
	assert.Len(t, listener.lost, 1, "connection lost reported once per episode")
	assert.ErrorIs(t, first, cause)

	assert.Equal(t, first, state.Guard(), "writes are rejected while latched")

	// reopen clears the latch and starts a new episode
	state.Closed()
	require.NoError(t, state.Opened("remote:1"))
	state.Fail("write", cause)
	assert.Len(t, listener.lost, 2)
}

func TestFileSinkLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	sink := NewFileSink(xlog.L())

	err := sink.WritePacket(&codec.Packet{Payload: []byte("x")})
	assert.ErrorIs(t, err, ErrNotOpen)

	desc, err := ParseDescriptor(path)
	require.NoError(t, err)
	require.NoError(t, sink.Open(context.Background(), desc))
	assert.ErrorIs(t, sink.Open(context.Background(), desc), ErrAlreadyOpen)

	require.NoError(t, sink.WritePacket(&codec.Packet{Payload: []byte("hello ")}))
	require.NoError(t, sink.WritePacket(&codec.Packet{Payload: []byte("world")}))

	metrics := sink.Metrics()
	assert.EqualValues(t, 11, metrics.BytesSent)
	assert.EqualValues(t, 2, metrics.PacketsSent)

	require.NoError(t, sink.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	assert.NoError(t, sink.Close(), "close is idempotent")
}

func TestFileSinkOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := NewFileSink(xlog.L())
	desc, err := ParseDescriptor(filepath.Join(t.TempDir(), "out.ts"))
	require.NoError(t, err)
	require.Error(t, sink.Open(ctx, desc))
	assert.ErrorIs(t, sink.WritePacket(&codec.Packet{Payload: []byte("x")}), ErrNotOpen)
}

func TestRegistryUnknownScheme(t *testing.T) {
	_, err := NewSink("quic", xlog.L())
	assert.Error(t, err)
}

func TestBufferedWriterFlush(t *testing.T) {
	var out testWriter
	w := NewBufferedWriter(&out, WithBufferSize(32))

	n, err := w.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	if w.Buffered() > 0 {
		_, err = w.Flush()
		require.NoError(t, err)
	}
	assert.Equal(t, 0, w.Buffered())

	// larger than the buffer: goes straight through
	big := make([]byte, 64)
	n, err = w.Write(big)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	_, err = w.Flush()
	require.NoError(t, err)
	assert.Equal(t, 4+64, len(out.data))
}

type testWriter struct {
	data []byte
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
