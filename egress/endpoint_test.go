// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/castpack/castpack/av/codec"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	endpointSps = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0x01, 0x6c, 0x80, 0x00, 0x00, 0x03,
		0x00, 0x80, 0x00, 0x00, 0x1e, 0x07, 0x8c, 0x18, 0xcb,
	}
	endpointPps       = []byte{0x68, 0xeb, 0xec, 0xb2, 0x2c}
	endpointAACConfig = []byte{0x12, 0x10}
)

func testMetas() (*codec.VideoMeta, *codec.AudioMeta) {
	video := &codec.VideoMeta{
		MimeType:  codec.MimeTypeAVC,
		Width:     1280,
		Height:    720,
		FrameRate: 25,
		Sps:       endpointSps,
		Pps:       endpointPps,
	}
	audio := &codec.AudioMeta{
		MimeType:   codec.MimeTypeAAC,
		SampleRate: 44100,
		Channels:   2,
		Config:     endpointAACConfig,
	}
	return video, audio
}

func endpointVideoFrame(ptsMs int64, key bool) *codec.Frame {
	frame := &codec.Frame{
		MimeType: codec.MimeTypeAVC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		KeyFrame: key,
		Payload:  []byte{0x65, 0x88, 0x84, 0x21, 0xff},
	}
	if key {
		frame.Extra = [][]byte{endpointSps, endpointPps}
	}
	return frame
}

func endpointAudioFrame(ptsMs int64) *codec.Frame {
	return &codec.Frame{
		MimeType: codec.MimeTypeAAC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		Payload:  []byte{0x21, 0x10, 0x04, 0x60},
		Extra:    [][]byte{endpointAACConfig},
	}
}

func TestDynamicEndpointStateMachine(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	assert.ErrorIs(t, e.WriteFrame(endpointVideoFrame(0, true)), ErrNotOpen)
	assert.ErrorIs(t, e.StartStream(), ErrNotOpen)

	dest := filepath.Join(t.TempDir(), "out.flv")
	require.NoError(t, e.Open(context.Background(), dest))
	assert.ErrorIs(t, e.Open(context.Background(), dest), ErrAlreadyOpen)

	assert.ErrorIs(t, e.WriteFrame(endpointVideoFrame(0, true)), ErrNotStreaming,
		"open but not streaming")

	require.NoError(t, e.StartStream())
	require.NoError(t, e.WriteFrame(endpointVideoFrame(0, true)))
	require.NoError(t, e.StopStream())
	assert.ErrorIs(t, e.StopStream(), ErrNotStreaming)

	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.WriteFrame(endpointVideoFrame(40, false)), ErrNotOpen)

	e.Release()
	e.Release() // idempotent
}

func TestDynamicEndpointFlvFile(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	dest := filepath.Join(t.TempDir(), "out.flv")
	require.NoError(t, e.Open(context.Background(), dest))
	assert.Equal(t, ContainerFLV, e.Descriptor().Container)

	require.NoError(t, e.StartStream())
	require.NoError(t, e.WriteFrame(endpointVideoFrame(0, true)))
	require.NoError(t, e.WriteFrame(endpointAudioFrame(20)))
	require.NoError(t, e.WriteFrame(endpointVideoFrame(40, false)))
	require.NoError(t, e.StopStream())
	require.NoError(t, e.Close())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Greater(t, len(data), 9)
	assert.Equal(t, "FLV", string(data[:3]))

	e.Release()
	assert.Zero(t, e.Metrics().BytesSent, "metrics detach after release")
}

func TestDynamicEndpointTsFile(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	dest := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, e.Open(context.Background(), dest))
	require.NoError(t, e.StartStream())
	require.NoError(t, e.WriteFrame(endpointVideoFrame(0, true)))
	require.NoError(t, e.WriteFrame(endpointAudioFrame(21)))
	require.NoError(t, e.StopStream())
	require.NoError(t, e.Close())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Zero(t, len(data)%188, "whole transport packets only")
	for offset := 0; offset < len(data); offset += 188 {
		assert.EqualValues(t, 0x47, data[offset], "sync byte at packet %d", offset/188)
	}
}

func TestDynamicEndpointFmp4File(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, e.Open(context.Background(), dest))
	require.NoError(t, e.StartStream())
	require.NoError(t, e.WriteFrame(endpointVideoFrame(0, true)))
	require.NoError(t, e.WriteFrame(endpointAudioFrame(21)))
	require.NoError(t, e.WriteFrame(endpointVideoFrame(40, false)))
	require.NoError(t, e.StopStream()) // flushes the open fragment
	require.NoError(t, e.Close())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "ftyp", string(data[4:8]))
}

type brokenFront struct{}

func (brokenFront) WriteFrame(*codec.Frame) error { panic("packetizer state corrupted") }
func (brokenFront) Finish() error                 { panic("packetizer state corrupted") }

func TestDynamicEndpointStopAfterPumpFailure(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	dest := filepath.Join(t.TempDir(), "out.flv")
	require.NoError(t, e.Open(context.Background(), dest))

	e.mu.Lock()
	e.front = brokenFront{}
	e.mu.Unlock()

	require.NoError(t, e.StartStream())
	require.NoError(t, e.WriteFrame(endpointVideoFrame(0, true)))
	<-e.pumpDone // the panic stops the pump

	assert.ErrorIs(t, e.StopStream(), ErrMuxerStopped)
	require.NoError(t, e.Close())
}

func TestDynamicEndpointBadDestination(t *testing.T) {
	video, audio := testMetas()
	e := NewDynamicEndpoint(video, audio, xlog.L())

	err := e.Open(context.Background(), "gopher://example/x.ts")
	require.Error(t, err)

	// a failed open leaves the endpoint reopenable
	dest := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, e.Open(context.Background(), dest))
	require.NoError(t, e.Close())
}
