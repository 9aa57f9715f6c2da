// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptorFile(t *testing.T) {
	desc, err := ParseDescriptor("/tmp/out.flv")
	require.NoError(t, err)
	assert.Equal(t, "file", desc.Scheme)
	assert.Equal(t, ContainerFLV, desc.Container)
	assert.Equal(t, "/tmp/out.flv", desc.Path)

	desc, err = ParseDescriptor("file:///tmp/record.ts")
	require.NoError(t, err)
	assert.Equal(t, ContainerTS, desc.Container)
	assert.Equal(t, "/tmp/record.ts", desc.Path)

	desc, err = ParseDescriptor("/tmp/clip.MP4")
	require.NoError(t, err)
	assert.Equal(t, ContainerFMP4, desc.Container)
}

func TestParseDescriptorFileErrors(t *testing.T) {
	_, err := ParseDescriptor("/tmp/out.wav")
	assert.Error(t, err, "unknown extension")

	_, err = ParseDescriptor("file://")
	assert.Error(t, err, "no path")

	_, err = ParseDescriptor("/tmp/out.flv?append=1")
	assert.Error(t, err, "file takes no query parameters")
}

func TestParseDescriptorSrt(t *testing.T) {
	desc, err := ParseDescriptor("srt://127.0.0.1:9000?streamid=live/key&passphrase=secret&latency=120")
	require.NoError(t, err)
	assert.Equal(t, "srt", desc.Scheme)
	assert.Equal(t, ContainerTS, desc.Container, "srt carries transport stream")
	assert.Equal(t, "127.0.0.1:9000", desc.Addr)
	assert.Equal(t, "live/key", desc.StreamID)
	assert.Equal(t, "secret", desc.Passphrase)
	assert.Equal(t, 120*time.Millisecond, desc.Latency)
}

func TestParseDescriptorSrtDefaultPort(t *testing.T) {
	desc, err := ParseDescriptor("srt://127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", desc.Addr)
}

func TestParseDescriptorUnknownQueryParam(t *testing.T) {
	_, err := ParseDescriptor("srt://127.0.0.1:9000?streamid=a&mode=caller")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestParseDescriptorBadLatency(t *testing.T) {
	_, err := ParseDescriptor("srt://127.0.0.1:9000?latency=fast")
	assert.Error(t, err)

	_, err = ParseDescriptor("srt://127.0.0.1:9000?latency=-5")
	assert.Error(t, err)
}

func TestParseDescriptorRtmp(t *testing.T) {
	desc, err := ParseDescriptor("rtmp://127.0.0.1/live/streamKey")
	require.NoError(t, err)
	assert.Equal(t, "rtmp", desc.Scheme)
	assert.Equal(t, ContainerFLV, desc.Container)
	assert.Equal(t, "127.0.0.1:1935", desc.Addr)
	assert.Equal(t, "live", desc.App)
	assert.Equal(t, "streamKey", desc.StreamID)

	_, err = ParseDescriptor("rtmp://127.0.0.1")
	assert.Error(t, err, "app path required")

	_, err = ParseDescriptor("rtmp://127.0.0.1/onlyapp")
	assert.Error(t, err, "stream key required")
}

func TestParseDescriptorUnsupportedScheme(t *testing.T) {
	_, err := ParseDescriptor("udp://127.0.0.1:5000/x.ts")
	assert.Error(t, err)
}
