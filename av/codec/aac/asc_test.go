// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioSpecificConfigDecode(t *testing.T) {
	tests := []struct {
		name       string
		config     string
		objectType uint8
		sampleRate int
		channels   uint8
	}{
		{"lc-44100-stereo", "1210", AOTLC, 44100, 2},
		{"lc-48000-stereo", "1190", AOTLC, 48000, 2},
		{"lc-22050-mono", "1388", AOTLC, 22050, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asc AudioSpecificConfig
			require.NoError(t, asc.DecodeString(tt.config))
			assert.Equal(t, tt.objectType, asc.ObjectType)
			assert.Equal(t, tt.sampleRate, asc.SampleRate)
			assert.Equal(t, tt.channels, asc.Channels)
		})
	}
}

func TestAudioSpecificConfigRoundTrip(t *testing.T) {
	asc := AudioSpecificConfig{
		ObjectType:    AOTLC,
		SamplingIndex: 4, // 44100
		SampleRate:    44100,
		ChannelConfig: 2,
		Channels:      2,
	}
	var decoded AudioSpecificConfig
	require.NoError(t, decoded.Decode(asc.Encode()))
	assert.Equal(t, asc, decoded)
}

func TestADTSHeader(t *testing.T) {
	var asc AudioSpecificConfig
	require.NoError(t, asc.DecodeString("1210"))

	h := asc.ADTSHeader(100)
	assert.Equal(t, byte(0xff), h[0])
	assert.Equal(t, byte(0xf1), h[1])
	assert.Equal(t, 107, h.FrameLength())
	assert.Equal(t, 44100, h.SampleRate())
	assert.Equal(t, uint8(2), h.Channels())
}

func TestDecodeRejectsBadConfig(t *testing.T) {
	var asc AudioSpecificConfig
	assert.Error(t, asc.Decode(nil))
	assert.Error(t, asc.Decode([]byte{0x12}))
}

func TestDecodeRejectsTruncatedConfig(t *testing.T) {
	// escape object type plus explicit 24-bit frequency, with the
	// buffer ending mid-field
	truncated := [][]byte{
		{0xff, 0xff},
		{0xff, 0xff, 0xff},
		{0xfe, 0x00},
	}
	for _, config := range truncated {
		var asc AudioSpecificConfig
		assert.Error(t, asc.Decode(config), "config % x", config)
	}
}
