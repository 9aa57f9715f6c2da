// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

// SamplesPerFrame is the fixed raw AAC frame size.
const SamplesPerFrame = 1024

// Audio object types the muxers care about.
const (
	AOTNull   = 0
	AOTMain   = 1
	AOTLC     = 2
	AOTSSR    = 3
	AOTLTP    = 4
	AOTSBR    = 5
	AOTPS     = 29
	AOTEscape = 31
)

// SampleRates maps the 4-bit sampling_frequency_index to Hz.
var SampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
	0, 0, 0,
}

// channel_configuration to channel count, ISO 14496-3 table 1.19.
var channelCounts = []uint8{0, 1, 2, 3, 4, 5, 6, 8}

// SampleRateIndex returns the sampling_frequency_index for the rate,
// or -1 when the rate has no index.
func SampleRateIndex(sampleRate int) int {
	for i, r := range SampleRates {
		if r == sampleRate {
			return i
		}
	}
	return -1
}
