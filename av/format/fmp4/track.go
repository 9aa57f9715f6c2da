// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fmp4

import (
	"github.com/castpack/castpack/av/codec"
)

// Timescale of the video track; audio tracks run at their sample rate.
const VideoTimescale = 90000

// Track is the static descriptor of one elementary stream inside the
// fragmented output. Exactly one video and/or one audio track are
// supported.
type Track struct {
	ID        uint32
	MimeType  string
	TimeScale uint32

	// DataRate is the target bitrate in bit/s, carried in the btrt box.
	DataRate uint32

	// video only
	Width     int
	Height    int
	FrameRate float64
	Sps       []byte
	Pps       []byte

	// audio only
	SampleRate int
	Channels   int
	Config     []byte // AudioSpecificConfig
}

// MediaType classifies the track by its mime type.
func (t *Track) MediaType() codec.MediaType {
	return codec.MediaTypeOf(t.MimeType)
}

// btrtRate picks the configured bitrate or fallback for the btrt box.
func (t *Track) btrtRate(fallback uint32) uint32 {
	if t.DataRate > 0 {
		return t.DataRate
	}
	return fallback
}

// defaultSampleDuration returns the fallback duration in track ticks,
// used when a sample has no successor to derive a delta from.
func (t *Track) defaultSampleDuration() uint32 {
	if t.MediaType() == codec.MediaTypeAudio {
		return 1024 // AAC samples per frame
	}
	if t.FrameRate > 0 {
		return uint32(float64(t.TimeScale) / t.FrameRate)
	}
	return 3000 // 30 fps on the 90 kHz clock
}

// sample is one buffered access unit awaiting its fragment.
type sample struct {
	payload   []byte
	ptsMicros int64
	dtsMicros int64
	key       bool
}

// ticks converts a µs timestamp to track ticks.
func (t *Track) ticks(micros int64) uint64 {
	return uint64(micros) * uint64(t.TimeScale) / 1e6
}

// chunk accumulates samples for one track within the current fragment.
type chunk struct {
	track   *Track
	samples []sample
	size    int
	baseSet bool
	baseDts int64 // µs of the first sample
}

func newChunk(track *Track) *chunk {
	return &chunk{track: track}
}

func (c *chunk) append(s sample) {
	if !c.baseSet {
		c.baseSet = true
		c.baseDts = s.dtsMicros
	}
	c.samples = append(c.samples, s)
	c.size += len(s.payload)
}

func (c *chunk) empty() bool { return len(c.samples) == 0 }

// reset empties the chunk for the next fragment.
func (c *chunk) reset() {
	c.samples = c.samples[:0]
	c.size = 0
	c.baseSet = false
	c.baseDts = 0
}

// durations returns per-sample durations in track ticks, derived from
// successive decode timestamps. The last sample reuses the previous
// delta, or the track default when it is alone.
func (c *chunk) durations() []uint32 {
	out := make([]uint32, len(c.samples))
	for i := range c.samples {
		if i+1 < len(c.samples) {
			cur := c.track.ticks(c.samples[i].dtsMicros)
			next := c.track.ticks(c.samples[i+1].dtsMicros)
			if next > cur {
				out[i] = uint32(next - cur)
				continue
			}
		}
		if i > 0 {
			out[i] = out[i-1]
		} else {
			out[i] = c.track.defaultSampleDuration()
		}
	}
	return out
}
