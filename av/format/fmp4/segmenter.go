// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fmp4

import (
	"github.com/castpack/castpack/av/codec"
)

// DefaultAudioSamplesPerFragment is the audio-only flush threshold.
const DefaultAudioSamplesPerFragment = 128

// Segmenter decides, per incoming frame, whether the currently
// buffered fragment must be flushed before the frame is appended.
type Segmenter interface {
	// ShouldFlush is called before the frame is buffered; buffered
	// reports how many samples the frame's track currently holds.
	ShouldFlush(frame *codec.Frame, buffered int) bool
}

// DefaultSegmenter flushes on video key frames, or every
// AudioSamplesPerFragment samples when the output carries no video.
type DefaultSegmenter struct {
	AudioSamplesPerFragment int

	hasVideo      bool
	sawVideoFrame bool
}

// NewDefaultSegmenter returns the stock policy for the given track mix.
func NewDefaultSegmenter(hasVideo bool) *DefaultSegmenter {
	return &DefaultSegmenter{
		AudioSamplesPerFragment: DefaultAudioSamplesPerFragment,
		hasVideo:                hasVideo,
	}
}

// ShouldFlush implements Segmenter.
//
// A video flush happens before the frame is buffered, so the key frame
// opens the next fragment; an audio-only flush happens after, so the
// fragment closes holding exactly AudioSamplesPerFragment samples.
func (s *DefaultSegmenter) ShouldFlush(frame *codec.Frame, buffered int) bool {
	if !s.hasVideo {
		return buffered+1 >= s.AudioSamplesPerFragment
	}
	if !frame.IsVideo() || !frame.KeyFrame {
		return false
	}
	// The first key frame opens the first fragment; it never flushes.
	if !s.sawVideoFrame {
		s.sawVideoFrame = true
		return false
	}
	return true
}
