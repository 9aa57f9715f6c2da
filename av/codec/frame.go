// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// MediaType coarse media classification of a frame or packet.
type MediaType int

// Media type constants.
const (
	MediaTypeUnknown MediaType = iota - 1
	MediaTypeVideo
	MediaTypeAudio
)

// String returns a lower-case ASCII representation of the media type.
func (mt MediaType) String() string {
	switch mt {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Well-known mime types accepted by the muxers.
const (
	MimeTypeAVC  = "video/avc"
	MimeTypeHEVC = "video/hevc"
	MimeTypeVP9  = "video/x-vnd.on2.vp9"
	MimeTypeAV1  = "video/av01"
	MimeTypeAAC  = "audio/mp4a-latm"
	MimeTypeOpus = "audio/opus"
)

// MediaTypeOf classifies a mime type.
func MediaTypeOf(mimeType string) MediaType {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// Frame is a single encoded access unit handed to a muxer.
// It is immutable once written; the producer must not reuse Payload.
type Frame struct {
	MimeType string
	Pts      int64 // µs
	Dts      int64 // µs; equals Pts when the codec emits no reordering delay
	KeyFrame bool
	Payload  []byte
	// Extra carries codec configuration buffers: SPS/PPS(/VPS) for
	// H.26x, the AudioSpecificConfig for AAC.
	Extra [][]byte
}

// MediaType classifies the frame by its mime type.
func (f *Frame) MediaType() MediaType {
	return MediaTypeOf(f.MimeType)
}

// IsVideo reports whether the frame carries video.
func (f *Frame) IsVideo() bool { return f.MediaType() == MediaTypeVideo }

// IsAudio reports whether the frame carries audio.
func (f *Frame) IsAudio() bool { return f.MediaType() == MediaTypeAudio }

// PtsMs returns the presentation timestamp in milliseconds.
func (f *Frame) PtsMs() uint32 { return uint32(f.Pts / 1000) }

// Pts90kHz returns the presentation timestamp on the 90 kHz MPEG clock.
func (f *Frame) Pts90kHz() int64 { return f.Pts * 9 / 100 }

// Dts90kHz returns the decode timestamp on the 90 kHz MPEG clock.
func (f *Frame) Dts90kHz() int64 { return f.Dts * 9 / 100 }

// Validate reports configuration problems that must be rejected before
// the frame enters a muxer.
func (f *Frame) Validate() error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("codec: empty frame payload (mime %q)", f.MimeType)
	}
	if f.MediaType() == MediaTypeUnknown {
		return fmt.Errorf("codec: unrecognized mime type %q", f.MimeType)
	}
	return nil
}

// FrameWriter wraps the WriteFrame method.
type FrameWriter interface {
	WriteFrame(frame *Frame) error
}
