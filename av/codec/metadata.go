// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// VideoMeta carries the externally provided video track parameters.
type VideoMeta struct {
	MimeType  string  `json:"mime"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"framerate,omitempty"`
	DataRate  float64 `json:"datarate,omitempty"` // kbit/s
	Sps       []byte  `json:"-"`
	Pps       []byte  `json:"-"`
	Vps       []byte  `json:"-"` // HEVC only
}

// AudioMeta carries the externally provided audio track parameters.
type AudioMeta struct {
	MimeType   string  `json:"mime"`
	SampleRate int     `json:"samplerate,omitempty"`
	SampleSize int     `json:"samplesize,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	DataRate   float64 `json:"datarate,omitempty"` // kbit/s
	Config     []byte  `json:"-"`                  // AudioSpecificConfig for AAC
}
