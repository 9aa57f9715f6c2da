// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// RegulatorConfig carries the bitrate regulation ranges. Bitrates are
// bits per second, the poll period is milliseconds.
type RegulatorConfig struct {
	VideoMinBitrate int `json:"video_min_bitrate"`
	VideoMaxBitrate int `json:"video_max_bitrate"`
	AudioMinBitrate int `json:"audio_min_bitrate"`
	AudioMaxBitrate int `json:"audio_max_bitrate"`
	PollPeriodMs    int `json:"poll_period"`
}

func (c *RegulatorConfig) initFlags() {
	flag.IntVar(&c.VideoMinBitrate, "video-min-bitrate", 500_000,
		"Set the lowest video bitrate the regulator may pick (bit/s)")
	flag.IntVar(&c.VideoMaxBitrate, "video-max-bitrate", 4_000_000,
		"Set the highest video bitrate the regulator may pick (bit/s)")
	flag.IntVar(&c.AudioMinBitrate, "audio-min-bitrate", 128_000,
		"Set the lowest audio bitrate (bit/s)")
	flag.IntVar(&c.AudioMaxBitrate, "audio-max-bitrate", 128_000,
		"Set the highest audio bitrate (bit/s)")
	flag.IntVar(&c.PollPeriodMs, "regulator-period", 500,
		"Set the bitrate regulator poll period in milliseconds")
}
