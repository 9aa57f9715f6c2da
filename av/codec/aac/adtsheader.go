// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

// ADTSHeader is the fixed 7-byte ADTS header prefixed to each raw AAC
// frame carried in an MPEG transport stream.
// 6.2 Audio Data Transport Stream, aac-iso-13818-7.pdf, page 26.
type ADTSHeader [7]byte

// ADTSHeader builds the header for a raw frame of payloadSize bytes.
func (asc *AudioSpecificConfig) ADTSHeader(payloadSize int) ADTSHeader {
	h := ADTSHeader{0xff, 0xf1, 0x00, 0x00, 0x00, 0x0f, 0xfc}
	// frame_length covers header plus raw data
	frameLen := payloadSize + len(h)

	// profile 2bits, sampling_frequency_index 4bits,
	// channel_configuration 3bits split across bytes 2 and 3
	h[2] = (asc.Profile() << 6) & 0xc0
	h[2] |= (asc.SamplingIndex << 2) & 0x3c
	h[2] |= (asc.ChannelConfig >> 2) & 0x01
	h[3] = (asc.ChannelConfig << 6) & 0xc0
	// frame_length 13bits
	h[3] |= uint8((frameLen >> 11) & 0x03)
	h[4] = uint8((frameLen >> 3) & 0xff)
	h[5] = uint8((frameLen << 5) & 0xe0)
	// adts_buffer_fullness all-ones signals variable rate
	h[5] |= 0x1f
	return h
}

// FrameLength returns the frame_length field.
func (h ADTSHeader) FrameLength() int {
	return int((uint32(h[3]&0x3) << 11) | (uint32(h[4]) << 3) | uint32((h[5]>>5)&0x7))
}

// SampleRate returns the sampling rate in Hz.
func (h ADTSHeader) SampleRate() int {
	return SampleRates[int(h[2]>>2&0xf)]
}

// Channels returns the channel count.
func (h ADTSHeader) Channels() uint8 {
	cc := (h[2]&0x1)<<2 | h[3]>>6
	return channelCounts[int(cc)]
}
