// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import "errors"

// SoundFormat UB[4], format of SoundData.
const (
	SoundFormatLinearPCMPlatformEndian = 0
	SoundFormatADPCM                   = 1
	SoundFormatMP3                     = 2
	SoundFormatLinearPCMLittleEndian   = 3
	SoundFormatNellymoser16kHzMono     = 4
	SoundFormatNellymoser8kHzMono      = 5
	SoundFormatNellymoser              = 6
	SoundFormatG711Alaw                = 7
	SoundFormatG711MuLaw               = 8
	SoundFormatAAC                     = 10
	SoundFormatSpeex                   = 11
	SoundFormatOpus                    = 13 // enhanced RTMP fourcc signalled
)

// SoundRate UB[2]. Only four rates are expressible; AAC always
// signals 44 kHz here and carries the true rate in its config.
const (
	SoundRate5512  = 0
	SoundRate11025 = 1
	SoundRate22050 = 2
	SoundRate44100 = 3
)

// SoundRateOf maps a sample rate in Hz to the closest UB[2] code.
func SoundRateOf(sampleRate int) byte {
	switch {
	case sampleRate <= 5512:
		return SoundRate5512
	case sampleRate <= 11025:
		return SoundRate11025
	case sampleRate <= 22050:
		return SoundRate22050
	default:
		return SoundRate44100
	}
}

// SoundSize UB[1]: 0 = 8-bit, 1 = 16-bit samples.
const (
	SoundSize8bit  = 0
	SoundSize16bit = 1
)

// SoundType UB[1]: 0 = mono, 1 = stereo.
const (
	SoundTypeMono   = 0
	SoundTypeStereo = 1
)

// AACPacketType UI8, present when SoundFormat == SoundFormatAAC.
const (
	AACPacketTypeSequenceHeader = 0 // AudioSpecificConfig
	AACPacketTypeRawData        = 1
)

// AudioData is the body of an audio tag.
//
// For SoundFormat == SoundFormatAAC the Body holds the
// AudioSpecificConfig when AACPacketType is the sequence header,
// otherwise one raw AAC frame.
type AudioData struct {
	SoundFormat   byte // 4 bits
	SoundRate     byte // 2 bits
	SoundSize     byte // 1 bit
	SoundType     byte // 1 bit
	AACPacketType byte // UI8, AAC only
	Body          []byte
}

var errAudioDataShort = errors.New("flv: audio data too short")

// Unmarshal parses the tag body. The body bytes are referenced,
// not copied.
func (audioData *AudioData) Unmarshal(data []byte) error {
	if len(data) < 2 {
		return errAudioDataShort
	}

	offset := 0
	audioData.SoundFormat = data[offset] >> 4
	audioData.SoundRate = (data[offset] >> 2) & 0x3
	audioData.SoundSize = (data[offset] >> 1) & 0x1
	audioData.SoundType = data[offset] & 0x1
	offset++

	if audioData.SoundFormat == SoundFormatAAC {
		audioData.AACPacketType = data[offset]
		offset++
	}

	audioData.Body = data[offset:]
	return nil
}

// MarshalSize returns the marshaled body length.
func (audioData *AudioData) MarshalSize() int {
	if audioData.SoundFormat == SoundFormatAAC {
		return 2 + len(audioData.Body)
	}
	return 1 + len(audioData.Body)
}

// Marshal serializes the tag body.
func (audioData *AudioData) Marshal() ([]byte, error) {
	buff := make([]byte, audioData.MarshalSize())

	offset := 0
	buff[offset] = audioData.SoundFormat<<4 |
		(audioData.SoundRate&0x3)<<2 |
		(audioData.SoundSize&0x1)<<1 |
		audioData.SoundType&0x1
	offset++

	if audioData.SoundFormat == SoundFormatAAC {
		buff[offset] = audioData.AACPacketType
		offset++
	}

	copy(buff[offset:], audioData.Body)
	return buff, nil
}
