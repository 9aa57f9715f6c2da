// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"encoding/binary"
	"errors"
)

// FrameType UB[4].
const (
	FrameTypeKeyFrame   = 1
	FrameTypeInterFrame = 2
)

// CodecID UB[4] for legacy video tags.
const (
	CodecIDSorensonH263 = 2
	CodecIDScreenVideo  = 3
	CodecIDOn2VP6       = 4
	CodecIDAVC          = 7
)

// AVCPacketType UI8, present for CodecIDAVC.
const (
	AVCPacketTypeSequenceHeader = 0
	AVCPacketTypeNALU           = 1
	AVCPacketTypeEndOfSequence  = 2
)

// VideoData is the body of a legacy video tag.
//
// For CodecID == CodecIDAVC the Body holds the
// AVCDecoderConfigurationRecord when AVCPacketType is the sequence
// header, otherwise AVCC formatted NAL units.
type VideoData struct {
	FrameType       byte   // 4 bits
	CodecID         byte   // 4 bits
	AVCPacketType   byte   // UI8, AVC only
	CompositionTime uint32 // SI24, AVC only; pts - dts in ms
	Body            []byte
}

var errVideoDataShort = errors.New("flv: video data too short")

// Unmarshal parses the tag body. The body bytes are referenced,
// not copied.
func (videoData *VideoData) Unmarshal(data []byte) error {
	if len(data) < 1 {
		return errVideoDataShort
	}

	offset := 0
	videoData.FrameType = data[offset] >> 4
	videoData.CodecID = data[offset] & 0x0f
	offset++

	if videoData.CodecID == CodecIDAVC {
		if len(data) < offset+4 {
			return errVideoDataShort
		}
		temp := binary.BigEndian.Uint32(data[offset:])
		videoData.AVCPacketType = byte(temp >> 24)
		videoData.CompositionTime = temp & 0x00ffffff
		offset += 4

		if videoData.AVCPacketType == AVCPacketTypeNALU {
			if len(data) < offset+4 {
				return errVideoDataShort
			}
			offset += 4 // NALU length, implied by the remaining body
		}
	}

	videoData.Body = data[offset:]
	return nil
}

// MarshalSize returns the marshaled body length.
func (videoData *VideoData) MarshalSize() int {
	if videoData.CodecID == CodecIDAVC {
		if videoData.AVCPacketType == AVCPacketTypeNALU {
			return 9 + len(videoData.Body)
		}
		return 5 + len(videoData.Body)
	}
	return 1 + len(videoData.Body)
}

// Marshal serializes the tag body.
func (videoData *VideoData) Marshal() ([]byte, error) {
	buff := make([]byte, videoData.MarshalSize())

	offset := 0
	buff[offset] = (videoData.FrameType << 4) | (videoData.CodecID & 0x0f)
	offset++

	if videoData.CodecID == CodecIDAVC {
		binary.BigEndian.PutUint32(buff[offset:],
			(uint32(videoData.AVCPacketType)<<24)|(videoData.CompositionTime&0x00ffffff))
		offset += 4

		if videoData.AVCPacketType == AVCPacketTypeNALU {
			binary.BigEndian.PutUint32(buff[offset:], uint32(len(videoData.Body)))
			offset += 4
		}
	}

	copy(buff[offset:], videoData.Body)
	return buff, nil
}

// AVCDecoderConfigurationRecord, ISO 14496-15 5.2.4.1.
type AVCDecoderConfigurationRecord struct {
	ConfigurationVersion byte
	AVCProfileIndication byte
	ProfileCompatibility byte
	AVCLevelIndication   byte
	SPS                  []byte
	PPS                  []byte
}

// NewAVCDecoderConfigurationRecord builds the record from the raw
// SPS/PPS NAL units.
func NewAVCDecoderConfigurationRecord(sps, pps []byte) *AVCDecoderConfigurationRecord {
	return &AVCDecoderConfigurationRecord{
		ConfigurationVersion: 1,
		AVCProfileIndication: sps[1],
		ProfileCompatibility: sps[2],
		AVCLevelIndication:   sps[3],
		SPS:                  sps,
		PPS:                  pps,
	}
}

// MarshalSize returns the marshaled record length.
func (record *AVCDecoderConfigurationRecord) MarshalSize() int {
	return 6 + 2 + len(record.SPS) + 3 + len(record.PPS)
}

// Marshal serializes the record.
func (record *AVCDecoderConfigurationRecord) Marshal() ([]byte, error) {
	if len(record.SPS) == 0 || len(record.PPS) == 0 {
		return nil, errors.New("flv: avc record requires sps and pps")
	}

	buff := make([]byte, record.MarshalSize())
	offset := 0

	buff[offset] = record.ConfigurationVersion
	offset++
	buff[offset] = record.AVCProfileIndication
	offset++
	buff[offset] = record.ProfileCompatibility
	offset++
	buff[offset] = record.AVCLevelIndication
	offset++

	// lengthSizeMinusOne: NALU length prefixes are always 4 bytes
	buff[offset] = 0xff
	offset++

	// numOfSequenceParameterSets, always 1
	buff[offset] = 0xe1
	offset++
	binary.BigEndian.PutUint16(buff[offset:], uint16(len(record.SPS)))
	offset += 2
	offset += copy(buff[offset:], record.SPS)

	// numOfPictureParameterSets, always 1
	buff[offset] = 0x01
	offset++
	binary.BigEndian.PutUint16(buff[offset:], uint16(len(record.PPS)))
	offset += 2
	copy(buff[offset:], record.PPS)

	return buff, nil
}

// Unmarshal parses a record carrying one SPS and one PPS.
func (record *AVCDecoderConfigurationRecord) Unmarshal(data []byte) error {
	if len(data) < 11 {
		return errors.New("flv: avc record too short")
	}
	record.ConfigurationVersion = data[0]
	record.AVCProfileIndication = data[1]
	record.ProfileCompatibility = data[2]
	record.AVCLevelIndication = data[3]

	offset := 6
	spsLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+spsLen+3 {
		return errors.New("flv: avc record truncated sps")
	}
	record.SPS = data[offset : offset+spsLen]
	offset += spsLen

	offset++ // numOfPictureParameterSets
	ppsLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+ppsLen {
		return errors.New("flv: avc record truncated pps")
	}
	record.PPS = data[offset : offset+ppsLen]
	return nil
}
