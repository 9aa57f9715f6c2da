// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"encoding/binary"
	"errors"
)

// Extended (enhanced RTMP) video packet types, UB[4] of the first
// tag byte when the IsExHeader bit is set.
const (
	PacketTypeSequenceStart = 0 // decoder configuration record
	PacketTypeCodedFrames   = 1 // with composition time (HEVC)
	PacketTypeSequenceEnd   = 2
	PacketTypeCodedFramesX  = 3 // composition time implicitly zero
	PacketTypeMetadata      = 4
)

// Video FourCCs signalled by extended tags.
var (
	FourCCHEVC = [4]byte{'h', 'v', 'c', '1'}
	FourCCVP9  = [4]byte{'v', 'p', '0', '9'}
	FourCCAV1  = [4]byte{'a', 'v', '0', '1'}
)

const extHeaderFlag = 0x80

// ExtVideoData is the body of an extended video tag:
// header byte (IsExHeader | FrameType | PacketType), a FourCC, an
// optional SI24 composition time, then the codec payload.
type ExtVideoData struct {
	FrameType       byte // 3 bits
	PacketType      byte // 4 bits
	FourCC          [4]byte
	CompositionTime uint32 // SI24, PacketTypeCodedFrames only
	Body            []byte
}

// withCompositionTime reports whether the packet type carries an
// explicit composition time field.
func (ext *ExtVideoData) withCompositionTime() bool {
	return ext.PacketType == PacketTypeCodedFrames && ext.FourCC == FourCCHEVC
}

// Unmarshal parses the tag body. The body bytes are referenced,
// not copied.
func (ext *ExtVideoData) Unmarshal(data []byte) error {
	if len(data) < 5 {
		return errVideoDataShort
	}
	if data[0]&extHeaderFlag == 0 {
		return errors.New("flv: not an extended video tag")
	}

	ext.FrameType = (data[0] >> 4) & 0x7
	ext.PacketType = data[0] & 0x0f
	copy(ext.FourCC[:], data[1:5])
	offset := 5

	if ext.withCompositionTime() {
		if len(data) < offset+3 {
			return errVideoDataShort
		}
		ext.CompositionTime = uint32(data[offset])<<16 |
			uint32(data[offset+1])<<8 | uint32(data[offset+2])
		offset += 3
	}

	ext.Body = data[offset:]
	return nil
}

// MarshalSize returns the marshaled body length.
func (ext *ExtVideoData) MarshalSize() int {
	size := 5 + len(ext.Body)
	if ext.withCompositionTime() {
		size += 3
	}
	return size
}

// Marshal serializes the tag body.
func (ext *ExtVideoData) Marshal() ([]byte, error) {
	buff := make([]byte, ext.MarshalSize())

	buff[0] = extHeaderFlag | (ext.FrameType&0x7)<<4 | ext.PacketType&0x0f
	copy(buff[1:5], ext.FourCC[:])
	offset := 5

	if ext.withCompositionTime() {
		buff[offset] = byte(ext.CompositionTime >> 16)
		buff[offset+1] = byte(ext.CompositionTime >> 8)
		buff[offset+2] = byte(ext.CompositionTime)
		offset += 3
	}

	copy(buff[offset:], ext.Body)
	return buff, nil
}

// HEVCDecoderConfigurationRecord, ISO 14496-15 8.3.3.1, carried by a
// SequenceStart extended tag. The record is assembled from the raw
// VPS/SPS/PPS NAL units with one array per type.
type HEVCDecoderConfigurationRecord struct {
	Vps []byte
	Sps []byte
	Pps []byte
}

var errHevcRecordParams = errors.New("flv: hevc record requires vps, sps and pps")

// MarshalSize returns the marshaled record length.
func (record *HEVCDecoderConfigurationRecord) MarshalSize() int {
	return 23 + 3*5 + len(record.Vps) + len(record.Sps) + len(record.Pps)
}

// Marshal serializes the record. The general_profile fields are
// copied from the SPS profile_tier_level as-is.
func (record *HEVCDecoderConfigurationRecord) Marshal() ([]byte, error) {
	if len(record.Vps) == 0 || len(record.Sps) == 0 || len(record.Pps) == 0 {
		return nil, errHevcRecordParams
	}
	// profile_tier_level lives at sps[3..14] (after the 2-byte NAL
	// header and the sps_video_parameter_set/max_sub_layers byte)
	if len(record.Sps) < 15 {
		return nil, errHevcRecordParams
	}

	buff := make([]byte, 0, record.MarshalSize())
	buff = append(buff, 1) // configurationVersion

	ptl := record.Sps[3:15]
	buff = append(buff, ptl[0])           // general_profile_space/tier/idc
	buff = append(buff, ptl[1:5]...)      // general_profile_compatibility_flags
	buff = append(buff, ptl[5:11]...)     // general_constraint_indicator_flags
	buff = append(buff, ptl[11])          // general_level_idc
	buff = append(buff, 0xf0, 0x00)       // min_spatial_segmentation_idc
	buff = append(buff, 0xfc)             // parallelismType
	buff = append(buff, 0xfd)             // chroma_format_idc: 4:2:0
	buff = append(buff, 0xf8)             // bit_depth_luma_minus8
	buff = append(buff, 0xf8)             // bit_depth_chroma_minus8
	buff = append(buff, 0x00, 0x00)       // avgFrameRate
	buff = append(buff, 0x0f)             // lengthSizeMinusOne = 3
	buff = append(buff, 3)                // numOfArrays

	for _, ps := range [][]byte{record.Vps, record.Sps, record.Pps} {
		nalType := (ps[0] >> 1) & 0x3f
		buff = append(buff, nalType|0xa0) // array_completeness
		buff = append(buff, 0x00, 0x01)   // numNalus
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(ps)))
		buff = append(buff, lenBuf[:]...)
		buff = append(buff, ps...)
	}

	return buff, nil
}
