// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"github.com/castpack/castpack/av/codec/aac"
)

// H.264 nal_unit_type values used when preparing AnnexB payloads.
const (
	h264NalSlice    = 1
	h264NalIdrSlice = 5
	h264NalSei      = 6
	h264NalSps      = 7
	h264NalPps      = 8
	h264NalAud      = 9
)

// H.265 nal_unit_type values.
const (
	h265NalIdrWRadl = 19
	h265NalIdrNLp   = 20
	h265NalCra      = 21
)

var annexBPrefix = []byte{0x00, 0x00, 0x00, 0x01}

// pesFrame is one access unit ready for PES packetization. Header
// carries what must precede the payload on the wire: the ADTS header
// for AAC, AnnexB AUD/parameter-set prefixes for H.26x.
type pesFrame struct {
	pid      uint16
	streamID byte
	pts      int64 // 90 kHz
	dts      int64 // 90 kHz
	header   []byte
	payload  []byte
	key      bool
	// discontinuity raises the adaptation discontinuity_indicator on
	// the unit's first packet
	discontinuity bool
}

// prepareAvcHeader builds the AnnexB prefix: an AUD before every
// slice/SEI, SPS+PPS before IDR slices, then the sample start code.
func (frame *pesFrame) prepareAvcHeader(sps, pps []byte) {
	audNal := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xf0}

	nalUnitType := frame.payload[0] & 0x1f

	if nalUnitType == h264NalSlice || nalUnitType == h264NalIdrSlice || nalUnitType == h264NalSei {
		frame.header = append(frame.header, audNal...)
	}

	if nalUnitType == h264NalIdrSlice {
		if len(sps) > 0 {
			frame.header = append(frame.header, annexBPrefix...)
			frame.header = append(frame.header, sps...)
		}
		if len(pps) > 0 {
			frame.header = append(frame.header, annexBPrefix...)
			frame.header = append(frame.header, pps...)
		}
	}

	// parameter sets and AUDs travel with the key frames above
	if nalUnitType >= h264NalSps && nalUnitType <= h264NalAud {
		return
	}

	if len(frame.header) == 0 {
		frame.header = append(frame.header, annexBPrefix...)
	} else {
		frame.header = append(frame.header, annexBPrefix[1:]...)
	}
}

// prepareHevcHeader builds the AnnexB prefix, emitting VPS/SPS/PPS
// before IRAP pictures.
func (frame *pesFrame) prepareHevcHeader(vps, sps, pps []byte) {
	nalUnitType := (frame.payload[0] >> 1) & 0x3f

	if nalUnitType >= h265NalIdrWRadl && nalUnitType <= h265NalCra {
		for _, ps := range [][]byte{vps, sps, pps} {
			if len(ps) > 0 {
				frame.header = append(frame.header, annexBPrefix...)
				frame.header = append(frame.header, ps...)
			}
		}
	}

	if len(frame.header) == 0 {
		frame.header = append(frame.header, annexBPrefix...)
	} else {
		frame.header = append(frame.header, annexBPrefix[1:]...)
	}
}

// prepareAacHeader prefixes the raw AAC frame with its 7-byte ADTS header.
func (frame *pesFrame) prepareAacHeader(asc *aac.AudioSpecificConfig) {
	adts := asc.ADTSHeader(len(frame.payload))
	frame.header = adts[:]
}
