// Copyright calabashdad. https://github.com/calabashdad/seal.git
//
// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"bytes"
	"sync"

	"github.com/castpack/castpack/av/codec"
)

// PacketSize is the fixed transport packet size.
const PacketSize = 188

var buffers = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024*2))
	},
}

// packetizer slices PSI sections and PES packets into 188-byte
// transport packets, maintaining one continuity counter per PID.
type packetizer struct {
	pw         codec.PacketWriter
	continuity map[uint16]*int
	pcrPids    map[uint16]bool
	// last PCR per PID on the 90 kHz clock, -1 before the first one
	lastPcr     map[uint16]int64
	pcrInterval int64 // 90 kHz ticks
}

func newPacketizer(pw codec.PacketWriter, pcrInterval int64) *packetizer {
	return &packetizer{
		pw:          pw,
		continuity:  make(map[uint16]*int),
		pcrPids:     make(map[uint16]bool),
		lastPcr:     make(map[uint16]int64),
		pcrInterval: pcrInterval,
	}
}

func (ptz *packetizer) cc(pid uint16) *int {
	c, ok := ptz.continuity[pid]
	if !ok {
		c = new(int)
		ptz.continuity[pid] = c
	}
	return c
}

func (ptz *packetizer) markPcrPid(pid uint16) {
	if !ptz.pcrPids[pid] {
		ptz.pcrPids[pid] = true
		ptz.lastPcr[pid] = -1
	}
}

// pcrDue reports whether the packet starting this frame must carry a
// PCR: always on key frames, and whenever the bounded interval since
// the previous PCR has elapsed.
func (ptz *packetizer) pcrDue(pid uint16, dts int64, key bool) bool {
	if !ptz.pcrPids[pid] {
		return false
	}
	last := ptz.lastPcr[pid]
	return key || last < 0 || dts-last >= ptz.pcrInterval
}

// writeSection emits one PSI section on the given PID: pointer_field,
// section bytes, then raw 0xff stuffing to the packet boundary.
func (ptz *packetizer) writeSection(pid uint16, pts int64, section []byte) error {
	cc := ptz.cc(pid)
	pos := 0
	first := true

	for pos < len(section) {
		var pkt [PacketSize]byte
		p := 0

		*cc++

		pkt[p] = 0x47
		p++
		pkt[p] = byte(pid >> 8 & 0x1f)
		if first {
			pkt[p] |= 0x40
		}
		p++
		pkt[p] = byte(pid)
		p++
		pkt[p] = byte(0x10 | (*cc & 0x0f))
		p++

		if first {
			first = false
			pkt[p] = 0x00 // pointer_field
			p++
		}

		n := copy(pkt[p:], section[pos:])
		pos += n
		p += n

		for ; p < PacketSize; p++ {
			pkt[p] = 0xff
		}

		packet := &codec.Packet{
			MediaType: codec.MediaTypeUnknown,
			Pts:       pts,
			Payload:   append([]byte(nil), pkt[:]...),
			First:     true,
			Last:      pos >= len(section),
		}
		if err := ptz.pw.WritePacket(packet); err != nil {
			return err
		}
	}
	return nil
}

// writePES packetizes one access unit: PES header on the first
// packet, adaptation-field stuffing on the last, PCR when due.
func (ptz *packetizer) writePES(frame *pesFrame, mediaType codec.MediaType, ptsMicros int64) error {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer buffers.Put(buf)

	buf.Write(frame.header)
	buf.Write(frame.payload)
	avdata := buf.Bytes()

	last := len(avdata)
	pos := 0
	first := true
	withPcr := ptz.pcrDue(frame.pid, frame.dts, frame.key)
	cc := ptz.cc(frame.pid)

	for pos < last {
		var pkt [PacketSize]byte
		p := 0
		unitStart := first

		*cc++

		// sync_byte
		pkt[p] = 0x47
		p++

		// payload_unit_start_indicator + pid
		pkt[p] = byte(frame.pid >> 8 & 0x1f)
		if first {
			pkt[p] |= 0x40
		}
		p++
		pkt[p] = byte(frame.pid)
		p++

		// adaptation_field_control = payload only + continuity_counter
		pkt[p] = byte(0x10 | (*cc & 0x0f))
		p++

		if first {
			first = false
			if withPcr || frame.discontinuity {
				pkt[p-1] |= 0x20 // adaptation + payload

				fieldLen, flags := byte(1), byte(0)
				if frame.discontinuity {
					flags |= 0x80
				}
				if frame.key {
					flags |= 0x40 // random_access_indicator
				}
				if withPcr {
					flags |= 0x10
					fieldLen = 7
				}
				pkt[p] = fieldLen
				p++
				pkt[p] = flags
				p++
				if withPcr {
					writePcr(&pkt, &p, frame.dts)
					ptz.lastPcr[frame.pid] = frame.dts
				}
			}

			// packet_start_code_prefix
			pkt[p] = 0x00
			p++
			pkt[p] = 0x00
			p++
			pkt[p] = 0x01
			p++
			pkt[p] = frame.streamID
			p++

			// PTS needs 5 bytes, DTS another 5 when it differs
			var headerSize uint8 = 5
			var flags uint8 = 0x80
			if frame.dts != frame.pts {
				headerSize += 5
				flags |= 0x40
			}

			pesSize := (last - pos) + int(headerSize) + 3
			if pesSize > 0xffff {
				// unbounded; the next unit start delimits the packet
				pesSize = 0
			}
			pkt[p] = byte(pesSize >> 8)
			p++
			pkt[p] = byte(pesSize)
			p++

			pkt[p] = 0x80 // '10' + no scrambling/priority/alignment
			p++
			pkt[p] = flags
			p++
			pkt[p] = headerSize
			p++

			writePts(&pkt, &p, flags>>6, frame.pts)
			if frame.dts != frame.pts {
				writePts(&pkt, &p, 1, frame.dts)
			}
		}

		bodySize := PacketSize - p
		inSize := last - pos

		if bodySize <= inSize {
			copy(pkt[p:], avdata[pos:pos+bodySize])
			pos += bodySize
		} else {
			fillStuff(&pkt, &p, bodySize, inSize)
			copy(pkt[p:], avdata[pos:pos+inSize])
			pos = last
		}

		packet := &codec.Packet{
			MediaType: mediaType,
			Pts:       ptsMicros,
			Payload:   append([]byte(nil), pkt[:]...),
			First:     unitStart,
			Last:      pos >= last,
		}
		if err := ptz.pw.WritePacket(packet); err != nil {
			return err
		}
	}
	return nil
}

func writePcr(pkt *[PacketSize]byte, pos *int, pcr int64) {
	v := pcr
	pkt[*pos] = byte(v >> 25)
	*pos++
	pkt[*pos] = byte(v >> 17)
	*pos++
	pkt[*pos] = byte(v >> 9)
	*pos++
	pkt[*pos] = byte(v >> 1)
	*pos++
	pkt[*pos] = byte(v<<7 | 0x7e) // reserved bits; PCR extension = 0
	*pos++
	pkt[*pos] = 0
	*pos++
}

func writePts(pkt *[PacketSize]byte, pos *int, fb uint8, pts int64) {
	val := int(fb)<<4 | int((pts>>30)&0x07)<<1 | 1
	pkt[*pos] = byte(val)
	*pos++

	val = (int(pts>>15)&0x7fff)<<1 | 1
	pkt[*pos] = byte(val >> 8)
	*pos++
	pkt[*pos] = byte(val)
	*pos++

	val = (int(pts)&0x7fff)<<1 | 1
	pkt[*pos] = byte(val >> 8)
	*pos++
	pkt[*pos] = byte(val)
	*pos++
}

// fillStuff grows (or creates) the adaptation field with 0xff bytes
// so the remaining payload ends exactly on the packet boundary.
func fillStuff(pkt *[PacketSize]byte, pos *int, bodySize, inSize int) {
	stuffSize := bodySize - inSize

	if pkt[3]&0x20 != 0 {
		// extend the existing adaptation field
		base := 5 + int(pkt[4])
		n := *pos - base
		copy(pkt[base+stuffSize:], pkt[base:base+n])
		for i := 0; i < stuffSize; i++ {
			pkt[base+i] = 0xff
		}
		pkt[4] += byte(stuffSize)
		*pos = base + stuffSize + n
		return
	}

	pkt[3] |= 0x20
	base := 4
	n := *pos - base
	copy(pkt[base+stuffSize:], pkt[base:base+n])
	*pos = base + stuffSize + n

	pkt[4] = byte(stuffSize - 1)
	if stuffSize >= 2 {
		pkt[5] = 0
		for i := 6; i < 4+stuffSize; i++ {
			pkt[i] = 0xff
		}
	}
}
