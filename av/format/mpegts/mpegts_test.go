// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"strings"
	"testing"

	"github.com/castpack/castpack/av/codec"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMpegCRC32(t *testing.T) {
	// reference sections from ngx_rtmp_mpegts_header
	pat := []byte{0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00, 0x00, 0x01, 0xf0, 0x01}
	assert.EqualValues(t, 0x2e701905, mpegCRC32(pat))

	pmt := []byte{
		0x02, 0xb0, 0x17, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0xe1, 0x00, 0xf0, 0x00,
		0x1b, 0xe1, 0x00, 0xf0, 0x00,
		0x0f, 0xe1, 0x01, 0xf0, 0x00,
	}
	assert.EqualValues(t, 0x2f44b99b, mpegCRC32(pmt))
}

func testService() *Service {
	return &Service{
		Program:  1,
		PmtPid:   0x1001,
		PcrPid:   0x100,
		Name:     "castpack",
		Provider: "castpack",
		Streams: []*Stream{
			{MimeType: codec.MimeTypeAVC, Pid: 0x100},
			{MimeType: codec.MimeTypeAAC, Pid: 0x101},
		},
	}
}

func TestBuildPATGolden(t *testing.T) {
	section, err := buildPAT(0x0001, 0, []*Service{testService()})
	require.NoError(t, err)

	want := []byte{
		0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0x00, 0x01, 0xf0, 0x01,
		0x2e, 0x70, 0x19, 0x05,
	}
	assert.Equal(t, want, section)
}

func TestBuildPMTGolden(t *testing.T) {
	svc := testService()
	require.NoError(t, svc.prepare())

	section, err := buildPMT(0, svc)
	require.NoError(t, err)

	want := []byte{
		0x02, 0xb0, 0x17, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0xe1, 0x00, 0xf0, 0x00,
		0x1b, 0xe1, 0x00, 0xf0, 0x00,
		0x0f, 0xe1, 0x01, 0xf0, 0x00,
		0x2f, 0x44, 0xb9, 0x9b,
	}
	assert.Equal(t, want, section)
}

func TestBuildSDTSelfConsistent(t *testing.T) {
	section, err := buildSDT(0x0001, 0, []*Service{testService()})
	require.NoError(t, err)

	assert.EqualValues(t, tableIDSDT, section[0])
	sectionLength := int(section[1]&0x0f)<<8 | int(section[2])
	assert.Equal(t, len(section), 3+sectionLength)

	crc := uint32(section[len(section)-4])<<24 |
		uint32(section[len(section)-3])<<16 |
		uint32(section[len(section)-2])<<8 |
		uint32(section[len(section)-1])
	assert.Equal(t, mpegCRC32(section[:len(section)-4]), crc)
}

func TestBuildSDTServiceNameBounds(t *testing.T) {
	svc := testService()
	svc.Provider = strings.Repeat("p", 200)
	svc.Name = strings.Repeat("n", 52) // descriptor_length 255, the byte maximum

	section, err := buildSDT(0x0001, 0, []*Service{svc})
	require.NoError(t, err)
	// service_descriptor follows the 11-byte SDT header, service_id,
	// EIT flags and the descriptors loop length
	assert.EqualValues(t, 0x48, section[16])
	assert.EqualValues(t, 255, section[17])

	svc.Name += "n" // one more byte would wrap descriptor_length
	_, err = buildSDT(0x0001, 0, []*Service{svc})
	require.Error(t, err)
}

type packetCollector struct {
	packets []*codec.Packet
}

func (c *packetCollector) WritePacket(packet *codec.Packet) error {
	c.packets = append(c.packets, packet)
	return nil
}

func avcFrame(ptsMs int64, key bool) *codec.Frame {
	payload := []byte{0x41, 0x9a, 0x00, 0x01, 0x02}
	if key {
		payload = []byte{0x65, 0x88, 0x00, 0x01, 0x02}
	}
	return &codec.Frame{
		MimeType: codec.MimeTypeAVC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		KeyFrame: key,
		Payload:  payload,
		Extra:    [][]byte{{0x67, 0x64, 0x00, 0x1f}, {0x68, 0xeb}},
	}
}

func aacFrame(ptsMs int64) *codec.Frame {
	return &codec.Frame{
		MimeType: codec.MimeTypeAAC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		Payload:  []byte{0x21, 0x10, 0x05},
		Extra:    [][]byte{{0x12, 0x10}},
	}
}

func TestMuxerRegistration(t *testing.T) {
	muxer := NewMuxer(&packetCollector{}, xlog.L())

	require.NoError(t, muxer.AddService(testService()))

	// duplicate pids rejected
	dup := testService()
	dup.Program = 2
	assert.Error(t, muxer.AddService(dup))

	assert.Error(t, muxer.RemoveService(99))
	require.NoError(t, muxer.RemoveService(1))
	require.NoError(t, muxer.AddService(testService()))
}

func TestMuxerFrozenAfterStart(t *testing.T) {
	collector := &packetCollector{}
	muxer := NewMuxer(collector, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	require.NoError(t, muxer.WriteFrame(avcFrame(0, true), 0x100))

	assert.ErrorIs(t, muxer.AddService(testService()), ErrMuxerStarted)
	assert.ErrorIs(t, muxer.RemoveService(1), ErrMuxerStarted)
}

func TestMuxerRejectsUnknownPid(t *testing.T) {
	muxer := NewMuxer(&packetCollector{}, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	err := muxer.WriteFrame(avcFrame(0, true), 0x555)
	assert.ErrorIs(t, err, ErrUnknownPid)
}

func TestMuxerPsiPrecedesMedia(t *testing.T) {
	collector := &packetCollector{}
	muxer := NewMuxer(collector, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	require.NoError(t, muxer.WriteFrame(avcFrame(0, true), 0x100))
	require.True(t, len(collector.packets) >= 4)

	pids := make([]uint16, 0, len(collector.packets))
	for _, packet := range collector.packets {
		require.Len(t, packet.Payload, PacketSize)
		require.EqualValues(t, 0x47, packet.Payload[0])
		pids = append(pids, uint16(packet.Payload[1]&0x1f)<<8|uint16(packet.Payload[2]))
	}

	assert.EqualValues(t, PidPAT, pids[0])
	assert.EqualValues(t, 0x1001, pids[1]) // PMT
	assert.EqualValues(t, PidSDT, pids[2])
	assert.EqualValues(t, 0x100, pids[3]) // media after tables
}

func TestMuxerPsiRefreshInterval(t *testing.T) {
	collector := &packetCollector{}
	muxer := NewMuxer(collector, xlog.L(), WithPsiInterval(500))
	require.NoError(t, muxer.AddService(testService()))

	for ms := int64(0); ms <= 1000; ms += 40 {
		require.NoError(t, muxer.WriteFrame(avcFrame(ms, ms == 0), 0x100))
	}

	patCount := 0
	for _, packet := range collector.packets {
		pid := uint16(packet.Payload[1]&0x1f)<<8 | uint16(packet.Payload[2])
		if pid == PidPAT {
			patCount++
		}
	}
	// t=0 and t=520 (the interval is a lower bound between refreshes)
	assert.Equal(t, 2, patCount)
}

func TestMuxerContinuityCounters(t *testing.T) {
	collector := &packetCollector{}
	muxer := NewMuxer(collector, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	for ms := int64(0); ms < 400; ms += 40 {
		require.NoError(t, muxer.WriteFrame(avcFrame(ms, ms == 0), 0x100))
		require.NoError(t, muxer.WriteFrame(aacFrame(ms), 0x101))
	}

	lastCC := map[uint16]int{}
	for _, packet := range collector.packets {
		pid := uint16(packet.Payload[1]&0x1f)<<8 | uint16(packet.Payload[2])
		cc := int(packet.Payload[3] & 0x0f)
		if prev, seen := lastCC[pid]; seen {
			assert.Equal(t, (prev+1)&0x0f, cc, "pid 0x%x", pid)
		}
		lastCC[pid] = cc
	}
}

func TestMuxerPesLayout(t *testing.T) {
	collector := &packetCollector{}
	muxer := NewMuxer(collector, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	require.NoError(t, muxer.WriteFrame(avcFrame(1000, true), 0x100))

	var media *codec.Packet
	for _, packet := range collector.packets {
		pid := uint16(packet.Payload[1]&0x1f)<<8 | uint16(packet.Payload[2])
		if pid == 0x100 {
			media = packet
			break
		}
	}
	require.NotNil(t, media)
	assert.True(t, media.First)

	// payload_unit_start_indicator
	assert.EqualValues(t, 0x40, media.Payload[1]&0x40)
	// key frame on the PCR pid carries an adaptation field with PCR
	// (grown by stuffing, since the unit fits in one packet)
	require.EqualValues(t, 0x30, media.Payload[3]&0x30)
	fieldLen := int(media.Payload[4])
	assert.EqualValues(t, 0x10, media.Payload[5]&0x10) // PCR flag
	assert.EqualValues(t, 0x40, media.Payload[5]&0x40) // random access

	// PES start code follows the adaptation field
	pesStart := 4 + 1 + fieldLen
	assert.Equal(t, []byte{0x00, 0x00, 0x01, StreamIDVideo}, media.Payload[pesStart:pesStart+4])

	// PTS 90 kHz: 1000 ms -> 90000
	ptsBytes := media.Payload[pesStart+9 : pesStart+14]
	pts := int64(ptsBytes[0]>>1&0x07)<<30 |
		int64(ptsBytes[1])<<22 |
		int64(ptsBytes[2]>>1&0x7f)<<15 |
		int64(ptsBytes[3])<<7 |
		int64(ptsBytes[4]>>1&0x7f)
	assert.EqualValues(t, 90000, pts)

	// last packet of the access unit is stuffed to exactly 188 bytes
	lastPacket := collector.packets[len(collector.packets)-1]
	assert.True(t, lastPacket.Last)
	require.Len(t, lastPacket.Payload, PacketSize)
}

func TestMuxerAacNeedsConfig(t *testing.T) {
	muxer := NewMuxer(&packetCollector{}, xlog.L())
	require.NoError(t, muxer.AddService(testService()))

	frame := aacFrame(0)
	frame.Extra = nil
	assert.ErrorIs(t, muxer.WriteFrame(frame, 0x101), ErrNoAudioConfig)
}
