// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fmp4

import (
	"encoding/binary"
	"testing"

	"github.com/castpack/castpack/av/codec"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSps = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0x01, 0x6c, 0x80, 0x00, 0x00, 0x03,
		0x00, 0x80, 0x00, 0x00, 0x1e, 0x07, 0x8c, 0x18, 0xcb,
	}
	testPps       = []byte{0x68, 0xeb, 0xec, 0xb2, 0x2c}
	testAACConfig = []byte{0x12, 0x10} // AAC-LC 44100 stereo
)

type packetCollector struct {
	packets []*codec.Packet
}

func (c *packetCollector) WritePacket(packet *codec.Packet) error {
	c.packets = append(c.packets, packet)
	return nil
}

func videoTrack() *Track {
	return &Track{
		ID:       1,
		MimeType: codec.MimeTypeAVC,
		Width:    1280,
		Height:   720,
		Sps:      testSps,
		Pps:      testPps,
	}
}

func audioTrack() *Track {
	return &Track{
		ID:         2,
		MimeType:   codec.MimeTypeAAC,
		SampleRate: 44100,
		Channels:   2,
		Config:     testAACConfig,
	}
}

func avcFrame(ptsMs int64, key bool) *codec.Frame {
	frame := &codec.Frame{
		MimeType: codec.MimeTypeAVC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		KeyFrame: key,
		Payload:  []byte{0x65, 0x88, 0x84, 0x21, 0xff},
	}
	if key {
		frame.Extra = [][]byte{testSps, testPps}
	}
	return frame
}

func aacFrame(ptsMs int64) *codec.Frame {
	return &codec.Frame{
		MimeType: codec.MimeTypeAAC,
		Pts:      ptsMs * 1000,
		Dts:      ptsMs * 1000,
		Payload:  []byte{0x21, 0x10, 0x04, 0x60},
		Extra:    [][]byte{testAACConfig},
	}
}

func TestDefaultSegmenterAudioOnly(t *testing.T) {
	s := NewDefaultSegmenter(false)

	flushes := 0
	buffered := 0
	for i := 1; i <= 128; i++ {
		if s.ShouldFlush(aacFrame(int64(i)), buffered) {
			flushes++
			buffered = 0
			assert.Equal(t, 128, i, "only the frame completing the batch may flush")
		} else {
			buffered++
		}
	}
	assert.Equal(t, 1, flushes)
}

func TestDefaultSegmenterVideoKeyFrames(t *testing.T) {
	s := NewDefaultSegmenter(true)

	assert.False(t, s.ShouldFlush(avcFrame(0, true), 0), "first key frame opens, never flushes")
	assert.False(t, s.ShouldFlush(avcFrame(40, false), 1))
	assert.False(t, s.ShouldFlush(aacFrame(60), 2))
	assert.True(t, s.ShouldFlush(avcFrame(80, true), 2))
	assert.True(t, s.ShouldFlush(avcFrame(160, true), 2), "every later key frame flushes")
}

func TestNewMuxerRejectsBadConfig(t *testing.T) {
	collector := &packetCollector{}
	logger := xlog.L()

	_, err := NewMuxer(nil, collector, logger)
	assert.Error(t, err)

	_, err = NewMuxer([]*Track{{ID: 1, MimeType: codec.MimeTypeHEVC}}, collector, logger)
	assert.Error(t, err, "hevc is not accepted")

	_, err = NewMuxer([]*Track{{ID: 1, MimeType: codec.MimeTypeOpus, SampleRate: 48000}}, collector, logger)
	assert.Error(t, err, "opus is not accepted")

	_, err = NewMuxer([]*Track{videoTrack(), {ID: 1, MimeType: codec.MimeTypeAAC, SampleRate: 44100}},
		collector, logger)
	assert.Error(t, err, "duplicate track id")

	_, err = NewMuxer([]*Track{{ID: 0, MimeType: codec.MimeTypeAVC}}, collector, logger)
	assert.Error(t, err, "track id 0 is reserved")
}

func TestMuxerRejectsUnknownTrack(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{videoTrack()}, collector, xlog.L())
	require.NoError(t, err)

	err = m.WriteFrame(avcFrame(0, true), 99)
	assert.ErrorIs(t, err, ErrUnknownTrack)
}

func TestMuxerEmptyFlushIsNoop(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{videoTrack()}, collector, xlog.L())
	require.NoError(t, err)

	require.NoError(t, m.Flush())
	assert.Empty(t, collector.packets)
}

// boxAt reads the box header at data[offset:].
func boxAt(t *testing.T, data []byte, offset int) (size int, fourcc string) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), offset+8)
	return int(binary.BigEndian.Uint32(data[offset:])), string(data[offset+4 : offset+8])
}

// findBox descends the sibling lists below data following path and
// returns the body of the final box.
func findBox(t *testing.T, data []byte, path ...string) []byte {
	t.Helper()

	level := data
	for _, want := range path {
		found := false
		for offset := 0; offset+8 <= len(level); {
			size, fourcc := boxAt(t, level, offset)
			require.Greater(t, size, 0, "corrupt box size")
			if fourcc == want {
				require.LessOrEqual(t, offset+size, len(level))
				level = level[offset+8 : offset+size]
				found = true
				break
			}
			offset += size
		}
		require.True(t, found, "box %q not found", want)
	}
	return level
}

func TestMuxerInitSegmentLayout(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{videoTrack(), audioTrack()}, collector, xlog.L())
	require.NoError(t, err)

	require.NoError(t, m.WriteFrame(avcFrame(0, true), 1))
	require.NoError(t, m.WriteFrame(aacFrame(10), 2))
	require.NoError(t, m.WriteFrame(avcFrame(40, true), 1)) // second key frame flushes

	require.Len(t, collector.packets, 2)
	init := collector.packets[0]
	assert.Equal(t, codec.MediaTypeUnknown, init.MediaType)
	assert.True(t, init.First)
	assert.True(t, init.Last)

	ftypSize, fourcc := boxAt(t, init.Payload, 0)
	assert.Equal(t, "ftyp", fourcc)
	moovSize, fourcc := boxAt(t, init.Payload, ftypSize)
	assert.Equal(t, "moov", fourcc)
	assert.Equal(t, len(init.Payload), ftypSize+moovSize, "init segment is exactly ftyp+moov")

	moov := init.Payload[ftypSize+8 : ftypSize+moovSize]
	stsd := findBox(t, moov, "trak", "mdia", "minf", "stbl", "stsd")
	// stsd body: version/flags + entry count, then the avc1 entry
	require.GreaterOrEqual(t, len(stsd), 8)
	assert.EqualValues(t, 1, binary.BigEndian.Uint32(stsd[4:8]))
	_, entry := boxAt(t, stsd, 8)
	assert.Equal(t, "avc1", entry)
}

func TestMuxerFragmentOffsets(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{videoTrack()}, collector, xlog.L())
	require.NoError(t, err)

	require.NoError(t, m.WriteFrame(avcFrame(0, true), 1))
	require.NoError(t, m.WriteFrame(avcFrame(40, false), 1))
	require.NoError(t, m.WriteFrame(avcFrame(80, true), 1))

	require.Len(t, collector.packets, 2)
	frag := collector.packets[1]
	assert.Equal(t, codec.MediaTypeVideo, frag.MediaType)
	assert.EqualValues(t, 0, frag.Pts)

	moofSize, fourcc := boxAt(t, frag.Payload, 0)
	require.Equal(t, "moof", fourcc)
	mdatSize, fourcc := boxAt(t, frag.Payload, moofSize)
	require.Equal(t, "mdat", fourcc)
	assert.Equal(t, len(frag.Payload), moofSize+mdatSize)

	// two buffered samples, 4-byte length prefix each
	sampleBytes := 2 * (4 + 5)
	assert.Equal(t, 8+sampleBytes, mdatSize)

	moof := frag.Payload[8:moofSize]
	trun := findBox(t, moof, "traf", "trun")
	require.GreaterOrEqual(t, len(trun), 12)
	assert.EqualValues(t, 1, trun[0], "video trun is version 1")
	assert.EqualValues(t, 2, binary.BigEndian.Uint32(trun[4:8]), "sample count")
	dataOffset := int32(binary.BigEndian.Uint32(trun[8:12]))
	assert.EqualValues(t, moofSize+8, dataOffset, "data offset points just past the mdat header")
}

func TestMuxerVideoSampleFlags(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{videoTrack()}, collector, xlog.L())
	require.NoError(t, err)

	require.NoError(t, m.WriteFrame(avcFrame(0, true), 1))
	require.NoError(t, m.WriteFrame(avcFrame(40, false), 1))
	require.NoError(t, m.WriteFrame(avcFrame(80, true), 1))

	require.Len(t, collector.packets, 2)
	moofSize, _ := boxAt(t, collector.packets[1].Payload, 0)
	trun := findBox(t, collector.packets[1].Payload[8:moofSize], "traf", "trun")

	// header: version/flags(4) + count(4) + dataOffset(4), then
	// 16-byte rows: duration, size, flags, composition offset
	require.Len(t, trun, 12+2*16)
	keyFlags := binary.BigEndian.Uint32(trun[12+8:])
	interFlags := binary.BigEndian.Uint32(trun[12+16+8:])
	assert.Zero(t, keyFlags&SampleFlagIsNonSyncSample, "key frame is a sync sample")
	assert.NotZero(t, interFlags&SampleFlagIsNonSyncSample)
}

func TestMuxerAudioOnlyThreshold(t *testing.T) {
	collector := &packetCollector{}
	m, err := NewMuxer([]*Track{audioTrack()}, collector, xlog.L(),
		WithSegmenter(&DefaultSegmenter{AudioSamplesPerFragment: 4}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.WriteFrame(aacFrame(int64(i)*23), 2))
	}
	assert.Empty(t, collector.packets, "below the threshold nothing is written")

	require.NoError(t, m.WriteFrame(aacFrame(3*23), 2))
	require.Len(t, collector.packets, 2, "init segment plus one fragment")

	frag := collector.packets[1]
	assert.Equal(t, codec.MediaTypeAudio, frag.MediaType)
	moofSize, _ := boxAt(t, frag.Payload, 0)
	trun := findBox(t, frag.Payload[8:moofSize], "traf", "trun")
	require.GreaterOrEqual(t, len(trun), 8)
	assert.EqualValues(t, 0, trun[0], "audio trun is version 0")
	assert.EqualValues(t, 4, binary.BigEndian.Uint32(trun[4:8]))
}

func TestMuxerNeedsVideoConfig(t *testing.T) {
	collector := &packetCollector{}
	track := videoTrack()
	track.Sps, track.Pps = nil, nil
	m, err := NewMuxer([]*Track{track}, collector, xlog.L())
	require.NoError(t, err)

	frame := avcFrame(0, true)
	frame.Extra = nil
	require.NoError(t, m.WriteFrame(frame, 1))
	err = m.Flush()
	assert.ErrorIs(t, err, ErrNoVideoConfig)
}
