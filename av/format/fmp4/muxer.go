// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fmp4 implements a fragmented MP4 muxer: an ftyp+moov initial
// segment followed by moof+mdat fragments, with flush boundaries
// decided by a pluggable Segmenter.
package fmp4

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/castpack/castpack/av/codec"
	"github.com/cnotch/xlog"
	"github.com/icza/bitio"
)

// Movie-level timescale of the mvhd box.
const movieTimescale = 1000

// Write errors.
var (
	ErrUnknownTrack  = errors.New("fmp4: no track registered for id")
	ErrNoVideoConfig = errors.New("fmp4: avc track needs sps/pps before the first fragment")
	ErrNoAudioConfig = errors.New("fmp4: aac track needs an AudioSpecificConfig before the first fragment")
)

// Muxer assembles fragmented MP4 output and hands it to a
// codec.PacketWriter: one packet for the initial segment, then one per
// moof+mdat fragment.
type Muxer struct {
	pw     codec.PacketWriter
	logger *xlog.Logger

	video *Track
	audio *Track

	segmenter Segmenter
	chunks    map[uint32]*chunk
	order     []*chunk // video first, fixes traf/mdat layout

	initSent bool
	seq      uint32
}

// Option configures a Muxer.
type Option func(*Muxer)

// WithSegmenter replaces the default flush policy.
func WithSegmenter(s Segmenter) Option {
	return func(m *Muxer) { m.segmenter = s }
}

// NewMuxer returns a muxer for the given track set writing to pw.
// At most one video (AVC) and one audio (AAC) track are supported;
// other codecs are rejected here, not mid-stream.
func NewMuxer(tracks []*Track, pw codec.PacketWriter, logger *xlog.Logger, opts ...Option) (*Muxer, error) {
	if len(tracks) == 0 {
		return nil, errors.New("fmp4: at least one track required")
	}

	muxer := &Muxer{
		pw:     pw,
		logger: logger,
		chunks: make(map[uint32]*chunk),
	}
	for _, track := range tracks {
		if track.ID == 0 {
			return nil, errors.New("fmp4: track id must be non-zero")
		}
		if _, dup := muxer.chunks[track.ID]; dup {
			return nil, fmt.Errorf("fmp4: duplicate track id %d", track.ID)
		}

		switch track.MediaType() {
		case codec.MediaTypeVideo:
			if track.MimeType != codec.MimeTypeAVC {
				return nil, fmt.Errorf("fmp4: unsupported video mime type %q", track.MimeType)
			}
			if muxer.video != nil {
				return nil, errors.New("fmp4: at most one video track")
			}
			if track.TimeScale == 0 {
				track.TimeScale = VideoTimescale
			}
			muxer.video = track
		case codec.MediaTypeAudio:
			if track.MimeType != codec.MimeTypeAAC {
				return nil, fmt.Errorf("fmp4: unsupported audio mime type %q", track.MimeType)
			}
			if muxer.audio != nil {
				return nil, errors.New("fmp4: at most one audio track")
			}
			if track.SampleRate <= 0 {
				return nil, errors.New("fmp4: audio track needs a sample rate")
			}
			if track.TimeScale == 0 {
				track.TimeScale = uint32(track.SampleRate)
			}
			muxer.audio = track
		default:
			return nil, fmt.Errorf("fmp4: unrecognized mime type %q", track.MimeType)
		}
		muxer.chunks[track.ID] = newChunk(track)
	}

	if muxer.video != nil {
		muxer.order = append(muxer.order, muxer.chunks[muxer.video.ID])
	}
	if muxer.audio != nil {
		muxer.order = append(muxer.order, muxer.chunks[muxer.audio.ID])
	}
	muxer.segmenter = NewDefaultSegmenter(muxer.video != nil)

	for _, opt := range opts {
		opt(muxer)
	}
	return muxer, nil
}

// WriteFrame buffers a frame into its track's current chunk, flushing
// the pending fragment when the segmenter says so.
func (m *Muxer) WriteFrame(frame *codec.Frame, trackID uint32) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	ch, ok := m.chunks[trackID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTrack, trackID)
	}
	if frame.MimeType != ch.track.MimeType {
		return fmt.Errorf("fmp4: frame mime %q does not match track %d (%s)",
			frame.MimeType, trackID, ch.track.MimeType)
	}
	m.refreshConfig(ch.track, frame)

	flush := m.segmenter.ShouldFlush(frame, len(ch.samples))
	if flush && frame.IsVideo() {
		// key frame opens the next fragment
		if err := m.Flush(); err != nil {
			return err
		}
	}

	payload := frame.Payload
	if ch.track == m.video {
		payload = prefixNALU(payload)
	}
	ch.append(sample{
		payload:   payload,
		ptsMicros: frame.Pts,
		dtsMicros: frame.Dts,
		key:       frame.KeyFrame,
	})

	if flush && !frame.IsVideo() {
		return m.Flush()
	}
	return nil
}

// Flush writes the buffered fragment, preceded by the initial segment
// on first use. An empty fragment is a no-op.
func (m *Muxer) Flush() error {
	empty := true
	for _, ch := range m.order {
		if !ch.empty() {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}

	if !m.initSent {
		if err := m.writeInitSegment(); err != nil {
			return err
		}
		m.initSent = true
	}
	return m.writeFragment()
}

// refreshConfig adopts codec configuration carried in Frame.Extra.
// Once the initial segment is out the sample descriptions are frozen.
func (m *Muxer) refreshConfig(track *Track, frame *codec.Frame) {
	switch track {
	case m.video:
		if len(frame.Extra) < 2 {
			return
		}
		if m.initSent {
			if !bytes.Equal(track.Sps, frame.Extra[0]) || !bytes.Equal(track.Pps, frame.Extra[1]) {
				m.logger.Warnf("fmp4: sps/pps changed mid-stream on track %d, keeping the initial ones", track.ID)
			}
			return
		}
		track.Sps, track.Pps = frame.Extra[0], frame.Extra[1]
	case m.audio:
		if len(frame.Extra) < 1 {
			return
		}
		if m.initSent {
			if !bytes.Equal(track.Config, frame.Extra[0]) {
				m.logger.Warnf("fmp4: audio config changed mid-stream on track %d, keeping the initial one", track.ID)
			}
			return
		}
		track.Config = frame.Extra[0]
	}
}

func (m *Muxer) writeInitSegment() error {
	ftyp := &Boxes{Box: &Ftyp{
		MajorBrand:   [4]byte{'m', 'p', '4', '2'},
		MinorVersion: 1,
		CompatibleBrands: [][4]byte{
			{'m', 'p', '4', '1'},
			{'m', 'p', '4', '2'},
			{'i', 's', 'o', 'm'},
		},
	}}

	maxTrackID := uint32(0)
	moov := &Boxes{Box: &Moov{}}
	mvex := &Boxes{Box: &Mvex{}}
	for _, ch := range m.order {
		track := ch.track
		if track.ID > maxTrackID {
			maxTrackID = track.ID
		}

		trak, err := m.buildTrak(track)
		if err != nil {
			return err
		}
		moov.Children = append(moov.Children, trak)
		mvex.Children = append(mvex.Children, &Boxes{Box: &Trex{
			TrackID:                       track.ID,
			DefaultSampleDescriptionIndex: 1,
		}})
	}
	moov.Children = append([]*Boxes{{Box: &Mvhd{
		Timescale:   movieTimescale,
		Rate:        0x00010000,
		Volume:      0x0100,
		Matrix:      unityMatrix,
		NextTrackID: maxTrackID + 1,
	}}}, moov.Children...)
	moov.Children = append(moov.Children, mvex)

	buf := bytes.NewBuffer(make([]byte, 0, ftyp.Size()+moov.Size()))
	w := bitio.NewWriter(buf)
	if err := ftyp.Marshal(w); err != nil {
		return err
	}
	if err := moov.Marshal(w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return m.pw.WritePacket(&codec.Packet{
		MediaType: codec.MediaTypeUnknown,
		Payload:   buf.Bytes(),
		First:     true,
		Last:      true,
	})
}

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func (m *Muxer) buildTrak(track *Track) (*Boxes, error) {
	tkhd := &Tkhd{
		FullBox: FullBox{Flags: [3]byte{0, 0, 3}}, // enabled, in movie
		TrackID: track.ID,
		Matrix:  unityMatrix,
	}
	mdhd := &Mdhd{
		Timescale: track.TimeScale,
		Language:  [3]byte{'u', 'n', 'd'},
	}

	var hdlr *Hdlr
	var mediaHeader *Boxes
	var entry *Boxes
	switch track {
	case m.video:
		if len(track.Sps) < 4 || len(track.Pps) == 0 {
			return nil, ErrNoVideoConfig
		}
		tkhd.Width = uint32(track.Width) << 16
		tkhd.Height = uint32(track.Height) << 16
		hdlr = &Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}
		mediaHeader = &Boxes{Box: &Vmhd{FullBox: FullBox{Flags: [3]byte{0, 0, 1}}}}
		entry = &Boxes{
			Box: &Avc1{
				SampleEntry:     SampleEntry{DataReferenceIndex: 1},
				Width:           uint16(track.Width),
				Height:          uint16(track.Height),
				Horizresolution: 0x00480000,
				Vertresolution:  0x00480000,
				FrameCount:      1,
				Depth:           0x0018,
				PreDefined3:     -1,
			},
			Children: []*Boxes{
				{Box: &AvcC{
					ConfigurationVersion:       1,
					Profile:                    track.Sps[1],
					ProfileCompatibility:       track.Sps[2],
					Level:                      track.Sps[3],
					LengthSizeMinusOne:         3,
					NumOfSequenceParameterSets: 1,
					SequenceParameterSets:      []AVCParameterSet{{NALUnit: track.Sps}},
					NumOfPictureParameterSets:  1,
					PictureParameterSets:       []AVCParameterSet{{NALUnit: track.Pps}},
				}},
				{Box: &Btrt{MaxBitrate: track.btrtRate(1000000), AvgBitrate: track.btrtRate(1000000)}},
			},
		}
	case m.audio:
		if len(track.Config) == 0 {
			return nil, ErrNoAudioConfig
		}
		tkhd.Volume = 0x0100
		tkhd.AlternateGroup = 1
		hdlr = &Hdlr{HandlerType: [4]byte{'s', 'o', 'u', 'n'}, Name: "SoundHandler"}
		mediaHeader = &Boxes{Box: &Smhd{}}
		entry = &Boxes{
			Box: &Mp4a{
				SampleEntry:  SampleEntry{DataReferenceIndex: 1},
				ChannelCount: uint16(track.Channels),
				SampleSize:   16,
				SampleRate:   uint32(track.SampleRate) << 16,
			},
			Children: []*Boxes{
				{Box: &Esds{Data: audioEsdsData(track.ID, track.Config)}},
				{Box: &Btrt{MaxBitrate: track.btrtRate(131072), AvgBitrate: track.btrtRate(131072)}},
			},
		}
	}

	return &Boxes{
		Box: &Trak{},
		Children: []*Boxes{
			{Box: tkhd},
			{
				Box: &Mdia{},
				Children: []*Boxes{
					{Box: mdhd},
					{Box: hdlr},
					{
						Box: &Minf{},
						Children: []*Boxes{
							mediaHeader,
							{
								Box: &Dinf{},
								Children: []*Boxes{{
									Box: &Dref{EntryCount: 1},
									Children: []*Boxes{
										{Box: &Url{FullBox: FullBox{Flags: [3]byte{0, 0, urlNopt}}}},
									},
								}},
							},
							{
								Box: &Stbl{},
								Children: []*Boxes{
									{Box: &Stsd{EntryCount: 1}, Children: []*Boxes{entry}},
									{Box: &Stts{}},
									{Box: &Stsc{}},
									{Box: &Stsz{}},
									{Box: &Stco{}},
								},
							},
						},
					},
				},
			},
		},
	}, nil
}

func (m *Muxer) writeFragment() error {
	m.seq++

	moof := &Boxes{
		Box:      &Moof{},
		Children: []*Boxes{{Box: &Mfhd{SequenceNumber: m.seq}}},
	}

	var flushed []*chunk
	var truns []*Trun
	for _, ch := range m.order {
		if ch.empty() {
			continue
		}
		traf, trun := buildTraf(ch)
		moof.Children = append(moof.Children, traf)
		flushed = append(flushed, ch)
		truns = append(truns, trun)
	}

	// trun data offsets are moof-relative (default-base-is-moof):
	// the moof header itself, the mdat box header, then each
	// preceding chunk's samples.
	offset := moof.Size() + 8
	for i, ch := range flushed {
		truns[i].DataOffset = int32(offset)
		offset += ch.size
	}

	mdat := &Mdat{}
	for _, ch := range flushed {
		for i := range ch.samples {
			mdat.Chunks = append(mdat.Chunks, ch.samples[i].payload)
		}
	}
	mdatBoxes := &Boxes{Box: mdat}

	buf := bytes.NewBuffer(make([]byte, 0, moof.Size()+mdatBoxes.Size()))
	w := bitio.NewWriter(buf)
	if err := moof.Marshal(w); err != nil {
		return err
	}
	if err := mdatBoxes.Marshal(w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	mediaType := codec.MediaTypeAudio
	pts := flushed[0].samples[0].ptsMicros
	if m.video != nil && !m.chunks[m.video.ID].empty() {
		mediaType = codec.MediaTypeVideo
	}

	for _, ch := range flushed {
		ch.reset()
	}
	return m.pw.WritePacket(&codec.Packet{
		MediaType: mediaType,
		Pts:       pts,
		Payload:   buf.Bytes(),
		First:     true,
		Last:      true,
	})
}

// buildTraf assembles one track fragment; the returned trun still
// needs its DataOffset patched once the whole moof size is known.
func buildTraf(ch *chunk) (*Boxes, *Trun) {
	track := ch.track
	durations := ch.durations()

	trun := &Trun{
		FullBox: FullBox{
			Flags: trunFlags(TrunDataOffsetPresent |
				TrunSampleDurationPresent | TrunSampleSizePresent),
		},
		SampleCount: uint32(len(ch.samples)),
	}
	isVideo := track.MediaType() == codec.MediaTypeVideo
	if isVideo {
		trun.Version = 1
		trun.Flags = trunFlags(TrunDataOffsetPresent |
			TrunSampleDurationPresent | TrunSampleSizePresent |
			TrunSampleFlagsPresent | TrunSampleCompositionTimeOffsetPresent)
	}

	for i := range ch.samples {
		s := &ch.samples[i]
		entry := TrunEntry{
			SampleDuration: durations[i],
			SampleSize:     uint32(len(s.payload)),
		}
		if isVideo {
			if !s.key {
				entry.SampleFlags = SampleFlagIsNonSyncSample | SampleFlagDependsOn
			}
			entry.SampleCompositionTimeOffset =
				int32(track.ticks(s.ptsMicros)) - int32(track.ticks(s.dtsMicros))
		}
		trun.Entries = append(trun.Entries, entry)
	}

	traf := &Boxes{
		Box: &Traf{},
		Children: []*Boxes{
			{Box: &Tfhd{
				FullBox: FullBox{Flags: trunFlags(TfhdDefaultBaseIsMoof)},
				TrackID: track.ID,
			}},
			{Box: &Tfdt{
				FullBox:             FullBox{Version: 1},
				BaseMediaDecodeTime: track.ticks(ch.baseDts),
			}},
			{Box: trun},
		},
	}
	return traf, trun
}

func trunFlags(v uint32) [3]byte {
	return [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

// prefixNALU converts a raw NAL unit to the 4-byte length-prefixed
// form avcC declares.
func prefixNALU(nalu []byte) []byte {
	out := make([]byte, 4+len(nalu))
	out[0] = byte(len(nalu) >> 24)
	out[1] = byte(len(nalu) >> 16)
	out[2] = byte(len(nalu) >> 8)
	out[3] = byte(len(nalu))
	copy(out[4:], nalu)
	return out
}

// audioEsdsData builds the MPEG-4 descriptor chain carried by the esds
// box: ES descriptor, AAC decoder config, the AudioSpecificConfig, and
// a trivial SL config.
func audioEsdsData(trackID uint32, config []byte) []byte {
	decSpecific := append([]byte{
		DecSpecificInfoTag,
		0x80, 0x80, 0x80, byte(len(config)),
	}, config...)

	decConfig := []byte{
		DecoderConfigDescrTag,
		0x80, 0x80, 0x80, byte(13 + len(decSpecific)),
		0x40,             // Audio ISO/IEC 14496-3
		0x15,             // stream type: audio, upstream 0, reserved 1
		0x00, 0x00, 0x00, // buffer size db
		0x00, 0x00, 0x00, 0x00, // max bitrate
		0x00, 0x00, 0x00, 0x00, // avg bitrate
	}
	decConfig = append(decConfig, decSpecific...)

	slConfig := []byte{
		SLConfigDescrTag,
		0x80, 0x80, 0x80, 0x01,
		0x02, // MP4 predefined
	}

	esPayload := []byte{
		byte(trackID >> 8), byte(trackID), // ES_ID
		0x00, // no stream dependency, no URL, no OCR
	}
	esPayload = append(esPayload, decConfig...)
	esPayload = append(esPayload, slConfig...)

	es := []byte{
		ESDescrTag,
		0x80, 0x80, 0x80, byte(len(esPayload)),
	}
	return append(es, esPayload...)
}
