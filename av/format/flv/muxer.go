// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"bytes"
	"fmt"
	"time"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/av/codec/aac"
	"github.com/castpack/castpack/av/format/amf"
	"github.com/cnotch/xlog"
)

// Packetizer turns frames of one track into FLV tags.
type Packetizer interface {
	PacketizeSequenceHeader(ts uint32) error
	Packetize(frame *codec.Frame) error
}

type emptyPacketizer struct{}

func (emptyPacketizer) PacketizeSequenceHeader(uint32) error { return nil }
func (emptyPacketizer) Packetize(frame *codec.Frame) error   { return nil }

// Muxer assembles FLV tags from encoded frames.
type Muxer struct {
	videoMeta *codec.VideoMeta
	audioMeta *codec.AudioMeta
	vp        Packetizer
	ap        Packetizer
	typeFlags byte
	tagWriter TagWriter
	metaMuxed bool
	logger    *xlog.Logger
}

// NewMuxer validates the codec combination and returns a muxer
// writing tags to tagWriter. Either meta may be nil for a single
// track stream.
func NewMuxer(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, tagWriter TagWriter, logger *xlog.Logger) (*Muxer, error) {
	muxer := &Muxer{
		videoMeta: videoMeta,
		audioMeta: audioMeta,
		vp:        emptyPacketizer{},
		ap:        emptyPacketizer{},
		tagWriter: tagWriter,
		logger:    logger,
	}

	if videoMeta != nil {
		muxer.typeFlags |= TypeFlagsVideo
		switch videoMeta.MimeType {
		case codec.MimeTypeAVC:
			muxer.vp = newAvcPacketizer(videoMeta, tagWriter)
		case codec.MimeTypeHEVC:
			muxer.vp = newExtPacketizer(videoMeta, FourCCHEVC, tagWriter)
		case codec.MimeTypeVP9:
			muxer.vp = newExtPacketizer(videoMeta, FourCCVP9, tagWriter)
		case codec.MimeTypeAV1:
			muxer.vp = newExtPacketizer(videoMeta, FourCCAV1, tagWriter)
		default:
			return nil, fmt.Errorf("flv: unsupported video mime type %q", videoMeta.MimeType)
		}
	}

	if audioMeta != nil {
		if audioMeta.MimeType != codec.MimeTypeAAC {
			return nil, fmt.Errorf("flv: unsupported audio mime type %q", audioMeta.MimeType)
		}
		muxer.typeFlags |= TypeFlagsAudio
		muxer.ap = newAacPacketizer(audioMeta, tagWriter)
	}

	if muxer.typeFlags == 0 {
		return nil, fmt.Errorf("flv: muxer requires at least one track")
	}
	return muxer, nil
}

// TypeFlags returns the FLV header TypeFlags for the configured tracks.
func (muxer *Muxer) TypeFlags() byte {
	return muxer.typeFlags
}

// WriteFrame packetizes one frame, emitting the onMetadata tag and
// pending sequence headers first.
func (muxer *Muxer) WriteFrame(frame *codec.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	if !muxer.metaMuxed {
		if err := muxer.muxMetadataTag(); err != nil {
			return err
		}
		muxer.metaMuxed = true
	}

	switch frame.MediaType() {
	case codec.MediaTypeVideo:
		return muxer.vp.Packetize(frame)
	case codec.MediaTypeAudio:
		return muxer.ap.Packetize(frame)
	default:
		return fmt.Errorf("flv: no track for mime type %q", frame.MimeType)
	}
}

func (muxer *Muxer) muxMetadataTag() error {
	properties := make(amf.EcmaArray, 0, 12)
	add := func(name string, value interface{}) {
		properties = append(properties, amf.ObjectProperty{Name: name, Value: value})
	}

	add(MetaDataEncoder, "castpack")
	add(MetaDataCreationDate, time.Now().Format(time.RFC3339))
	add(MetaDataDuration, float64(0))

	if muxer.audioMeta != nil {
		add(MetaDataAudioCodecID, SoundFormatAAC)
		add(MetaDataAudioDataRate, muxer.audioMeta.DataRate)
		add(MetaDataAudioSampleRate, muxer.audioMeta.SampleRate)
		add(MetaDataAudioSampleSize, muxer.audioMeta.SampleSize)
		add(MetaDataStereo, muxer.audioMeta.Channels > 1)
	}

	if muxer.videoMeta != nil {
		add(MetaDataVideoCodecID, videoCodecIDOf(muxer.videoMeta.MimeType))
		add(MetaDataVideoDataRate, muxer.videoMeta.DataRate)
		add(MetaDataFrameRate, muxer.videoMeta.FrameRate)
		add(MetaDataWidth, muxer.videoMeta.Width)
		add(MetaDataHeight, muxer.videoMeta.Height)
	}

	data, err := ScriptData{Name: ScriptOnMetaData, Value: properties}.Marshal()
	if err != nil {
		return err
	}

	return muxer.tagWriter.WriteFlvTag(&Tag{
		TagType:  TagTypeAmf0Data,
		DataSize: uint32(len(data)),
		Data:     data,
	})
}

func videoCodecIDOf(mimeType string) interface{} {
	switch mimeType {
	case codec.MimeTypeAVC:
		return CodecIDAVC
	case codec.MimeTypeHEVC:
		return string(FourCCHEVC[:])
	case codec.MimeTypeVP9:
		return string(FourCCVP9[:])
	case codec.MimeTypeAV1:
		return string(FourCCAV1[:])
	default:
		return nil
	}
}

// ---- AAC ----

type aacPacketizer struct {
	meta      *codec.AudioMeta
	tagWriter TagWriter
	asc       aac.AudioSpecificConfig
	config    []byte
	headerOut bool
}

func newAacPacketizer(meta *codec.AudioMeta, tagWriter TagWriter) *aacPacketizer {
	return &aacPacketizer{meta: meta, tagWriter: tagWriter, config: meta.Config}
}

func (ap *aacPacketizer) audioData(packetType byte, body []byte) *AudioData {
	soundType := byte(SoundTypeMono)
	if ap.meta.Channels > 1 {
		soundType = SoundTypeStereo
	}
	return &AudioData{
		SoundFormat:   SoundFormatAAC,
		SoundRate:     SoundRate44100, // per spec, real rate is in the config
		SoundSize:     SoundSize16bit,
		SoundType:     soundType,
		AACPacketType: packetType,
		Body:          body,
	}
}

func (ap *aacPacketizer) PacketizeSequenceHeader(ts uint32) error {
	if ap.headerOut || len(ap.config) == 0 {
		return nil
	}
	if err := ap.asc.Decode(ap.config); err != nil {
		return fmt.Errorf("flv: bad AudioSpecificConfig: %w", err)
	}

	data, err := ap.audioData(AACPacketTypeSequenceHeader, ap.config).Marshal()
	if err != nil {
		return err
	}
	if err := ap.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeAudio,
		DataSize:  uint32(len(data)),
		Timestamp: ts,
		Data:      data,
	}); err != nil {
		return err
	}
	ap.headerOut = true
	return nil
}

func (ap *aacPacketizer) Packetize(frame *codec.Frame) error {
	if len(frame.Extra) > 0 {
		ap.config = frame.Extra[0]
	}
	if err := ap.PacketizeSequenceHeader(frame.PtsMs()); err != nil {
		return err
	}

	data, err := ap.audioData(AACPacketTypeRawData, frame.Payload).Marshal()
	if err != nil {
		return err
	}
	return ap.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeAudio,
		DataSize:  uint32(len(data)),
		Timestamp: frame.PtsMs(),
		Data:      data,
	})
}

// ---- AVC (legacy tags) ----

type avcPacketizer struct {
	meta      *codec.VideoMeta
	tagWriter TagWriter
	sps, pps  []byte
	headerOut bool
}

func newAvcPacketizer(meta *codec.VideoMeta, tagWriter TagWriter) *avcPacketizer {
	return &avcPacketizer{meta: meta, tagWriter: tagWriter, sps: meta.Sps, pps: meta.Pps}
}

func (vp *avcPacketizer) PacketizeSequenceHeader(ts uint32) error {
	if vp.headerOut || len(vp.sps) == 0 || len(vp.pps) == 0 {
		return nil
	}

	body, err := NewAVCDecoderConfigurationRecord(vp.sps, vp.pps).Marshal()
	if err != nil {
		return err
	}
	data, err := (&VideoData{
		FrameType:     FrameTypeKeyFrame,
		CodecID:       CodecIDAVC,
		AVCPacketType: AVCPacketTypeSequenceHeader,
		Body:          body,
	}).Marshal()
	if err != nil {
		return err
	}
	if err := vp.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeVideo,
		DataSize:  uint32(len(data)),
		Timestamp: ts,
		Data:      data,
	}); err != nil {
		return err
	}
	vp.headerOut = true
	return nil
}

func (vp *avcPacketizer) Packetize(frame *codec.Frame) error {
	if frame.KeyFrame && len(frame.Extra) >= 2 {
		// refreshed parameter sets force a new sequence header
		if !bytes.Equal(vp.sps, frame.Extra[0]) || !bytes.Equal(vp.pps, frame.Extra[1]) {
			vp.sps, vp.pps = frame.Extra[0], frame.Extra[1]
			vp.headerOut = false
		}
	}
	if err := vp.PacketizeSequenceHeader(frame.PtsMs()); err != nil {
		return err
	}

	frameType := byte(FrameTypeInterFrame)
	if frame.KeyFrame {
		frameType = FrameTypeKeyFrame
	}
	data, err := (&VideoData{
		FrameType:       frameType,
		CodecID:         CodecIDAVC,
		AVCPacketType:   AVCPacketTypeNALU,
		CompositionTime: uint32((frame.Pts - frame.Dts) / 1000),
		Body:            frame.Payload,
	}).Marshal()
	if err != nil {
		return err
	}
	return vp.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeVideo,
		DataSize:  uint32(len(data)),
		Timestamp: uint32(frame.Dts / 1000),
		Data:      data,
	})
}

// ---- HEVC/VP9/AV1 (extended tags) ----

type extPacketizer struct {
	meta      *codec.VideoMeta
	fourCC    [4]byte
	tagWriter TagWriter
	config    []byte // marshaled decoder configuration record
	headerOut bool
}

func newExtPacketizer(meta *codec.VideoMeta, fourCC [4]byte, tagWriter TagWriter) *extPacketizer {
	ep := &extPacketizer{meta: meta, fourCC: fourCC, tagWriter: tagWriter}
	if fourCC == FourCCHEVC && len(meta.Vps) > 0 {
		record := HEVCDecoderConfigurationRecord{Vps: meta.Vps, Sps: meta.Sps, Pps: meta.Pps}
		ep.config, _ = record.Marshal()
	}
	return ep
}

func (ep *extPacketizer) refreshConfig(frame *codec.Frame) {
	if len(frame.Extra) == 0 {
		return
	}
	var config []byte
	if ep.fourCC == FourCCHEVC && len(frame.Extra) >= 3 {
		record := HEVCDecoderConfigurationRecord{
			Vps: frame.Extra[0], Sps: frame.Extra[1], Pps: frame.Extra[2],
		}
		config, _ = record.Marshal()
	} else {
		// VP9/AV1 configuration records arrive prebuilt from the encoder
		config = frame.Extra[0]
	}
	if len(config) > 0 && !bytes.Equal(ep.config, config) {
		ep.config = config
		ep.headerOut = false
	}
}

func (ep *extPacketizer) PacketizeSequenceHeader(ts uint32) error {
	if ep.headerOut || len(ep.config) == 0 {
		return nil
	}

	data, err := (&ExtVideoData{
		FrameType:  FrameTypeKeyFrame,
		PacketType: PacketTypeSequenceStart,
		FourCC:     ep.fourCC,
		Body:       ep.config,
	}).Marshal()
	if err != nil {
		return err
	}
	if err := ep.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeVideo,
		DataSize:  uint32(len(data)),
		Timestamp: ts,
		Data:      data,
	}); err != nil {
		return err
	}
	ep.headerOut = true
	return nil
}

func (ep *extPacketizer) Packetize(frame *codec.Frame) error {
	if frame.KeyFrame {
		// the decoder config may change mid-stream, re-emit when it does
		ep.refreshConfig(frame)
		if err := ep.PacketizeSequenceHeader(frame.PtsMs()); err != nil {
			return err
		}
	}

	frameType := byte(FrameTypeInterFrame)
	if frame.KeyFrame {
		frameType = FrameTypeKeyFrame
	}

	ext := &ExtVideoData{
		FrameType:  frameType,
		PacketType: PacketTypeCodedFramesX,
		FourCC:     ep.fourCC,
		Body:       frame.Payload,
	}
	if cts := uint32((frame.Pts - frame.Dts) / 1000); cts != 0 && ep.fourCC == FourCCHEVC {
		ext.PacketType = PacketTypeCodedFrames
		ext.CompositionTime = cts
	}

	data, err := ext.Marshal()
	if err != nil {
		return err
	}
	return ep.tagWriter.WriteFlvTag(&Tag{
		TagType:   TagTypeVideo,
		DataSize:  uint32(len(data)),
		Timestamp: uint32(frame.Dts / 1000),
		Data:      data,
	})
}
