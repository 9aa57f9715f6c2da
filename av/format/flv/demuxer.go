// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"errors"
	"fmt"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/av/codec/aac"
	"github.com/castpack/castpack/av/format/amf"
	"github.com/cnotch/xlog"
)

// Demuxer turns FLV tags back into codec frames. It implements
// TagWriter, so it can sit where a Writer would.
//
// Only AVC video and AAC audio are understood; the codec
// configuration is lifted from the sequence-header tags and exposed
// through VideoMeta/AudioMeta once seen.
type Demuxer struct {
	fw     codec.FrameWriter
	logger *xlog.Logger

	video codec.VideoMeta
	audio codec.AudioMeta

	videoReady bool
	audioReady bool
}

// NewDemuxer creates a Demuxer delivering frames to fw.
func NewDemuxer(fw codec.FrameWriter, logger *xlog.Logger) *Demuxer {
	return &Demuxer{fw: fw, logger: logger}
}

// VideoMeta returns the video codec configuration, once a video
// sequence header has been demuxed.
func (d *Demuxer) VideoMeta() (*codec.VideoMeta, bool) {
	if !d.videoReady {
		return nil, false
	}
	return &d.video, true
}

// AudioMeta returns the audio codec configuration, once an audio
// sequence header has been demuxed.
func (d *Demuxer) AudioMeta() (*codec.AudioMeta, bool) {
	if !d.audioReady {
		return nil, false
	}
	return &d.audio, true
}

// WriteFlvTag implements TagWriter.
func (d *Demuxer) WriteFlvTag(tag *Tag) error {
	switch tag.TagType {
	case TagTypeVideo:
		return d.demuxVideo(tag)
	case TagTypeAudio:
		return d.demuxAudio(tag)
	case TagTypeAmf0Data:
		return d.demuxScript(tag)
	default:
		return fmt.Errorf("flv: unknown tag type %#x", tag.TagType)
	}
}

func (d *Demuxer) demuxVideo(tag *Tag) error {
	var videoData VideoData
	if err := videoData.Unmarshal(tag.Data); err != nil {
		return err
	}
	if videoData.CodecID != CodecIDAVC {
		return fmt.Errorf("flv: unsupported video codec id %d", videoData.CodecID)
	}

	switch videoData.AVCPacketType {
	case AVCPacketTypeSequenceHeader:
		var record AVCDecoderConfigurationRecord
		if err := record.Unmarshal(videoData.Body); err != nil {
			return err
		}
		d.video.MimeType = codec.MimeTypeAVC
		d.video.Sps = record.SPS
		d.video.Pps = record.PPS
		d.videoReady = true
		return nil

	case AVCPacketTypeNALU:
		if !d.videoReady {
			return errors.New("flv: video frame before sequence header")
		}
		dts := int64(tag.Timestamp) * 1000
		frame := &codec.Frame{
			MimeType: codec.MimeTypeAVC,
			Pts:      dts + int64(videoData.CompositionTime)*1000,
			Dts:      dts,
			KeyFrame: videoData.FrameType == FrameTypeKeyFrame,
			Payload:  videoData.Body,
		}
		if frame.KeyFrame {
			frame.Extra = [][]byte{d.video.Sps, d.video.Pps}
		}
		return d.fw.WriteFrame(frame)

	case AVCPacketTypeEndOfSequence:
		return nil
	default:
		return fmt.Errorf("flv: unknown avc packet type %d", videoData.AVCPacketType)
	}
}

func (d *Demuxer) demuxAudio(tag *Tag) error {
	var audioData AudioData
	if err := audioData.Unmarshal(tag.Data); err != nil {
		return err
	}
	if audioData.SoundFormat != SoundFormatAAC {
		return fmt.Errorf("flv: unsupported sound format %d", audioData.SoundFormat)
	}

	switch audioData.AACPacketType {
	case AACPacketTypeSequenceHeader:
		var asc aac.AudioSpecificConfig
		if err := asc.Decode(audioData.Body); err != nil {
			return err
		}
		d.audio.MimeType = codec.MimeTypeAAC
		d.audio.Config = audioData.Body
		d.audio.SampleRate = asc.SampleRate
		d.audio.Channels = int(asc.Channels)
		d.audio.SampleSize = 16
		d.audioReady = true
		return nil

	case AACPacketTypeRawData:
		if !d.audioReady {
			return errors.New("flv: audio frame before sequence header")
		}
		pts := int64(tag.Timestamp) * 1000
		return d.fw.WriteFrame(&codec.Frame{
			MimeType: codec.MimeTypeAAC,
			Pts:      pts,
			Dts:      pts,
			KeyFrame: true,
			Payload:  audioData.Body,
			Extra:    [][]byte{d.audio.Config},
		})

	default:
		return fmt.Errorf("flv: unknown aac packet type %d", audioData.AACPacketType)
	}
}

// demuxScript fills in the informational meta fields from onMetaData.
func (d *Demuxer) demuxScript(tag *Tag) error {
	var scriptData ScriptData
	if err := scriptData.Unmarshal(tag.Data); err != nil {
		return err
	}
	if scriptData.Name != ScriptOnMetaData {
		return nil
	}
	properties, ok := scriptData.Value.(amf.EcmaArray)
	if !ok {
		return nil
	}

	if v, ok := metaNumber(properties, MetaDataWidth); ok {
		d.video.Width = int(v)
	}
	if v, ok := metaNumber(properties, MetaDataHeight); ok {
		d.video.Height = int(v)
	}
	if v, ok := metaNumber(properties, MetaDataFrameRate); ok {
		d.video.FrameRate = v
	}
	if v, ok := metaNumber(properties, MetaDataVideoDataRate); ok {
		d.video.DataRate = v
	}
	if v, ok := metaNumber(properties, MetaDataAudioDataRate); ok {
		d.audio.DataRate = v
	}
	return nil
}

func metaNumber(properties amf.EcmaArray, name string) (float64, bool) {
	value, ok := amf.PropertyValue(properties, name)
	if !ok {
		return 0, false
	}
	number, ok := value.(float64)
	return number, ok
}
