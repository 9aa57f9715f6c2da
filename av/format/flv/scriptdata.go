// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"bytes"

	"github.com/castpack/castpack/av/format/amf"
)

// Script data names.
const (
	ScriptOnMetaData = "onMetaData"
)

// onMetaData property names.
const (
	MetaDataDuration        = "duration"      // Number, seconds
	MetaDataWidth           = "width"         // Number, px
	MetaDataHeight          = "height"        // Number, px
	MetaDataVideoDataRate   = "videodatarate" // Number, kbit/s
	MetaDataFrameRate       = "framerate"     // Number, fps
	MetaDataVideoCodecID    = "videocodecid"  // Number
	MetaDataAudioDataRate   = "audiodatarate" // Number, kbit/s
	MetaDataAudioSampleRate = "audiosamplerate"
	MetaDataAudioSampleSize = "audiosamplesize"
	MetaDataStereo          = "stereo" // Boolean
	MetaDataAudioCodecID    = "audiocodecid"
	MetaDataCreationDate    = "creationdate" // String
	MetaDataEncoder         = "encoder"      // String
)

// ScriptData is the body of an AMF0 data tag: a name string followed
// by one value, canonically "onMetaData" + ECMA array.
type ScriptData struct {
	Name  string
	Value interface{}
}

// Marshal serializes the tag body.
func (scriptData ScriptData) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := amf.WriteString(&buf, scriptData.Name); err != nil {
		return nil, err
	}
	if err := amf.WriteAny(&buf, scriptData.Value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the tag body.
func (scriptData *ScriptData) Unmarshal(data []byte) error {
	r := bytes.NewReader(data)

	name, err := amf.ReadString(r)
	if err != nil {
		return err
	}
	scriptData.Name = name

	value, err := amf.ReadEcmaArray(r)
	if err != nil {
		return err
	}
	scriptData.Value = value
	return nil
}
