// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/castpack/castpack/utils/bits"
)

// AudioSpecificConfig is the decoded AAC codec configuration record,
// ISO 14496-3 1.6.2.1.
type AudioSpecificConfig struct {
	ObjectType    uint8
	SamplingIndex uint8
	SampleRate    int
	ChannelConfig uint8
	Channels      uint8
	// Explicit SBR extension, when signalled.
	ExtObjectType    uint8
	ExtSamplingIndex uint8
	ExtSampleRate    int
}

// DecodeString decodes the config from a hex string.
func (asc *AudioSpecificConfig) DecodeString(config string) error {
	data, err := hex.DecodeString(config)
	if err != nil {
		return err
	}
	return asc.Decode(data)
}

// Decode decodes the config from raw bytes. The bits reader panics on
// a truncated buffer; the recover turns that into an error.
func (asc *AudioSpecificConfig) Decode(config []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aac: AudioSpecificConfig decode panic; r = %v \n %s", r, debug.Stack())
		}
	}()

	if len(config) < 2 {
		return errors.New("aac: AudioSpecificConfig needs at least 2 bytes")
	}

	r := bits.NewReader(config)
	asc.ObjectType = readObjectType(r)
	asc.SamplingIndex, asc.SampleRate = readSampleRate(r)
	asc.ChannelConfig = r.ReadUint8(4)
	if int(asc.ChannelConfig) < len(channelCounts) {
		asc.Channels = channelCounts[asc.ChannelConfig]
	}

	if asc.ObjectType == AOTSBR || asc.ObjectType == AOTPS {
		// explicit SBR/PS: real object type and rate follow
		asc.ExtObjectType = AOTSBR
		asc.ExtSamplingIndex, asc.ExtSampleRate = readSampleRate(r)
		asc.ObjectType = readObjectType(r)
	}

	if asc.ObjectType == AOTNull || asc.ObjectType == AOTEscape {
		return fmt.Errorf("aac: unusable audio object type %d", asc.ObjectType)
	}
	if asc.SampleRate == 0 {
		return errors.New("aac: unsupported sampling frequency index")
	}
	return nil
}

// Encode returns the 2-byte AudioSpecificConfig for the receiver.
func (asc *AudioSpecificConfig) Encode() []byte {
	return []byte{
		asc.ObjectType<<3 | asc.SamplingIndex>>1,
		asc.SamplingIndex<<7 | asc.ChannelConfig<<3,
	}
}

// Profile returns the ADTS profile value (object type minus one).
func (asc *AudioSpecificConfig) Profile() uint8 {
	return asc.ObjectType - 1
}

func readObjectType(r *bits.Reader) uint8 {
	objType := r.ReadUint8(5)
	if objType == AOTEscape {
		objType = 32 + r.ReadUint8(6)
	}
	return objType
}

func readSampleRate(r *bits.Reader) (index uint8, rate int) {
	index = r.ReadUint8(4)
	if index == 0xf {
		return index, int(r.Read(24))
	}
	return index, SampleRates[index]
}
