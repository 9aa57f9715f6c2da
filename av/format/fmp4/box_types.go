// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fmp4

import (
	"github.com/icza/bitio"
)

// Ftyp is the file type box.
type Ftyp struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands [][4]byte
}

// Type returns the BoxType.
func (*Ftyp) Type() BoxType { return [4]byte{'f', 't', 'y', 'p'} }

// Size returns the marshaled size in bytes.
func (b *Ftyp) Size() int { return 8 + len(b.CompatibleBrands)*4 }

// Marshal box to writer.
func (b *Ftyp) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.MajorBrand[:])
	writeUint32(w, b.MinorVersion)
	for _, brand := range b.CompatibleBrands {
		w.TryWrite(brand[:])
	}
	return w.TryError
}

// Moov is the movie container box.
type Moov struct{}

// Type returns the BoxType.
func (*Moov) Type() BoxType { return [4]byte{'m', 'o', 'o', 'v'} }

// Size returns the marshaled size in bytes.
func (*Moov) Size() int { return 0 }

// Marshal is never called.
func (*Moov) Marshal(w *bitio.Writer) error { return nil }

// Mvhd is the movie header box.
type Mvhd struct {
	FullBox
	CreationTime     uint32
	ModificationTime uint32
	Timescale        uint32
	Duration         uint32
	Rate             int32 // fixed-point 16.16
	Volume           int16 // fixed-point 8.8
	Reserved         int16
	Reserved2        [2]uint32
	Matrix           [9]int32
	PreDefined       [6]int32
	NextTrackID      uint32
}

// Type returns the BoxType.
func (*Mvhd) Type() BoxType { return [4]byte{'m', 'v', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Mvhd) Size() int { return 100 }

// Marshal box to writer.
func (b *Mvhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.CreationTime)
	writeUint32(w, b.ModificationTime)
	writeUint32(w, b.Timescale)
	writeUint32(w, b.Duration)
	writeUint32(w, uint32(b.Rate))
	writeUint16(w, uint16(b.Volume))
	writeUint16(w, uint16(b.Reserved))
	for _, reserved := range b.Reserved2 {
		writeUint32(w, reserved)
	}
	for _, matrix := range b.Matrix {
		writeUint32(w, uint32(matrix))
	}
	for _, preDefined := range b.PreDefined {
		writeUint32(w, uint32(preDefined))
	}
	writeUint32(w, b.NextTrackID)
	return w.TryError
}

// Trak is the track container box.
type Trak struct{}

// Type returns the BoxType.
func (*Trak) Type() BoxType { return [4]byte{'t', 'r', 'a', 'k'} }

// Size returns the marshaled size in bytes.
func (*Trak) Size() int { return 0 }

// Marshal is never called.
func (*Trak) Marshal(w *bitio.Writer) error { return nil }

// Tkhd is the track header box.
type Tkhd struct {
	FullBox
	CreationTime     uint32
	ModificationTime uint32
	TrackID          uint32
	Reserved0        uint32
	Duration         uint32

	Reserved1      [2]uint32
	Layer          int16
	AlternateGroup int16
	Volume         int16 // 0x0100 for audio tracks
	Reserved2      uint16
	Matrix         [9]int32
	Width          uint32 // fixed-point 16.16
	Height         uint32 // fixed-point 16.16
}

// Type returns the BoxType.
func (*Tkhd) Type() BoxType { return [4]byte{'t', 'k', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Tkhd) Size() int { return 84 }

// Marshal box to writer.
func (b *Tkhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.CreationTime)
	writeUint32(w, b.ModificationTime)
	writeUint32(w, b.TrackID)
	writeUint32(w, b.Reserved0)
	writeUint32(w, b.Duration)
	for _, reserved := range b.Reserved1 {
		writeUint32(w, reserved)
	}
	writeUint16(w, uint16(b.Layer))
	writeUint16(w, uint16(b.AlternateGroup))
	writeUint16(w, uint16(b.Volume))
	writeUint16(w, b.Reserved2)
	for _, matrix := range b.Matrix {
		writeUint32(w, uint32(matrix))
	}
	writeUint32(w, b.Width)
	writeUint32(w, b.Height)
	return w.TryError
}

// Mdia is the media container box.
type Mdia struct{}

// Type returns the BoxType.
func (*Mdia) Type() BoxType { return [4]byte{'m', 'd', 'i', 'a'} }

// Size returns the marshaled size in bytes.
func (*Mdia) Size() int { return 0 }

// Marshal is never called.
func (*Mdia) Marshal(w *bitio.Writer) error { return nil }

// Mdhd is the media header box.
type Mdhd struct {
	FullBox
	CreationTime     uint32
	ModificationTime uint32
	Timescale        uint32
	Duration         uint32
	Pad              bool
	Language         [3]byte // ISO-639-2/T, 5 bits per char
	PreDefined       uint16
}

// Type returns the BoxType.
func (*Mdhd) Type() BoxType { return [4]byte{'m', 'd', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Mdhd) Size() int { return 24 }

// Marshal box to writer.
func (b *Mdhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.CreationTime)
	writeUint32(w, b.ModificationTime)
	writeUint32(w, b.Timescale)
	writeUint32(w, b.Duration)
	w.TryWriteBool(b.Pad)
	for _, c := range b.Language {
		w.TryWriteBits(uint64(c-0x60), 5)
	}
	writeUint16(w, b.PreDefined)
	return w.TryError
}

// Hdlr is the handler reference box.
type Hdlr struct {
	FullBox
	PreDefined  uint32
	HandlerType [4]byte
	Reserved    [3]uint32
	Name        string
}

// Type returns the BoxType.
func (*Hdlr) Type() BoxType { return [4]byte{'h', 'd', 'l', 'r'} }

// Size returns the marshaled size in bytes.
func (b *Hdlr) Size() int { return 24 + len(b.Name) + 1 }

// Marshal box to writer.
func (b *Hdlr) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.PreDefined)
	w.TryWrite(b.HandlerType[:])
	for _, reserved := range b.Reserved {
		writeUint32(w, reserved)
	}
	w.TryWrite([]byte(b.Name))
	w.TryWriteByte(0x00)
	return w.TryError
}

// Minf is the media information container box.
type Minf struct{}

// Type returns the BoxType.
func (*Minf) Type() BoxType { return [4]byte{'m', 'i', 'n', 'f'} }

// Size returns the marshaled size in bytes.
func (*Minf) Size() int { return 0 }

// Marshal is never called.
func (*Minf) Marshal(w *bitio.Writer) error { return nil }

// Vmhd is the video media header box.
type Vmhd struct {
	FullBox
	Graphicsmode uint16
	Opcolor      [3]uint16
}

// Type returns the BoxType.
func (*Vmhd) Type() BoxType { return [4]byte{'v', 'm', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Vmhd) Size() int { return 12 }

// Marshal box to writer.
func (b *Vmhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint16(w, b.Graphicsmode)
	for _, color := range b.Opcolor {
		writeUint16(w, color)
	}
	return w.TryError
}

// Smhd is the sound media header box.
type Smhd struct {
	FullBox
	Balance  int16 // fixed-point 8.8
	Reserved uint16
}

// Type returns the BoxType.
func (*Smhd) Type() BoxType { return [4]byte{'s', 'm', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Smhd) Size() int { return 8 }

// Marshal box to writer.
func (b *Smhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint16(w, uint16(b.Balance))
	writeUint16(w, b.Reserved)
	return w.TryError
}

// Dinf is the data information container box.
type Dinf struct{}

// Type returns the BoxType.
func (*Dinf) Type() BoxType { return [4]byte{'d', 'i', 'n', 'f'} }

// Size returns the marshaled size in bytes.
func (*Dinf) Size() int { return 0 }

// Marshal is never called.
func (*Dinf) Marshal(w *bitio.Writer) error { return nil }

// Dref is the data reference box.
type Dref struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Dref) Type() BoxType { return [4]byte{'d', 'r', 'e', 'f'} }

// Size returns the marshaled size in bytes.
func (b *Dref) Size() int { return 8 }

// Marshal box to writer.
func (b *Dref) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.EntryCount)
	return w.TryError
}

// Url is the data entry url box.
type Url struct { //nolint:revive,stylecheck
	FullBox
	Location string
}

// Type returns the BoxType.
func (*Url) Type() BoxType { return [4]byte{'u', 'r', 'l', ' '} }

// Size returns the marshaled size in bytes.
func (b *Url) Size() int {
	if b.CheckFlag(urlNopt) {
		return 4
	}
	return 4 + len(b.Location) + 1
}

const urlNopt = 0x000001 // media data in the same file

// Marshal box to writer.
func (b *Url) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	if !b.CheckFlag(urlNopt) {
		w.TryWrite([]byte(b.Location))
		w.TryWriteByte(0x00)
	}
	return w.TryError
}

// Stbl is the sample table container box.
type Stbl struct{}

// Type returns the BoxType.
func (*Stbl) Type() BoxType { return [4]byte{'s', 't', 'b', 'l'} }

// Size returns the marshaled size in bytes.
func (*Stbl) Size() int { return 0 }

// Marshal is never called.
func (*Stbl) Marshal(w *bitio.Writer) error { return nil }

// Stsd is the sample description box.
type Stsd struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Stsd) Type() BoxType { return [4]byte{'s', 't', 's', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Stsd) Size() int { return 8 }

// Marshal box to writer.
func (b *Stsd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.EntryCount)
	return w.TryError
}

// SampleEntry is the shared prefix of stsd entries.
type SampleEntry struct {
	Reserved           [6]uint8
	DataReferenceIndex uint16
}

// MarshalField writes the entry prefix.
func (b *SampleEntry) MarshalField(w *bitio.Writer) error {
	w.TryWrite(b.Reserved[:])
	writeUint16(w, b.DataReferenceIndex)
	return w.TryError
}

// Avc1 is the AVC sample entry.
type Avc1 struct {
	SampleEntry
	PreDefined      uint16
	Reserved        uint16
	PreDefined2     [3]uint32
	Width           uint16
	Height          uint16
	Horizresolution uint32
	Vertresolution  uint32
	Reserved2       uint32
	FrameCount      uint16
	Compressorname  [32]byte
	Depth           uint16
	PreDefined3     int16
}

// Type returns the BoxType.
func (*Avc1) Type() BoxType { return [4]byte{'a', 'v', 'c', '1'} }

// Size returns the marshaled size in bytes.
func (b *Avc1) Size() int { return 78 }

// Marshal box to writer.
func (b *Avc1) Marshal(w *bitio.Writer) error {
	if err := b.SampleEntry.MarshalField(w); err != nil {
		return err
	}
	writeUint16(w, b.PreDefined)
	writeUint16(w, b.Reserved)
	for _, preDefined := range b.PreDefined2 {
		writeUint32(w, preDefined)
	}
	writeUint16(w, b.Width)
	writeUint16(w, b.Height)
	writeUint32(w, b.Horizresolution)
	writeUint32(w, b.Vertresolution)
	writeUint32(w, b.Reserved2)
	writeUint16(w, b.FrameCount)
	w.TryWrite(b.Compressorname[:])
	writeUint16(w, b.Depth)
	writeUint16(w, uint16(b.PreDefined3))
	return w.TryError
}

// AVCParameterSet is one SPS or PPS entry inside avcC.
type AVCParameterSet struct {
	NALUnit []byte
}

// FieldSize returns the marshaled size in bytes.
func (b *AVCParameterSet) FieldSize() int { return len(b.NALUnit) + 2 }

// MarshalField writes the entry.
func (b *AVCParameterSet) MarshalField(w *bitio.Writer) error {
	writeUint16(w, uint16(len(b.NALUnit)))
	w.TryWrite(b.NALUnit)
	return w.TryError
}

// AvcC is the AVC decoder configuration box.
type AvcC struct {
	ConfigurationVersion       uint8
	Profile                    uint8
	ProfileCompatibility       uint8
	Level                      uint8
	LengthSizeMinusOne         uint8 // 2 bits
	NumOfSequenceParameterSets uint8 // 5 bits
	SequenceParameterSets      []AVCParameterSet
	NumOfPictureParameterSets  uint8
	PictureParameterSets       []AVCParameterSet
}

// Type returns the BoxType.
func (*AvcC) Type() BoxType { return [4]byte{'a', 'v', 'c', 'C'} }

// Size returns the marshaled size in bytes.
func (b *AvcC) Size() int {
	total := 7
	for _, set := range b.SequenceParameterSets {
		total += set.FieldSize()
	}
	for _, set := range b.PictureParameterSets {
		total += set.FieldSize()
	}
	return total
}

// Marshal box to writer.
func (b *AvcC) Marshal(w *bitio.Writer) error {
	w.TryWriteByte(b.ConfigurationVersion)
	w.TryWriteByte(b.Profile)
	w.TryWriteByte(b.ProfileCompatibility)
	w.TryWriteByte(b.Level)
	w.TryWriteByte(0xfc | b.LengthSizeMinusOne&0x03)
	w.TryWriteByte(0xe0 | b.NumOfSequenceParameterSets&0x1f)
	for _, set := range b.SequenceParameterSets {
		if err := set.MarshalField(w); err != nil {
			return err
		}
	}
	w.TryWriteByte(b.NumOfPictureParameterSets)
	for _, set := range b.PictureParameterSets {
		if err := set.MarshalField(w); err != nil {
			return err
		}
	}
	return w.TryError
}

// Mp4a is the MPEG-4 audio sample entry.
type Mp4a struct {
	SampleEntry
	EntryVersion uint16
	Reserved     [3]uint16
	ChannelCount uint16
	SampleSize   uint16
	PreDefined   uint16
	Reserved2    uint16
	SampleRate   uint32 // fixed-point 16.16
}

// Type returns the BoxType.
func (*Mp4a) Type() BoxType { return [4]byte{'m', 'p', '4', 'a'} }

// Size returns the marshaled size in bytes.
func (b *Mp4a) Size() int { return 28 }

// Marshal box to writer.
func (b *Mp4a) Marshal(w *bitio.Writer) error {
	if err := b.SampleEntry.MarshalField(w); err != nil {
		return err
	}
	writeUint16(w, b.EntryVersion)
	for _, reserved := range b.Reserved {
		writeUint16(w, reserved)
	}
	writeUint16(w, b.ChannelCount)
	writeUint16(w, b.SampleSize)
	writeUint16(w, b.PreDefined)
	writeUint16(w, b.Reserved2)
	writeUint32(w, b.SampleRate)
	return w.TryError
}

// MPEG-4 descriptor tags used inside esds.
const (
	ESDescrTag            = 0x03
	DecoderConfigDescrTag = 0x04
	DecSpecificInfoTag    = 0x05
	SLConfigDescrTag      = 0x06
)

// Esds is the elementary stream descriptor box; Data carries the
// pre-built descriptor chain.
type Esds struct {
	FullBox
	Data []byte
}

// Type returns the BoxType.
func (*Esds) Type() BoxType { return [4]byte{'e', 's', 'd', 's'} }

// Size returns the marshaled size in bytes.
func (b *Esds) Size() int { return 4 + len(b.Data) }

// Marshal box to writer.
func (b *Esds) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	w.TryWrite(b.Data)
	return w.TryError
}

// Btrt is the bitrate box.
type Btrt struct {
	BufferSizeDB uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

// Type returns the BoxType.
func (*Btrt) Type() BoxType { return [4]byte{'b', 't', 'r', 't'} }

// Size returns the marshaled size in bytes.
func (*Btrt) Size() int { return 12 }

// Marshal box to writer.
func (b *Btrt) Marshal(w *bitio.Writer) error {
	writeUint32(w, b.BufferSizeDB)
	writeUint32(w, b.MaxBitrate)
	writeUint32(w, b.AvgBitrate)
	return w.TryError
}

// Stts is the decoding time-to-sample box, empty in fragmented files.
type Stts struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Stts) Type() BoxType { return [4]byte{'s', 't', 't', 's'} }

// Size returns the marshaled size in bytes.
func (b *Stts) Size() int { return 8 }

// Marshal box to writer.
func (b *Stts) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.EntryCount)
	return w.TryError
}

// Stsc is the sample-to-chunk box, empty in fragmented files.
type Stsc struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Stsc) Type() BoxType { return [4]byte{'s', 't', 's', 'c'} }

// Size returns the marshaled size in bytes.
func (b *Stsc) Size() int { return 8 }

// Marshal box to writer.
func (b *Stsc) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.EntryCount)
	return w.TryError
}

// Stsz is the sample size box, empty in fragmented files.
type Stsz struct {
	FullBox
	SampleSize  uint32
	SampleCount uint32
}

// Type returns the BoxType.
func (*Stsz) Type() BoxType { return [4]byte{'s', 't', 's', 'z'} }

// Size returns the marshaled size in bytes.
func (b *Stsz) Size() int { return 12 }

// Marshal box to writer.
func (b *Stsz) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.SampleSize)
	writeUint32(w, b.SampleCount)
	return w.TryError
}

// Stco is the chunk offset box, empty in fragmented files.
type Stco struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Stco) Type() BoxType { return [4]byte{'s', 't', 'c', 'o'} }

// Size returns the marshaled size in bytes.
func (b *Stco) Size() int { return 8 }

// Marshal box to writer.
func (b *Stco) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.EntryCount)
	return w.TryError
}

// Mvex is the movie extends container box.
type Mvex struct{}

// Type returns the BoxType.
func (*Mvex) Type() BoxType { return [4]byte{'m', 'v', 'e', 'x'} }

// Size returns the marshaled size in bytes.
func (*Mvex) Size() int { return 0 }

// Marshal is never called.
func (*Mvex) Marshal(w *bitio.Writer) error { return nil }

// Trex is the track extends box.
type Trex struct {
	FullBox
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// Type returns the BoxType.
func (*Trex) Type() BoxType { return [4]byte{'t', 'r', 'e', 'x'} }

// Size returns the marshaled size in bytes.
func (b *Trex) Size() int { return 24 }

// Marshal box to writer.
func (b *Trex) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.TrackID)
	writeUint32(w, b.DefaultSampleDescriptionIndex)
	writeUint32(w, b.DefaultSampleDuration)
	writeUint32(w, b.DefaultSampleSize)
	writeUint32(w, b.DefaultSampleFlags)
	return w.TryError
}

// Moof is the movie fragment container box.
type Moof struct{}

// Type returns the BoxType.
func (*Moof) Type() BoxType { return [4]byte{'m', 'o', 'o', 'f'} }

// Size returns the marshaled size in bytes.
func (*Moof) Size() int { return 0 }

// Marshal is never called.
func (*Moof) Marshal(w *bitio.Writer) error { return nil }

// Mfhd is the movie fragment header box.
type Mfhd struct {
	FullBox
	SequenceNumber uint32
}

// Type returns the BoxType.
func (*Mfhd) Type() BoxType { return [4]byte{'m', 'f', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Mfhd) Size() int { return 8 }

// Marshal box to writer.
func (b *Mfhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.SequenceNumber)
	return w.TryError
}

// Traf is the track fragment container box.
type Traf struct{}

// Type returns the BoxType.
func (*Traf) Type() BoxType { return [4]byte{'t', 'r', 'a', 'f'} }

// Size returns the marshaled size in bytes.
func (*Traf) Size() int { return 0 }

// Marshal is never called.
func (*Traf) Marshal(w *bitio.Writer) error { return nil }

// tfhd flags.
const (
	TfhdBaseDataOffsetPresent        = 0x000001
	TfhdDefaultSampleDurationPresent = 0x000008
	TfhdDefaultBaseIsMoof            = 0x020000
)

// Tfhd is the track fragment header box.
type Tfhd struct {
	FullBox
	TrackID uint32

	BaseDataOffset        uint64
	DefaultSampleDuration uint32
}

// Type returns the BoxType.
func (*Tfhd) Type() BoxType { return [4]byte{'t', 'f', 'h', 'd'} }

// Size returns the marshaled size in bytes.
func (b *Tfhd) Size() int {
	total := b.FullBox.FieldSize() + 4
	if b.CheckFlag(TfhdBaseDataOffsetPresent) {
		total += 8
	}
	if b.CheckFlag(TfhdDefaultSampleDurationPresent) {
		total += 4
	}
	return total
}

// Marshal box to writer.
func (b *Tfhd) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.TrackID)
	if b.CheckFlag(TfhdBaseDataOffsetPresent) {
		writeUint64(w, b.BaseDataOffset)
	}
	if b.CheckFlag(TfhdDefaultSampleDurationPresent) {
		writeUint32(w, b.DefaultSampleDuration)
	}
	return w.TryError
}

// Tfdt is the track fragment decode time box.
type Tfdt struct {
	FullBox
	BaseMediaDecodeTime uint64 // version 1
}

// Type returns the BoxType.
func (*Tfdt) Type() BoxType { return [4]byte{'t', 'f', 'd', 't'} }

// Size returns the marshaled size in bytes.
func (b *Tfdt) Size() int { return 12 }

// Marshal box to writer.
func (b *Tfdt) Marshal(w *bitio.Writer) error {
	b.Version = 1
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint64(w, b.BaseMediaDecodeTime)
	return w.TryError
}

// trun flags.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// Sample flag bits used in trun entries.
const (
	SampleFlagIsNonSyncSample = 1 << 16
	SampleFlagDependsOn       = 1 << 24
)

// TrunEntry is one sample row of a trun box.
type TrunEntry struct {
	SampleDuration              uint32
	SampleSize                  uint32
	SampleFlags                 uint32
	SampleCompositionTimeOffset int32 // version 1, signed
}

// FieldSize returns the marshaled size in bytes.
func (b *TrunEntry) FieldSize(fullBox FullBox) int {
	total := 0
	if fullBox.CheckFlag(TrunSampleDurationPresent) {
		total += 4
	}
	if fullBox.CheckFlag(TrunSampleSizePresent) {
		total += 4
	}
	if fullBox.CheckFlag(TrunSampleFlagsPresent) {
		total += 4
	}
	if fullBox.CheckFlag(TrunSampleCompositionTimeOffsetPresent) {
		total += 4
	}
	return total
}

// MarshalField writes the entry.
func (b *TrunEntry) MarshalField(w *bitio.Writer, fullBox FullBox) error {
	if fullBox.CheckFlag(TrunSampleDurationPresent) {
		writeUint32(w, b.SampleDuration)
	}
	if fullBox.CheckFlag(TrunSampleSizePresent) {
		writeUint32(w, b.SampleSize)
	}
	if fullBox.CheckFlag(TrunSampleFlagsPresent) {
		writeUint32(w, b.SampleFlags)
	}
	if fullBox.CheckFlag(TrunSampleCompositionTimeOffsetPresent) {
		writeUint32(w, uint32(b.SampleCompositionTimeOffset))
	}
	return w.TryError
}

// Trun is the track fragment run box.
type Trun struct {
	FullBox
	SampleCount uint32

	DataOffset int32
	Entries    []TrunEntry
}

// Type returns the BoxType.
func (*Trun) Type() BoxType { return [4]byte{'t', 'r', 'u', 'n'} }

// Size returns the marshaled size in bytes.
func (b *Trun) Size() int {
	total := 8
	if b.CheckFlag(TrunDataOffsetPresent) {
		total += 4
	}
	for _, entry := range b.Entries {
		total += entry.FieldSize(b.FullBox)
	}
	return total
}

// Marshal box to writer.
func (b *Trun) Marshal(w *bitio.Writer) error {
	if err := b.FullBox.MarshalField(w); err != nil {
		return err
	}
	writeUint32(w, b.SampleCount)
	if b.CheckFlag(TrunDataOffsetPresent) {
		writeUint32(w, uint32(b.DataOffset))
	}
	for _, entry := range b.Entries {
		if err := entry.MarshalField(w, b.FullBox); err != nil {
			return err
		}
	}
	return w.TryError
}

// Mdat is the media data box; the payload is the concatenation of the
// fragment's chunks in arrival order.
type Mdat struct {
	Chunks [][]byte
}

// Type returns the BoxType.
func (*Mdat) Type() BoxType { return [4]byte{'m', 'd', 'a', 't'} }

// Size returns the marshaled size in bytes.
func (b *Mdat) Size() int {
	total := 0
	for _, chunk := range b.Chunks {
		total += len(chunk)
	}
	return total
}

// Marshal box to writer.
func (b *Mdat) Marshal(w *bitio.Writer) error {
	for _, chunk := range b.Chunks {
		w.TryWrite(chunk)
	}
	return w.TryError
}
