// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"encoding/binary"
	"io"
)

// flv tag type IDs.
const (
	TagTypeAudio    = 0x08
	TagTypeVideo    = 0x09
	TagTypeAmf0Data = 0x12 // 18, onMetaData
)

// flv Tag Header Size, total is 11 bytes.
// 	filter + type 1Byte
// 	data size 	3Byte
// 	timestamp 	3Byte
// 	timestampEx 1Byte
// 	streamID 	3Byte always 0
const (
	TagHeaderSize = 11
)

// Tag is a complete FLV tag: header plus tag data.
type Tag struct {
	Filter    byte   // 1 bit; 1 for encrypted files, always 0 here
	TagType   byte   // 5 bits
	DataSize  uint32 // 24 bits; length of Data
	Timestamp uint32 // 24 bits + 8 extended bits; milliseconds
	StreamID  uint32 // 24 bits; always 0
	Data      []byte
}

// Size returns the total tag size (header + data).
func (tag Tag) Size() int {
	return TagHeaderSize + len(tag.Data)
}

// IsMedia reports whether the tag carries audio or video.
func (tag Tag) IsMedia() bool {
	return tag.TagType == TagTypeAudio || tag.TagType == TagTypeVideo
}

// Read reads one tag from r per the FLV file format.
func (tag *Tag) Read(r io.Reader) error {
	var tagHeader [TagHeaderSize]byte
	if _, err := io.ReadFull(r, tagHeader[:]); err != nil {
		return err
	}

	offset := 0

	// filter & type
	tag.Filter = (tagHeader[offset] >> 5) & 0x1
	tag.TagType = tagHeader[offset] & 0x1F
	offset++

	// data size
	tag.DataSize = binary.BigEndian.Uint32(tagHeader[offset:]) >> 8
	offset += 3

	// timestamp & timestamp extended
	timestamp := binary.BigEndian.Uint32(tagHeader[offset:])
	tag.Timestamp = (timestamp >> 8) | (timestamp << 24)
	offset += 3

	// stream id; one extra high byte was left in place above
	tag.StreamID = binary.BigEndian.Uint32(tagHeader[offset:]) & 0xffffff

	tag.Data = make([]byte, tag.DataSize)
	if _, err := io.ReadFull(r, tag.Data); err != nil {
		return err
	}
	return nil
}

// Write writes the tag to w per the FLV file format.
func (tag *Tag) Write(w io.Writer) error {
	var tagHeader [TagHeaderSize + 1]byte // one extra high byte for stream id
	offset := 0

	// data size
	binary.BigEndian.PutUint32(tagHeader[offset:], uint32(len(tag.Data)))

	// type overwrites the data size high byte
	tagHeader[offset] = ((tag.Filter & 0x1) << 5) | (tag.TagType & 0x1f)
	offset += 4

	// timestamp
	binary.BigEndian.PutUint32(tagHeader[offset:], (tag.Timestamp<<8)|(tag.Timestamp>>24))
	offset += 4

	// stream id
	binary.BigEndian.PutUint32(tagHeader[offset:], tag.StreamID<<8)
	offset += 3

	if _, err := w.Write(tagHeader[:offset]); err != nil {
		return err
	}

	_, err := w.Write(tag.Data)
	return err
}

// TagData is tag body that can marshal itself.
type TagData interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// TagWriter wraps the WriteFlvTag method.
type TagWriter interface {
	WriteFlvTag(tag *Tag) error
}
