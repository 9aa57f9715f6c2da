// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// flv Header Size, total is 9 bytes.
// 	Signatures	3Byte	'FLV' = 0x46 0x4c 0x56
// 	Version		1Byte	0x01
// 	TypeFlags	1Byte 	bit0:audio bit2:video
// 	DataOffset	4Byte	FLV Header Length
const (
	FlvHeaderSize   = 9
	TypeFlagsVideo  = 0x04
	TypeFlagsAudio  = 0x01
	TypeFlagsOffset = 4
)

var flvHeaderTemplate = []byte{0x46, 0x4c, 0x56, 0x01, 0x00, 0x00, 0x00, 0x00, 0x09}

// Writer writes a complete FLV file: header, then tag/previous-size pairs.
type Writer struct {
	w io.Writer
}

// NewWriter writes the FLV header for the declared stream types and
// returns the tag writer.
func NewWriter(w io.Writer, typeFlags byte) (*Writer, error) {
	if typeFlags&(TypeFlagsVideo|TypeFlagsAudio) == 0 {
		return nil, errors.New("flv: TypeFlags include no stream")
	}

	writer := &Writer{w: w}

	var flvHeader [FlvHeaderSize]byte
	copy(flvHeader[:], flvHeaderTemplate)
	flvHeader[TypeFlagsOffset] = typeFlags & (TypeFlagsVideo | TypeFlagsAudio)
	if _, err := w.Write(flvHeader[:]); err != nil {
		return nil, err
	}

	if err := writer.writeTagSize(0); err != nil {
		return nil, err
	}
	return writer, nil
}

func (w *Writer) writeTagSize(tagSize uint32) error {
	var buff [4]byte
	binary.BigEndian.PutUint32(buff[:], tagSize)
	_, err := w.w.Write(buff[:])
	return err
}

// WriteFlvTag writes one tag and its PreviousTagSize.
func (w *Writer) WriteFlvTag(tag *Tag) error {
	if err := tag.Write(w.w); err != nil {
		return err
	}
	return w.writeTagSize(uint32(tag.Size()))
}

// Reader reads a complete FLV file.
type Reader struct {
	r      io.Reader
	Header [FlvHeaderSize]byte
}

// NewReader reads and validates the FLV header.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{r: r}

	if _, err := io.ReadFull(r, reader.Header[:]); err != nil {
		return nil, err
	}
	if reader.Header[0] != 'F' || reader.Header[1] != 'L' || reader.Header[2] != 'V' {
		return nil, errors.New("flv: signature must be 'FLV'")
	}

	if previousTagSize, err := reader.readTagSize(); err != nil {
		return nil, err
	} else if previousTagSize != 0 {
		return nil, errors.New("flv: first PreviousTagSize must be 0")
	}
	return reader, nil
}

func (r *Reader) readTagSize() (uint32, error) {
	var buff [4]byte
	if _, err := io.ReadFull(r.r, buff[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buff[:]), nil
}

// ReadFlvTag reads one tag and verifies its PreviousTagSize.
func (r *Reader) ReadFlvTag() (*Tag, error) {
	var tag Tag
	if err := tag.Read(r.r); err != nil {
		return nil, err
	}

	if tagSize, err := r.readTagSize(); err != nil {
		return nil, err
	} else if tagSize != uint32(tag.Size()) {
		return nil, fmt.Errorf("flv: PreviousTagSize mismatch, expect %d actual %d",
			tag.Size(), tagSize)
	}
	return &tag, nil
}

// HasVideo reports whether the file declares a video stream.
func (r *Reader) HasVideo() bool {
	return r.Header[TypeFlagsOffset]&TypeFlagsVideo != 0
}

// HasAudio reports whether the file declares an audio stream.
func (r *Reader) HasAudio() bool {
	return r.Header[TypeFlagsOffset]&TypeFlagsAudio != 0
}
