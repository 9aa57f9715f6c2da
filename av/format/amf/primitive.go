// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package amf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// AMF0 type markers.
const (
	TypeNumber      = 0x00
	TypeBoolean     = 0x01
	TypeString      = 0x02
	TypeObject      = 0x03
	TypeNull        = 0x05
	TypeUndefined   = 0x06
	TypeEcmaArray   = 0x08
	TypeObjectEnd   = 0x09
	TypeStrictArray = 0x0A
	TypeLongString  = 0x0C
)

// WriteNumber writes a TypeNumber marker and an IEEE-754 double.
func WriteNumber(w io.Writer, value float64) error {
	var buff [9]byte
	buff[0] = TypeNumber
	binary.BigEndian.PutUint64(buff[1:], math.Float64bits(value))
	_, err := w.Write(buff[:])
	return err
}

// ReadNumber reads a marked double.
func ReadNumber(r io.Reader) (float64, error) {
	if err := expectMarker(r, TypeNumber); err != nil {
		return 0, err
	}
	return readNumber(r)
}

func readNumber(r io.Reader) (float64, error) {
	var buff [8]byte
	if _, err := io.ReadFull(r, buff[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buff[:])), nil
}

// WriteBool writes a TypeBoolean marker and the value.
func WriteBool(w io.Writer, value bool) error {
	buff := [2]byte{TypeBoolean, 0}
	if value {
		buff[1] = 1
	}
	_, err := w.Write(buff[:])
	return err
}

// ReadBool reads a marked boolean.
func ReadBool(r io.Reader) (bool, error) {
	if err := expectMarker(r, TypeBoolean); err != nil {
		return false, err
	}
	return readBool(r)
}

func readBool(r io.Reader) (bool, error) {
	var buff [1]byte
	if _, err := io.ReadFull(r, buff[:]); err != nil {
		return false, err
	}
	return buff[0] != 0, nil
}

// WriteString writes a TypeString (or TypeLongString when the value
// exceeds 65535 bytes) marker and the UTF-8 payload.
func WriteString(w io.Writer, value string) error {
	if len(value) > 0xffff {
		if err := writeMarker(w, TypeLongString); err != nil {
			return err
		}
		return writeUtf8(w, value, 4)
	}
	if err := writeMarker(w, TypeString); err != nil {
		return err
	}
	return writeUtf8(w, value, 2)
}

// ReadString reads a marked short string.
func ReadString(r io.Reader) (string, error) {
	if err := expectMarker(r, TypeString); err != nil {
		return "", err
	}
	return readUtf8(r, 2)
}

// WriteNull writes a TypeNull marker.
func WriteNull(w io.Writer) error {
	return writeMarker(w, TypeNull)
}

// WriteInt16 writes a raw big-endian 16-bit value with no marker; used
// inside tag bodies that count or size their own fields.
func WriteInt16(w io.Writer, value int16) error {
	var buff [2]byte
	binary.BigEndian.PutUint16(buff[:], uint16(value))
	_, err := w.Write(buff[:])
	return err
}

// WriteInt32 writes a raw big-endian 32-bit value with no marker.
func WriteInt32(w io.Writer, value int32) error {
	var buff [4]byte
	binary.BigEndian.PutUint32(buff[:], uint32(value))
	_, err := w.Write(buff[:])
	return err
}

func writeMarker(w io.Writer, typ byte) error {
	_, err := w.Write([]byte{typ})
	return err
}

func expectMarker(r io.Reader, typ byte) error {
	var buff [1]byte
	if _, err := io.ReadFull(r, buff[:]); err != nil {
		return err
	}
	if buff[0] != typ {
		return fmt.Errorf("amf: marker mismatch, expect %#x actual %#x", typ, buff[0])
	}
	return nil
}

func readUtf8(r io.Reader, lenSize int) (string, error) {
	var buff [4]byte
	if _, err := io.ReadFull(r, buff[4-lenSize:]); err != nil {
		return "", err
	}

	strLen := binary.BigEndian.Uint32(buff[:])
	if strLen == 0 {
		return "", nil
	}

	value := make([]byte, strLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return "", err
	}
	return string(value), nil
}

func writeUtf8(w io.Writer, value string, lenSize int) error {
	var buff [4]byte
	binary.BigEndian.PutUint32(buff[:], uint32(len(value)))
	if _, err := w.Write(buff[4-lenSize:]); err != nil {
		return err
	}

	if ws, ok := w.(io.StringWriter); ok {
		_, err := ws.WriteString(value)
		return err
	}
	_, err := w.Write([]byte(value))
	return err
}
