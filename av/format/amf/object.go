// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package amf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ObjectProperty is one named member of an object or ECMA array.
type ObjectProperty struct {
	Name  string
	Value interface{}
}

// EcmaArray is the value of a TypeEcmaArray.
type EcmaArray []ObjectProperty

// Object is the value of a TypeObject.
type Object []ObjectProperty

// PropertyValue returns the value of the named property.
func PropertyValue(properties []ObjectProperty, name string) (value interface{}, ok bool) {
	for _, prop := range properties {
		if name == prop.Name {
			return prop.Value, true
		}
	}
	return nil, false
}

// WriteEcmaArray writes the array with its count prefix and end marker.
func WriteEcmaArray(w io.Writer, arr EcmaArray) error {
	var buff [5]byte
	buff[0] = TypeEcmaArray
	binary.BigEndian.PutUint32(buff[1:], uint32(len(arr)))
	if _, err := w.Write(buff[:]); err != nil {
		return err
	}
	return writeProperties(w, arr)
}

// WriteObject writes the object with its end marker.
func WriteObject(w io.Writer, obj Object) error {
	if err := writeMarker(w, TypeObject); err != nil {
		return err
	}
	return writeProperties(w, obj)
}

func writeProperties(w io.Writer, props []ObjectProperty) error {
	for _, prop := range props {
		if err := writeUtf8(w, prop.Name, 2); err != nil {
			return err
		}
		if err := WriteAny(w, prop.Value); err != nil {
			return err
		}
	}
	// empty name + end marker
	_, err := w.Write([]byte{0x00, 0x00, TypeObjectEnd})
	return err
}

// ReadEcmaArray reads a marked ECMA array.
func ReadEcmaArray(r io.Reader) (EcmaArray, error) {
	if err := expectMarker(r, TypeEcmaArray); err != nil {
		return nil, err
	}

	var buff [4]byte
	if _, err := io.ReadFull(r, buff[:]); err != nil {
		return nil, err
	}
	count := int(binary.BigEndian.Uint32(buff[:]))

	arr := make(EcmaArray, 0, count)
	props, err := readProperties(r)
	if err != nil {
		return nil, err
	}
	arr = append(arr, props...)
	if len(arr) != count {
		return arr, fmt.Errorf("amf: ecma array count %d does not match %d read", count, len(arr))
	}
	return arr, nil
}

// ReadObject reads a marked object.
func ReadObject(r io.Reader) (Object, error) {
	if err := expectMarker(r, TypeObject); err != nil {
		return nil, err
	}
	props, err := readProperties(r)
	return Object(props), err
}

func readProperties(r io.Reader) ([]ObjectProperty, error) {
	var props []ObjectProperty
	for {
		name, err := readUtf8(r, 2)
		if err != nil {
			return props, err
		}

		value, end, err := readAny(r)
		if err != nil {
			return props, err
		}
		if end && name == "" {
			return props, nil
		}
		props = append(props, ObjectProperty{Name: name, Value: value})
	}
}
