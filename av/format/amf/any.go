// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package amf

import (
	"fmt"
	"io"
)

// UndefinedValue is the value read for a TypeUndefined marker.
type UndefinedValue struct{}

// WriteAny writes a Go value with its AMF0 marker. Integers and floats
// all map to TypeNumber per the AMF0 grammar.
func WriteAny(w io.Writer, any interface{}) error {
	if any == nil {
		return WriteNull(w)
	}

	switch v := any.(type) {
	case string:
		return WriteString(w, v)
	case bool:
		return WriteBool(w, v)
	case int:
		return WriteNumber(w, float64(v))
	case int8:
		return WriteNumber(w, float64(v))
	case int16:
		return WriteNumber(w, float64(v))
	case int32:
		return WriteNumber(w, float64(v))
	case int64:
		return WriteNumber(w, float64(v))
	case uint:
		return WriteNumber(w, float64(v))
	case uint8:
		return WriteNumber(w, float64(v))
	case uint16:
		return WriteNumber(w, float64(v))
	case uint32:
		return WriteNumber(w, float64(v))
	case uint64:
		return WriteNumber(w, float64(v))
	case float32:
		return WriteNumber(w, float64(v))
	case float64:
		return WriteNumber(w, v)
	case EcmaArray:
		return WriteEcmaArray(w, v)
	case Object:
		return WriteObject(w, v)
	default:
		return fmt.Errorf("amf: unsupported value type %T", any)
	}
}

// ReadAny reads the next marked value. The bool result reports an
// object-end marker, consumed by the property readers.
func readAny(r io.Reader) (value interface{}, end bool, err error) {
	var buff [1]byte
	if _, err = io.ReadFull(r, buff[:]); err != nil {
		return
	}

	switch marker := buff[0]; marker {
	case TypeNumber:
		value, err = readNumber(r)
	case TypeBoolean:
		value, err = readBool(r)
	case TypeString:
		value, err = readUtf8(r, 2)
	case TypeLongString:
		value, err = readUtf8(r, 4)
	case TypeObject:
		var props []ObjectProperty
		props, err = readProperties(r)
		value = Object(props)
	case TypeEcmaArray:
		var arr EcmaArray
		props, perr := readPrefixedProperties(r)
		arr, err = EcmaArray(props), perr
		value = arr
	case TypeNull:
		value = nil
	case TypeUndefined:
		value = UndefinedValue{}
	case TypeObjectEnd:
		end = true
	default:
		err = fmt.Errorf("amf: unsupported marker %#x", marker)
	}
	return
}

func readPrefixedProperties(r io.Reader) ([]ObjectProperty, error) {
	var buff [4]byte
	if _, err := io.ReadFull(r, buff[:]); err != nil {
		return nil, err
	}
	return readProperties(r)
}
