// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package amf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteString(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "stringToEncode"))

	expected := []byte{
		0x02, 0x00, 0x0E,
		's', 't', 'r', 'i', 'n', 'g', 'T', 'o', 'E', 'n', 'c', 'o', 'd', 'e',
	}
	assert.Equal(t, expected, buf.Bytes())
}

func TestWriteNumber(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNumber(&buf, 1.0))
	assert.Equal(t, []byte{0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestWriteBool(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBool(&buf, true))
	assert.Equal(t, []byte{0x01, 0x01}, buf.Bytes())
}

func TestWriteInt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt16(&buf, 0x1234))
	require.NoError(t, WriteInt32(&buf, 0x01020304))
	assert.Equal(t, []byte{0x12, 0x34, 0x01, 0x02, 0x03, 0x04}, buf.Bytes())
}

func TestPrimitiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "onMetaData"))
	require.NoError(t, WriteNumber(&buf, 30))
	require.NoError(t, WriteBool(&buf, false))

	s, err := ReadString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "onMetaData", s)

	n, err := ReadNumber(&buf)
	require.NoError(t, err)
	assert.Equal(t, float64(30), n)

	b, err := ReadBool(&buf)
	require.NoError(t, err)
	assert.False(t, b)
}

func TestEcmaArrayRoundTrip(t *testing.T) {
	arr := EcmaArray{
		{Name: "width", Value: float64(1280)},
		{Name: "height", Value: float64(720)},
		{Name: "stereo", Value: true},
		{Name: "encoder", Value: "castpack"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEcmaArray(&buf, arr))

	decoded, err := ReadEcmaArray(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, len(arr))
	for i, prop := range arr {
		assert.Equal(t, prop.Name, decoded[i].Name)
		assert.Equal(t, prop.Value, decoded[i].Value)
	}

	w, ok := PropertyValue(decoded, "width")
	require.True(t, ok)
	assert.Equal(t, float64(1280), w)
}

func TestObjectRoundTrip(t *testing.T) {
	obj := Object{
		{Name: "level", Value: "status"},
		{Name: "code", Value: "NetStream.Publish.Start"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, obj))

	decoded, err := ReadObject(&buf)
	require.NoError(t, err)
	assert.Equal(t, obj, decoded)
}

func TestWriteAnyRejectsUnknown(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteAny(&buf, struct{}{}))
}
