// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tags := []*Tag{
		{TagType: TagTypeAudio, DataSize: 4, Timestamp: 0, Data: []byte{0xaf, 0x00, 0x12, 0x10}},
		{TagType: TagTypeVideo, DataSize: 3, Timestamp: 40, Data: []byte{0x17, 0x01, 0x65}},
		{TagType: TagTypeVideo, DataSize: 3, Timestamp: 0x1234567, Data: []byte{0x27, 0x01, 0x41}},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, TypeFlagsVideo|TypeFlagsAudio)
	require.NoError(t, err)
	for _, tag := range tags {
		require.NoError(t, w.WriteFlvTag(tag))
	}

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.True(t, r.HasVideo())
	assert.True(t, r.HasAudio())

	for _, want := range tags {
		got, err := r.ReadFlvTag()
		require.NoError(t, err)
		assert.Equal(t, want.TagType, got.TagType)
		assert.Equal(t, want.Timestamp, got.Timestamp)
		assert.Equal(t, want.Data, got.Data)
	}
}

func TestNewReaderRejectsBadSignature(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{'F', 'L', 'X', 0x01, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}))
	assert.Error(t, err)
}

func TestNewWriterRejectsEmptyTypeFlags(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, 0)
	assert.Error(t, err)
}
