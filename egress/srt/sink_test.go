// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package srt

import (
	"context"
	"testing"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/egress"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRejectsPassphrase(t *testing.T) {
	s := NewSink(xlog.L())
	desc, err := egress.ParseDescriptor("srt://127.0.0.1:6000?passphrase=secret")
	require.NoError(t, err)

	err = s.Open(context.Background(), desc)
	assert.Error(t, err)
	assert.False(t, s.IsOpen())
}

func TestSinkGuardsBeforeOpen(t *testing.T) {
	s := NewSink(xlog.L())
	err := s.WritePacket(&codec.Packet{Payload: make([]byte, 188)})
	assert.ErrorIs(t, err, egress.ErrNotOpen)
	assert.Zero(t, s.Metrics().PacketsSent)
	assert.NoError(t, s.Close())
}
