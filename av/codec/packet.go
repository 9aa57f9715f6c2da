// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// Packet is a muxed slice of the output bitstream, produced by a muxer
// and consumed by exactly one sink.
//
// For stream oriented transports the First/Last flags mark the packet's
// position inside the frame it was cut from, so the sink can preserve
// message boundaries.
type Packet struct {
	MediaType MediaType
	Pts       int64 // µs
	Payload   []byte
	First     bool // first fragment of the originating frame
	Last      bool // last fragment of the originating frame
}

// PacketWriter wraps the WritePacket method.
type PacketWriter interface {
	WritePacket(packet *Packet) error
}

// PacketWriterFunc adapts a function to the PacketWriter interface.
type PacketWriterFunc func(packet *Packet) error

// WritePacket calls f(packet).
func (f PacketWriterFunc) WritePacket(packet *Packet) error { return f(packet) }
