// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtmp provides the RTMP publishing sink. Importing it
// registers the "rtmp" scheme with the egress registry.
package rtmp

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/egress"
	"github.com/cnotch/xlog"
	rtmp "github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// Chunk stream IDs used for outgoing messages.
const (
	audioChunkStreamID = 5
	videoChunkStreamID = 6
	dataChunkStreamID  = 8
)

const chunkSize = 128

func init() {
	egress.RegisterSink("rtmp", func(logger *xlog.Logger) egress.Sink {
		return NewSink(logger)
	})
}

// Sink publishes FLV tag packets to an RTMP server.
//
// Interleaving follows the muxer contract: audio packets are held
// back until a video packet with an equal or later timestamp arrives,
// so the server always sees audio before the video frame it belongs
// with.
type Sink struct {
	egress.ConnState
	logger *xlog.Logger

	mu     sync.Mutex
	conn   *rtmp.ClientConn
	stream *rtmp.Stream
	order  interleaver

	buffered    int32 // gauge of held-back audio bytes, readable without mu
	bytesSent   uint64
	packetsSent uint64
}

// NewSink returns an unopened RTMP sink.
func NewSink(logger *xlog.Logger) *Sink {
	return &Sink{logger: logger}
}

// Open dials the server, performs the connect handshake and starts
// publishing desc.StreamID on desc.App.
func (s *Sink) Open(ctx context.Context, desc *egress.MediaDescriptor) error {
	if s.IsOpen() {
		return egress.ErrAlreadyOpen
	}

	type dialResult struct {
		conn *rtmp.ClientConn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := rtmp.Dial("rtmp", desc.Addr, &rtmp.ConnConfig{})
		ch <- dialResult{conn, err}
	}()

	var conn *rtmp.ClientConn
	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("rtmp: dial %s: %w", desc.Addr, res.err)
		}
		conn = res.conn
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return ctx.Err()
	}

	if err := conn.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:   desc.App,
			Type:  "nonprivate",
			TCURL: fmt.Sprintf("rtmp://%s/%s", desc.Addr, desc.App),
		},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("rtmp: connect app %q: %w", desc.App, err)
	}

	stream, err := conn.CreateStream(nil, chunkSize)
	if err != nil {
		conn.Close()
		return fmt.Errorf("rtmp: create stream: %w", err)
	}

	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: desc.StreamID,
		PublishingType: "live",
	}); err != nil {
		conn.Close()
		return fmt.Errorf("rtmp: publish %q: %w", desc.StreamID, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.stream = stream
	s.order.reset()
	s.mu.Unlock()
	s.logger.Infof("rtmp: publishing %s/%s to %s", desc.App, desc.StreamID, desc.Addr)
	return s.Opened(desc.Addr)
}

// WritePacket sends one FLV tag body. Audio is reordered against
// video as described on Sink.
func (s *Sink) WritePacket(packet *codec.Packet) error {
	if err := s.Guard(); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.order.feed(packet, s.send)
	atomic.StoreInt32(&s.buffered, int32(s.order.buffered()))
	s.mu.Unlock()
	if err != nil {
		return s.Fail("rtmp write", err)
	}

	atomic.AddUint64(&s.packetsSent, 1)
	return nil
}

// send writes one message to the publish stream; caller holds the lock.
func (s *Sink) send(packet *codec.Packet) error {
	timestamp := uint32(packet.Pts / 1000) // µs to ms
	body := bytes.NewReader(packet.Payload)

	var csID int
	var msg rtmpmsg.Message
	switch packet.MediaType {
	case codec.MediaTypeAudio:
		csID, msg = audioChunkStreamID, &rtmpmsg.AudioMessage{Payload: body}
	case codec.MediaTypeVideo:
		csID, msg = videoChunkStreamID, &rtmpmsg.VideoMessage{Payload: body}
	default:
		csID, msg = dataChunkStreamID, &rtmpmsg.DataMessage{
			Name:     "@setDataFrame",
			Encoding: rtmpmsg.EncodingTypeAMF0,
			Body:     body,
		}
	}

	if err := s.stream.Write(csID, timestamp, msg); err != nil {
		return err
	}
	atomic.AddUint64(&s.bytesSent, uint64(len(packet.Payload)))
	return nil
}

// Metrics implements egress.Sink without touching the write lock, so
// the regulator never stalls on an in-flight publish.
func (s *Sink) Metrics() egress.SinkMetrics {
	return egress.SinkMetrics{
		BytesSent:   atomic.LoadUint64(&s.bytesSent),
		PacketsSent: atomic.LoadUint64(&s.packetsSent),
		Buffered:    int(atomic.LoadInt32(&s.buffered)),
	}
}

// Close drains held-back audio and closes the connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	var err error
	if conn != nil && s.stream != nil {
		err = s.order.drain(s.send)
	}
	s.stream = nil
	atomic.StoreInt32(&s.buffered, 0)
	s.mu.Unlock()
	s.Closed()

	if conn == nil {
		return nil
	}
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
