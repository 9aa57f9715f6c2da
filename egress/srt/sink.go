// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package srt provides the SRT transport sink. Importing it registers
// the "srt" scheme with the egress registry.
package srt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/egress"
	"github.com/cnotch/xlog"
	srtgo "github.com/zsiec/srtgo"
)

// PayloadSize is 7 transport packets per SRT message, the standard
// live payload size.
const PayloadSize = 7 * 188

// DefaultLatency is applied when the descriptor carries none.
const DefaultLatency = 120 * time.Millisecond

func init() {
	egress.RegisterSink("srt", func(logger *xlog.Logger) egress.Sink {
		return NewSink(logger)
	})
}

// Sink streams transport packets over an SRT caller connection,
// batching them into PayloadSize messages.
type Sink struct {
	egress.ConnState
	logger *xlog.Logger

	mu    sync.Mutex
	conn  *srtgo.Conn
	batch []byte

	buffered    int32 // gauge of len(batch), readable without mu
	bytesSent   uint64
	packetsSent uint64
}

// NewSink returns an unopened SRT sink.
func NewSink(logger *xlog.Logger) *Sink {
	return &Sink{
		logger: logger,
		batch:  make([]byte, 0, PayloadSize),
	}
}

// Open dials the remote in caller mode. The dial runs in its own
// goroutine so ctx cancellation leaves the sink not-open.
func (s *Sink) Open(ctx context.Context, desc *egress.MediaDescriptor) error {
	if s.IsOpen() {
		return egress.ErrAlreadyOpen
	}
	if desc.Passphrase != "" {
		return errors.New("srt: passphrase encryption is not supported by this transport")
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = DefaultLatency
	if desc.Latency > 0 {
		cfg.Latency = desc.Latency
	}
	cfg.StreamID = desc.StreamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(desc.Addr, cfg)
		ch <- dialResult{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("srt: dial %s: %w", desc.Addr, res.err)
		}
		s.mu.Lock()
		s.conn = res.conn
		s.batch = s.batch[:0]
		s.mu.Unlock()
		s.logger.Infof("srt: connected to %s (latency %s)", desc.Addr, cfg.Latency)
		return s.Opened(desc.Addr)
	case <-ctx.Done():
		// close a late connection in the background
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return ctx.Err()
	}
}

// WritePacket batches the payload and sends full SRT messages.
func (s *Sink) WritePacket(packet *codec.Packet) error {
	if err := s.Guard(); err != nil {
		return err
	}

	s.mu.Lock()
	s.batch = append(s.batch, packet.Payload...)
	for len(s.batch) >= PayloadSize {
		if err := s.send(s.conn, s.batch[:PayloadSize]); err != nil {
			s.mu.Unlock()
			return s.Fail("srt write", err)
		}
		s.batch = s.batch[:copy(s.batch, s.batch[PayloadSize:])]
	}
	atomic.StoreInt32(&s.buffered, int32(len(s.batch)))
	s.mu.Unlock()

	atomic.AddUint64(&s.packetsSent, 1)
	return nil
}

// send writes one message; caller holds the lock.
func (s *Sink) send(conn *srtgo.Conn, message []byte) error {
	n, err := conn.Write(message)
	if err != nil {
		return err
	}
	atomic.AddUint64(&s.bytesSent, uint64(n))
	return nil
}

// Metrics implements egress.Sink without touching the write lock, so
// the regulator never stalls on an in-flight socket write. srtgo
// exposes no receiver-side statistics, so loss stays zero here.
func (s *Sink) Metrics() egress.SinkMetrics {
	return egress.SinkMetrics{
		BytesSent:   atomic.LoadUint64(&s.bytesSent),
		PacketsSent: atomic.LoadUint64(&s.packetsSent),
		Buffered:    int(atomic.LoadInt32(&s.buffered)),
	}
}

// Close flushes the pending partial message and closes the socket.
func (s *Sink) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	var err error
	if conn != nil && len(s.batch) > 0 {
		err = s.send(conn, s.batch)
		s.batch = s.batch[:0]
	}
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
