// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/config"
	"github.com/cnotch/xlog"
)

// FileSink writes the muxed stream to a local file.
type FileSink struct {
	ConnState
	logger *xlog.Logger

	mu   sync.Mutex
	file *os.File
	bw   *BufferedWriter

	bytesSent   uint64
	packetsSent uint64
}

// NewFileSink returns an unopened file sink.
func NewFileSink(logger *xlog.Logger) *FileSink {
	return &FileSink{logger: logger}
}

// Open creates (or truncates) the destination file.
func (s *FileSink) Open(ctx context.Context, desc *MediaDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.IsOpen() {
		return ErrAlreadyOpen
	}

	file, err := os.Create(desc.Path)
	if err != nil {
		return fmt.Errorf("egress: create %q: %w", desc.Path, err)
	}

	s.mu.Lock()
	s.file = file
	s.bw = NewBufferedWriter(file,
		WithBufferSize(config.BufferSize()), WithFlushRate(config.FlushRate()))
	s.mu.Unlock()
	return s.Opened(desc.Path)
}

// WritePacket appends the packet payload to the file.
func (s *FileSink) WritePacket(packet *codec.Packet) error {
	if err := s.Guard(); err != nil {
		return err
	}

	s.mu.Lock()
	_, err := s.bw.Write(packet.Payload)
	s.mu.Unlock()
	if err != nil {
		return s.Fail("file write", err)
	}

	atomic.AddUint64(&s.bytesSent, uint64(len(packet.Payload)))
	atomic.AddUint64(&s.packetsSent, 1)
	return nil
}

// Metrics implements Sink.
func (s *FileSink) Metrics() SinkMetrics {
	s.mu.Lock()
	buffered := 0
	if s.bw != nil {
		buffered = s.bw.Buffered()
	}
	s.mu.Unlock()

	return SinkMetrics{
		BytesSent:   atomic.LoadUint64(&s.bytesSent),
		PacketsSent: atomic.LoadUint64(&s.packetsSent),
		Buffered:    buffered,
	}
}

// Close flushes and closes the file; safe to call when never opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	file, bw := s.file, s.bw
	s.file, s.bw = nil, nil
	s.mu.Unlock()
	s.Closed()

	if file == nil {
		return nil
	}
	if _, err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
