// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package egress routes muxed packet streams to transport sinks: a
// destination descriptor picks a container muxer and a sink
// implementation from a registry, and an Endpoint drives the pair
// through one open/write/close lifecycle.
package egress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/castpack/castpack/av/codec"
)

// State errors shared by all sinks and endpoints.
var (
	ErrNotOpen     = errors.New("egress: not open")
	ErrAlreadyOpen = errors.New("egress: already open")
)

// SinkMetrics is a point-in-time snapshot of a sink's transport
// health, polled by the bitrate regulator.
type SinkMetrics struct {
	BytesSent   uint64
	PacketsSent uint64
	PacketsLost uint64
	Buffered    int // bytes queued but not yet on the wire
}

// ConnectionListener receives asynchronous transport state changes.
// Callbacks run on the sink's goroutine and must not block.
type ConnectionListener interface {
	OnConnected(remote string)
	// OnConnectionLost fires exactly once per failure episode.
	OnConnectionLost(err error)
}

// Sink owns one transport connection (or file) and consumes the muxed
// packet stream.
type Sink interface {
	codec.PacketWriter

	// Open resolves the descriptor and establishes the transport.
	// Cancelling ctx during the dial leaves the sink not-open.
	Open(ctx context.Context, desc *MediaDescriptor) error
	SetListener(l ConnectionListener)
	Metrics() SinkMetrics
	Close() error
}

// SinkError is a latched transport failure; every write after the
// first failure of an episode returns one until the sink is reopened.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("egress: %s: %v", e.Op, e.Err) }

// Unwrap returns the transport error.
func (e *SinkError) Unwrap() error { return e.Err }

// ConnState is the open/error latch embedded by sink implementations.
// It reports connection loss to the listener once per episode.
type ConnState struct {
	mu       sync.Mutex
	open     bool
	latched  *SinkError
	listener ConnectionListener
}

// SetListener installs the connection listener; nil detaches it.
func (s *ConnState) SetListener(l ConnectionListener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Opened transitions to open, rejecting a double open.
func (s *ConnState) Opened(remote string) error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.open = true
	s.latched = nil
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.OnConnected(remote)
	}
	return nil
}

// Guard rejects writes on a closed or latched sink.
func (s *ConnState) Guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	if s.latched != nil {
		return s.latched
	}
	return nil
}

// Fail latches the first transport error of an episode and notifies
// the listener; repeats return the already-latched error.
func (s *ConnState) Fail(op string, err error) error {
	s.mu.Lock()
	if s.latched != nil {
		latched := s.latched
		s.mu.Unlock()
		return latched
	}
	s.latched = &SinkError{Op: op, Err: err}
	latched := s.latched
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.OnConnectionLost(latched)
	}
	return latched
}

// Closed transitions back to not-open; idempotent.
func (s *ConnState) Closed() {
	s.mu.Lock()
	s.open = false
	s.latched = nil
	s.mu.Unlock()
}

// IsOpen reports the current open state.
func (s *ConnState) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
