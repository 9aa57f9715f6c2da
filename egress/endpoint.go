// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/av/format/flv"
	"github.com/castpack/castpack/av/format/fmp4"
	"github.com/castpack/castpack/av/format/mpegts"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
)

// Elementary stream PIDs used for single-program TS output.
const (
	TsProgram  = 1
	TsPmtPid   = 0x1001
	TsVideoPid = 0x0100
	TsAudioPid = 0x0101
)

// fMP4 track ids.
const (
	Mp4VideoTrack = 1
	Mp4AudioTrack = 2
)

// ErrNotStreaming rejects writes outside a StartStream/StopStream
// session.
var ErrNotStreaming = errors.New("egress: endpoint is not streaming")

// ErrMuxerStopped reports that the packetizer goroutine exited before
// it could serve the request.
var ErrMuxerStopped = errors.New("egress: muxer stopped")

// Endpoint composes one container muxer with one transport sink and
// drives them through a single lifecycle.
type Endpoint interface {
	Open(ctx context.Context, destination string) error
	StartStream() error
	// WriteFrame enqueues a frame for the packetizer goroutine;
	// muxing errors are reported through the logger and the
	// connection listener, not this call.
	WriteFrame(frame *codec.Frame) error
	StopStream() error
	Close() error
	// Release tears everything down; idempotent, callable from any
	// state.
	Release()

	SetListener(l ConnectionListener)
	Metrics() SinkMetrics
	Descriptor() *MediaDescriptor
}

// muxerFront adapts one container muxer to the endpoint's frame feed.
type muxerFront interface {
	WriteFrame(frame *codec.Frame) error
	// Finish flushes whatever the container buffers across frames.
	Finish() error
}

type endpointState int

const (
	stateIdle endpointState = iota
	stateOpen
	stateStreaming
	stateClosed
)

// DynamicEndpoint selects the muxer/sink pair at open time from the
// destination descriptor: container by URI extension (or scheme), sink
// by URI scheme through the registry.
type DynamicEndpoint struct {
	logger    *xlog.Logger
	videoMeta *codec.VideoMeta
	audioMeta *codec.AudioMeta

	mu    sync.Mutex
	state endpointState
	desc  *MediaDescriptor
	sink  Sink
	front muxerFront

	listener  ConnectionListener
	recvQueue *queue.SyncQueue
	pumpDone  chan struct{}
}

// finishCmd asks the pump to flush the muxer tail synchronously.
type finishCmd struct {
	done chan error
}

// NewDynamicEndpoint returns an endpoint for the given track set; nil
// metas disable the corresponding track.
func NewDynamicEndpoint(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, logger *xlog.Logger) *DynamicEndpoint {
	return &DynamicEndpoint{
		logger:    logger,
		videoMeta: videoMeta,
		audioMeta: audioMeta,
		recvQueue: queue.NewSyncQueue(),
	}
}

// Open resolves the destination, connects the sink and binds the
// muxer. Cancelling ctx aborts the connect and leaves the endpoint
// idle.
func (e *DynamicEndpoint) Open(ctx context.Context, destination string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return ErrAlreadyOpen
	}

	desc, err := ParseDescriptor(destination)
	if err != nil {
		return err
	}
	sink, err := NewSink(desc.Scheme, e.logger)
	if err != nil {
		return err
	}
	sink.SetListener(e.listener)

	if err := sink.Open(ctx, desc); err != nil {
		return err
	}
	front, err := e.buildFront(desc, sink)
	if err != nil {
		sink.Close()
		return err
	}

	e.desc = desc
	e.sink = sink
	e.front = front
	e.state = stateOpen
	e.pumpDone = make(chan struct{})
	go e.pump()
	return nil
}

// SetListener installs the connection listener; effective for sinks
// opened afterwards.
func (e *DynamicEndpoint) SetListener(l ConnectionListener) {
	e.mu.Lock()
	e.listener = l
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.SetListener(l)
	}
}

// StartStream begins an active session.
func (e *DynamicEndpoint) StartStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return ErrNotOpen
	}
	e.state = stateStreaming
	return nil
}

// WriteFrame implements Endpoint.
func (e *DynamicEndpoint) WriteFrame(frame *codec.Frame) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	switch state {
	case stateStreaming:
	case stateIdle, stateClosed:
		return ErrNotOpen
	default:
		return ErrNotStreaming
	}

	e.recvQueue.Push(frame)
	return nil
}

// StopStream ends the session and flushes the container tail; frames
// already queued are muxed first.
func (e *DynamicEndpoint) StopStream() error {
	e.mu.Lock()
	if e.state != stateStreaming {
		e.mu.Unlock()
		return ErrNotStreaming
	}
	e.state = stateOpen
	pumpDone := e.pumpDone
	e.mu.Unlock()

	cmd := finishCmd{done: make(chan error, 1)}
	e.recvQueue.Push(cmd)
	select {
	case err := <-cmd.done:
		return err
	case <-pumpDone:
		// the pump died (panic) before or while serving the flush
		return ErrMuxerStopped
	}
}

// Close stops the pump and tears down muxer and sink.
func (e *DynamicEndpoint) Close() error {
	e.mu.Lock()
	if e.state == stateIdle || e.state == stateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = stateClosed
	sink := e.sink
	pumpDone := e.pumpDone
	e.mu.Unlock()

	e.recvQueue.Signal()
	if pumpDone != nil {
		<-pumpDone
	}

	var err error
	if sink != nil {
		err = sink.Close()
	}
	return err
}

// Release implements Endpoint.
func (e *DynamicEndpoint) Release() {
	if err := e.Close(); err != nil {
		e.logger.Warnf("egress: close on release: %v", err)
	}
	e.recvQueue.Reset()

	e.mu.Lock()
	e.state = stateClosed
	e.sink = nil
	e.front = nil
	e.mu.Unlock()
}

// Metrics returns the bound sink's transport metrics.
func (e *DynamicEndpoint) Metrics() SinkMetrics {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink == nil {
		return SinkMetrics{}
	}
	return sink.Metrics()
}

// Descriptor returns the resolved destination, nil before Open.
func (e *DynamicEndpoint) Descriptor() *MediaDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desc
}

// pump is the single packetizer goroutine: it serializes all muxer
// access, so per-track ordering is the caller's only obligation.
func (e *DynamicEndpoint) pump() {
	defer close(e.pumpDone)
	defer func() {
		defer func() { // guard against a panicking logger
			recover()
		}()

		if r := recover(); r != nil {
			e.logger.Errorf("egress: pump panic: r = %v \n %s", r, debug.Stack())
		}

		e.recvQueue.Reset()
	}()

	for {
		e.mu.Lock()
		closedState := e.state == stateClosed
		front := e.front
		e.mu.Unlock()
		if closedState {
			return
		}

		item := e.recvQueue.Pop()
		switch v := item.(type) {
		case nil:
			// Signal() during Close
		case *codec.Frame:
			if err := front.WriteFrame(v); err != nil {
				e.logger.Errorf("egress: mux frame: %v", err)
			}
		case finishCmd:
			v.done <- front.Finish()
		}
	}
}

// buildFront constructs the container muxer bound to the sink.
func (e *DynamicEndpoint) buildFront(desc *MediaDescriptor, sink Sink) (muxerFront, error) {
	switch desc.Container {
	case ContainerTS:
		return newTsFront(e.videoMeta, e.audioMeta, sink, e.logger)
	case ContainerFLV:
		if desc.Scheme == "rtmp" {
			return newFlvFront(e.videoMeta, e.audioMeta, &tagPacketWriter{sink: sink}, e.logger)
		}
		return newFlvFileFront(e.videoMeta, e.audioMeta, sink, e.logger)
	case ContainerFMP4:
		return newFmp4Front(e.videoMeta, e.audioMeta, sink, e.logger)
	default:
		return nil, fmt.Errorf("egress: no muxer for container %s", desc.Container)
	}
}

// ---- TS ----

type tsFront struct {
	muxer *mpegts.Muxer
}

func newTsFront(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, sink Sink, logger *xlog.Logger) (*tsFront, error) {
	svc := &mpegts.Service{
		Program: TsProgram,
		PmtPid:  TsPmtPid,
		Name:    "castpack",
	}
	if videoMeta != nil {
		svc.Streams = append(svc.Streams, &mpegts.Stream{MimeType: videoMeta.MimeType, Pid: TsVideoPid})
	}
	if audioMeta != nil {
		svc.Streams = append(svc.Streams, &mpegts.Stream{MimeType: audioMeta.MimeType, Pid: TsAudioPid})
	}

	muxer := mpegts.NewMuxer(sink, logger)
	if err := muxer.AddService(svc); err != nil {
		return nil, err
	}
	return &tsFront{muxer: muxer}, nil
}

func (f *tsFront) WriteFrame(frame *codec.Frame) error {
	pid := uint16(TsAudioPid)
	if frame.IsVideo() {
		pid = TsVideoPid
	}
	return f.muxer.WriteFrame(frame, pid)
}

func (f *tsFront) Finish() error { return nil }

// ---- FLV ----

type flvFront struct {
	muxer *flv.Muxer
}

func newFlvFront(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, tw flv.TagWriter, logger *xlog.Logger) (*flvFront, error) {
	muxer, err := flv.NewMuxer(videoMeta, audioMeta, tw, logger)
	if err != nil {
		return nil, err
	}
	return &flvFront{muxer: muxer}, nil
}

// newFlvFileFront frames tags with the FLV file header and
// PreviousTagSize chain before they reach the sink.
func newFlvFileFront(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, sink Sink, logger *xlog.Logger) (*flvFront, error) {
	typeFlags := byte(0)
	if videoMeta != nil {
		typeFlags |= flv.TypeFlagsVideo
	}
	if audioMeta != nil {
		typeFlags |= flv.TypeFlagsAudio
	}
	fileWriter, err := flv.NewWriter(&sinkWriter{sink: sink}, typeFlags)
	if err != nil {
		return nil, err
	}
	return newFlvFront(videoMeta, audioMeta, fileWriter, logger)
}

func (f *flvFront) WriteFrame(frame *codec.Frame) error {
	return f.muxer.WriteFrame(frame)
}

func (f *flvFront) Finish() error { return nil }

// sinkWriter adapts a Sink to io.Writer for byte-stream containers.
type sinkWriter struct {
	sink Sink
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	payload := make([]byte, len(p))
	copy(payload, p)
	err := w.sink.WritePacket(&codec.Packet{
		MediaType: codec.MediaTypeUnknown,
		Payload:   payload,
		First:     true,
		Last:      true,
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// tagPacketWriter forwards bare tag bodies as typed packets, the form
// message-oriented sinks (RTMP) consume.
type tagPacketWriter struct {
	sink Sink
}

func (w *tagPacketWriter) WriteFlvTag(tag *flv.Tag) error {
	mediaType := codec.MediaTypeUnknown
	switch tag.TagType {
	case flv.TagTypeVideo:
		mediaType = codec.MediaTypeVideo
	case flv.TagTypeAudio:
		mediaType = codec.MediaTypeAudio
	}
	return w.sink.WritePacket(&codec.Packet{
		MediaType: mediaType,
		Pts:       int64(tag.Timestamp) * 1000,
		Payload:   tag.Data,
		First:     true,
		Last:      true,
	})
}

// ---- fMP4 ----

type fmp4Front struct {
	muxer *fmp4.Muxer
}

func newFmp4Front(videoMeta *codec.VideoMeta, audioMeta *codec.AudioMeta, sink Sink, logger *xlog.Logger) (*fmp4Front, error) {
	var tracks []*fmp4.Track
	if videoMeta != nil {
		tracks = append(tracks, &fmp4.Track{
			ID:        Mp4VideoTrack,
			MimeType:  videoMeta.MimeType,
			DataRate:  uint32(videoMeta.DataRate * 1000),
			Width:     videoMeta.Width,
			Height:    videoMeta.Height,
			FrameRate: videoMeta.FrameRate,
			Sps:       videoMeta.Sps,
			Pps:       videoMeta.Pps,
		})
	}
	if audioMeta != nil {
		tracks = append(tracks, &fmp4.Track{
			ID:         Mp4AudioTrack,
			MimeType:   audioMeta.MimeType,
			DataRate:   uint32(audioMeta.DataRate * 1000),
			SampleRate: audioMeta.SampleRate,
			Channels:   audioMeta.Channels,
			Config:     audioMeta.Config,
		})
	}

	muxer, err := fmp4.NewMuxer(tracks, sink, logger)
	if err != nil {
		return nil, err
	}
	return &fmp4Front{muxer: muxer}, nil
}

func (f *fmp4Front) WriteFrame(frame *codec.Frame) error {
	id := uint32(Mp4AudioTrack)
	if frame.IsVideo() {
		id = Mp4VideoTrack
	}
	return f.muxer.WriteFrame(frame, id)
}

func (f *fmp4Front) Finish() error { return f.muxer.Flush() }
