// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mpegts implements a single- or multi-program MPEG-TS muxer:
// PSI section generation (PAT/PMT/SDT), PES packetization with
// PTS/DTS, and 188-byte transport packet slicing with continuity
// counters, adaptation-field stuffing and PCR insertion.
package mpegts

import (
	"errors"
	"fmt"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/av/codec/aac"
	"github.com/cnotch/xlog"
)

// Defaults for the muxer options.
const (
	DefaultPsiIntervalMs = 500
	DefaultPcrIntervalMs = 100 // ISO 13818-1: at most 100 ms between PCRs

	defaultTransportStreamID = 0x0001
)

// Registration and write errors.
var (
	ErrMuxerStarted  = errors.New("mpegts: service set is frozen once streaming starts")
	ErrUnknownPid    = errors.New("mpegts: no stream registered for pid")
	ErrNoAudioConfig = errors.New("mpegts: aac stream needs an AudioSpecificConfig before raw frames")
)

type trackState struct {
	stream  *Stream
	service *Service

	discontinuitySent bool

	// cached codec config, refreshed from Frame.Extra
	asc      *aac.AudioSpecificConfig
	sps, pps []byte
	vps      []byte
}

// Muxer emits a transport stream as codec.Packets, one per 188-byte
// transport packet.
type Muxer struct {
	pw     codec.PacketWriter
	logger *xlog.Logger

	tsID     uint16
	services []*Service
	tracks   map[uint16]*trackState
	version  byte

	psiInterval int64 // µs
	lastPsiPts  int64 // µs; -1 forces PSI before the first media packet
	started     bool

	ptz *packetizer
}

// Option configures a Muxer.
type Option func(*Muxer)

// WithPsiInterval sets the PAT/PMT/SDT refresh interval in ms.
func WithPsiInterval(ms int) Option {
	return func(m *Muxer) { m.psiInterval = int64(ms) * 1000 }
}

// WithPcrInterval bounds the PCR spacing in ms.
func WithPcrInterval(ms int) Option {
	return func(m *Muxer) { m.ptz.pcrInterval = int64(ms) * 90 }
}

// WithTransportStreamID overrides the default transport_stream_id.
func WithTransportStreamID(id uint16) Option {
	return func(m *Muxer) { m.tsID = id }
}

// NewMuxer returns a muxer writing transport packets to pw. Services
// must be registered before the first WriteFrame.
func NewMuxer(pw codec.PacketWriter, logger *xlog.Logger, opts ...Option) *Muxer {
	muxer := &Muxer{
		pw:          pw,
		logger:      logger,
		tsID:        defaultTransportStreamID,
		tracks:      make(map[uint16]*trackState),
		psiInterval: DefaultPsiIntervalMs * 1000,
		lastPsiPts:  -1,
		ptz:         newPacketizer(pw, DefaultPcrIntervalMs*90),
	}
	for _, opt := range opts {
		opt(muxer)
	}
	return muxer
}

// AddService registers a service and its elementary streams.
func (muxer *Muxer) AddService(svc *Service) error {
	if muxer.started {
		return ErrMuxerStarted
	}
	if err := svc.prepare(); err != nil {
		return err
	}

	used := map[uint16]string{PidPAT: "PAT", PidSDT: "SDT"}
	for _, existing := range muxer.services {
		used[existing.PmtPid] = "PMT"
		for _, s := range existing.Streams {
			used[s.Pid] = s.MimeType
		}
	}
	if owner, clash := used[svc.PmtPid]; clash {
		return fmt.Errorf("mpegts: pmt pid 0x%x already used by %s", svc.PmtPid, owner)
	}
	used[svc.PmtPid] = "PMT"
	for _, s := range svc.Streams {
		if owner, clash := used[s.Pid]; clash {
			return fmt.Errorf("mpegts: stream pid 0x%x already used by %s", s.Pid, owner)
		}
		used[s.Pid] = s.MimeType
	}

	muxer.services = append(muxer.services, svc)
	for _, s := range svc.Streams {
		muxer.tracks[s.Pid] = &trackState{stream: s, service: svc}
	}
	muxer.ptz.markPcrPid(svc.PcrPid)
	muxer.version = (muxer.version + 1) & 0x1f
	return nil
}

// RemoveService unregisters the service with the given program number.
func (muxer *Muxer) RemoveService(program uint16) error {
	if muxer.started {
		return ErrMuxerStarted
	}
	for i, svc := range muxer.services {
		if svc.Program != program {
			continue
		}
		muxer.services = append(muxer.services[:i], muxer.services[i+1:]...)
		for _, s := range svc.Streams {
			delete(muxer.tracks, s.Pid)
		}
		muxer.version = (muxer.version + 1) & 0x1f
		return nil
	}
	return fmt.Errorf("mpegts: no service with program number %d", program)
}

// WriteFrame packetizes one frame for the elementary stream on pid.
// The PSI tables are flushed first whenever a refresh is due, so a
// decoder never sees stream packets ahead of the tables describing
// them.
func (muxer *Muxer) WriteFrame(frame *codec.Frame, pid uint16) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	track, ok := muxer.tracks[pid]
	if !ok {
		return fmt.Errorf("%w 0x%x", ErrUnknownPid, pid)
	}
	if len(muxer.services) == 0 {
		return errors.New("mpegts: no services registered")
	}
	muxer.started = true

	if muxer.lastPsiPts < 0 || frame.Pts-muxer.lastPsiPts >= muxer.psiInterval {
		// a failed table build loses this refresh only, the next
		// frame retries; media packetization still proceeds
		if err := muxer.writePSI(frame.Pts); err != nil {
			muxer.logger.Warnf("mpegts: psi emission failed: %v", err)
		} else {
			muxer.lastPsiPts = frame.Pts
		}
	}

	pes := &pesFrame{
		pid:      pid,
		streamID: track.stream.streamID,
		pts:      frame.Pts90kHz(),
		dts:      frame.Dts90kHz(),
		payload:  frame.Payload,
		key:      frame.KeyFrame,
	}
	if track.stream.Discontinuity && !track.discontinuitySent {
		pes.discontinuity = true
		track.discontinuitySent = true
	}

	switch track.stream.MimeType {
	case codec.MimeTypeAVC:
		if len(frame.Extra) >= 2 {
			track.sps, track.pps = frame.Extra[0], frame.Extra[1]
		}
		pes.prepareAvcHeader(track.sps, track.pps)
	case codec.MimeTypeHEVC:
		if len(frame.Extra) >= 3 {
			track.vps, track.sps, track.pps = frame.Extra[0], frame.Extra[1], frame.Extra[2]
		}
		pes.prepareHevcHeader(track.vps, track.sps, track.pps)
	case codec.MimeTypeAAC:
		if track.asc == nil {
			if len(frame.Extra) == 0 {
				return ErrNoAudioConfig
			}
			asc := new(aac.AudioSpecificConfig)
			if err := asc.Decode(frame.Extra[0]); err != nil {
				return err
			}
			track.asc = asc
		}
		pes.prepareAacHeader(track.asc)
	}

	return muxer.ptz.writePES(pes, frame.MediaType(), frame.Pts)
}

// writePSI emits PAT, every PMT and the SDT. A failed table build
// aborts only this emission attempt.
func (muxer *Muxer) writePSI(pts int64) error {
	pat, err := buildPAT(muxer.tsID, muxer.version, muxer.services)
	if err != nil {
		return err
	}
	if err := muxer.ptz.writeSection(PidPAT, pts, pat); err != nil {
		return err
	}

	for _, svc := range muxer.services {
		pmt, err := buildPMT(muxer.version, svc)
		if err != nil {
			return err
		}
		if err := muxer.ptz.writeSection(svc.PmtPid, pts, pmt); err != nil {
			return err
		}
	}

	sdt, err := buildSDT(muxer.tsID, muxer.version, muxer.services)
	if err != nil {
		return err
	}
	return muxer.ptz.writeSection(PidSDT, pts, sdt)
}
