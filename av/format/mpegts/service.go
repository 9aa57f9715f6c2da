// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"fmt"

	"github.com/castpack/castpack/av/codec"
)

// Well-known PIDs and the range usable by elementary streams.
const (
	PidPAT = 0x0000
	PidSDT = 0x0011

	PidMin = 0x0020
	PidMax = 0x1ffe
)

// ISO 13818-1 stream_type values.
const (
	StreamTypeAAC  = 0x0f
	StreamTypeAVC  = 0x1b
	StreamTypeHEVC = 0x24
)

// PES stream ids.
const (
	StreamIDAudio = 0xc0
	StreamIDVideo = 0xe0
)

// Stream is one elementary stream of a service.
type Stream struct {
	MimeType string
	Pid      uint16
	// Discontinuity marks the stream's first packet with the
	// adaptation discontinuity_indicator.
	Discontinuity bool

	streamType byte
	streamID   byte
}

func (s *Stream) prepare() error {
	if s.Pid < PidMin || s.Pid > PidMax {
		return fmt.Errorf("mpegts: stream pid 0x%x outside [0x%x,0x%x]", s.Pid, PidMin, PidMax)
	}

	switch s.MimeType {
	case codec.MimeTypeAAC:
		s.streamType = StreamTypeAAC
		s.streamID = StreamIDAudio
	case codec.MimeTypeAVC:
		s.streamType = StreamTypeAVC
		s.streamID = StreamIDVideo
	case codec.MimeTypeHEVC:
		s.streamType = StreamTypeHEVC
		s.streamID = StreamIDVideo
	default:
		return fmt.Errorf("mpegts: unsupported stream mime type %q", s.MimeType)
	}
	return nil
}

// Service groups one PMT and its elementary streams.
type Service struct {
	Program  uint16 // program_number, non-zero
	PmtPid   uint16
	PcrPid   uint16 // 0 selects the first video stream, else the first stream
	Name     string
	Provider string
	Streams  []*Stream
}

func (svc *Service) prepare() error {
	if svc.Program == 0 {
		return fmt.Errorf("mpegts: service program_number must be non-zero")
	}
	if svc.PmtPid < PidMin || svc.PmtPid > PidMax {
		return fmt.Errorf("mpegts: pmt pid 0x%x outside [0x%x,0x%x]", svc.PmtPid, PidMin, PidMax)
	}
	if len(svc.Streams) == 0 {
		return fmt.Errorf("mpegts: service %d has no streams", svc.Program)
	}

	for _, s := range svc.Streams {
		if err := s.prepare(); err != nil {
			return err
		}
	}

	if svc.PcrPid == 0 {
		svc.PcrPid = svc.Streams[0].Pid
		for _, s := range svc.Streams {
			if codec.MediaTypeOf(s.MimeType) == codec.MediaTypeVideo {
				svc.PcrPid = s.Pid
				break
			}
		}
	}
	return nil
}

func (svc *Service) stream(pid uint16) *Stream {
	for _, s := range svc.Streams {
		if s.Pid == pid {
			return s
		}
	}
	return nil
}
