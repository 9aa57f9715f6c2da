// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/emitter-io/address"
)

// Container identifies the bitstream format written to the sink.
type Container int

// Supported containers.
const (
	ContainerUnknown Container = iota
	ContainerTS
	ContainerFLV
	ContainerFMP4
)

// String returns the container's file extension without the dot.
func (c Container) String() string {
	switch c {
	case ContainerTS:
		return "ts"
	case ContainerFLV:
		return "flv"
	case ContainerFMP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// Default ports for live schemes.
const (
	DefaultRTMPPort = 1935
	DefaultSRTPort  = 6000
)

var containerByExt = map[string]Container{
	".ts":  ContainerTS,
	".flv": ContainerFLV,
	".mp4": ContainerFMP4,
}

// MediaDescriptor is a resolved destination: which container to mux,
// which sink scheme to use and where to send the bytes. Resolved once
// at open time, immutable thereafter.
type MediaDescriptor struct {
	RawURL    string
	Scheme    string // file, srt, rtmp
	Container Container

	// file scheme
	Path string

	// live schemes
	Addr string // host:port, port defaulted per scheme
	App  string // rtmp application name

	// StreamID is the srt streamid parameter or the rtmp stream key.
	StreamID   string
	Passphrase string
	Latency    time.Duration
}

// ParseDescriptor resolves a destination URI. A plain path with no
// scheme is a file destination; the container comes from the path
// extension unless the scheme implies it. Unknown query parameters
// are a parse error rather than being silently ignored.
func ParseDescriptor(raw string) (*MediaDescriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("egress: bad destination %q: %w", raw, err)
	}

	desc := &MediaDescriptor{RawURL: raw, Scheme: u.Scheme}
	switch u.Scheme {
	case "", "file":
		desc.Scheme = "file"
		desc.Path = u.Path
		if u.Opaque != "" {
			desc.Path = u.Opaque
		}
		if desc.Path == "" {
			return nil, fmt.Errorf("egress: file destination %q has no path", raw)
		}
		if err := rejectQuery(raw, u, nil); err != nil {
			return nil, err
		}
		desc.Container = containerByExt[strings.ToLower(path.Ext(desc.Path))]
		if desc.Container == ContainerUnknown {
			return nil, fmt.Errorf("egress: cannot infer container from %q (want .ts, .flv or .mp4)", desc.Path)
		}

	case "srt":
		addr, err := address.Parse(u.Host, DefaultSRTPort)
		if err != nil {
			return nil, fmt.Errorf("egress: bad srt host %q: %w", u.Host, err)
		}
		desc.Addr = addr.String()
		if err := parseSrtQuery(raw, u, desc); err != nil {
			return nil, err
		}
		// SRT carries transport stream payloads
		desc.Container = ContainerTS

	case "rtmp":
		addr, err := address.Parse(u.Host, DefaultRTMPPort)
		if err != nil {
			return nil, fmt.Errorf("egress: bad rtmp host %q: %w", u.Host, err)
		}
		desc.Addr = addr.String()
		// path is app[/subpath]/streamKey
		trimmed := strings.TrimPrefix(u.Path, "/")
		cut := strings.LastIndex(trimmed, "/")
		if cut <= 0 || cut == len(trimmed)-1 {
			return nil, fmt.Errorf("egress: rtmp destination %q needs an app/streamKey path", raw)
		}
		desc.App = trimmed[:cut]
		desc.StreamID = trimmed[cut+1:]
		if err := rejectQuery(raw, u, nil); err != nil {
			return nil, err
		}
		// RTMP messages carry FLV tag bodies
		desc.Container = ContainerFLV

	default:
		return nil, fmt.Errorf("egress: unsupported scheme %q", u.Scheme)
	}

	return desc, nil
}

func parseSrtQuery(raw string, u *url.URL, desc *MediaDescriptor) error {
	known := map[string]bool{"streamid": true, "passphrase": true, "latency": true}
	if err := rejectQuery(raw, u, known); err != nil {
		return err
	}

	query := u.Query()
	desc.StreamID = query.Get("streamid")
	desc.Passphrase = query.Get("passphrase")
	if latency := query.Get("latency"); latency != "" {
		ms, err := strconv.Atoi(latency)
		if err != nil || ms <= 0 {
			return fmt.Errorf("egress: bad latency %q in %q", latency, raw)
		}
		desc.Latency = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func rejectQuery(raw string, u *url.URL, known map[string]bool) error {
	for key := range u.Query() {
		if !known[key] {
			return fmt.Errorf("egress: unknown query parameter %q in %q", key, raw)
		}
	}
	return nil
}
