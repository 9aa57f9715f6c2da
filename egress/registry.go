// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"fmt"
	"sync"

	"github.com/cnotch/xlog"
)

// SinkFactory builds a fresh, unopened sink.
type SinkFactory func(logger *xlog.Logger) Sink

var (
	registryMu    sync.RWMutex
	sinkFactories = map[string]SinkFactory{}
)

// RegisterSink installs a sink factory for a URI scheme. Optional
// transports (srt, rtmp) call this from their own package init, so
// linking them in is what enables the scheme.
func RegisterSink(scheme string, factory SinkFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := sinkFactories[scheme]; dup {
		panic(fmt.Sprintf("egress: sink scheme %q registered twice", scheme))
	}
	sinkFactories[scheme] = factory
}

// NewSink builds a sink for the scheme, or fails when no transport
// registered it.
func NewSink(scheme string, logger *xlog.Logger) (Sink, error) {
	registryMu.RLock()
	factory, ok := sinkFactories[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("egress: no sink registered for scheme %q", scheme)
	}
	return factory(logger), nil
}

func init() {
	RegisterSink("file", func(logger *xlog.Logger) Sink {
		return NewFileSink(logger)
	})
}
