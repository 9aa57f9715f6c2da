// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package regulator closes the loop between transport metrics and the
// video encoder's target bitrate.
package regulator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/castpack/castpack/egress"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

// DefaultPeriod is the polling period applied when Config.Period is zero.
const DefaultPeriod = 500 * time.Millisecond

// Encoder is the controllable side of a media encoder. Bitrate values
// are bits per second.
type Encoder interface {
	Bitrate() int
	SetBitrate(bitrate int)
}

// MetricsSource yields a snapshot of live transport metrics.
// egress.Sink and egress.Endpoint both satisfy it.
type MetricsSource interface {
	Metrics() egress.SinkMetrics
}

// Config bounds the bitrates the regulator may set. The audio range
// is carried for completeness; the regulator never adjusts audio, so
// it is typically a fixed point (min == max).
type Config struct {
	VideoMinBitrate int
	VideoMaxBitrate int
	AudioMinBitrate int
	AudioMaxBitrate int
	Period          time.Duration
}

// Validate checks range ordering.
func (c *Config) Validate() error {
	if c.VideoMinBitrate <= 0 || c.VideoMinBitrate > c.VideoMaxBitrate {
		return fmt.Errorf("regulator: invalid video bitrate range [%d,%d]",
			c.VideoMinBitrate, c.VideoMaxBitrate)
	}
	if c.AudioMinBitrate <= 0 || c.AudioMinBitrate > c.AudioMaxBitrate {
		return fmt.Errorf("regulator: invalid audio bitrate range [%d,%d]",
			c.AudioMinBitrate, c.AudioMaxBitrate)
	}
	return nil
}

// Regulator periodically reads transport metrics and rewrites the
// video encoder's target bitrate, clamped to the configured range.
type Regulator struct {
	config   Config
	video    Encoder
	audio    Encoder
	source   MetricsSource
	strategy Strategy
	logger   *xlog.Logger

	mu      sync.Mutex // serializes ticks against Stop
	job     *scheduler.ManagedJob
	stopped bool
}

// Option customizes a Regulator.
type Option func(*Regulator)

// WithStrategy replaces the default regulation strategy.
func WithStrategy(strategy Strategy) Option {
	return func(r *Regulator) { r.strategy = strategy }
}

// WithAudioEncoder attaches the audio encoder. It is observed for
// logging only; audio bitrate is never adjusted.
func WithAudioEncoder(audio Encoder) Option {
	return func(r *Regulator) { r.audio = audio }
}

// New creates a stopped Regulator. The video encoder is mandatory.
func New(video Encoder, source MetricsSource, config Config, logger *xlog.Logger, opts ...Option) (*Regulator, error) {
	if video == nil {
		return nil, errors.New("regulator: video encoder is required")
	}
	if source == nil {
		return nil, errors.New("regulator: metrics source is required")
	}
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Regulator{
		config:   config,
		video:    video,
		source:   source,
		strategy: NewDefaultStrategy(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start begins periodic evaluation. It is a no-op while running.
func (r *Regulator) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job != nil {
		return
	}
	r.stopped = false
	r.job, _ = scheduler.PeriodFunc(r.config.Period, r.config.Period, r.tick,
		"bitrate regulation tick")
}

// Stop cancels the periodic job. When it returns no further tick will
// touch the encoder; a tick already in flight has completed.
func (r *Regulator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job == nil {
		return
	}
	r.job.Cancel()
	r.job = nil
	r.stopped = true
}

func (r *Regulator) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.evaluate(r.source.Metrics())
}

// evaluate runs one regulation step; caller holds the lock.
func (r *Regulator) evaluate(metrics egress.SinkMetrics) {
	current := r.clamp(r.video.Bitrate())
	target := r.clamp(r.strategy.Evaluate(metrics, current))
	if target == current {
		return
	}
	r.logger.Debugf("regulator: video bitrate %d -> %d (lost=%d buffered=%d)",
		current, target, metrics.PacketsLost, metrics.Buffered)
	r.video.SetBitrate(target)
}

func (r *Regulator) clamp(bitrate int) int {
	if bitrate < r.config.VideoMinBitrate {
		return r.config.VideoMinBitrate
	}
	if bitrate > r.config.VideoMaxBitrate {
		return r.config.VideoMaxBitrate
	}
	return bitrate
}
