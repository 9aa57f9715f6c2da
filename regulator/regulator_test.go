// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package regulator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/castpack/castpack/egress"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct {
	bitrate int
	sets    int
}

func (e *fakeEncoder) Bitrate() int { return e.bitrate }
func (e *fakeEncoder) SetBitrate(bitrate int) {
	e.bitrate = bitrate
	e.sets++
}

type fakeSource struct {
	metrics egress.SinkMetrics
}

func (s *fakeSource) Metrics() egress.SinkMetrics { return s.metrics }

func testConfig() Config {
	return Config{
		VideoMinBitrate: 500_000,
		VideoMaxBitrate: 4_000_000,
		AudioMinBitrate: 128_000,
		AudioMaxBitrate: 128_000,
		Period:          10 * time.Millisecond,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{bitrate: 1_000_000}

	_, err := New(nil, src, testConfig(), xlog.L())
	assert.Error(t, err, "video encoder is mandatory")

	_, err = New(enc, nil, testConfig(), xlog.L())
	assert.Error(t, err)

	bad := testConfig()
	bad.VideoMinBitrate = bad.VideoMaxBitrate + 1
	_, err = New(enc, src, bad, xlog.L())
	assert.Error(t, err)

	bad = testConfig()
	bad.AudioMinBitrate = 0
	_, err = New(enc, src, bad, xlog.L())
	assert.Error(t, err)
}

func TestRegulatorStaysInRange(t *testing.T) {
	cfg := testConfig()
	enc := &fakeEncoder{bitrate: 1_000_000}
	src := &fakeSource{}
	r, err := New(enc, src, cfg, xlog.L())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var sent, lost uint64
	for i := 0; i < 10_000; i++ {
		sent += uint64(rng.Intn(500))
		if rng.Intn(4) == 0 {
			lost += uint64(rng.Intn(200))
		}
		src.metrics = egress.SinkMetrics{
			PacketsSent: sent,
			PacketsLost: lost,
			Buffered:    rng.Intn(64 * 1024),
		}
		r.tick()

		assert.GreaterOrEqual(t, enc.bitrate, cfg.VideoMinBitrate)
		assert.LessOrEqual(t, enc.bitrate, cfg.VideoMaxBitrate)
	}
}

func TestRegulatorClampsWildStrategy(t *testing.T) {
	cfg := testConfig()
	enc := &fakeEncoder{bitrate: 1_000_000}
	r, err := New(enc, &fakeSource{}, cfg, xlog.L(),
		WithStrategy(StrategyFunc(func(egress.SinkMetrics, int) int {
			return 1 << 40
		})))
	require.NoError(t, err)

	r.tick()
	assert.Equal(t, cfg.VideoMaxBitrate, enc.bitrate)

	r, err = New(enc, &fakeSource{}, cfg, xlog.L(),
		WithStrategy(StrategyFunc(func(egress.SinkMetrics, int) int {
			return -1
		})))
	require.NoError(t, err)

	r.tick()
	assert.Equal(t, cfg.VideoMinBitrate, enc.bitrate)
}

func TestRegulatorNoTickAfterStop(t *testing.T) {
	enc := &fakeEncoder{bitrate: 1_000_000}
	r, err := New(enc, &fakeSource{}, testConfig(), xlog.L())
	require.NoError(t, err)

	r.Start()
	r.Start() // idempotent
	r.Stop()
	sets := enc.sets

	// a straggler tick scheduled before Stop must be a no-op
	r.tick()
	assert.Equal(t, sets, enc.sets)

	r.Stop() // idempotent
}

func TestDefaultStrategyBacksOffOnLoss(t *testing.T) {
	s := NewDefaultStrategy()

	next := s.Evaluate(egress.SinkMetrics{PacketsSent: 1000}, 1_000_000)
	assert.Equal(t, 1_050_000, next, "clean link probes up 5%")

	next = s.Evaluate(egress.SinkMetrics{PacketsSent: 2000, PacketsLost: 10}, 1_000_000)
	assert.Less(t, next, 1_000_000)
	assert.GreaterOrEqual(t, next, 500_000, "cut is bounded at 50%")

	// counter restart does not underflow into a huge loss delta
	next = s.Evaluate(egress.SinkMetrics{PacketsSent: 5}, 1_000_000)
	assert.Equal(t, 1_050_000, next)
}
