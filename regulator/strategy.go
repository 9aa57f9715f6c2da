// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package regulator

import "github.com/castpack/castpack/egress"

// Strategy computes the next video bitrate from a metrics snapshot
// and the current bitrate. The result is clamped by the Regulator, so
// a strategy may over- or undershoot the configured range.
type Strategy interface {
	Evaluate(metrics egress.SinkMetrics, current int) int
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(metrics egress.SinkMetrics, current int) int

// Evaluate implements Strategy.
func (f StrategyFunc) Evaluate(metrics egress.SinkMetrics, current int) int {
	return f(metrics, current)
}

// DefaultStrategy backs off multiplicatively on congestion and probes
// upward gently when the link is clean.
//
// Congestion is detected from the delta of lost packets between two
// ticks: the bitrate is cut by 10% for light loss up to 50% for heavy
// loss. Without new loss the bitrate grows by 5% per tick.
type DefaultStrategy struct {
	lastLost uint64
	lastSent uint64
}

// NewDefaultStrategy returns a fresh strategy with no loss history.
func NewDefaultStrategy() *DefaultStrategy {
	return &DefaultStrategy{}
}

// Evaluate implements Strategy.
func (s *DefaultStrategy) Evaluate(metrics egress.SinkMetrics, current int) int {
	if metrics.PacketsLost < s.lastLost || metrics.PacketsSent < s.lastSent {
		// counters restarted (sink reconnect), start a new history
		s.lastLost, s.lastSent = 0, 0
	}
	lost := metrics.PacketsLost - s.lastLost
	sent := metrics.PacketsSent - s.lastSent
	s.lastLost = metrics.PacketsLost
	s.lastSent = metrics.PacketsSent

	if lost == 0 {
		return current + current/20
	}

	// loss ratio over this tick's traffic, cut 10%..50%
	total := sent + lost
	cut := current / 10
	if deep := int(uint64(current) * lost / (2 * total)); deep > cut {
		cut = deep
	}
	return current - cut
}
