// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// castpack remuxes a recorded FLV file to a local file or a live
// transport:
//
//	castpack [flags] <input.flv> <destination>
//
// The destination decides container and transport, e.g. out.ts,
// out.mp4, srt://host:6000?streamid=live or rtmp://host/app/stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/castpack/castpack/av/codec"
	"github.com/castpack/castpack/av/format/flv"
	"github.com/castpack/castpack/config"
	"github.com/castpack/castpack/egress"
	_ "github.com/castpack/castpack/egress/rtmp"
	_ "github.com/castpack/castpack/egress/srt"
	"github.com/castpack/castpack/regulator"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	config.InitConfig()
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input.flv> <destination>\n", config.Name)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := remux(ctx, args[0], args[1], xlog.L()); err != nil {
		xlog.Errorf("%v", err)
		os.Exit(1)
	}
}

func remux(ctx context.Context, input, destination string, logger *xlog.Logger) error {
	videoMeta, audioMeta, frames, err := loadFlv(input, logger)
	if err != nil {
		return err
	}
	logger.Infof("loaded %s: %d frames", input, len(frames))

	endpoint := egress.NewDynamicEndpoint(videoMeta, audioMeta, logger)
	defer endpoint.Release()

	if err := endpoint.Open(ctx, destination); err != nil {
		return err
	}
	if err := endpoint.StartStream(); err != nil {
		return err
	}

	live := endpoint.Descriptor().Scheme != "file" && endpoint.Descriptor().Scheme != ""
	if live && videoMeta != nil {
		stop, err := startRegulator(endpoint, videoMeta, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := writeFrames(ctx, endpoint, frames, live); err != nil {
		return err
	}
	if err := endpoint.StopStream(); err != nil {
		return err
	}
	return endpoint.Close()
}

// loadFlv demuxes the whole input file up front, so the codec
// configuration is known before the endpoint is built.
func loadFlv(path string, logger *xlog.Logger) (*codec.VideoMeta, *codec.AudioMeta, []*codec.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer file.Close()

	reader, err := flv.NewReader(file)
	if err != nil {
		return nil, nil, nil, err
	}

	var sink frameCollector
	demuxer := flv.NewDemuxer(&sink, logger)
	for {
		tag, err := reader.ReadFlvTag()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, nil, nil, err
		}
		if err := demuxer.WriteFlvTag(tag); err != nil {
			return nil, nil, nil, err
		}
	}

	videoMeta, _ := demuxer.VideoMeta()
	audioMeta, _ := demuxer.AudioMeta()
	if videoMeta == nil && audioMeta == nil {
		return nil, nil, nil, errors.New("input has neither video nor audio")
	}
	return videoMeta, audioMeta, sink.frames, nil
}

// writeFrames feeds the endpoint; live destinations are paced by the
// frame timestamps, files drain as fast as possible.
func writeFrames(ctx context.Context, endpoint egress.Endpoint, frames []*codec.Frame, live bool) error {
	start := time.Now()
	var base int64
	if len(frames) > 0 {
		base = frames[0].Dts
	}

	for _, frame := range frames {
		if live {
			due := start.Add(time.Duration(frame.Dts-base) * time.Microsecond)
			if wait := time.Until(due); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := endpoint.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// startRegulator runs bitrate regulation against the endpoint metrics
// for the duration of the session.
func startRegulator(endpoint egress.Endpoint, videoMeta *codec.VideoMeta, logger *xlog.Logger) (stop func(), err error) {
	rcfg := config.Regulator()
	r, err := regulator.New(&reportingEncoder{
		bitrate: int(videoMeta.DataRate * 1000),
		logger:  logger,
	}, endpoint, regulator.Config{
		VideoMinBitrate: rcfg.VideoMinBitrate,
		VideoMaxBitrate: rcfg.VideoMaxBitrate,
		AudioMinBitrate: rcfg.AudioMinBitrate,
		AudioMaxBitrate: rcfg.AudioMaxBitrate,
		Period:          time.Duration(rcfg.PollPeriodMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, err
	}
	r.Start()
	return r.Stop, nil
}

type frameCollector struct {
	frames []*codec.Frame
}

func (c *frameCollector) WriteFrame(frame *codec.Frame) error {
	c.frames = append(c.frames, frame)
	return nil
}

// reportingEncoder stands in for a live encoder: the input is already
// encoded, so regulation targets are only tracked and reported.
type reportingEncoder struct {
	bitrate int
	logger  *xlog.Logger
}

func (e *reportingEncoder) Bitrate() int { return e.bitrate }

func (e *reportingEncoder) SetBitrate(bitrate int) {
	e.logger.Infof("regulator wants video bitrate %d bit/s", bitrate)
	e.bitrate = bitrate
}
