// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the engine configuration from a JSON file,
// environment variables and command-line flags, in that order.
package config

import (
	"os"
	"path/filepath"
	"strings"

	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// Identity of the program.
const (
	Vendor  = "CAOHONGJU"
	Name    = "castpack"
	Version = "V1.0.0"
)

var globalC *config

// InitConfig loads the configuration and initializes the global logger.
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		xlog.Panic(err.Error())
	}

	globalC.Log.initLogger()
}

// BufferSize is the write buffer size for buffered sinks.
func BufferSize() int {
	if globalC == nil || globalC.BufferSize <= 0 {
		return 64 * 1024
	}
	return globalC.BufferSize
}

// FlushRate is how many times per second buffered sinks flush.
func FlushRate() int {
	if globalC == nil || globalC.FlushRate <= 0 {
		return 50
	}
	return globalC.FlushRate
}

// Regulator reports the configured bitrate regulation ranges.
func Regulator() RegulatorConfig {
	if globalC == nil {
		return RegulatorConfig{
			VideoMinBitrate: 500_000,
			VideoMaxBitrate: 4_000_000,
			AudioMinBitrate: 128_000,
			AudioMaxBitrate: 128_000,
			PollPeriodMs:    500,
		}
	}
	return globalC.Regulator
}
