// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls log output and rotation.
type LogConfig struct {
	// Level is the minimum level that gets written.
	Level xlog.Level `json:"level"`

	// ToFile additionally writes logs to a rotated file.
	ToFile bool `json:"tofile"`

	// Filename is the log file path.
	Filename string `json:"filename"`

	// MaxSize is the maximum log file size in megabytes.
	MaxSize int `json:"maxsize"`

	// MaxDays is how many days old log files are kept.
	MaxDays int `json:"maxdays"`

	// MaxBackups caps the number of old log files.
	// A file is kept only while within MaxDays AND MaxBackups.
	MaxBackups int `json:"maxbackups"`

	// Compress gzips rotated files.
	Compress bool `json:"compress"`
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level to output")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Determines if logs should be saved to file")
	flag.StringVar(&c.Filename, "log-filename",
		"./logs/"+Name+".log", "Set the file to write logs to")
	flag.IntVar(&c.MaxSize, "log-maxsize", 20,
		"Set the maximum size in megabytes of the log file before it gets rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", 7,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", 14,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", false,
		"Determines if the log files should be compressed")
}

// initLogger replaces the global logger per this configuration.
func (c *LogConfig) initLogger() {
	if c.ToFile {
		fileWriter := &lumberjack.Logger{
			Filename:   c.Filename,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxDays,
			LocalTime:  true,
			Compress:   c.Compress,
		}

		xlog.ReplaceGlobal(
			xlog.New(xlog.NewTee(xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile), xlog.Lock(os.Stderr), c.Level),
				xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), fileWriter, c.Level)),
				xlog.AddCaller()))
	} else {
		xlog.ReplaceGlobal(
			xlog.New(xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile), xlog.Lock(os.Stderr), c.Level),
				xlog.AddCaller()))
	}
}
