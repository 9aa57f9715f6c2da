// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// config holds the engine configuration loaded from file, env and flags.
type config struct {
	BufferSize int             `json:"buffersize"` // sink write buffer size in bytes
	FlushRate  int             `json:"flushrate"`  // buffered sink flushes per second
	Regulator  RegulatorConfig `json:"regulator"`  // bitrate regulation ranges
	Log        LogConfig       `json:"log"`        // logging
}

func (c *config) initFlags() {
	flag.IntVar(&c.BufferSize, "buffersize", 64*1024,
		"Set the sink write buffer size in bytes")
	flag.IntVar(&c.FlushRate, "flushrate", 50,
		"Set how many times per second buffered sinks flush")

	c.Regulator.initFlags()
	c.Log.initFlags()
}
