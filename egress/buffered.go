// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package egress

import (
	"bytes"
	"io"
	"time"

	"github.com/kelindar/rate"
)

const (
	defaultFlushRate  = 50 // flushes per second
	defaultBufferSize = 64 * 1024
)

// BufferedWriter batches small writes in front of a transport and
// bounds how often the transport sees a flush. The pending byte count
// doubles as the bitrate regulator's buffering metric.
type BufferedWriter struct {
	out        io.Writer
	buf        *bytes.Buffer
	limit      *rate.Limiter
	bufferSize int
}

// BufferedOption configures a BufferedWriter.
type BufferedOption func(*BufferedWriter)

// WithFlushRate bounds flushes per second.
func WithFlushRate(perSecond int) BufferedOption {
	return func(w *BufferedWriter) { w.limit = rate.New(perSecond, time.Second) }
}

// WithBufferSize sets the pending buffer capacity.
func WithBufferSize(size int) BufferedOption {
	return func(w *BufferedWriter) { w.bufferSize = size }
}

// NewBufferedWriter wraps out.
func NewBufferedWriter(out io.Writer, options ...BufferedOption) *BufferedWriter {
	w := &BufferedWriter{out: out}
	for _, option := range options {
		option(w)
	}
	if w.limit == nil {
		w.limit = rate.New(defaultFlushRate, time.Second)
	}
	if w.bufferSize <= 0 {
		w.bufferSize = defaultBufferSize
	}
	w.buf = bytes.NewBuffer(make([]byte, 0, w.bufferSize))
	return w
}

// Buffered returns the pending byte count.
func (w *BufferedWriter) Buffered() int {
	return w.buf.Len()
}

// Flush writes the pending bytes to the underlying writer.
func (w *BufferedWriter) Flush() (n int, err error) {
	if w.Buffered() == 0 {
		return 0, nil
	}
	n, err = w.writeFull(w.buf.Bytes())
	w.buf.Reset()
	return
}

// Write buffers p, flushing when the buffer runs full or the flush
// rate budget allows it.
func (w *BufferedWriter) Write(p []byte) (nn int, err error) {
	var n int
	for len(p) > w.bufferSize-w.Buffered() && err == nil {
		if w.Buffered() == 0 {
			// large write against an empty buffer goes out directly
			n, err = w.out.Write(p)
		} else {
			n, err = w.buf.Write(p[:w.bufferSize-w.buf.Len()])
			if err == nil {
				_, err = w.Flush()
			}
		}
		nn += n
		p = p[n:]
	}
	if err != nil {
		return nn, err
	}

	// inside the flush-rate window: just buffer
	if w.limit.Limit() {
		n, err = w.buf.Write(p)
		return nn + n, err
	}

	if w.Buffered() > 0 {
		n, err = w.buf.Write(p)
		if err == nil {
			_, err = w.Flush()
		}
		return nn + n, err
	}

	n, err = w.writeFull(p)
	return nn + n, err
}

func (w *BufferedWriter) writeFull(p []byte) (nn int, err error) {
	var n int
	for len(p) > 0 && err == nil {
		n, err = w.out.Write(p)
		nn += n
		p = p[n:]
	}
	return nn, err
}
