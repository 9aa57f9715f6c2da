// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

// Reader reads big-endian bit fields from a byte slice.
type Reader struct {
	buf    []byte
	offset int // bit based
}

// NewReader returns a new Reader.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Skip skips n bits.
func (r *Reader) Skip(n int) {
	if n <= 0 {
		return
	}
	_ = r.buf[(r.offset+n-1)>>3] // bounds check hint to compiler; see golang.org/issue/14808
	r.offset += n
}

// Peek returns the next n bits without consuming them.
func (r *Reader) Peek(n int) uint64 {
	clone := *r
	return clone.readUint64(n, 64)
}

// Read reads the uint32 of n bits.
func (r *Reader) Read(n int) uint32 {
	return uint32(r.readUint64(n, 32))
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() uint8 {
	_ = r.buf[r.offset>>3] // bounds check hint to compiler; see golang.org/issue/14808

	tmp := (r.buf[r.offset>>3] >> (7 - r.offset&0x7)) & 1
	r.offset++
	return tmp
}

// ReadBool reads one bit as a bool.
func (r *Reader) ReadBool() bool { return r.ReadBit() == 1 }

// ReadUint8 reads the uint8 of n bits.
func (r *Reader) ReadUint8(n int) uint8 { return uint8(r.readUint64(n, 8)) }

// ReadUint16 reads the uint16 of n bits.
func (r *Reader) ReadUint16(n int) uint16 { return uint16(r.readUint64(n, 16)) }

// ReadUint32 reads the uint32 of n bits.
func (r *Reader) ReadUint32(n int) uint32 { return uint32(r.readUint64(n, 32)) }

// Offset returns the current offset in bits.
func (r *Reader) Offset() int {
	return r.offset
}

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int {
	return len(r.buf)<<3 - r.offset
}

var bitsMask = [9]byte{
	0x00,
	0x01, 0x03, 0x07, 0x0f,
	0x1f, 0x3f, 0x7f, 0xff,
}

func (r *Reader) readUint64(n, max int) uint64 {
	if n <= 0 || n > max {
		return 0
	}

	_ = r.buf[(r.offset+n-1)>>3] // bounds check hint to compiler; see golang.org/issue/14808

	idx := r.offset >> 3
	validBits := 8 - r.offset&0x7
	r.offset += n

	var tmp uint64
	for n >= validBits {
		n -= validBits
		tmp |= uint64(r.buf[idx]&bitsMask[validBits]) << n
		idx++
		validBits = 8
	}

	if n > 0 {
		tmp |= uint64((r.buf[idx] >> (validBits - n)) & bitsMask[n])
	}
	return tmp
}
