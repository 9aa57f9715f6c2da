// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fmp4

import (
	"github.com/icza/bitio"
)

// BoxType is a 4CC box type.
type BoxType [4]byte

// ImmutableBox is the common interface of ISO-BMFF boxes. The size
// must be known before marshaling since every box header embeds it.
type ImmutableBox interface {
	Type() BoxType

	// Size returns the marshaled size in bytes, excluding the 8-byte
	// box header.
	Size() int

	Marshal(w *bitio.Writer) error
}

// Boxes is a box with its children, marshaled as one unit.
type Boxes struct {
	Box      ImmutableBox
	Children []*Boxes
}

// Size returns the total marshaled size including children.
func (b *Boxes) Size() int {
	total := b.Box.Size() + 8
	for _, child := range b.Children {
		total += child.Size()
	}
	return total
}

// Marshal writes the box and its children.
func (b *Boxes) Marshal(w *bitio.Writer) error {
	size := b.Size()
	writeUint32(w, uint32(size))
	typ := b.Box.Type()
	w.TryWrite(typ[:])
	if w.TryError != nil {
		return w.TryError
	}

	// a container box is just its header
	if b.Box.Size() > 0 {
		if err := b.Box.Marshal(w); err != nil {
			return err
		}
	}

	for _, child := range b.Children {
		if err := child.Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

func writeUint16(w *bitio.Writer, v uint16) {
	w.TryWriteBits(uint64(v), 16)
}

func writeUint24(w *bitio.Writer, v uint32) {
	w.TryWriteBits(uint64(v)&0xffffff, 24)
}

func writeUint32(w *bitio.Writer, v uint32) {
	w.TryWriteBits(uint64(v), 32)
}

func writeUint64(w *bitio.Writer, v uint64) {
	w.TryWriteBits(v, 64)
}

// FullBox is the version+flags prefix shared by most box types.
type FullBox struct {
	Version uint8
	Flags   [3]byte
}

// GetFlags folds the flag bytes into one value.
func (b *FullBox) GetFlags() uint32 {
	return uint32(b.Flags[0])<<16 | uint32(b.Flags[1])<<8 | uint32(b.Flags[2])
}

// CheckFlag reports whether flag is set.
func (b *FullBox) CheckFlag(flag uint32) bool {
	return b.GetFlags()&flag != 0
}

// FieldSize returns the marshaled prefix size in bytes.
func (b *FullBox) FieldSize() int { return 4 }

// MarshalField writes the version and flags.
func (b *FullBox) MarshalField(w *bitio.Writer) error {
	w.TryWriteByte(b.Version)
	w.TryWrite(b.Flags[:])
	return w.TryError
}
