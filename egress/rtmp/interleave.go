// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtmp

import "github.com/castpack/castpack/av/codec"

// interleaver delays audio so that, whenever a video packet goes out,
// every audio packet timestamped at or before it has gone out first.
// Non-audio packets pass through immediately.
type interleaver struct {
	audio []*codec.Packet
}

func (iv *interleaver) reset() {
	iv.audio = iv.audio[:0]
}

func (iv *interleaver) buffered() int {
	n := 0
	for _, p := range iv.audio {
		n += len(p.Payload)
	}
	return n
}

// feed accepts the next packet and calls send for every packet that
// may now be emitted, in timestamp order.
func (iv *interleaver) feed(packet *codec.Packet, send func(*codec.Packet) error) error {
	switch packet.MediaType {
	case codec.MediaTypeAudio:
		iv.audio = append(iv.audio, packet)
		return nil
	case codec.MediaTypeVideo:
		emitted := 0
		for _, a := range iv.audio {
			if a.Pts > packet.Pts {
				break
			}
			if err := send(a); err != nil {
				iv.audio = iv.audio[emitted:]
				return err
			}
			emitted++
		}
		iv.audio = iv.audio[emitted:]
		return send(packet)
	default:
		return send(packet)
	}
}

// drain emits everything still held back.
func (iv *interleaver) drain(send func(*codec.Packet) error) error {
	for i, a := range iv.audio {
		if err := send(a); err != nil {
			iv.audio = iv.audio[i:]
			return err
		}
	}
	iv.audio = iv.audio[:0]
	return nil
}
