// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
	tableIDSDT = 0x42

	// ISO 13818-1 2.4.4: private_section length limit.
	maxSectionLength = 1021
)

// finishSection patches the section_length field and appends the CRC.
// buf holds table_id + 2 length bytes + the section body.
func finishSection(buf *bytes.Buffer) ([]byte, error) {
	section := buf.Bytes()
	// everything after the length field, plus the 4 CRC bytes
	sectionLength := len(section) - 3 + 4
	if sectionLength > maxSectionLength {
		return nil, fmt.Errorf("mpegts: section length %d exceeds %d", sectionLength, maxSectionLength)
	}
	section[1] = 0x80 | byte(sectionLength>>8)&0x0f | section[1]&0x70
	section[2] = byte(sectionLength)

	crc := mpegCRC32(section)
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc)
	buf.Write(tail[:])
	return buf.Bytes(), nil
}

func buildPAT(tsID uint16, version byte, services []*Service) ([]byte, error) {
	buf := &bytes.Buffer{}

	buf.WriteByte(tableIDPAT)
	buf.Write([]byte{0x30, 0x00}) // syntax + reserved, length patched later
	binary.Write(buf, binary.BigEndian, tsID)
	buf.WriteByte(0xc0 | (version&0x1f)<<1 | 0x01) // current_next_indicator = 1
	buf.WriteByte(0x00)                            // section_number
	buf.WriteByte(0x00)                            // last_section_number

	for _, svc := range services {
		binary.Write(buf, binary.BigEndian, svc.Program)
		binary.Write(buf, binary.BigEndian, 0xe000|svc.PmtPid)
	}

	return finishSection(buf)
}

func buildPMT(version byte, svc *Service) ([]byte, error) {
	buf := &bytes.Buffer{}

	buf.WriteByte(tableIDPMT)
	buf.Write([]byte{0x30, 0x00})
	binary.Write(buf, binary.BigEndian, svc.Program)
	buf.WriteByte(0xc0 | (version&0x1f)<<1 | 0x01)
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	binary.Write(buf, binary.BigEndian, 0xe000|svc.PcrPid)
	binary.Write(buf, binary.BigEndian, uint16(0xf000)) // program_info_length = 0

	for _, s := range svc.Streams {
		buf.WriteByte(s.streamType)
		binary.Write(buf, binary.BigEndian, 0xe000|s.Pid)
		binary.Write(buf, binary.BigEndian, uint16(0xf000)) // es_info_length = 0
	}

	return finishSection(buf)
}

// buildSDT builds an SDT (actual transport stream) with one
// service_descriptor per service, EN 300 468 5.2.3.
func buildSDT(tsID uint16, version byte, services []*Service) ([]byte, error) {
	buf := &bytes.Buffer{}

	buf.WriteByte(tableIDSDT)
	buf.Write([]byte{0x70, 0x00}) // SDT reserved bits differ from PAT/PMT
	binary.Write(buf, binary.BigEndian, tsID)
	buf.WriteByte(0xc0 | (version&0x1f)<<1 | 0x01)
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	binary.Write(buf, binary.BigEndian, uint16(0xff01)) // original_network_id
	buf.WriteByte(0xff)                                 // reserved

	for _, svc := range services {
		name, provider := svc.Name, svc.Provider
		// descriptor_length = 3+len(provider)+len(name) must fit a byte
		if len(provider)+len(name) > 252 {
			return nil, fmt.Errorf("mpegts: service %d name/provider too long", svc.Program)
		}

		binary.Write(buf, binary.BigEndian, svc.Program) // service_id
		buf.WriteByte(0xfc)                              // no EIT schedule/present-following

		// running_status = 4 (running), free_CA = 0
		descriptor := make([]byte, 0, 5+len(provider)+len(name))
		descriptor = append(descriptor, 0x48, byte(3+len(provider)+len(name)), 0x01)
		descriptor = append(descriptor, byte(len(provider)))
		descriptor = append(descriptor, provider...)
		descriptor = append(descriptor, byte(len(name)))
		descriptor = append(descriptor, name...)

		binary.Write(buf, binary.BigEndian, uint16(0x8000)|uint16(len(descriptor)))
		buf.Write(descriptor)
	}

	return finishSection(buf)
}
