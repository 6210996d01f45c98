// Copyright 2025 The apcdiag authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package midi

// USB-MIDI code index numbers (CIN) for the event packet header, per the
// USB Device Class Definition for MIDI Devices.
const (
	cinSysExStart    = 0x04 // SysEx starts or continues, 3 bytes
	cinSysExEnd1     = 0x05 // SysEx ends with 1 byte
	cinSysExEnd2     = 0x06 // SysEx ends with 2 bytes
	cinSysExEnd3     = 0x07 // SysEx ends with 3 bytes
	cinNoteOff       = 0x08
	cinNoteOn        = 0x09
	cinControlChange = 0x0B
	cinSingleByte    = 0x0F
)

// PacketSize is the wire size of a USB-MIDI event packet.
const PacketSize = 4

// A Packet is one USB-MIDI event packet: a header byte carrying the cable
// number (high nibble) and code index number (low nibble), followed by up to
// three bytes of MIDI data.
type Packet [PacketSize]byte

// Cable returns the packet's virtual cable number.
func (p Packet) Cable() byte { return p[0] >> 4 }

// CIN returns the packet's code index number.
func (p Packet) CIN() byte { return p[0] & 0x0F }

// Message unpacks the MIDI bytes of the packet. The Source and Time fields
// of the result are zero; the transport fills them in.
func (p Packet) Message() Message {
	return Message{Status: p[1], Data1: p[2], Data2: p[3]}
}

// Valid reports whether the packet carries a MIDI event the harness should
// dispatch: reserved code index numbers (0x0, 0x1) and packets on cables
// other than 0 are dropped, matching the device's single-cable topology.
func (p Packet) Valid() bool {
	return p.Cable() == 0 && p.CIN() > 0x01
}

// PackSysEx splits a complete system-exclusive message (first byte 0xF0, last
// byte 0xF7) into the sequence of USB-MIDI event packets that carries it on
// cable 0. Each packet holds three payload bytes except the last, whose code
// index number encodes how many of its bytes are meaningful.
func PackSysEx(data []byte) []Packet {
	var out []Packet
	for len(data) > 3 {
		out = append(out, Packet{cinSysExStart, data[0], data[1], data[2]})
		data = data[3:]
	}
	switch len(data) {
	case 1:
		out = append(out, Packet{cinSysExEnd1, data[0], 0, 0})
	case 2:
		out = append(out, Packet{cinSysExEnd2, data[0], data[1], 0})
	case 3:
		out = append(out, Packet{cinSysExEnd3, data[0], data[1], data[2]})
	}
	return out
}

// Pack encodes a MIDI message as a USB-MIDI event packet on cable 0.
func Pack(m Message) Packet {
	var cin byte
	switch m.Status & 0xF0 {
	case StatusNoteOff:
		cin = cinNoteOff
	case StatusNoteOn:
		cin = cinNoteOn
	case StatusControlChange:
		cin = cinControlChange
	default:
		cin = cinSingleByte
	}
	return Packet{cin, m.Status, m.Data1, m.Data2}
}
