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

// Package apcmini defines the control-surface profile of the Akai APC Mini
// and APC Mini MK2: USB identifiers, the pad/button/fader layout, LED color
// codes, and the MK2 SysEx framing.
//
// All values are taken from the published APC Mini MK2 communications
// protocol and verified against real hardware. Notes and controller numbers
// are given on MIDI channel 0, which is the only channel the device uses.
package apcmini

// USB vendor and product identifiers.
const (
	VendorID     = 0x09E8 // Akai Professional M.I. Corp.
	ProductID    = 0x0028 // APC Mini (original)
	ProductIDMK2 = 0x004F // APC Mini MK2
)

// MIDIChannel is the (0-based) MIDI channel the device sends and receives on.
const MIDIChannel = 0

// Pad matrix dimensions. The 8×8 clip grid maps to note numbers 0..63 with
// note 0 at the bottom-left pad and numbering running left to right, bottom
// to top.
const (
	PadRows  = 8
	PadCols  = 8
	PadCount = PadRows * PadCols
)

// Note number ranges for the pads and the buttons surrounding the grid.
const (
	PadNoteStart   = 0x00 // 0
	PadNoteEnd     = 0x3F // 63
	TrackNoteStart = 0x64 // 100
	TrackNoteEnd   = 0x6B // 107
	SceneNoteStart = 0x70 // 112
	SceneNoteEnd   = 0x77 // 119
	ShiftNote      = 0x7A // 122
)

// Control change numbers for the faders. The physical layout is
// [F1]..[F8] [MASTER], assigned CC 48..55 and 56.
const (
	FaderCCStart    = 0x30 // 48, track fader 1
	FaderCCEnd      = 0x37 // 55, track fader 8
	MasterCC        = 0x38 // 56, master fader
	TrackFaderCount = 8
	TotalFaderCount = 9
)

// Color is a legacy (velocity-encoded) LED color. A pad LED is set by
// sending note-on for the pad's note with the color as velocity.
type Color byte

// Legacy LED colors understood by both hardware revisions.
const (
	ColorOff         Color = 0x00
	ColorGreen       Color = 0x01
	ColorGreenBlink  Color = 0x02
	ColorRed         Color = 0x03
	ColorRedBlink    Color = 0x04
	ColorYellow      Color = 0x05
	ColorYellowBlink Color = 0x06
)

var colorName = map[Color]string{
	ColorOff:         "off",
	ColorGreen:       "green",
	ColorGreenBlink:  "green-blink",
	ColorRed:         "red",
	ColorRedBlink:    "red-blink",
	ColorYellow:      "yellow",
	ColorYellowBlink: "yellow-blink",
}

func (c Color) String() string {
	if s, ok := colorName[c]; ok {
		return s
	}
	return "unknown"
}

// ColorFromString returns the color named by s, or false if s does not name
// a legacy color.
func ColorFromString(s string) (Color, bool) {
	for c, name := range colorName {
		if name == s {
			return c, true
		}
	}
	return ColorOff, false
}

// MK2 SysEx framing (official protocol). A message is
//
//	F0 47 7F 4F <cmd> <len-hi> <len-lo> <payload...> F7
//
// where len is the 14-bit payload length.
var sysexHeader = []byte{0xF0, 0x47, 0x7F, 0x4F}

// SysEx command bytes for the MK2.
const (
	SysExRGBCmd       = 0x24 // RGB LED color lighting
	SysExIntroCmd     = 0x60 // introduction message (host → device)
	SysExIntroReply   = 0x61 // introduction response (device → host)
	SysExModeCmd      = 0x62 // session/note/drum mode change
	SysExEnd          = 0xF7
	sysexMaxPayload   = 1<<14 - 1
	sysexHeaderLength = 7 // header + cmd + 2 length bytes
)

// SysEx frames a MK2 SysEx message with the given command byte and payload.
func SysEx(cmd byte, payload []byte) []byte {
	if len(payload) > sysexMaxPayload {
		payload = payload[:sysexMaxPayload]
	}
	msg := make([]byte, 0, sysexHeaderLength+len(payload)+1)
	msg = append(msg, sysexHeader...)
	msg = append(msg, cmd, byte(len(payload)>>7)&0x7F, byte(len(payload))&0x7F)
	msg = append(msg, payload...)
	return append(msg, SysExEnd)
}

// Introduction returns the MK2 introduction message. The device replies with
// an introduction response (SysExIntroReply) reporting its mode and version.
func Introduction() []byte {
	// Application ID 0x01, version 0.0.1.
	return SysEx(SysExIntroCmd, []byte{0x01, 0x00, 0x00, 0x01})
}

// RGB describes a 7-bit-per-component RGB color for the MK2.
type RGB struct{ R, G, B byte }

// PadRGB returns the MK2 SysEx message setting the RGB color of the pad
// range [first, last].
func PadRGB(first, last byte, c RGB) []byte {
	return SysEx(SysExRGBCmd, []byte{
		first & 0x7F, last & 0x7F,
		c.R & 0x7F, c.G & 0x7F, c.B & 0x7F,
	})
}

// PadNote converts grid coordinates to the pad's note number. The origin
// (0, 0) is the bottom-left pad.
func PadNote(x, y int) byte { return byte(y*PadCols + x) }

// PadXY converts a pad note number back to grid coordinates.
func PadXY(note byte) (x, y int) { return int(note) % PadCols, int(note) / PadCols }

// IsPadNote reports whether note addresses a pad in the 8×8 grid.
func IsPadNote(note byte) bool { return note <= PadNoteEnd }

// IsTrackNote reports whether note addresses a track button.
func IsTrackNote(note byte) bool { return note >= TrackNoteStart && note <= TrackNoteEnd }

// IsSceneNote reports whether note addresses a scene launch button.
func IsSceneNote(note byte) bool { return note >= SceneNoteStart && note <= SceneNoteEnd }

// IsShiftNote reports whether note is the shift button.
func IsShiftNote(note byte) bool { return note == ShiftNote }

// IsFaderCC reports whether cc addresses a track fader.
func IsFaderCC(cc byte) bool { return cc >= FaderCCStart && cc <= FaderCCEnd }

// IsMasterCC reports whether cc addresses the master fader.
func IsMasterCC(cc byte) bool { return cc == MasterCC }

// IsAnyFaderCC reports whether cc addresses any of the nine faders.
func IsAnyFaderCC(cc byte) bool { return IsFaderCC(cc) || IsMasterCC(cc) }

// MatchesUSB reports whether a USB vendor/product pair identifies an APC
// Mini of either hardware revision.
func MatchesUSB(vendor, product uint16) bool {
	return vendor == VendorID && (product == ProductID || product == ProductIDMK2)
}
