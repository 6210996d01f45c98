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

// Package device provides a high-level client for the control surface on top
// of a [session.Session]: LED updates, full-matrix frames, and
// system-exclusive commands.
//
// Single-LED updates go out as plain sends under the session's transfer
// mutex. Multi-message operations, like painting a whole frame or sending a
// multi-packet system-exclusive command, run inside a session batch so the
// background reader cannot interleave a receive into the sequence.
package device

import (
	"fmt"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/session"
)

// A Frame is a full 8x8 pad LED image, indexed by pad note number.
type Frame [apcmini.PadCount]apcmini.Color

// Set assigns the color of the pad at grid position (x, y).
func (f *Frame) Set(x, y int, c apcmini.Color) { f[apcmini.PadNote(x, y)] = c }

// Options configure the batch behavior of multi-message operations.
type Options struct {
	// Batch is passed through to the session for every multi-message
	// operation. A zero value uses the session defaults: wait up to one
	// second for exclusive access and abort if it is not granted.
	Batch session.BatchOptions
}

// A Device drives one control surface through an open session.
type Device struct {
	s    *session.Session
	opts Options
}

// New returns a device client for s.
func New(s *session.Session, opts Options) *Device {
	return &Device{s: s, opts: opts}
}

// Session returns the underlying session.
func (d *Device) Session() *session.Session { return d.s }

// SetPad sets the LED of the pad at grid position (x, y).
func (d *Device) SetPad(x, y int, c apcmini.Color) error {
	if x < 0 || x >= apcmini.PadCols || y < 0 || y >= apcmini.PadRows {
		return fmt.Errorf("pad position (%d, %d) out of range", x, y)
	}
	return d.SetNote(apcmini.PadNote(x, y), c)
}

// SetNote sets the LED of the button with the given note number. This covers
// pads as well as the track and scene buttons, whose LEDs accept the same
// velocity encoding.
func (d *Device) SetNote(note byte, c apcmini.Color) error {
	return d.s.SendMessage(midi.NoteOn(apcmini.MIDIChannel, note, byte(c)))
}

// SendNoteOn sends a note-on on the device channel.
func (d *Device) SendNoteOn(note, velocity byte) error {
	return d.s.SendMessage(midi.NoteOn(apcmini.MIDIChannel, note, velocity))
}

// SendNoteOff sends a note-off on the device channel.
func (d *Device) SendNoteOff(note byte) error {
	return d.s.SendMessage(midi.NoteOff(apcmini.MIDIChannel, note))
}

// SendControlChange sends a control change on the device channel.
func (d *Device) SendControlChange(controller, value byte) error {
	return d.s.SendMessage(midi.ControlChange(apcmini.MIDIChannel, controller, value))
}

// Paint writes a full pad frame in one exclusive batch, in note order.
func (d *Device) Paint(f Frame) error {
	return d.s.Batch(d.opts.Batch, func(s *session.Session) error {
		for note := range f {
			if err := s.SendMessage(midi.NoteOn(apcmini.MIDIChannel, byte(note), byte(f[note]))); err != nil {
				return fmt.Errorf("pad %d: %w", note, err)
			}
		}
		return nil
	})
}

// Fill paints every pad with the same color.
func (d *Device) Fill(c apcmini.Color) error {
	var f Frame
	for i := range f {
		f[i] = c
	}
	return d.Paint(f)
}

// Clear turns every pad LED off, then the track and scene button LEDs.
func (d *Device) Clear() error {
	return d.s.Batch(d.opts.Batch, func(s *session.Session) error {
		off := func(note byte) error {
			return s.SendMessage(midi.NoteOn(apcmini.MIDIChannel, note, byte(apcmini.ColorOff)))
		}
		for note := byte(apcmini.PadNoteStart); note <= apcmini.PadNoteEnd; note++ {
			if err := off(note); err != nil {
				return err
			}
		}
		for note := byte(apcmini.TrackNoteStart); note <= apcmini.TrackNoteEnd; note++ {
			if err := off(note); err != nil {
				return err
			}
		}
		for note := byte(apcmini.SceneNoteStart); note <= apcmini.SceneNoteEnd; note++ {
			if err := off(note); err != nil {
				return err
			}
		}
		return nil
	})
}

// SendSysEx transmits a complete system-exclusive message. The packets of a
// system-exclusive transfer must stay contiguous on the wire, so the whole
// sequence is sent in one exclusive batch.
func (d *Device) SendSysEx(data []byte) error {
	pkts := midi.PackSysEx(data)
	if len(pkts) == 0 {
		return nil
	}
	return d.s.Batch(d.opts.Batch, func(s *session.Session) error {
		for i, pkt := range pkts {
			if err := s.Send(pkt); err != nil {
				return fmt.Errorf("sysex packet %d/%d: %w", i+1, len(pkts), err)
			}
		}
		return nil
	})
}

// Introduce sends the MK2 introduction message, which switches the device
// out of its power-on legacy mode and solicits a capability reply.
func (d *Device) Introduce() error {
	return d.SendSysEx(apcmini.Introduction())
}

// PaintRGB sets a contiguous run of pads to a 24-bit color using the MK2
// system-exclusive command. The original hardware ignores it.
func (d *Device) PaintRGB(first, last byte, c apcmini.RGB) error {
	if first > last || !apcmini.IsPadNote(last) {
		return fmt.Errorf("pad range %d..%d out of range", first, last)
	}
	return d.SendSysEx(apcmini.PadRGB(first, last, c))
}
