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

// Package midi defines the MIDI message model shared by the access paths of
// the harness, and the 4-byte USB-MIDI event packet codec used by the raw
// transport.
package midi

import (
	"fmt"
	"time"
)

// Status byte values for the channel voice messages the harness cares about,
// given on channel 0. Other channels are obtained by OR-ing in the channel
// number.
const (
	StatusNoteOff       = 0x80
	StatusNoteOn        = 0x90
	StatusControlChange = 0xB0
	StatusSysEx         = 0xF0
)

// Source identifies where a message entered the harness. It exists so that
// captures and statistics can distinguish the two access paths under test.
type Source byte

const (
	SourceRaw        Source = iota // raw USB device transport
	SourceNative                   // native MIDI routing API
	SourceSimulation               // loopback / scripted test channel
)

var sourceName = map[Source]string{
	SourceRaw:        "raw",
	SourceNative:     "native",
	SourceSimulation: "sim",
}

func (s Source) String() string {
	if n, ok := sourceName[s]; ok {
		return n
	}
	return fmt.Sprintf("source-%d", byte(s))
}

// Kind classifies a message for filtering and statistics.
type Kind byte

const (
	KindOther Kind = iota
	KindNoteOn
	KindNoteOff
	KindControlChange
	KindSysEx
)

var kindName = map[Kind]string{
	KindOther:         "other",
	KindNoteOn:        "note-on",
	KindNoteOff:       "note-off",
	KindControlChange: "control-change",
	KindSysEx:         "sysex",
}

func (k Kind) String() string {
	if n, ok := kindName[k]; ok {
		return n
	}
	return "invalid"
}

// KindFromString returns the Kind named by s, or KindOther.
func KindFromString(s string) Kind {
	for k, n := range kindName {
		if n == s {
			return k
		}
	}
	return KindOther
}

// A Message is one decoded MIDI channel message together with harness
// bookkeeping (origin and arrival time).
type Message struct {
	Status byte
	Data1  byte
	Data2  byte

	Source Source
	Time   time.Time
}

// Kind classifies the message. A note-on with velocity zero is reported as a
// note-off, which is how the wire protocol expresses releases.
func (m Message) Kind() Kind {
	switch m.Status & 0xF0 {
	case StatusNoteOn:
		if m.Data2 == 0 {
			return KindNoteOff
		}
		return KindNoteOn
	case StatusNoteOff:
		return KindNoteOff
	case StatusControlChange:
		return KindControlChange
	case StatusSysEx:
		return KindSysEx
	}
	return KindOther
}

// Channel returns the 0-based channel number of a channel voice message.
func (m Message) Channel() byte { return m.Status & 0x0F }

func (m Message) String() string {
	switch m.Kind() {
	case KindNoteOn:
		return fmt.Sprintf("note-on ch=%d note=%d vel=%d", m.Channel(), m.Data1, m.Data2)
	case KindNoteOff:
		return fmt.Sprintf("note-off ch=%d note=%d", m.Channel(), m.Data1)
	case KindControlChange:
		return fmt.Sprintf("cc ch=%d ctl=%d val=%d", m.Channel(), m.Data1, m.Data2)
	default:
		return fmt.Sprintf("status=%#02x d1=%d d2=%d", m.Status, m.Data1, m.Data2)
	}
}

// NoteOn constructs a note-on message on the given channel.
func NoteOn(channel, note, velocity byte) Message {
	return Message{Status: StatusNoteOn | channel&0x0F, Data1: note & 0x7F, Data2: velocity & 0x7F}
}

// NoteOff constructs a note-off message on the given channel.
func NoteOff(channel, note byte) Message {
	return Message{Status: StatusNoteOff | channel&0x0F, Data1: note & 0x7F}
}

// ControlChange constructs a control change message on the given channel.
func ControlChange(channel, controller, value byte) Message {
	return Message{Status: StatusControlChange | channel&0x0F, Data1: controller & 0x7F, Data2: value & 0x7F}
}
