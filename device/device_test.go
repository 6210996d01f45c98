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

package device_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/channel/loopback"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/session"
)

func newTestDevice(t *testing.T) (*device.Device, *loopback.Channel) {
	t.Helper()
	lo := loopback.New(loopback.Options{ReceiveTimeout: 5 * time.Millisecond})
	s, err := session.Open(lo, session.Options{Source: midi.SourceSimulation})
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return device.New(s, device.Options{}), lo
}

func TestSetPad(t *testing.T) {
	d, lo := newTestDevice(t)

	if err := d.SetPad(3, 2, apcmini.ColorGreen); err != nil {
		t.Fatalf("SetPad: unexpected error: %v", err)
	}
	want := []midi.Packet{midi.Pack(midi.NoteOn(0, apcmini.PadNote(3, 2), byte(apcmini.ColorGreen)))}
	if diff := cmp.Diff(want, lo.Sent()); diff != "" {
		t.Errorf("Sent packets (-want, +got):\n%s", diff)
	}

	for _, bad := range [][2]int{{-1, 0}, {0, -1}, {8, 0}, {0, 8}} {
		if err := d.SetPad(bad[0], bad[1], apcmini.ColorRed); err == nil {
			t.Errorf("SetPad(%d, %d) unexpectedly succeeded", bad[0], bad[1])
		}
	}
}

func TestSendHelpers(t *testing.T) {
	d, lo := newTestDevice(t)

	if err := d.SendNoteOn(apcmini.TrackNoteStart, byte(apcmini.ColorRed)); err != nil {
		t.Fatalf("SendNoteOn: unexpected error: %v", err)
	}
	if err := d.SendNoteOff(apcmini.TrackNoteStart); err != nil {
		t.Fatalf("SendNoteOff: unexpected error: %v", err)
	}
	if err := d.SendControlChange(apcmini.MasterCC, 100); err != nil {
		t.Fatalf("SendControlChange: unexpected error: %v", err)
	}
	want := []midi.Packet{
		midi.Pack(midi.NoteOn(0, apcmini.TrackNoteStart, byte(apcmini.ColorRed))),
		midi.Pack(midi.NoteOff(0, apcmini.TrackNoteStart)),
		midi.Pack(midi.ControlChange(0, apcmini.MasterCC, 100)),
	}
	if diff := cmp.Diff(want, lo.Sent()); diff != "" {
		t.Errorf("Sent packets (-want, +got):\n%s", diff)
	}
}

func TestPaint(t *testing.T) {
	d, lo := newTestDevice(t)

	var f device.Frame
	f.Set(0, 0, apcmini.ColorGreen)
	f.Set(7, 7, apcmini.ColorRedBlink)
	if err := d.Paint(f); err != nil {
		t.Fatalf("Paint: unexpected error: %v", err)
	}

	sent := lo.Sent()
	if len(sent) != apcmini.PadCount {
		t.Fatalf("Sent %d packets, want %d", len(sent), apcmini.PadCount)
	}
	for note, pkt := range sent {
		want := midi.Pack(midi.NoteOn(0, byte(note), byte(f[note])))
		if pkt != want {
			t.Errorf("Packet %d: got %v, want %v", note, pkt, want)
		}
	}
	if st := d.Session().Stats(); st.Pauses != 1 {
		t.Errorf("Stats.Pauses: got %d, want 1", st.Pauses)
	}
}

func TestClear(t *testing.T) {
	d, lo := newTestDevice(t)

	if err := d.Clear(); err != nil {
		t.Fatalf("Clear: unexpected error: %v", err)
	}
	// 64 pads plus 8 track and 8 scene buttons.
	sent := lo.Sent()
	if len(sent) != 80 {
		t.Fatalf("Sent %d packets, want 80", len(sent))
	}
	for i, pkt := range sent {
		m := pkt.Message()
		if m.Kind() != midi.KindNoteOff {
			t.Errorf("Packet %d (%v) is not an off message", i, m)
		}
	}
}

func TestSendSysEx(t *testing.T) {
	d, lo := newTestDevice(t)

	msg := apcmini.Introduction()
	if err := d.Introduce(); err != nil {
		t.Fatalf("Introduce: unexpected error: %v", err)
	}
	if diff := cmp.Diff(midi.PackSysEx(msg), lo.Sent()); diff != "" {
		t.Errorf("Sent packets (-want, +got):\n%s", diff)
	}
}

func TestPaintRGB(t *testing.T) {
	d, lo := newTestDevice(t)

	if err := d.PaintRGB(0, 63, apcmini.RGB{R: 0x12, G: 0x34, B: 0x56}); err != nil {
		t.Fatalf("PaintRGB: unexpected error: %v", err)
	}
	if got := len(lo.Sent()); got == 0 {
		t.Error("PaintRGB sent no packets")
	}

	if err := d.PaintRGB(10, 5, apcmini.RGB{}); err == nil {
		t.Error("PaintRGB with inverted range unexpectedly succeeded")
	}
	if err := d.PaintRGB(0, 99, apcmini.RGB{}); err == nil {
		t.Error("PaintRGB past the pad range unexpectedly succeeded")
	}
}
