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

package apcmini_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/padwerk/apcdiag/apcmini"
)

func TestPadMapping(t *testing.T) {
	// Round-trip every pad through the coordinate mapping.
	for note := byte(0); note < apcmini.PadCount; note++ {
		x, y := apcmini.PadXY(note)
		if x < 0 || x >= apcmini.PadCols || y < 0 || y >= apcmini.PadRows {
			t.Errorf("PadXY(%d) = (%d, %d), out of range", note, x, y)
		}
		if got := apcmini.PadNote(x, y); got != note {
			t.Errorf("PadNote(%d, %d) = %d, want %d", x, y, got, note)
		}
	}
	if got := apcmini.PadNote(7, 7); got != 63 {
		t.Errorf("PadNote(7, 7) = %d, want 63", got)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		note                     byte
		pad, track, scene, shift bool
	}{
		{0x00, true, false, false, false},
		{0x3F, true, false, false, false},
		{0x40, false, false, false, false},
		{0x64, false, true, false, false},
		{0x6B, false, true, false, false},
		{0x70, false, false, true, false},
		{0x77, false, false, true, false},
		{0x7A, false, false, false, true},
	}
	for _, tc := range tests {
		if got := apcmini.IsPadNote(tc.note); got != tc.pad {
			t.Errorf("IsPadNote(%#x) = %v, want %v", tc.note, got, tc.pad)
		}
		if got := apcmini.IsTrackNote(tc.note); got != tc.track {
			t.Errorf("IsTrackNote(%#x) = %v, want %v", tc.note, got, tc.track)
		}
		if got := apcmini.IsSceneNote(tc.note); got != tc.scene {
			t.Errorf("IsSceneNote(%#x) = %v, want %v", tc.note, got, tc.scene)
		}
		if got := apcmini.IsShiftNote(tc.note); got != tc.shift {
			t.Errorf("IsShiftNote(%#x) = %v, want %v", tc.note, got, tc.shift)
		}
	}
}

func TestFaderCC(t *testing.T) {
	for cc := byte(48); cc <= 55; cc++ {
		if !apcmini.IsFaderCC(cc) {
			t.Errorf("IsFaderCC(%d) = false, want true", cc)
		}
	}
	if apcmini.IsFaderCC(56) {
		t.Error("IsFaderCC(56) = true, want false (master)")
	}
	if !apcmini.IsMasterCC(56) {
		t.Error("IsMasterCC(56) = false, want true")
	}
	if !apcmini.IsAnyFaderCC(56) || !apcmini.IsAnyFaderCC(48) {
		t.Error("IsAnyFaderCC should accept both track and master CCs")
	}
	if apcmini.IsAnyFaderCC(47) || apcmini.IsAnyFaderCC(57) {
		t.Error("IsAnyFaderCC accepted an out-of-range CC")
	}
}

func TestSysEx(t *testing.T) {
	got := apcmini.SysEx(apcmini.SysExRGBCmd, []byte{0x00, 0x3F, 0x7F, 0x00, 0x00})
	want := []byte{
		0xF0, 0x47, 0x7F, 0x4F, // header
		0x24,       // RGB command
		0x00, 0x05, // payload length
		0x00, 0x3F, 0x7F, 0x00, 0x00,
		0xF7,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SysEx framing (-want, +got):\n%s", diff)
	}
}

func TestPadRGB(t *testing.T) {
	got := apcmini.PadRGB(0, 63, apcmini.RGB{R: 0x7F, G: 0x10, B: 0x00})
	want := []byte{0xF0, 0x47, 0x7F, 0x4F, 0x24, 0x00, 0x05, 0x00, 0x3F, 0x7F, 0x10, 0x00, 0xF7}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PadRGB (-want, +got):\n%s", diff)
	}
}

func TestMatchesUSB(t *testing.T) {
	if !apcmini.MatchesUSB(0x09E8, 0x0028) {
		t.Error("MK1 identifiers did not match")
	}
	if !apcmini.MatchesUSB(0x09E8, 0x004F) {
		t.Error("MK2 identifiers did not match")
	}
	if apcmini.MatchesUSB(0x09E8, 0x0029) || apcmini.MatchesUSB(0x1234, 0x0028) {
		t.Error("non-APC identifiers matched")
	}
}
