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

package capture_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/padwerk/apcdiag/capture"
	"github.com/padwerk/apcdiag/midi"
)

func testEvents(n int) []midi.Message {
	base := time.Unix(1700000000, 0).UTC()
	out := make([]midi.Message, n)
	for i := range out {
		m := midi.NoteOn(0, byte(i%64), byte(1+i%6))
		m.Source = midi.SourceRaw
		m.Time = base.Add(time.Duration(i) * 3 * time.Millisecond)
		out[i] = m
	}
	return out
}

func writeCapture(t *testing.T, events []midi.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	for _, m := range events {
		if err := w.Write(m); err != nil {
			t.Fatalf("Write: unexpected error: %v", err)
		}
	}
	if got, want := w.Count(), int64(len(events)); got != want {
		t.Errorf("Count: got %d, want %d", got, want)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	want := testEvents(100)
	data := writeCapture(t, want)

	got, err := capture.ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadAll: unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Events (-want, +got):\n%s", diff)
	}
}

func TestEmptyCapture(t *testing.T) {
	data := writeCapture(t, nil)
	got, err := capture.ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadAll: unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Got %d events, want 0", len(got))
	}
}

func TestBadMagic(t *testing.T) {
	_, err := capture.ReadAll(bytes.NewReader([]byte("definitely not a capture")))
	if !errors.Is(err, capture.ErrBadMagic) {
		t.Errorf("ReadAll: got error %v, want %v", err, capture.ErrBadMagic)
	}
	_, err = capture.ReadAll(bytes.NewReader(nil))
	if !errors.Is(err, capture.ErrBadMagic) {
		t.Errorf("ReadAll of empty input: got error %v, want %v", err, capture.ErrBadMagic)
	}
}

func TestTruncated(t *testing.T) {
	data := writeCapture(t, testEvents(50))
	// Chop off the tail so the sentinel and fingerprint are lost.
	_, err := capture.ReadAll(bytes.NewReader(data[:len(data)-10]))
	if !errors.Is(err, capture.ErrCorrupt) {
		t.Errorf("ReadAll of truncated input: got error %v, want %v", err, capture.ErrCorrupt)
	}
}

func TestUnterminated(t *testing.T) {
	// A writer abandoned without Close must not verify.
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	for _, m := range testEvents(3) {
		if err := w.Write(m); err != nil {
			t.Fatalf("Write: unexpected error: %v", err)
		}
	}
	// No Close: the buffered compressor may not even have flushed.
	_, err = capture.ReadAll(bytes.NewReader(buf.Bytes()))
	if !errors.Is(err, capture.ErrCorrupt) {
		t.Errorf("ReadAll of unterminated input: got error %v, want %v", err, capture.ErrCorrupt)
	}
}

func TestWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}
	if err := w.Write(midi.NoteOn(0, 1, 1)); err == nil {
		t.Error("Write after Close unexpectedly succeeded")
	}
}

func TestReaderStopsAfterError(t *testing.T) {
	data := writeCapture(t, testEvents(2))
	r, err := capture.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader: unexpected error: %v", err)
	}
	for range 2 {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next: unexpected error: %v", err)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next at end: got %v, want io.EOF", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next after end: got %v, want io.EOF", err)
	}
}
