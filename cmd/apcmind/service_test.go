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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/server"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/channel/loopback"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/queue"
	"github.com/padwerk/apcdiag/session"
)

func newTestService(t *testing.T) (*loopback.Channel, *service, *jrpc2.Client) {
	t.Helper()
	ch := loopback.New(loopback.Options{ReceiveTimeout: 5 * time.Millisecond})
	events := queue.New[midi.Message](0)
	s, err := session.Open(ch, session.Options{
		Source:  midi.SourceSimulation,
		OnEvent: events.Put,
	})
	if err != nil {
		t.Fatalf("Open session: %v", err)
	}
	svc := &service{
		session: s,
		device:  device.New(s, device.Options{}),
		events:  events,
	}
	loc := server.NewLocal(svc.methods(), nil)
	t.Cleanup(func() {
		loc.Close()
		svc.close()
	})
	return ch, svc, loc.Client
}

func TestServiceStatus(t *testing.T) {
	_, _, cli := newTestService(t)
	ctx := context.Background()

	var st StatusReply
	if err := cli.CallResult(ctx, "APC.Status", nil, &st); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Paused {
		t.Error("Status: session reported paused at startup")
	}
	if st.Stats.Sent != 0 {
		t.Errorf("Status: sent = %d, want 0", st.Stats.Sent)
	}
}

func TestServiceSet(t *testing.T) {
	ch, _, cli := newTestService(t)
	ctx := context.Background()

	if _, err := cli.Call(ctx, "APC.Set", &SetRequest{X: 2, Y: 3, Color: "green"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	sent := ch.Sent()
	if len(sent) != 1 {
		t.Fatalf("Set: sent %d packets, want 1", len(sent))
	}
	want := midi.Pack(midi.NoteOn(apcmini.MIDIChannel, apcmini.PadNote(2, 3), byte(apcmini.ColorGreen)))
	if sent[0] != want {
		t.Errorf("Set: sent %v, want %v", sent[0], want)
	}

	if _, err := cli.Call(ctx, "APC.Set", &SetRequest{X: 0, Y: 0, Color: "mauve"}); err == nil {
		t.Error("Set: no error for unknown color")
	}
	if _, err := cli.Call(ctx, "APC.Set", &SetRequest{X: 9, Y: 0, Color: "red"}); err == nil {
		t.Error("Set: no error for out-of-range pad")
	}
}

func TestServicePaint(t *testing.T) {
	ch, svc, cli := newTestService(t)
	ctx := context.Background()

	if _, err := cli.Call(ctx, "APC.Paint", &PaintRequest{Pattern: "checker"}); err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if got := len(ch.Sent()); got != apcmini.PadCount {
		t.Errorf("Paint: sent %d packets, want %d", got, apcmini.PadCount)
	}
	if got := svc.session.Stats().Pauses; got != 1 {
		t.Errorf("Paint: pauses = %d, want 1", got)
	}

	if _, err := cli.Call(ctx, "APC.Paint", &PaintRequest{Pattern: "nonesuch"}); err == nil {
		t.Error("Paint: no error for unknown pattern")
	}
	if _, err := cli.Call(ctx, "APC.Paint", &PaintRequest{Pattern: "chase", Step: -1}); err == nil {
		t.Error("Paint: no error for negative step")
	}
}

func TestServicePauseResume(t *testing.T) {
	_, svc, cli := newTestService(t)
	ctx := context.Background()

	var rep PauseReply
	if err := cli.CallResult(ctx, "APC.Pause", &PauseRequest{TimeoutMS: 1000}, &rep); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if rep.Result != session.PauseAcknowledged.String() {
		t.Errorf("Pause: result = %q, want %q", rep.Result, session.PauseAcknowledged)
	}
	if !svc.session.IsPaused() {
		t.Error("Pause: session is not paused")
	}

	if _, err := cli.Call(ctx, "APC.Resume", nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for svc.session.IsPaused() {
		if time.Now().After(deadline) {
			t.Fatal("Resume: session still paused")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServiceEvents(t *testing.T) {
	ch, _, cli := newTestService(t)
	ctx := context.Background()

	ch.Push(midi.Pack(midi.NoteOn(apcmini.MIDIChannel, apcmini.PadNote(0, 0), 127)))
	ch.Push(midi.Pack(midi.ControlChange(apcmini.MIDIChannel, apcmini.FaderCCStart, 64)))

	var got []EventReply
	if err := cli.CallResult(ctx, "APC.Events", &EventsRequest{TimeoutMS: 1000}, &got); err != nil {
		t.Fatalf("Events: %v", err)
	}
	// The second event may still be in flight on the first poll.
	for len(got) < 2 {
		var more []EventReply
		if err := cli.CallResult(ctx, "APC.Events", &EventsRequest{TimeoutMS: 1000}, &more); err != nil {
			t.Fatalf("Events: %v", err)
		}
		if len(more) == 0 {
			break
		}
		got = append(got, more...)
	}
	if len(got) != 2 {
		t.Fatalf("Events: got %d events, want 2", len(got))
	}
	if got[0].Kind != "note-on" || got[1].Kind != "control-change" {
		t.Errorf("Events: kinds = %q, %q", got[0].Kind, got[1].Kind)
	}
	if got[0].Source != midi.SourceSimulation.String() {
		t.Errorf("Events: source = %q, want %q", got[0].Source, midi.SourceSimulation)
	}

	// An empty poll returns promptly with no events.
	var empty []EventReply
	if err := cli.CallResult(ctx, "APC.Events", &EventsRequest{TimeoutMS: 10}, &empty); err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Events: got %d events from empty queue", len(empty))
	}
}
