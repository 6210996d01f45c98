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
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/pattern"
	"github.com/padwerk/apcdiag/queue"
	"github.com/padwerk/apcdiag/session"
)

// service adapts RPC requests to the device session. One service owns the
// surface for the life of the daemon.
type service struct {
	session *session.Session
	device  *device.Device
	events  *queue.Queue[midi.Message]
}

// methods maps the service's exported methods under the "APC" prefix.
func (s *service) methods() jrpc2.Assigner {
	return handler.ServiceMap{"APC": handler.NewService(s)}
}

func (s *service) close() error {
	s.events.Close()
	return s.session.Close()
}

// StatusReply reports the session counters and pause state.
type StatusReply struct {
	Stats          session.Stats `json:"stats"`
	Paused         bool          `json:"paused"`
	PauseRequested bool          `json:"pauseRequested"`
	DroppedEvents  int64         `json:"droppedEvents"`
}

// Status reports the session counters.
func (s *service) Status(ctx context.Context) (*StatusReply, error) {
	return &StatusReply{
		Stats:          s.session.Stats(),
		Paused:         s.session.IsPaused(),
		PauseRequested: s.session.PauseRequested(),
		DroppedEvents:  s.events.Dropped(),
	}, nil
}

// SetRequest addresses one pad by grid position.
type SetRequest struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// Set updates the LED of a single pad.
func (s *service) Set(ctx context.Context, req *SetRequest) error {
	c, ok := apcmini.ColorFromString(req.Color)
	if !ok {
		return fmt.Errorf("unknown color %q", req.Color)
	}
	return s.device.SetPad(req.X, req.Y, c)
}

// PaintRequest selects a pattern frame for the whole matrix.
type PaintRequest struct {
	Pattern string `json:"pattern"`
	Step    int    `json:"step"`
}

// Paint paints one pattern frame in an exclusive batch.
func (s *service) Paint(ctx context.Context, req *PaintRequest) error {
	gen, err := pattern.Lookup(req.Pattern)
	if err != nil {
		return err
	}
	if req.Step < 0 {
		return errors.New("step must not be negative")
	}
	return s.device.Paint(gen(req.Step))
}

// Clear turns off every LED.
func (s *service) Clear(ctx context.Context) error {
	return s.device.Clear()
}

// PauseRequest carries the acknowledgment budget in milliseconds.
type PauseRequest struct {
	TimeoutMS int `json:"timeoutMs"`
}

// PauseReply reports the rendezvous outcome.
type PauseReply struct {
	Result string `json:"result"`
}

// Pause asks the reader to park and waits for the acknowledgment. The pause
// stays in effect until Resume is called, so a misbehaving client can wedge
// event delivery; Status exposes this state.
func (s *service) Pause(ctx context.Context, req *PauseRequest) (*PauseReply, error) {
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = session.DefaultPauseTimeout
	}
	res := s.session.RequestPause(timeout)
	return &PauseReply{Result: res.String()}, nil
}

// Resume withdraws the pause and releases the reader.
func (s *service) Resume(ctx context.Context) error {
	s.session.RequestResume()
	return nil
}

// EventsRequest bounds a poll of the buffered event stream.
type EventsRequest struct {
	Max       int `json:"max"`       // maximum events to return (default 32)
	TimeoutMS int `json:"timeoutMs"` // how long to wait for the first event
}

// EventReply is one decoded event.
type EventReply struct {
	TimeNanos int64  `json:"timeNanos"`
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Status    byte   `json:"status"`
	Data1     byte   `json:"data1"`
	Data2     byte   `json:"data2"`
}

// Events returns buffered inbound events, waiting up to the timeout for the
// first one.
func (s *service) Events(ctx context.Context, req *EventsRequest) ([]EventReply, error) {
	limit := req.Max
	if limit <= 0 {
		limit = 32
	}
	wait := time.Duration(req.TimeoutMS) * time.Millisecond
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	first, err := s.events.Get(wctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return []EventReply{}, nil
	} else if err != nil {
		return nil, err
	}

	out := []EventReply{toEventReply(first)}
	for len(out) < limit {
		m, ok := s.events.TryGet()
		if !ok {
			break
		}
		out = append(out, toEventReply(m))
	}
	return out, nil
}

func toEventReply(m midi.Message) EventReply {
	return EventReply{
		TimeNanos: m.Time.UnixNano(),
		Source:    m.Source.String(),
		Kind:      m.Kind().String(),
		Status:    m.Status,
		Data1:     m.Data1,
		Data2:     m.Data2,
	}
}
