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

// Package bench implements the latency and throughput probes of the
// diagnostic harness.
//
// The round-trip probe sends a note and times the arrival of the reflected
// event, which measures the full path through the transport, the device, and
// the reader. The paint probe times full-matrix frame updates through the
// batch protocol, which is the operation user-facing software is most
// sensitive to.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/pattern"
	"github.com/padwerk/apcdiag/session"
	"github.com/padwerk/apcdiag/stats"
)

// Options configure a benchmark run.
type Options struct {
	// Iterations is the number of measured probes. Default 100.
	Iterations int

	// Warmup is the number of unmeasured probes run first, to fault in the
	// transport path and let the device settle. Default 10.
	Warmup int

	// ProbeTimeout bounds the wait for each reflected event. Probes that
	// time out are counted but contribute no sample. Default 250ms.
	ProbeTimeout time.Duration

	// Note is the pad used for round-trip probes.
	Note byte

	// Source tags the session opened for the run.
	Source midi.Source
}

func (o *Options) setDefaults() {
	if o.Iterations <= 0 {
		o.Iterations = 100
	}
	if o.Warmup < 0 {
		o.Warmup = 10
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 250 * time.Millisecond
	}
}

// A Result combines the latency digest with the probe and session counters
// of one benchmark run.
type Result struct {
	Summary  stats.Summary `json:"summary"`
	Timeouts int           `json:"timeouts"` // probes with no reflected event
	Session  session.Stats `json:"session"`
}

// RoundTrip measures send-to-event latency on ch. It opens its own session
// on the channel and assumes ownership of it: ch is closed when RoundTrip
// returns. The channel must reflect outbound events back to the host, which
// holds for the loopback channel in echo mode and for the device's note
// echo modes.
func RoundTrip(ctx context.Context, ch channel.Channel, opts Options) (Result, error) {
	opts.setDefaults()

	echoes := make(chan midi.Message, 64)
	s, err := session.Open(ch, session.Options{
		Source: opts.Source,
		OnEvent: func(m midi.Message) {
			select {
			case echoes <- m:
			default: // an unclaimed event is not part of any probe
			}
		},
	})
	if err != nil {
		return Result{}, err
	}
	defer s.Close()

	lat := stats.NewLatency("round-trip")
	var timeouts int

	probe := func(i int, record bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		want := midi.NoteOn(apcmini.MIDIChannel, opts.Note, byte(1+i%6))
		start := time.Now()
		if err := s.SendMessage(want); err != nil {
			return fmt.Errorf("probe %d: %w", i, err)
		}
		deadline := time.NewTimer(opts.ProbeTimeout)
		defer deadline.Stop()
		for {
			select {
			case m := <-echoes:
				if m.Status != want.Status || m.Data1 != want.Data1 || m.Data2 != want.Data2 {
					continue // an event from another source; not our echo
				}
				if record {
					lat.Add(time.Since(start))
				}
				return nil
			case <-deadline.C:
				if record {
					timeouts++
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	for i := range opts.Warmup {
		if err := probe(i, false); err != nil {
			return Result{}, err
		}
	}
	for i := range opts.Iterations {
		if err := probe(i, true); err != nil {
			return Result{}, err
		}
	}

	sum, err := lat.Checked()
	return Result{Summary: sum, Timeouts: timeouts, Session: s.Stats()}, err
}

// Paint measures full-matrix frame updates through d using the checker
// pattern, which forces every pad to change on every frame. Each sample is
// the time to acquire exclusive access, write all 64 pad updates, and
// release the reader.
func Paint(ctx context.Context, d *device.Device, opts Options) (Result, error) {
	opts.setDefaults()

	lat := stats.NewLatency("paint")
	for i := range opts.Warmup + opts.Iterations {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		f := pattern.Checker(i)
		start := time.Now()
		if err := d.Paint(f); err != nil {
			return Result{}, fmt.Errorf("frame %d: %w", i, err)
		}
		if i >= opts.Warmup {
			lat.Add(time.Since(start))
		}
	}

	sum, err := lat.Checked()
	return Result{Summary: sum, Session: d.Session().Stats()}, err
}
