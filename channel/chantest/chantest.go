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

// Package chantest provides correctness tests for implementations of the
// [channel.Channel] interface.
package chantest

import (
	"testing"
	"time"

	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/channel/loopback"
	"github.com/padwerk/apcdiag/midi"
)

// Options configure a conformance run.
type Options struct {
	// Probe is the packet sent to exercise the outbound path. If zero, a
	// note-on for pad 0 is used.
	Probe midi.Packet

	// SkipSend skips the outbound exercise, for transports that would
	// deliver the probe to real hardware.
	SkipSend bool

	// ReceiveBound is the longest a bounded Receive is allowed to take
	// before the run fails. If zero, 5 seconds.
	ReceiveBound time.Duration
}

// Run exercises the common contract of a [channel.Channel]: bounded receive,
// outbound transfer, idempotent close, and the post-close error taxonomy.
// The channel is closed when Run returns.
func Run(t *testing.T, ch channel.Channel, opts Options) {
	t.Helper()
	if opts.Probe == (midi.Packet{}) {
		opts.Probe = midi.Pack(midi.NoteOn(0, 0, 1))
	}
	if opts.ReceiveBound <= 0 {
		opts.ReceiveBound = 5 * time.Second
	}

	// An idle channel's Receive must return within its bounded window, and
	// its expiry must be reported as a timeout, not a failure.
	done := make(chan error, 1)
	go func() {
		_, err := ch.Receive()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil && !channel.IsTimeout(err) {
			t.Errorf("Receive on idle channel: got %v, want nil or timeout", err)
		}
	case <-time.After(opts.ReceiveBound):
		t.Fatalf("Receive did not return within %v; the transport read is unbounded", opts.ReceiveBound)
	}

	if !opts.SkipSend {
		if err := ch.Send(opts.Probe); err != nil {
			t.Errorf("Send(%v): unexpected error: %v", opts.Probe, err)
		}
	}

	// Close must be idempotent, and both operations must report ErrClosed
	// afterward.
	if err := ch.Close(); err != nil {
		t.Errorf("Close: unexpected error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: unexpected error: %v", err)
	}
	if err := ch.Send(opts.Probe); !channel.IsClosed(err) {
		t.Errorf("Send after close: got %v, want ErrClosed", err)
	}
	if _, err := ch.Receive(); !channel.IsClosed(err) {
		t.Errorf("Receive after close: got %v, want ErrClosed", err)
	}
}

// VerifySerial fails the test if any two transfer windows in the log
// overlap. The log is typically taken from an instrumented [loopback.Channel]
// after a concurrent workload.
func VerifySerial(t *testing.T, transfers []loopback.Transfer) {
	t.Helper()
	for i := 0; i < len(transfers); i++ {
		for j := i + 1; j < len(transfers); j++ {
			if transfers[i].Overlaps(transfers[j]) {
				t.Errorf("transfers overlap: %s [%v, %v] and %s [%v, %v]",
					transfers[i].Op, transfers[i].Start, transfers[i].End,
					transfers[j].Op, transfers[j].Start, transfers[j].End)
			}
		}
	}
}
