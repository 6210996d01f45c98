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

// Package channel defines the hardware transport abstraction shared by the
// access paths of the harness.
//
// A [Channel] is a serially-reusable bidirectional pipe of USB-MIDI event
// packets. It is deliberately NOT safe for concurrent use: the underlying
// endpoint pair is not internally synchronized, and issuing two transfers at
// once corrupts driver state on the systems this harness exists to diagnose.
// All synchronization belongs to the session layer, which serializes every
// transfer behind a single mutex and coordinates pausing of the background
// reader.
package channel

import (
	"errors"

	"github.com/padwerk/apcdiag/midi"
)

// A Channel is an open transport to the control surface.
//
// Receive blocks until a packet arrives, the transport's read timeout
// elapses, or the channel fails. Implementations should bound Receive with a
// modest timeout and report its expiry as [ErrReceiveTimeout]: the reader
// loop treats that as benign and retries, and the bound is what keeps
// cooperative pause and shutdown responsive. There is no cancellation of a
// transfer already in flight.
//
// Send and Receive must never be invoked concurrently, in any combination.
type Channel interface {
	// Receive performs one inbound transfer and returns the packet read.
	Receive() (midi.Packet, error)

	// Send performs one outbound transfer of the given packet.
	Send(midi.Packet) error

	// Close releases the transport. After Close, Send and Receive must
	// report an error wrapping ErrClosed. Close is idempotent.
	Close() error
}

var (
	// ErrReceiveTimeout is reported by Receive when the transport's bounded
	// read window elapsed with no data. It is not a failure; callers retry.
	ErrReceiveTimeout = errors.New("receive timeout")

	// ErrClosed is reported by operations on a closed channel.
	ErrClosed = errors.New("channel is closed")
)

// IsTimeout reports whether err is or wraps ErrReceiveTimeout.
// It is false if err == nil.
func IsTimeout(err error) bool {
	return err != nil && errors.Is(err, ErrReceiveTimeout)
}

// IsClosed reports whether err is or wraps ErrClosed.
func IsClosed(err error) bool {
	return err != nil && errors.Is(err, ErrClosed)
}
