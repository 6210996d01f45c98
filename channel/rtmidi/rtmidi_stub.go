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

//go:build !midi_native

// Package rtmidi implements the native access path through the system MIDI
// routing layer. This stub is compiled without the midi_native build tag and
// reports at open time that native support is unavailable.
package rtmidi

import (
	"errors"
	"time"

	"github.com/padwerk/apcdiag/midi"
)

// ErrUnavailable is reported when the harness was built without the
// midi_native build tag.
var ErrUnavailable = errors.New("native MIDI support not compiled in (build with -tags midi_native)")

// Available reports whether native MIDI support is compiled in.
func Available() bool { return false }

// Options configure an open native channel.
type Options struct {
	// ReceiveTimeout bounds each Receive call. If zero, 100ms is used.
	ReceiveTimeout time.Duration
}

// Open reports ErrUnavailable.
func Open(device string, opts Options) (*Channel, error) { return nil, ErrUnavailable }

// Channel is a placeholder for the native transport. Its methods all report
// ErrUnavailable so the type still satisfies [channel.Channel].
type Channel struct{}

// Receive reports ErrUnavailable.
func (*Channel) Receive() (midi.Packet, error) { return midi.Packet{}, ErrUnavailable }

// Send reports ErrUnavailable.
func (*Channel) Send(midi.Packet) error { return ErrUnavailable }

// Close reports ErrUnavailable.
func (*Channel) Close() error { return ErrUnavailable }

// Inputs reports ErrUnavailable.
func Inputs() ([]string, error) { return nil, ErrUnavailable }
