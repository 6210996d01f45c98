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

//go:build !unix

package rawusb

import (
	"errors"
	"time"

	"github.com/padwerk/apcdiag/midi"
)

// ErrUnavailable is reported on platforms without raw USB device nodes.
var ErrUnavailable = errors.New("raw USB transport is not supported on this platform")

// Options configure an opened channel. This platform has no raw transport;
// the type exists so callers compile unchanged.
type Options struct {
	ReceiveTimeout time.Duration
}

// Open reports ErrUnavailable.
func Open(path string, opts Options) (*Channel, error) { return nil, ErrUnavailable }

// Channel is a placeholder; no instances can be created on this platform.
type Channel struct{}

// Receive implements part of the channel interface.
func (*Channel) Receive() (midi.Packet, error) { return midi.Packet{}, ErrUnavailable }

// Send implements part of the channel interface.
func (*Channel) Send(midi.Packet) error { return ErrUnavailable }

// Close implements part of the channel interface.
func (*Channel) Close() error { return ErrUnavailable }

// Device describes an attached USB device.
type Device struct {
	Node         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
}

// IsAPCMini reports whether the device is a recognized control surface.
func (d Device) IsAPCMini() bool { return false }

func (d Device) String() string { return d.Node }

// Scanner enumerates attached USB devices. It has nothing to enumerate on
// this platform.
type Scanner struct {
	SysfsRoot string
	DevfsRoot string
}

// Scan reports ErrUnavailable.
func (Scanner) Scan() ([]Device, error) { return nil, ErrUnavailable }

// FindAPCMini reports ErrUnavailable.
func (Scanner) FindAPCMini() (Device, error) { return Device{}, ErrUnavailable }

// FindAPCMini reports ErrUnavailable.
func FindAPCMini() (Device, error) { return Device{}, ErrUnavailable }
