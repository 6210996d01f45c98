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

//go:build unix

// Package rawusb implements the raw device-transport access path: a
// [channel.Channel] over the control surface's device node, bypassing the
// system MIDI routing layer entirely.
//
// The transport treats the node as a bulk pipe of 4-byte USB-MIDI event
// packets. Reads are bounded by a poll(2) window so the session's reader can
// observe pause and shutdown requests between transfers.
package rawusb

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/midi"
)

// DefaultReceiveTimeout bounds each inbound transfer when Options leaves
// ReceiveTimeout zero.
const DefaultReceiveTimeout = 100 * time.Millisecond

// Options configure an open transport.
type Options struct {
	// ReceiveTimeout bounds each Receive call.
	// If zero, DefaultReceiveTimeout is used.
	ReceiveTimeout time.Duration
}

// A Channel is an open raw transport. It implements [channel.Channel].
// It is not safe for concurrent use; see the channel package.
type Channel struct {
	fd      int
	path    string
	timeout time.Duration

	closeOnce sync.Once
	closed    bool
	cerr      error
}

// Open opens the device node at path for exclusive packet I/O.
func Open(path string, opts Options) (*Channel, error) {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Channel{fd: fd, path: path, timeout: opts.ReceiveTimeout}, nil
}

// Receive implements part of [channel.Channel]. It waits at most the
// configured receive timeout for an inbound packet.
func (c *Channel) Receive() (midi.Packet, error) {
	if c.closed {
		return midi.Packet{}, channel.ErrClosed
	}
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(c.timeout.Milliseconds()))
	if err == unix.EINTR {
		return midi.Packet{}, channel.ErrReceiveTimeout
	} else if err != nil {
		return midi.Packet{}, fmt.Errorf("poll %s: %w", c.path, err)
	} else if n == 0 {
		return midi.Packet{}, channel.ErrReceiveTimeout
	}

	var pkt midi.Packet
	nr, err := unix.Read(c.fd, pkt[:])
	if err != nil {
		return midi.Packet{}, fmt.Errorf("read %s: %w", c.path, err)
	} else if nr != midi.PacketSize {
		return midi.Packet{}, fmt.Errorf("read %s: short packet (%d/%d bytes)", c.path, nr, midi.PacketSize)
	}
	return pkt, nil
}

// Send implements part of [channel.Channel].
func (c *Channel) Send(pkt midi.Packet) error {
	if c.closed {
		return channel.ErrClosed
	}
	nw, err := unix.Write(c.fd, pkt[:])
	if err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	} else if nw != midi.PacketSize {
		return fmt.Errorf("write %s: short transfer (%d/%d bytes)", c.path, nw, midi.PacketSize)
	}
	return nil
}

// Close implements part of [channel.Channel]. The descriptor is released
// exactly once; subsequent calls report the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed = true
		if err := unix.Close(c.fd); err != nil {
			c.cerr = fmt.Errorf("close %s: %w", c.path, err)
		}
	})
	return c.cerr
}

// Path reports the device node this channel was opened from.
func (c *Channel) Path() string { return c.path }
