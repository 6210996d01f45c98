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

//go:build midi_native

// Package rtmidi implements the native access path: a [channel.Channel]
// through the system MIDI routing layer via the rtmidi driver bindings.
//
// This is the path the message-routing API benchmarks exercise, in contrast
// to the rawusb transport. It requires cgo and the midi_native build tag; a
// stub that reports an error at open time is compiled otherwise.
package rtmidi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"

	"github.com/padwerk/apcdiag/channel"
	apcmidi "github.com/padwerk/apcdiag/midi"
)

// Available reports whether native MIDI support is compiled in.
func Available() bool { return true }

// Options configure an open native channel.
type Options struct {
	// ReceiveTimeout bounds each Receive call. If zero, 100ms is used.
	ReceiveTimeout time.Duration
}

// A Channel adapts a pair of native MIDI ports to [channel.Channel].
// Inbound data arrives through the driver's listener callback and is staged
// in a bounded queue that Receive drains; the queue drops the oldest entry
// on overflow so the driver callback never blocks.
type Channel struct {
	drv     *rtmididrv.Driver
	in      midi.In
	out     midi.Out
	timeout time.Duration

	μ      sync.Mutex
	queue  []apcmidi.Packet
	closed bool
	wake   chan struct{}

	closeOnce sync.Once
	cerr      error
}

const queueLimit = 1024

// Open opens the first input and output port whose names contain device
// (exact matches are preferred) and returns a channel over the pair.
func Open(device string, opts Options) (*Channel, error) {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 100 * time.Millisecond
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmidi driver: %w", err)
	}
	in, err := findIn(drv, device)
	if err != nil {
		drv.Close()
		return nil, err
	}
	out, err := findOut(drv, device)
	if err != nil {
		drv.Close()
		return nil, err
	}
	if err := in.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open input %q: %w", in.String(), err)
	}
	if err := out.Open(); err != nil {
		in.Close()
		drv.Close()
		return nil, fmt.Errorf("open output %q: %w", out.String(), err)
	}

	c := &Channel{drv: drv, in: in, out: out, timeout: opts.ReceiveTimeout, wake: make(chan struct{}, 1)}
	if err := in.SetListener(c.listen); err != nil {
		c.Close()
		return nil, fmt.Errorf("set listener: %w", err)
	}
	return c, nil
}

func findIn(drv *rtmididrv.Driver, device string) (midi.In, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("enumerate inputs: %w", err)
	}
	for _, p := range ins {
		if p.String() == device {
			return p, nil
		}
	}
	for _, p := range ins {
		if strings.Contains(p.String(), device) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input matching %q", device)
}

func findOut(drv *rtmididrv.Driver, device string) (midi.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("enumerate outputs: %w", err)
	}
	for _, p := range outs {
		if p.String() == device {
			return p, nil
		}
	}
	for _, p := range outs {
		if strings.Contains(p.String(), device) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output matching %q", device)
}

// listen stages raw inbound bytes for Receive. It runs on the driver's
// callback thread and must not block.
func (c *Channel) listen(data []byte, _ int64) {
	if len(data) < 3 || data[0] >= 0xF0 {
		return // realtime and system common traffic is not interesting here
	}
	pkt := apcmidi.Pack(apcmidi.Message{Status: data[0], Data1: data[1], Data2: data[2]})

	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed {
		return
	}
	if len(c.queue) >= queueLimit {
		c.queue = c.queue[1:] // drop oldest
	}
	c.queue = append(c.queue, pkt)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Receive implements part of [channel.Channel].
func (c *Channel) Receive() (apcmidi.Packet, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		c.μ.Lock()
		if c.closed {
			c.μ.Unlock()
			return apcmidi.Packet{}, channel.ErrClosed
		}
		if len(c.queue) > 0 {
			pkt := c.queue[0]
			c.queue = c.queue[1:]
			c.μ.Unlock()
			return pkt, nil
		}
		c.μ.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return apcmidi.Packet{}, channel.ErrReceiveTimeout
		}
		t := time.NewTimer(wait)
		select {
		case <-c.wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// Send implements part of [channel.Channel].
func (c *Channel) Send(pkt apcmidi.Packet) error {
	c.μ.Lock()
	closed := c.closed
	c.μ.Unlock()
	if closed {
		return channel.ErrClosed
	}
	m := pkt.Message()
	if err := c.out.Send([]byte{m.Status, m.Data1, m.Data2}); err != nil {
		return fmt.Errorf("send %v: %w", m, err)
	}
	return nil
}

// Close implements part of [channel.Channel].
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.μ.Lock()
		c.closed = true
		close(c.wake)
		c.μ.Unlock()

		c.in.StopListening()
		c.in.Close()
		c.out.Close()
		c.cerr = c.drv.Close()
	})
	return c.cerr
}

// Inputs lists the names of the available native MIDI input ports.
func Inputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ins))
	for _, p := range ins {
		names = append(names, p.String())
	}
	return names, nil
}
