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

// Package loopback implements an in-memory [channel.Channel] for tests and
// virtual benchmarks. The contents are not connected to any hardware.
//
// A loopback channel is scriptable: inbound packets can be queued with Push,
// outbound packets are recorded, an echo mode reflects every sent packet back
// to the receive side, and individual transfers can be made to stall to
// simulate a wedged device.
//
// Every transfer is instrumented with entry and exit timestamps, and the
// channel counts how many transfers were ever in flight simultaneously, so a
// test can assert that a correctly synchronized caller never overlapped two
// transfers.
package loopback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/midi"
)

// Options configure a loopback channel.
type Options struct {
	// ReceiveTimeout bounds each Receive call. If zero, a default of 10ms is
	// used. A Receive that sees no packet within the window reports
	// channel.ErrReceiveTimeout, like a real bounded bulk transfer.
	ReceiveTimeout time.Duration

	// Echo, if true, reflects every packet given to Send back to the receive
	// queue after EchoDelay. This emulates the device answering a probe,
	// which is what the round-trip benchmarks measure.
	Echo      bool
	EchoDelay time.Duration
}

// A Transfer records the instrumented window of one Send or Receive call.
type Transfer struct {
	Op    string // "send" or "receive"
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two transfer windows intersect.
func (tr Transfer) Overlaps(other Transfer) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Channel is an in-memory implementation of [channel.Channel].
// A zero value is ready for use, but must not be copied after first use.
type Channel struct {
	opts Options

	μ         sync.Mutex
	inbox     []midi.Packet
	sent      []midi.Packet
	transfers []Transfer
	stall     time.Duration // applied to the next Receive, then cleared
	closed    bool
	wake      chan struct{} // signaled when inbox gains a packet or channel closes

	inflight atomic.Int32
	maxSeen  atomic.Int32
}

// New constructs a loopback channel with the given options.
func New(opts Options) *Channel {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 10 * time.Millisecond
	}
	return &Channel{opts: opts, wake: make(chan struct{}, 1)}
}

// Push queues packets for delivery to subsequent Receive calls.
func (c *Channel) Push(pkts ...midi.Packet) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed {
		return
	}
	c.inbox = append(c.inbox, pkts...)
	c.signal()
}

// StallNextReceive arms a one-shot artificial stall: the next Receive call
// blocks for d before checking for data, emulating a wedged transfer.
func (c *Channel) StallNextReceive(d time.Duration) {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.stall = d
}

// signal wakes one pending Receive. The caller must hold μ.
func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// enter begins an instrumented transfer window and returns the exit hook.
func (c *Channel) enter(op string) func() {
	if n := c.inflight.Add(1); n > c.maxSeen.Load() {
		c.maxSeen.Store(n)
	}
	start := time.Now()
	return func() {
		end := time.Now()
		c.inflight.Add(-1)
		c.μ.Lock()
		defer c.μ.Unlock()
		c.transfers = append(c.transfers, Transfer{Op: op, Start: start, End: end})
	}
}

// Receive implements part of [channel.Channel].
func (c *Channel) Receive() (midi.Packet, error) {
	defer c.enter("receive")()

	c.μ.Lock()
	if c.closed {
		c.μ.Unlock()
		return midi.Packet{}, channel.ErrClosed
	}
	if d := c.stall; d > 0 {
		c.stall = 0
		c.μ.Unlock()
		time.Sleep(d)
		c.μ.Lock()
	}
	deadline := time.Now().Add(c.opts.ReceiveTimeout)
	for {
		if c.closed {
			c.μ.Unlock()
			return midi.Packet{}, channel.ErrClosed
		}
		if len(c.inbox) > 0 {
			pkt := c.inbox[0]
			c.inbox = c.inbox[1:]
			if len(c.inbox) > 0 {
				c.signal() // more waiting; don't lose the wakeup
			}
			c.μ.Unlock()
			return pkt, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			c.μ.Unlock()
			return midi.Packet{}, channel.ErrReceiveTimeout
		}
		c.μ.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-c.wake:
		case <-t.C:
		}
		t.Stop()
		c.μ.Lock()
	}
}

// Send implements part of [channel.Channel].
func (c *Channel) Send(pkt midi.Packet) error {
	defer c.enter("send")()

	c.μ.Lock()
	if c.closed {
		c.μ.Unlock()
		return channel.ErrClosed
	}
	c.sent = append(c.sent, pkt)
	echo := c.opts.Echo
	c.μ.Unlock()

	if echo {
		if c.opts.EchoDelay > 0 {
			time.Sleep(c.opts.EchoDelay)
		}
		c.Push(pkt)
	}
	return nil
}

// Close implements part of [channel.Channel]. It is safe to call multiple
// times and unblocks any pending Receive.
func (c *Channel) Close() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if !c.closed {
		c.closed = true
		close(c.wake)
	}
	return nil
}

// Sent returns a copy of all packets given to Send, in order.
func (c *Channel) Sent() []midi.Packet {
	c.μ.Lock()
	defer c.μ.Unlock()
	out := make([]midi.Packet, len(c.sent))
	copy(out, c.sent)
	return out
}

// Transfers returns a copy of the instrumented transfer log.
func (c *Channel) Transfers() []Transfer {
	c.μ.Lock()
	defer c.μ.Unlock()
	out := make([]Transfer, len(c.transfers))
	copy(out, c.transfers)
	return out
}

// MaxInflight reports the greatest number of transfers that were ever in
// flight at once. For a correctly synchronized caller this is 1.
func (c *Channel) MaxInflight() int { return int(c.maxSeen.Load()) }
