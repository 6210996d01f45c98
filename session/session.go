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

// Package session implements the exclusive-access coordination protocol for
// a half-duplex hardware channel.
//
// A [Session] owns one [channel.Channel] and one background reader that
// continuously drains inbound packets and delivers decoded events to a
// caller-supplied sink. The channel's endpoint pair is not internally
// synchronized, so the session serializes every transfer behind a single
// mutex, and offers a cooperative pause protocol that gives a caller a
// window of exclusive send access for multi-message batch updates:
//
//	switch s.RequestPause(time.Second) {
//	case session.PauseAcknowledged:
//	    // The reader is parked; no receive will start until resume.
//	    for _, pkt := range batch {
//	        s.Send(pkt)
//	    }
//	    s.RequestResume()
//	case session.PauseTimedOut:
//	    // The reader may be stuck in a long transfer. Abort, or proceed
//	    // under the send mutex alone (a strictly weaker guarantee).
//	}
//
// The reader is never preempted: it checks the pause request at a single
// safe point between transfers, so a hardware transfer already in flight is
// never interrupted. Plain thread-suspension primitives cannot offer that
// guarantee, and on the systems this harness diagnoses they corrupt the
// endpoint state.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/msync"
	"github.com/creachadair/taskgroup"

	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/midi"
)

// ErrSessionClosed is reported by operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Options configure a session. A zero Options is ready for use; inbound
// events are dropped until an OnEvent callback is provided.
type Options struct {
	// Source tags decoded events with the access path they arrived through.
	Source midi.Source

	// OnEvent receives each decoded inbound event. It is called from the
	// reader and must not block for long: the channel is not being drained
	// while it runs. A nil OnEvent drops events.
	OnEvent func(midi.Message)

	// OnError receives transport errors from the reader. Receive timeouts
	// are not reported; they are a normal consequence of bounded transfers.
	// If nil, errors are logged.
	OnError func(error)

	// ErrorBackoff is how long the reader sleeps after a failed receive
	// before trying again, so a persistently failing transport does not
	// spin. If zero, 10ms is used.
	ErrorBackoff time.Duration
}

// A Session owns an open channel and its background reader.
type Session struct {
	ch   channel.Channel
	opts Options

	μ sync.Mutex // serializes all transfers on ch

	running  atomic.Bool
	pauseReq atomic.Bool
	paused   atomic.Bool
	pauseGen atomic.Uint64 // generation of the current pause request

	// The rendezvous for the pause protocol: the reader acknowledges on ack
	// ("I am parked") and is released through resume. Values carry the pause
	// generation so a rendezvous left over from a timed-out cycle can never
	// satisfy a later one. See pause.go.
	ack    *msync.Handoff[uint64]
	resume *msync.Handoff[uint64]

	pauseμ sync.Mutex // serializes pause/resume transitions

	reader *taskgroup.Single[error]

	closeOnce sync.Once
	closeErr  error

	st counters
}

type counters struct {
	received      atomic.Int64
	sent          atomic.Int64
	receiveErrors atomic.Int64
	sendErrors    atomic.Int64
	pauses        atomic.Int64
	pauseTimeouts atomic.Int64
}

// Stats is a snapshot of a session's transfer counters.
type Stats struct {
	Received      int64 // packets delivered to the sink
	Sent          int64 // packets written to the channel
	ReceiveErrors int64 // failed receive transfers (excluding timeouts)
	SendErrors    int64 // failed send transfers
	Pauses        int64 // acknowledged pause cycles
	PauseTimeouts int64 // pause requests that timed out unacknowledged
}

// Open starts a session on ch. The background reader begins polling
// immediately. The session assumes ownership of ch: it is released exactly
// once, by Close.
func Open(ch channel.Channel, opts Options) (*Session, error) {
	if ch == nil {
		return nil, errors.New("channel is nil")
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 10 * time.Millisecond
	}
	if opts.OnError == nil {
		opts.OnError = func(err error) { log.Printf("[DEBUG] receive error: %v", err) }
	}
	s := &Session{
		ch:     ch,
		opts:   opts,
		ack:    msync.NewHandoff[uint64](),
		resume: msync.NewHandoff[uint64](),
	}
	s.running.Store(true)
	s.reader = taskgroup.Go(taskgroup.NoError(s.run))
	return s, nil
}

// run is the reader loop. The top of each iteration is the safe point: no
// transfer is in flight there, and it is the only place where pause and
// shutdown requests are honored.
func (s *Session) run() {
	for {
		if !s.running.Load() {
			return
		}
		if s.pauseReq.Load() {
			s.parkUntilResumed()
			continue
		}

		s.μ.Lock()
		pkt, err := s.ch.Receive()
		s.μ.Unlock()

		if err != nil {
			if channel.IsTimeout(err) {
				continue // normal bounded-transfer expiry
			}
			if channel.IsClosed(err) {
				return
			}
			s.st.receiveErrors.Add(1)
			s.opts.OnError(err)
			time.Sleep(s.opts.ErrorBackoff)
			continue
		}
		if !pkt.Valid() {
			continue
		}
		s.st.received.Add(1)
		if s.opts.OnEvent != nil {
			m := pkt.Message()
			m.Source = s.opts.Source
			m.Time = time.Now()
			s.opts.OnEvent(m)
		}
	}
}

// parkUntilResumed acknowledges the pending pause request and parks the
// reader until it is released. No mutex is held while parked.
func (s *Session) parkUntilResumed() {
	gen := s.pauseGen.Load()
	s.paused.Store(true)

	// Replace any acknowledgment left over from a cycle whose waiter gave
	// up before consuming it. Only the reader sends on ack, so whatever is
	// buffered here is stale by construction.
	select {
	case <-s.ack.Ready():
	default:
	}
	s.ack.Send(gen)

	// Wait for a release no older than this cycle. A stale resume from an
	// earlier timed-out cycle is consumed and ignored.
	for {
		if g := <-s.resume.Ready(); g >= gen {
			break
		}
	}
	s.paused.Store(false)
}

// Send writes one packet to the channel under the send mutex. The mutex is
// held for the duration of this single transfer, no longer. This protection
// is unconditional: it applies whether or not a batch session is active, and
// it is the only protection in the degraded case where a pause request timed
// out and the caller elected to proceed.
func (s *Session) Send(pkt midi.Packet) error {
	if !s.running.Load() {
		return ErrSessionClosed
	}
	s.μ.Lock()
	err := s.ch.Send(pkt)
	s.μ.Unlock()
	if err != nil {
		s.st.sendErrors.Add(1)
		return fmt.Errorf("send: %w", err)
	}
	s.st.sent.Add(1)
	return nil
}

// SendMessage encodes m as a USB-MIDI packet and sends it.
func (s *Session) SendMessage(m midi.Message) error { return s.Send(midi.Pack(m)) }

// IsPaused reports whether the reader is currently parked.
func (s *Session) IsPaused() bool { return s.paused.Load() }

// PauseRequested reports whether a pause has been requested and not yet
// resumed.
func (s *Session) PauseRequested() bool { return s.pauseReq.Load() }

// Stats returns a snapshot of the session's transfer counters.
func (s *Session) Stats() Stats {
	return Stats{
		Received:      s.st.received.Load(),
		Sent:          s.st.sent.Load(),
		ReceiveErrors: s.st.receiveErrors.Load(),
		SendErrors:    s.st.sendErrors.Load(),
		Pauses:        s.st.pauses.Load(),
		PauseTimeouts: s.st.pauseTimeouts.Load(),
	}
}

// Close stops the reader and releases the channel. It is safe to call while
// a pause is active and never resumed: teardown always signals the release
// rendezvous before joining the reader, so a parked reader cannot deadlock.
// Close blocks until the reader has exited; the channel is closed exactly
// once, afterward.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)

		// Release a reader parked in the paused state, whether or not a
		// pause is active. The maximal generation satisfies any cycle.
		s.pauseμ.Lock()
		s.pauseReq.Store(false)
		select {
		case <-s.resume.Ready():
		default:
		}
		s.resume.Send(^uint64(0))
		s.pauseμ.Unlock()

		s.reader.Wait()
		s.closeErr = s.ch.Close()
	})
	return s.closeErr
}
