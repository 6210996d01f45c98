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

package session

import (
	"errors"
	"time"
)

// DefaultPauseTimeout is the pause acknowledgment budget used by Batch when
// none is specified.
const DefaultPauseTimeout = 1 * time.Second

// ErrPauseTimeout is reported by Batch when the reader did not acknowledge
// the pause within its budget and the caller did not opt in to proceeding
// without acknowledgment.
var ErrPauseTimeout = errors.New("pause not acknowledged in time")

// ErrBatchActive is reported by Batch when a pause is already in effect.
var ErrBatchActive = errors.New("a pause is already in effect")

// PauseResult is the outcome of a RequestPause call.
type PauseResult int

const (
	// PauseAcknowledged means the reader reached its safe point and parked
	// within the timeout. The caller holds exclusive access until it calls
	// RequestResume.
	PauseAcknowledged PauseResult = iota

	// PauseTimedOut means the pause request is posted but the reader did not
	// acknowledge it within the timeout; it is likely stuck in a transfer.
	// The request stays pending, and the reader will still park when it next
	// reaches its safe point. The caller must eventually call RequestResume
	// whether it aborts or proceeds.
	PauseTimedOut

	// PauseAlreadyPaused means another pause is already in effect. The
	// caller must not treat this as exclusive access of its own.
	PauseAlreadyPaused
)

func (r PauseResult) String() string {
	switch r {
	case PauseAcknowledged:
		return "acknowledged"
	case PauseTimedOut:
		return "timed out"
	case PauseAlreadyPaused:
		return "already paused"
	default:
		return "invalid"
	}
}

// RequestPause asks the reader to park at its next safe point and waits up
// to timeout for the acknowledgment. A transfer already in flight is never
// interrupted; the reader checks for the request only between transfers,
// which is what bounds the expected wait to one receive timeout.
//
// On PauseTimedOut the request remains posted: the reader will still park
// when it eventually reaches the safe point, and a later RequestResume is
// required regardless. Acknowledgments and releases carry the generation of
// their pause cycle, so a rendezvous left over from an abandoned cycle can
// neither satisfy this call nor release a reader parked for it.
func (s *Session) RequestPause(timeout time.Duration) PauseResult {
	s.pauseμ.Lock()
	if s.pauseReq.Load() {
		s.pauseμ.Unlock()
		return PauseAlreadyPaused
	}
	gen := s.pauseGen.Add(1)
	s.pauseReq.Store(true)
	s.pauseμ.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case g := <-s.ack.Ready():
			if g == gen {
				s.st.pauses.Add(1)
				return PauseAcknowledged
			}
			// Stale acknowledgment from an abandoned cycle; discard it and
			// keep waiting.
		case <-t.C:
			s.st.pauseTimeouts.Add(1)
			return PauseTimedOut
		}
	}
}

// RequestResume withdraws the pause request and releases the reader if it is
// parked, reporting whether there was a pause to withdraw. It does not block
// and does not wait for the reader to actually resume polling; it is safe to
// call even if the reader never acknowledged the pause, in which case the
// reader passes straight through its next safe point.
func (s *Session) RequestResume() bool {
	s.pauseμ.Lock()
	defer s.pauseμ.Unlock()
	if !s.pauseReq.Load() {
		return false
	}
	gen := s.pauseGen.Load()
	s.pauseReq.Store(false)

	// Replace any release left over from an abandoned cycle. Releases are
	// only ever sent under pauseμ, so the slot cannot be refilled between
	// the drain and the send.
	select {
	case <-s.resume.Ready():
	default:
	}
	s.resume.Send(gen)
	return true
}

// BatchOptions configure a Batch call. A zero BatchOptions uses
// DefaultPauseTimeout and aborts if the pause is not acknowledged.
type BatchOptions struct {
	// PauseTimeout is how long to wait for the reader to acknowledge the
	// pause. If zero, DefaultPauseTimeout is used.
	PauseTimeout time.Duration

	// AllowUnacknowledged proceeds with the batch even if the pause was not
	// acknowledged in time. The batch then runs under the per-transfer send
	// mutex alone, a strictly weaker guarantee: sends cannot collide with a
	// receive, but they may interleave with one.
	AllowUnacknowledged bool
}

// Batch runs f with the reader paused, then resumes it. It is the intended
// way to perform multi-message updates, like repainting the full pad matrix:
//
//	err := s.Batch(session.BatchOptions{}, func(s *session.Session) error {
//	    for _, pkt := range frame {
//	        if err := s.Send(pkt); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
//
// If the pause is not acknowledged within the budget, Batch withdraws the
// request and reports ErrPauseTimeout without running f, unless
// AllowUnacknowledged is set. If another pause is already in effect, Batch
// reports ErrBatchActive without running f. The reader is resumed before
// Batch returns, whatever f reports.
func (s *Session) Batch(opts BatchOptions, f func(*Session) error) error {
	if !s.running.Load() {
		return ErrSessionClosed
	}
	if opts.PauseTimeout <= 0 {
		opts.PauseTimeout = DefaultPauseTimeout
	}
	switch r := s.RequestPause(opts.PauseTimeout); r {
	case PauseAlreadyPaused:
		return ErrBatchActive
	case PauseTimedOut:
		if !opts.AllowUnacknowledged {
			s.RequestResume()
			return ErrPauseTimeout
		}
	}
	defer s.RequestResume()
	return f(s)
}
