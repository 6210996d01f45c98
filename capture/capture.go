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

// Package capture reads and writes event capture files.
//
// A capture file holds a timestamped stream of MIDI events recorded during a
// monitor run, for offline comparison of the device's behavior across access
// paths. The layout is a short plain header followed by a snappy-compressed
// stream of length-prefixed records, terminated by a zero-length sentinel and
// a 64-bit fingerprint of the record payloads. The fingerprint lets a reader
// distinguish a truncated or damaged file from a clean capture.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/padwerk/apcdiag/midi"
)

// magic identifies a capture file and its format version.
var magic = []byte("APCCAP\x00\x01")

// recordSize is the encoded size of one event record.
const recordSize = 12

var (
	// ErrBadMagic is reported when the input does not begin with a capture
	// file header.
	ErrBadMagic = errors.New("not a capture file")

	// ErrCorrupt is reported when the stream ends early or the fingerprint
	// does not match the records read.
	ErrCorrupt = errors.New("capture file is corrupted")
)

// A Writer appends events to a capture stream. The caller must Close the
// writer to obtain a well-formed file.
type Writer struct {
	raw   io.Writer
	body  *snappy.Writer
	hash  *xxhash.Digest
	count int64
	err   error
}

// NewWriter writes a capture header to w and returns a writer appending to
// it.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(magic); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{
		raw:  w,
		body: snappy.NewBufferedWriter(w),
		hash: xxhash.New(),
	}, nil
}

// encode packs m into a fixed-size record.
func encode(m midi.Message) [recordSize]byte {
	var rec [recordSize]byte
	binary.BigEndian.PutUint64(rec[0:], uint64(m.Time.UnixNano()))
	rec[8] = byte(m.Source)
	rec[9], rec[10], rec[11] = m.Status, m.Data1, m.Data2
	return rec
}

// Write appends one event record. After any error, the writer is broken and
// repeats that error.
func (w *Writer) Write(m midi.Message) error {
	if w.err != nil {
		return w.err
	}
	rec := encode(m)
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], recordSize)
	if _, err := w.body.Write(hdr[:n]); err != nil {
		w.err = err
		return err
	}
	if _, err := w.body.Write(rec[:]); err != nil {
		w.err = err
		return err
	}
	w.hash.Write(rec[:])
	w.count++
	return nil
}

// Count reports the number of records written so far.
func (w *Writer) Count() int64 { return w.count }

// Close terminates the stream with the sentinel and fingerprint and flushes
// the compressor. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	var buf [1 + 8]byte // sentinel + fingerprint
	binary.BigEndian.PutUint64(buf[1:], w.hash.Sum64())
	if _, err := w.body.Write(buf[:]); err != nil {
		w.err = err
		return err
	}
	if err := w.body.Close(); err != nil {
		w.err = err
		return err
	}
	w.err = errors.New("capture writer is closed")
	return nil
}

// A Reader iterates the events of a capture stream.
type Reader struct {
	body *snappy.Reader
	hash *xxhash.Digest
	done bool
	err  error
}

// NewReader validates the capture header of r and returns a reader over its
// records.
func NewReader(r io.Reader) (*Reader, error) {
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	for i, b := range magic {
		if hdr[i] != b {
			return nil, ErrBadMagic
		}
	}
	return &Reader{body: snappy.NewReader(r), hash: xxhash.New()}, nil
}

// Next returns the next event in the stream. It reports io.EOF after the
// last record of a clean capture, and ErrCorrupt if the stream is truncated
// or its fingerprint does not match.
func (r *Reader) Next() (midi.Message, error) {
	if r.err != nil {
		return midi.Message{}, r.err
	}
	size, err := binary.ReadUvarint(byteReader{r.body})
	if err != nil {
		r.err = fmt.Errorf("%w: missing sentinel", ErrCorrupt)
		return midi.Message{}, r.err
	}
	if size == 0 {
		// Sentinel: verify the fingerprint and finish.
		var sum [8]byte
		if _, err := io.ReadFull(r.body, sum[:]); err != nil {
			r.err = fmt.Errorf("%w: missing fingerprint", ErrCorrupt)
			return midi.Message{}, r.err
		}
		if binary.BigEndian.Uint64(sum[:]) != r.hash.Sum64() {
			r.err = fmt.Errorf("%w: fingerprint mismatch", ErrCorrupt)
			return midi.Message{}, r.err
		}
		r.err = io.EOF
		return midi.Message{}, io.EOF
	}
	if size != recordSize {
		r.err = fmt.Errorf("%w: record size %d", ErrCorrupt, size)
		return midi.Message{}, r.err
	}
	var rec [recordSize]byte
	if _, err := io.ReadFull(r.body, rec[:]); err != nil {
		r.err = fmt.Errorf("%w: truncated record", ErrCorrupt)
		return midi.Message{}, r.err
	}
	r.hash.Write(rec[:])
	return midi.Message{
		Time:   time.Unix(0, int64(binary.BigEndian.Uint64(rec[0:]))),
		Source: midi.Source(rec[8]),
		Status: rec[9],
		Data1:  rec[10],
		Data2:  rec[11],
	}, nil
}

// ReadAll decodes and verifies a complete capture stream.
func ReadAll(r io.Reader) ([]midi.Message, error) {
	cr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var out []midi.Message
	for {
		m, err := cr.Next()
		if err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, err
		}
		out = append(out, m)
	}
}

// byteReader adapts an io.Reader to io.ByteReader for uvarint decoding.
type byteReader struct{ r io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var p [1]byte
	if _, err := io.ReadFull(b.r, p[:]); err != nil {
		return 0, err
	}
	return p[0], nil
}
