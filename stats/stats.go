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

// Package stats collects latency samples and summarizes them for the
// benchmark reports.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/atomicfile"
)

// A Latency accumulates duration samples. It is safe for concurrent use.
type Latency struct {
	μ       sync.Mutex
	name    string
	samples []time.Duration
	sorted  bool
}

// NewLatency constructs an empty collector labeled with name.
func NewLatency(name string) *Latency { return &Latency{name: name} }

// Name returns the collector's label.
func (l *Latency) Name() string { return l.name }

// Add records one sample.
func (l *Latency) Add(d time.Duration) {
	l.μ.Lock()
	defer l.μ.Unlock()
	l.samples = append(l.samples, d)
	l.sorted = false
}

// Count reports the number of recorded samples.
func (l *Latency) Count() int {
	l.μ.Lock()
	defer l.μ.Unlock()
	return len(l.samples)
}

// sort orders the samples in place. The caller must hold μ.
func (l *Latency) sort() {
	if !l.sorted {
		slices.Sort(l.samples)
		l.sorted = true
	}
}

// Percentile returns the p-th percentile sample, 0 ≤ p ≤ 100, using
// nearest-rank interpolation. It reports 0 with no samples.
func (l *Latency) Percentile(p float64) time.Duration {
	l.μ.Lock()
	defer l.μ.Unlock()
	if len(l.samples) == 0 {
		return 0
	}
	l.sort()
	rank := int(math.Ceil(p / 100 * float64(len(l.samples))))
	if rank < 1 {
		rank = 1
	} else if rank > len(l.samples) {
		rank = len(l.samples)
	}
	return l.samples[rank-1]
}

// A Summary is a point-in-time digest of a collector.
type Summary struct {
	Name   string        `json:"name"`
	Count  int           `json:"count"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Stddev time.Duration `json:"stddev"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
}

// Summarize digests the samples recorded so far.
func (l *Latency) Summarize() Summary {
	l.μ.Lock()
	defer l.μ.Unlock()
	out := Summary{Name: l.name, Count: len(l.samples)}
	if len(l.samples) == 0 {
		return out
	}
	l.sort()
	out.Min = l.samples[0]
	out.Max = l.samples[len(l.samples)-1]

	var sum float64
	for _, d := range l.samples {
		sum += float64(d)
	}
	mean := sum / float64(len(l.samples))
	out.Mean = time.Duration(mean)

	var sq float64
	for _, d := range l.samples {
		dev := float64(d) - mean
		sq += dev * dev
	}
	out.Stddev = time.Duration(math.Sqrt(sq / float64(len(l.samples))))

	pct := func(p float64) time.Duration {
		rank := int(math.Ceil(p / 100 * float64(len(l.samples))))
		if rank < 1 {
			rank = 1
		}
		return l.samples[rank-1]
	}
	out.P50, out.P95, out.P99 = pct(50), pct(95), pct(99)
	return out
}

// String renders the summary in the one-line form the CLI prints.
func (s Summary) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no samples", s.Name)
	}
	return fmt.Sprintf("%s: n=%d min=%v p50=%v mean=%v p95=%v p99=%v max=%v stddev=%v",
		s.Name, s.Count, s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max, s.Stddev)
}

// csvHeader is the column layout of an exported report.
const csvHeader = "name,count,min_ns,max_ns,mean_ns,stddev_ns,p50_ns,p95_ns,p99_ns"

func (s Summary) csvRow() string {
	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d,%d,%d",
		s.Name, s.Count, s.Min, s.Max, s.Mean, s.Stddev, s.P50, s.P95, s.P99)
}

// A Report is an ordered collection of summaries destined for export.
type Report []Summary

// WriteCSV atomically writes the report to path in CSV form.
func (r Report) WriteCSV(path string) error {
	var sb strings.Builder
	fmt.Fprintln(&sb, csvHeader)
	for _, s := range r {
		fmt.Fprintln(&sb, s.csvRow())
	}
	return atomicfile.WriteData(path, []byte(sb.String()), 0644)
}

// WriteJSON atomically writes the report to path as indented JSON.
func (r Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteData(path, append(data, '\n'), 0644)
}

// Sort orders the report by name, for stable output.
func (r Report) Sort() { sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name }) }

// ErrNoSamples is reported when a summary is requested of an operation that
// produced no samples at all, usually because every probe timed out.
var ErrNoSamples = errors.New("no samples recorded")

// Checked returns the summary, or ErrNoSamples if the collector is empty.
func (l *Latency) Checked() (Summary, error) {
	s := l.Summarize()
	if s.Count == 0 {
		return s, fmt.Errorf("%s: %w", l.name, ErrNoSamples)
	}
	return s, nil
}
