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

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/creachadair/atomicfile"
	"github.com/creachadair/command"
	"github.com/creachadair/mds/mapset"

	"github.com/padwerk/apcdiag/bench"
	"github.com/padwerk/apcdiag/capture"
	"github.com/padwerk/apcdiag/channel/rawusb"
	"github.com/padwerk/apcdiag/channel/rtmidi"
	"github.com/padwerk/apcdiag/cmd/apcdiag/config"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/pattern"
	"github.com/padwerk/apcdiag/queue"
	"github.com/padwerk/apcdiag/session"
	"github.com/padwerk/apcdiag/stats"
)

// version is stamped by the release build; "devel" otherwise.
var version = "devel"

// Flag targets for the subcommands.
var (
	scanAll     bool          // scan
	captureFile string        // monitor
	kindFilter  string        // monitor
	monDuration time.Duration // monitor
	queueSize   int           // monitor
	benchN      int           // bench
	benchWarmup int           // bench
	benchCSV    string        // bench
	benchJSON   string        // bench
	ledFrames   int           // leds
	ledDelay    time.Duration // leds
)

func getSettings(env *command.Env) *config.Settings {
	return env.Config.(*config.Settings)
}

// openSession opens the configured channel and starts a session delivering
// events to onEvent (which may be nil).
func openSession(cfg *config.Settings, onEvent func(midi.Message)) (*session.Session, error) {
	ch, err := cfg.OpenChannel()
	if err != nil {
		return nil, err
	}
	src := midi.SourceRaw
	switch cfg.Transport {
	case "native":
		src = midi.SourceNative
	case "sim":
		src = midi.SourceSimulation
	}
	return session.Open(ch, session.Options{
		Source:  src,
		OnEvent: onEvent,
		OnError: func(err error) { log.Printf("[WARN] receive: %v", err) },
	})
}

func scanCmd(env *command.Env, args []string) error {
	devs, err := rawusb.Scanner{}.Scan()
	if err != nil {
		return err
	}
	var found int
	for _, d := range devs {
		if !d.IsAPCMini() && !scanAll {
			continue
		}
		marker := " "
		if d.IsAPCMini() {
			marker = "*"
			found++
		}
		fmt.Printf("%s %s\n", marker, d)
	}
	if found == 0 && !scanAll {
		return errors.New("no control surface found (use -all to list every device)")
	}
	return nil
}

// parseKinds converts a comma-separated kind list into a filter set. An
// empty spec admits everything.
func parseKinds(spec string) (mapset.Set[midi.Kind], error) {
	if spec == "" {
		return nil, nil
	}
	set := mapset.New[midi.Kind]()
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		k := midi.KindFromString(name)
		if k == midi.KindOther && name != "other" {
			return nil, fmt.Errorf("unknown event kind %q", name)
		}
		set.Add(k)
	}
	return set, nil
}

func monitorCmd(env *command.Env, args []string) error {
	cfg := getSettings(env)
	kinds, err := parseKinds(kindFilter)
	if err != nil {
		return err
	}

	ctx := cfg.Context
	if monDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, monDuration)
		defer cancel()
	}

	events := queue.New[midi.Message](queueSize)
	s, err := openSession(cfg, events.Put)
	if err != nil {
		return err
	}
	defer s.Close()

	var cw *capture.Writer
	var capBuf bytes.Buffer
	if captureFile != "" {
		cw, err = capture.NewWriter(&capBuf)
		if err != nil {
			return err
		}
	}

	log.Printf("[INFO] monitoring; interrupt to stop")
	for {
		m, err := events.Get(ctx)
		if err != nil {
			break // interrupted or timed out; both are a normal stop
		}
		if kinds != nil && !kinds.Has(m.Kind()) {
			continue
		}
		fmt.Printf("%s [%s] %v\n", m.Time.Format("15:04:05.000"), m.Source, m)
		if cw != nil {
			if err := cw.Write(m); err != nil {
				return err
			}
		}
	}

	if qs := events.Stats(); qs.Dropped > 0 {
		log.Printf("[WARN] %d events dropped by a slow consumer (max queue depth %d)", qs.Dropped, qs.MaxDepth)
	}
	st := s.Stats()
	log.Printf("[INFO] received %d events (%d receive errors)", st.Received, st.ReceiveErrors)

	if cw != nil {
		if err := cw.Close(); err != nil {
			return err
		}
		if err := atomicfile.WriteData(captureFile, capBuf.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing capture: %w", err)
		}
		log.Printf("[INFO] captured %d events to %s", cw.Count(), captureFile)
	}
	return nil
}

// benchOptions merges the config defaults with the bench flags.
func benchOptions(cfg *config.Settings) (bench.Options, error) {
	timeout, err := cfg.Bench.ProbeTimeoutOrDefault()
	if err != nil {
		return bench.Options{}, err
	}
	opts := bench.Options{
		Iterations:   cfg.Bench.Iterations,
		Warmup:       cfg.Bench.Warmup,
		ProbeTimeout: timeout,
	}
	if benchN > 0 {
		opts.Iterations = benchN
	}
	if benchWarmup >= 0 {
		opts.Warmup = benchWarmup
	}
	return opts, nil
}

// writeReport prints the result and exports it to the requested files.
func writeReport(res bench.Result) error {
	fmt.Println(res.Summary)
	if res.Timeouts > 0 {
		log.Printf("[WARN] %d probes timed out", res.Timeouts)
	}
	report := stats.Report{res.Summary}
	if benchCSV != "" {
		if err := report.WriteCSV(benchCSV); err != nil {
			return err
		}
	}
	if benchJSON != "" {
		if err := report.WriteJSON(benchJSON); err != nil {
			return err
		}
	}
	return nil
}

func benchRTTCmd(env *command.Env, args []string) error {
	cfg := getSettings(env)
	opts, err := benchOptions(cfg)
	if err != nil {
		return err
	}
	ch, err := cfg.OpenChannel()
	if err != nil {
		return err
	}
	res, err := bench.RoundTrip(cfg.Context, ch, opts)
	if err != nil {
		return err
	}
	return writeReport(res)
}

func benchPaintCmd(env *command.Env, args []string) error {
	cfg := getSettings(env)
	opts, err := benchOptions(cfg)
	if err != nil {
		return err
	}
	s, err := openSession(cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	d := device.New(s, device.Options{})
	res, err := bench.Paint(cfg.Context, d, opts)
	if err != nil {
		return err
	}
	if err := d.Clear(); err != nil {
		log.Printf("[WARN] clearing pads: %v", err)
	}
	return writeReport(res)
}

func ledsCmd(env *command.Env, args []string) error {
	name := "checker"
	if len(args) == 1 {
		name = args[0]
	} else if len(args) > 1 {
		return errors.New("usage is: leds [pattern]")
	}
	gen, err := pattern.Lookup(name)
	if err != nil {
		return err
	}

	cfg := getSettings(env)
	s, err := openSession(cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	d := device.New(s, device.Options{})

	delay := ledDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := range ledFrames {
		if err := cfg.Context.Err(); err != nil {
			break
		}
		if err := d.Paint(gen(i)); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		select {
		case <-time.After(delay):
		case <-cfg.Context.Done():
		}
	}
	return d.Clear()
}

func introCmd(env *command.Env, args []string) error {
	cfg := getSettings(env)

	replies := queue.New[midi.Message](16)
	s, err := openSession(cfg, func(m midi.Message) {
		if m.Kind() == midi.KindSysEx {
			replies.Put(m)
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	d := device.New(s, device.Options{})
	if err := d.Introduce(); err != nil {
		return err
	}

	// The MK2 answers with an introduction reply; the original hardware
	// stays silent.
	ctx, cancel := context.WithTimeout(cfg.Context, 2*time.Second)
	defer cancel()
	if m, err := replies.Get(ctx); err == nil {
		fmt.Printf("reply: %v\n", m)
	} else {
		fmt.Println("no reply (original hardware does not answer)")
	}
	return nil
}

func dumpCmd(env *command.Env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage is: dump <capture-file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	var n int
	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		fmt.Printf("%s [%s] %v\n", m.Time.Format("15:04:05.000"), m.Source, m)
		n++
	}
	log.Printf("[INFO] %d events, fingerprint verified", n)
	return nil
}

func inputsCmd(env *command.Env, args []string) error {
	names, err := rtmidi.Inputs()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func versionCmd(env *command.Env, args []string) error {
	fmt.Println(version)
	return nil
}
