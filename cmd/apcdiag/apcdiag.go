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

// Program apcdiag is a diagnostic and benchmark harness for the Akai APC
// Mini control surface. It can scan for attached devices, monitor and
// capture their event streams, exercise the pad LEDs, and measure transfer
// latency over the raw USB and native MIDI access paths.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"

	"github.com/padwerk/apcdiag/cmd/apcdiag/config"
)

var (
	configPath = "$HOME/.config/apcdiag/config.yml"

	// Flag overrides for the stored configuration.
	transport string
	devPath   string
	portName  string
	logLevel  string
)

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Usage: `<command> [arguments]
help [<command>]`,
		Help: `A diagnostic and benchmark harness for the APC Mini control surface.

The device is reached over one of two access paths: the raw USB device node
("raw") or the system MIDI routing API ("native", if compiled in). The
default "auto" probes raw first. The "sim" transport is an in-memory
loopback that reflects outbound events, for trying the tool without
hardware.`,

		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			if cf, ok := os.LookupEnv("APCDIAG_CONFIG"); ok && cf != "" {
				configPath = cf
			}
			fs.StringVar(&configPath, "config", configPath, "Configuration file path")
			fs.StringVar(&transport, "transport", "", "Device access path: raw, native, sim, auto (overrides config)")
			fs.StringVar(&devPath, "device", "", "Raw USB device node (overrides config)")
			fs.StringVar(&portName, "port", "", "Native MIDI port name (overrides config)")
			fs.StringVar(&logLevel, "log-level", "", "Minimum log level: DEBUG, INFO, WARN, ERROR (overrides config)")
		},

		Init: func(env *command.Env) error {
			cfg, err := config.Load(os.ExpandEnv(configPath))
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Transport = transport
			}
			if devPath != "" {
				cfg.Device = devPath
			}
			if portName != "" {
				cfg.Port = portName
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			config.ExpandString(&cfg.Device)
			cfg.SetupLogs()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			_ = cancel // released on process exit
			cfg.Context = ctx
			env.Config = cfg
			return nil
		},

		Commands: []*command.C{
			{
				Name: "scan",
				Help: "List attached USB devices and identify the control surface",
				SetFlags: func(env *command.Env, fs *flag.FlagSet) {
					fs.BoolVar(&scanAll, "all", false, "List all USB devices, not only matching ones")
				},
				Run: scanCmd,
			},
			{
				Name: "monitor",
				Help: `Print the device's event stream as it arrives.

Events are printed one per line until interrupted or -duration elapses.
With -capture, events are also recorded to a capture file for offline
comparison across access paths.`,
				SetFlags: func(env *command.Env, fs *flag.FlagSet) {
					fs.StringVar(&captureFile, "capture", "", "Write events to this capture file")
					fs.StringVar(&kindFilter, "kinds", "", "Comma-separated event kinds to show (note-on,note-off,control-change,sysex)")
					fs.DurationVar(&monDuration, "duration", 0, "Stop after this long (0 means until interrupted)")
					fs.IntVar(&queueSize, "queue", 0, "Event buffer size (0 means default)")
				},
				Run: monitorCmd,
			},
			{
				Name: "bench",
				Help: "Measure transfer latency and throughput",
				SetFlags: func(env *command.Env, fs *flag.FlagSet) {
					fs.IntVar(&benchN, "n", 0, "Measured iterations (overrides config)")
					fs.IntVar(&benchWarmup, "warmup", -1, "Warmup iterations (overrides config)")
					fs.StringVar(&benchCSV, "csv", "", "Write the report to this CSV file")
					fs.StringVar(&benchJSON, "json", "", "Write the report to this JSON file")
				},
				Commands: []*command.C{
					{
						Name: "rtt",
						Help: "Measure send-to-event round-trip latency",
						Run:  benchRTTCmd,
					},
					{
						Name: "paint",
						Help: "Measure full-matrix LED frame updates",
						Run:  benchPaintCmd,
					},
				},
			},
			{
				Name:  "leds",
				Usage: "leds [pattern]",
				Help:  "Animate a test pattern on the pad matrix",
				SetFlags: func(env *command.Env, fs *flag.FlagSet) {
					fs.IntVar(&ledFrames, "frames", 32, "Number of frames to play")
					fs.DurationVar(&ledDelay, "delay", 0, "Delay between frames")
				},
				Run: ledsCmd,
			},
			{
				Name:  "dump",
				Usage: "dump <capture-file>",
				Help:  "Print the events recorded in a capture file",
				Run:   dumpCmd,
			},
			{
				Name: "intro",
				Help: "Send the MK2 introduction handshake and print the reply",
				Run:  introCmd,
			},
			{
				Name: "inputs",
				Help: "List native MIDI input ports",
				Run:  inputsCmd,
			},
			{
				Name: "version",
				Help: "Print the tool version",
				Run:  versionCmd,
			},
			command.HelpCommand(nil),
		},
	}
	if err := command.Run(root.NewEnv(nil), os.Args[1:]); err != nil {
		if errors.Is(err, command.ErrUsage) {
			os.Exit(2)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
