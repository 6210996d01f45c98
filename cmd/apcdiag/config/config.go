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

// Package config defines the configuration settings shared by the
// subcommands of the apcdiag command-line tool.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/logutils"
	yaml "gopkg.in/yaml.v3"

	"github.com/padwerk/apcdiag/channel"
	"github.com/padwerk/apcdiag/channel/loopback"
	"github.com/padwerk/apcdiag/channel/rawusb"
	"github.com/padwerk/apcdiag/channel/rtmidi"
)

// Settings represents the stored configuration settings for the apcdiag
// tool. Command-line flags override the values loaded from the file.
type Settings struct {
	// Context value governing the execution of the tool.
	Context context.Context `json:"-" yaml:"-"`

	// Transport selects the device access path: "raw", "native", "sim", or
	// "auto" to probe in that order.
	Transport string `json:"transport" yaml:"transport"`

	// Device is the raw USB device node, e.g. /dev/bus/usb/001/004. Empty
	// means scan sysfs for the control surface.
	Device string `json:"device" yaml:"device"`

	// Port is the native MIDI port name. Empty means match by device name.
	Port string `json:"port" yaml:"port"`

	// LogLevel is the minimum level of log output: DEBUG, INFO, WARN, ERROR.
	LogLevel string `json:"logLevel" yaml:"log-level"`

	// Bench holds the default settings for benchmark runs.
	Bench BenchSettings `json:"bench" yaml:"bench"`
}

// BenchSettings are the stored defaults for the bench subcommands.
type BenchSettings struct {
	Iterations   int    `json:"iterations" yaml:"iterations"`
	Warmup       int    `json:"warmup" yaml:"warmup"`
	ProbeTimeout string `json:"probeTimeout" yaml:"probe-timeout"` // e.g. "250ms"
}

// ProbeTimeoutOrDefault parses the configured probe timeout, or returns 0 to
// let the benchmark apply its own default.
func (b BenchSettings) ProbeTimeoutOrDefault() (time.Duration, error) {
	if b.ProbeTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.ProbeTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid probe-timeout: %w", err)
	}
	return d, nil
}

// Load reads and parses the contents of a config file from path. If the
// specified path does not exist, an empty config is returned without error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return new(Settings), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := new(Settings)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// SetupLogs installs a level filter on the standard logger. Unknown or empty
// levels default to INFO.
func (s *Settings) SetupLogs() {
	level := s.LogLevel
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		level = "INFO"
	}
	log.SetOutput(&logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"},
		MinLevel: logutils.LogLevel(level),
		Writer:   os.Stderr,
	})
}

// OpenChannel opens the device channel selected by the configuration. The
// caller is responsible for closing it, usually by handing it to a session.
func (s *Settings) OpenChannel() (channel.Channel, error) {
	switch s.Transport {
	case "raw":
		return s.openRaw()
	case "native":
		return rtmidi.Open(s.Port, rtmidi.Options{})
	case "sim":
		return loopback.New(loopback.Options{Echo: true, EchoDelay: time.Millisecond}), nil
	case "", "auto":
		ch, err := s.openRaw()
		if err == nil {
			return ch, nil
		}
		log.Printf("[DEBUG] raw transport unavailable: %v", err)
		if rtmidi.Available() {
			return rtmidi.Open(s.Port, rtmidi.Options{})
		}
		return nil, fmt.Errorf("no usable transport: %w", err)
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

func (s *Settings) openRaw() (channel.Channel, error) {
	path := s.Device
	if path == "" {
		dev, err := rawusb.FindAPCMini()
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] found %s %s at %s", dev.Manufacturer, dev.Product, dev.Node)
		path = dev.Node
	}
	return rawusb.Open(path, rawusb.Options{})
}

// ExpandString calls os.ExpandEnv to expand environment variables in *s.
// The value of *s is replaced.
func ExpandString(s *string) { *s = os.ExpandEnv(*s) }
