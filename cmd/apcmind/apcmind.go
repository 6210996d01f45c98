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

// Program apcmind exports a control surface via JSON-RPC.
//
// It owns the device channel and its session for the life of the process, so
// several tools can share one surface without fighting over the half-duplex
// endpoints. The service exposes LED updates, pattern painting, the pause
// protocol, and the session counters.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creachadair/ctrl"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/metrics"
	"github.com/creachadair/jrpc2/server"

	"github.com/padwerk/apcdiag/cmd/apcdiag/config"
	"github.com/padwerk/apcdiag/device"
	"github.com/padwerk/apcdiag/midi"
	"github.com/padwerk/apcdiag/queue"
	"github.com/padwerk/apcdiag/session"
)

var (
	listenAddr = flag.String("listen", "", "Service address (required)")
	configFile = flag.String("config", "$HOME/.config/apcdiag/config.yml", "Configuration file path")
	transport  = flag.String("transport", "", "Device access path (overrides config)")
	doDebug    = flag.Bool("debug", false, "Enable server debug logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] -listen <addr>

Start a JSON-RPC server that owns the control surface and exposes LED
updates, the pause protocol, and session statistics. The server listens at
the specified address, which may be a host:port or the path of a Unix-domain
socket.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctrl.Run(func() error {
		if *listenAddr == "" {
			ctrl.Exitf(1, "You must provide a non-empty -listen address")
		}

		cfg, err := config.Load(os.ExpandEnv(*configFile))
		if err != nil {
			ctrl.Fatalf("Loading configuration: %v", err)
		}
		if *transport != "" {
			cfg.Transport = *transport
		}
		cfg.SetupLogs()

		svc := mustOpenService(cfg)
		defer func() {
			if err := svc.close(); err != nil {
				log.Printf("Warning: closing device: %v", err)
			}
		}()
		log.Printf("Transport: %q", cfg.Transport)

		mx := metrics.New()
		mx.SetLabel("apcmind.transport", cfg.Transport)
		mx.SetLabel("apcmind.pid", os.Getpid())
		mx.SetLabel("apcmind.received", func() interface{} {
			return svc.session.Stats().Received
		})

		var debug *log.Logger
		if *doDebug {
			debug = log.New(os.Stderr, "[apcmind] ", log.LstdFlags)
		}
		closer, errc := startNetServer(startConfig{
			Address: *listenAddr,
			Methods: svc.methods(),
			ServerOptions: &jrpc2.ServerOptions{
				Logger:    debug,
				Metrics:   mx,
				StartTime: time.Now().In(time.UTC),
			},
		})

		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s, ok := <-sig
			if ok {
				log.Printf("Received signal: %v, closing listener", s)
				closer()
				signal.Reset(syscall.SIGINT, syscall.SIGTERM)
			}
		}()
		return <-errc
	})
}

type closerFunc = func()

type startConfig struct {
	Address       string
	Methods       jrpc2.Assigner
	ServerOptions *jrpc2.ServerOptions
}

func startNetServer(opts startConfig) (closerFunc, <-chan error) {
	lst, err := net.Listen(jrpc2.Network(opts.Address))
	if err != nil {
		ctrl.Fatalf("Listen: %v", err)
	}
	isUnix := lst.Addr().Network() == "unix"
	if isUnix {
		os.Chmod(opts.Address, 0600) // best-effort
	}

	log.Printf("Service: %q", opts.Address)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		acc := server.NetAccepter(lst, channel.Line)
		errc <- server.Loop(acc, server.Static(opts.Methods), &server.LoopOptions{
			ServerOptions: opts.ServerOptions,
		})
	}()

	return func() {
		lst.Close()
		if isUnix {
			defer os.Remove(opts.Address)
		}
	}, errc
}

func mustOpenService(cfg *config.Settings) *service {
	ch, err := cfg.OpenChannel()
	if err != nil {
		ctrl.Fatalf("Opening device: %v", err)
	}
	src := midi.SourceRaw
	switch cfg.Transport {
	case "native":
		src = midi.SourceNative
	case "sim":
		src = midi.SourceSimulation
	}
	events := queue.New[midi.Message](0)
	s, err := session.Open(ch, session.Options{
		Source:  src,
		OnEvent: events.Put,
		OnError: func(err error) { log.Printf("[WARN] receive: %v", err) },
	})
	if err != nil {
		ctrl.Fatalf("Opening session: %v", err)
	}
	return &service{
		session: s,
		device:  device.New(s, device.Options{}),
		events:  events,
	}
}
