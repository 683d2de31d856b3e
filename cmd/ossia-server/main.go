// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ossia-server hosts a device tree and drives it with one or
// more protocol bindings: plain OSC over UDP/TCP/Unix, an OSCQuery HTTP
// + WebSocket host, OSCQuery mirrors of remote trees, and an optional
// NATS structural-event bridge. A single reactor goroutine per process
// drives every binding's I/O.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ossia-go/ossia/internal/bridge"
	"github.com/ossia-go/ossia/internal/config"
	"github.com/ossia-go/ossia/internal/metrics"
	"github.com/ossia-go/ossia/internal/osc"
	"github.com/ossia-go/ossia/internal/oscproto"
	"github.com/ossia-go/ossia/internal/oscquery"
	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/runtimeEnv"
	"github.com/ossia-go/ossia/internal/transport"
	"github.com/ossia-go/ossia/internal/tree"
	cclog "github.com/ossia-go/ossia/pkg/log"
	"github.com/ossia-go/ossia/pkg/value"
)

func main() {
	flags := parseFlags()

	if flags.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	config.Init(flags.configFile)
	cclog.SetLogLevel(config.Keys.LogLevel)

	if flags.stopEarly {
		return
	}

	rctx := reactor.New()
	device := tree.NewDevice(config.Keys.DeviceName)
	device.OnUnhandledMessage(func(address string, v value.Value) {
		cclog.Debugf("ossia-server: unhandled message %s = %v", address, v)
	})

	var stoppables []interface{ Stop() }

	for _, binding := range config.Keys.OSC {
		cfg, err := oscBindingConfig(binding)
		if err != nil {
			cclog.Fatalf("ossia-server: OSC binding %q: %v", binding.Name, err)
		}
		p, err := oscproto.New(rctx, device, cfg)
		if err != nil {
			cclog.Fatalf("ossia-server: open OSC binding %q: %v", binding.Name, err)
		}
		cclog.Infof("ossia-server: OSC binding %q listening on %s (%s/%s)", binding.Name, binding.Addr, binding.Transport, binding.Mode)
		stoppables = append(stoppables, p)
	}

	var host *oscquery.Host
	if config.Keys.Host != nil {
		host = oscquery.NewHost(rctx, device, config.Keys.Host.Addr)
		go func() {
			if err := host.ListenAndServe(); err != nil {
				cclog.Errorf("ossia-server: oscquery host stopped: %v", err)
			}
		}()
		cclog.Infof("ossia-server: OSCQuery host listening on %s", config.Keys.Host.Addr)
	}

	for _, m := range config.Keys.Mirrors {
		mirrorDevice := tree.NewDevice(config.Keys.DeviceName + "." + m.Name)
		mirror := oscquery.NewMirror(rctx, mirrorDevice, m.BaseURL)
		mirror.Connect()
		cclog.Infof("ossia-server: mirroring %q from %s", m.Name, m.BaseURL)
		stoppables = append(stoppables, mirror)
	}

	if config.Keys.Bridge != nil {
		client, err := bridge.NewClient(*config.Keys.Bridge)
		if err != nil {
			cclog.Fatalf("ossia-server: NATS bridge: %v", err)
		}
		b := bridge.New(rctx, device, client, config.Keys.DeviceName)
		stoppables = append(stoppables, stopFunc(b.Close))
	}

	adminServer := startAdminServer(config.Keys.AdminAddr)

	if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
		cclog.Warnf("ossia-server: drop privileges: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		for _, s := range stoppables {
			s.Stop()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = adminServer.Shutdown(shutdownCtx)
		if host != nil {
			_ = host.Close()
		}
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	rctx.Run(ctx)
	cclog.Info("ossia-server: shutdown complete")
}

func oscBindingConfig(b config.OSCBinding) (oscproto.Config, error) {
	var cfg oscproto.Config

	switch b.Mode {
	case "client":
		cfg.Mode = oscproto.Client
	case "server":
		cfg.Mode = oscproto.Server
	default:
		return cfg, fmt.Errorf("unknown mode %q", b.Mode)
	}

	switch b.Transport {
	case "udp":
		cfg.Transport = transport.KindUDP
	case "tcp":
		cfg.Transport = transport.KindTCP
	case "unix":
		cfg.Transport = transport.KindUnix
	default:
		return cfg, fmt.Errorf("unknown transport %q", b.Transport)
	}

	switch b.Version {
	case "", "1.0":
		cfg.Version = osc.V1_0
	case "1.1":
		cfg.Version = osc.V1_1
	case "extended":
		cfg.Version = osc.Extended
	default:
		return cfg, fmt.Errorf("unknown OSC version %q", b.Version)
	}

	switch b.Framing {
	case "", "slip":
		cfg.Frame = transport.FrameSLIP
	case "length-prefix":
		cfg.Frame = transport.FrameLengthPrefix
	default:
		return cfg, fmt.Errorf("unknown framing %q", b.Framing)
	}

	cfg.Addr = b.Addr
	cfg.Strict = b.Strict
	cfg.MaxFrameSize = b.MaxFrameSize
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = transport.DefaultMaxFrameSize
	}
	return cfg, nil
}

// startAdminServer mounts the Prometheus metrics endpoint behind a
// gorilla/mux router wrapped with gorilla/handlers' panic recovery.
func startAdminServer(addr string) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("ossia-server: admin server stopped: %v", err)
		}
	}()
	cclog.Infof("ossia-server: admin/metrics endpoint listening on %s", addr)
	return srv
}

type stopFunc func()

func (f stopFunc) Stop() { f() }
