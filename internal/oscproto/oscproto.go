// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package oscproto binds the OSC codec and transports to a device tree,
// implementing the plain-OSC protocol contract. Dispatch is a factory
// shape: mode (client vs server), then transport, then version.
package oscproto

import (
	"fmt"
	"net"
	"strings"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/osc"
	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/internal/transport"
	"github.com/ossia-go/ossia/pkg/value"
)

// Mode selects client (dial out) vs server (listen/accept).
type Mode int

const (
	Client Mode = iota
	Server
)

// Config configures one OSC protocol binding.
type Config struct {
	Mode         Mode
	Transport    transport.Kind
	Addr         string
	Version      osc.Version
	Strict       bool
	Frame        transport.FrameMode
	MaxFrameSize int
}

// Protocol implements tree.Protocol for plain OSC over UDP/TCP/Unix.
// It has no tree-discovery mechanism: Update always resolves
// immediately, since plain OSC has no tree discovery of its own.
type Protocol struct {
	ctx    *reactor.Context
	device *tree.Device
	codec  *osc.Codec
	tr     transport.Transport
	cfg    Config

	defaultDest net.Addr
}

// New opens a protocol binding per cfg and wires it to device, returning
// the bound Protocol (already set as device's active protocol).
func New(ctx *reactor.Context, device *tree.Device, cfg Config) (*Protocol, error) {
	tcfg := transport.Config{
		Kind:         cfg.Transport,
		Addr:         cfg.Addr,
		Listen:       cfg.Mode == Server,
		Frame:        cfg.Frame,
		MaxFrameSize: cfg.MaxFrameSize,
	}
	tr, err := transport.Open(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("oscproto: %w", err)
	}

	p := &Protocol{
		ctx:    ctx,
		device: device,
		codec:  osc.New(cfg.Version, cfg.Strict),
		tr:     tr,
		cfg:    cfg,
	}

	tr.OnReceive(p.handlePacket)
	tr.OnFramingError(func(err error) {
		cclog.Warnf("oscproto: framing error on %s: %v", cfg.Addr, err)
	})

	device.SetProtocol(p)
	return p, nil
}

// Push sends a parameter's current value to its OSC address.
func (p *Protocol) Push(param *tree.Parameter) bool {
	return p.PushRaw(param.Node().Address(), param.Value())
}

// PushRaw sends an arbitrary address/value pair, independent of any tree
// parameter.
func (p *Protocol) PushRaw(address string, v value.Value) bool {
	msg := &osc.Message{Address: address, Args: valueToArgs(v)}
	data, err := p.codec.Encode(msg)
	if err != nil {
		cclog.Errorf("oscproto: encode %s: %v", address, err)
		return false
	}
	if err := p.tr.Send(data); err != nil {
		cclog.Warnf("oscproto: send %s: %v", address, err)
		return false
	}
	return true
}

// Observe binds or unbinds param's outbound push notification. Plain OSC has no remote subscription handshake: "observing"
// means this process pushes local value changes out over the wire.
func (p *Protocol) Observe(param *tree.Parameter, enable bool) bool {
	if enable {
		param.BindNotify(func(bound *tree.Parameter) { p.Push(bound) })
	} else {
		param.BindNotify(nil)
	}
	return true
}

// Pull resolves param's pending pull futures with the locally cached
// value. Plain OSC defines no query wire format, so this does not incur
// a round trip.
func (p *Protocol) Pull(param *tree.Parameter) bool {
	param.ResolvePull(param.Value())
	return true
}

// Update returns an already-resolved future: plain OSC performs no tree
// discovery.
func (p *Protocol) Update() <-chan struct{} {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	return ch
}

func (p *Protocol) Stop() {
	_ = p.tr.Close()
}

func (p *Protocol) handlePacket(data []byte, from net.Addr) {
	pkt, err := p.codec.Decode(data)
	if err != nil {
		cclog.Warnf("oscproto: decode from %s: %v", from, err)
		return
	}
	p.dispatch(pkt)
}

func (p *Protocol) dispatch(pkt osc.Packet) {
	switch v := pkt.(type) {
	case *osc.Message:
		p.dispatchMessage(v)
	case *osc.Bundle:
		// Scheduling against the timetag is out of scope; elements run
		// immediately in bundle order.
		for _, elem := range v.Elements {
			p.dispatch(elem)
		}
	}
}

// dispatchMessage routes an inbound message: exact address match
// delivers to that parameter; no match falls back to device.
// DispatchUnhandled; pattern-bearing addresses fan out to every matching
// parameter.
func (p *Protocol) dispatchMessage(m *osc.Message) {
	v := argsToValue(m.Args)

	if isPattern(m.Address) {
		nodes, err := p.device.FindNodes(m.Address)
		if err != nil || len(nodes) == 0 {
			p.device.DispatchUnhandled(m.Address, v)
			return
		}
		for _, n := range nodes {
			p.deliverToNode(n, v)
		}
		return
	}

	n := p.device.FindNode(m.Address)
	if n == nil {
		p.device.DispatchUnhandled(m.Address, v)
		return
	}
	p.deliverToNode(n, v)
}

func (p *Protocol) deliverToNode(n *tree.Node, v value.Value) {
	param := n.Parameter()
	if param == nil {
		p.device.DispatchUnhandled(n.Address(), v)
		return
	}
	// A Get-only parameter rejects inbound writes (grounded on the
	// original qml_property.cpp read-only guard).
	if param.AccessMode() == tree.Get {
		p.device.DispatchUnhandled(n.Address(), v)
		return
	}
	param.PushValue(v)
}

func isPattern(address string) bool {
	return strings.ContainsAny(address, "*?[]{}") || strings.Contains(address, "//")
}

// valueToArgs expands a tree Value into OSC arguments: a List's top-level
// items become one argument each (mirroring how multi-arg OSC messages
// are received), any other kind is a single argument.
func valueToArgs(v value.Value) []value.Value {
	if v.Kind() == value.List {
		items, _ := v.List_()
		return items
	}
	if v.Kind() == value.Invalid {
		return nil
	}
	return []value.Value{v}
}

// argsToValue collapses decoded OSC arguments back into a single tree
// Value: zero args is an Impulse (bang), one arg passes through, more
// than one becomes a List.
func argsToValue(args []value.Value) value.Value {
	switch len(args) {
	case 0:
		return value.NewImpulse()
	case 1:
		return args[0]
	default:
		return value.NewList(args...)
	}
}
