// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

// Bridge publishes a device's parameter value changes to NATS subjects
// derived from each node's address, and applies inbound messages on the
// matching "set" subject back as parameter writes, routed through the
// reactor like any other network-originated mutation. Structural events
// are not published; they only attach the bridge to newly created nodes.
type Bridge struct {
	ctx    *reactor.Context
	device *tree.Device
	client *Client
	prefix string

	callbackIDs map[*tree.Parameter]uuid.UUID
}

// New creates a Bridge publishing under subjects "<prefix>.value.<addr>"
// and listening for writes on "<prefix>.set.<addr>".
func New(ctx *reactor.Context, device *tree.Device, client *Client, prefix string) *Bridge {
	b := &Bridge{
		ctx:         ctx,
		device:      device,
		client:      client,
		prefix:      strings.TrimSuffix(prefix, "."),
		callbackIDs: make(map[*tree.Parameter]uuid.UUID),
	}
	device.Root().Subscribe(b)

	if err := client.Subscribe(b.setSubject(">"), b.handleSet); err != nil {
		cclog.Warnf("bridge: subscribe to set subjects: %v", err)
	}

	b.attach(device.Root())
	return b
}

// valueSubject/setSubject join the (dotted) prefix to the node's slash
// path. An address can itself contain '.' (collision-suffixed names such
// as "x.1" span two NATS tokens), so the set subscription uses the
// multi-token wildcard ">".
func (b *Bridge) valueSubject(addr string) string { return b.prefix + ".value." + addr }
func (b *Bridge) setSubject(addr string) string    { return b.prefix + ".set." + addr }

// attach recursively subscribes to every existing parameter's value
// changes and every node's structural events, mirroring how the OSC
// binding wires Observe per parameter.
func (b *Bridge) attach(n *tree.Node) {
	if n != b.device.Root() {
		n.Subscribe(b)
	}
	if p := n.Parameter(); p != nil {
		id := p.AddCallback(func(v value.Value) { b.publishValue(n.Address(), v) })
		b.callbackIDs[p] = id
	}
	for _, child := range n.ChildrenCopy() {
		b.attach(child)
	}
}

func (b *Bridge) publishValue(addr string, v value.Value) {
	payload, err := json.Marshal(wireScalar(v))
	if err != nil {
		cclog.Warnf("bridge: marshal value for %s: %v", addr, err)
		return
	}
	if err := b.client.Publish(b.valueSubject(addr), payload); err != nil {
		cclog.Warnf("bridge: publish %s: %v", addr, err)
	}
}

// handleSet applies an inbound NATS message as a parameter write, posted
// onto the reactor thread like any other protocol-originated mutation.
func (b *Bridge) handleSet(subject string, data []byte) {
	addr := strings.TrimPrefix(subject, b.prefix+".set.")
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		cclog.Warnf("bridge: malformed set payload on %s: %v", subject, err)
		return
	}

	b.ctx.Post(func() {
		n := tree.FindNode(b.device.Root(), addr)
		if n == nil || n.Parameter() == nil {
			b.device.DispatchUnhandled(addr, value.NewImpulse())
			return
		}
		n.Parameter().PushValue(scalarToValue(decoded))
	})
}

func wireScalar(v value.Value) interface{} {
	switch v.Kind() {
	case value.Int:
		i, _ := v.Int()
		return i
	case value.Float:
		f, _ := v.Float()
		return f
	case value.Bool:
		bv, _ := v.Bool()
		return bv
	case value.String:
		s, _ := v.String_()
		return s
	case value.List:
		items, _ := v.List_()
		out := make([]interface{}, len(items))
		for i, it := range items {
			out[i] = wireScalar(it)
		}
		return out
	case value.Vec2f, value.Vec3f, value.Vec4f:
		comps := v.Components()
		out := make([]interface{}, len(comps))
		for i, c := range comps {
			out[i] = c
		}
		return out
	default:
		return nil
	}
}

func scalarToValue(decoded interface{}) value.Value {
	switch d := decoded.(type) {
	case float64:
		return value.NewFloat(d)
	case int64:
		return value.NewInt(d)
	case bool:
		return value.NewBool(d)
	case string:
		return value.NewString(d)
	case []interface{}:
		items := make([]value.Value, len(d))
		for i, it := range d {
			items[i] = scalarToValue(it)
		}
		return value.NewList(items...)
	default:
		return value.NewImpulse()
	}
}

// Structural NodeObserver methods: every newly created node is attached,
// so the bridge covers nodes added after construction too.
func (b *Bridge) OnNodeCreated(child *tree.Node)              { b.attach(child) }
func (b *Bridge) OnNodeRemoving(child *tree.Node)             {}
func (b *Bridge) OnAttributeModified(n *tree.Node, attr string) {}
func (b *Bridge) OnAddressCreated(n *tree.Node) {
	if p := n.Parameter(); p != nil {
		if _, already := b.callbackIDs[p]; !already {
			id := p.AddCallback(func(v value.Value) { b.publishValue(n.Address(), v) })
			b.callbackIDs[p] = id
		}
	}
}

func (b *Bridge) Close() {
	b.client.Close()
}
