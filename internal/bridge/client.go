// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bridge publishes device tree parameter value changes onto NATS
// subjects, and applies inbound NATS messages back as
// parameter writes -- a side channel alongside the OSC/OSCQuery protocol
// bindings for systems that prefer a message bus over raw sockets.
package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	cclog "github.com/ossia-go/ossia/pkg/log"
)

// Config holds the connection parameters for the NATS client.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
}

const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the tree-to-NATS bridge.",
    "properties": {
        "address": {
            "description": "Address of the NATS server (e.g., 'nats://localhost:4222').",
            "type": "string"
        },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" }
    },
    "required": ["address"]
}`

// DecodeConfig parses a bridge Config from JSON, rejecting unknown
// fields the way the rest of this module's config loading does.
func DecodeConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if raw == nil {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("bridge: config: %w", err)
	}
	return cfg, nil
}

// MessageHandler processes a message received on a subject.
type MessageHandler func(subject string, data []byte)

// Client wraps a NATS connection with subscription tracking.
type Client struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// NewClient dials the NATS server described by cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bridge: NATS address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			cclog.Warnf("bridge: NATS disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		cclog.Infof("bridge: NATS reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		cclog.Errorf("bridge: NATS error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("bridge: NATS connect failed: %w", err)
	}
	cclog.Infof("bridge: NATS connected to %s", cfg.Address)

	return &Client{conn: nc}, nil
}

func (c *Client) Subscribe(subject string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("bridge: subscribe to %q: %w", subject, err)
	}
	c.subscriptions = append(c.subscriptions, sub)
	return nil
}

func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bridge: publish to %q: %w", subject, err)
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			cclog.Warnf("bridge: unsubscribe failed: %v", err)
		}
	}
	c.subscriptions = nil
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
