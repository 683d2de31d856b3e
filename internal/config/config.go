// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the process configuration: which
// OSC protocol bindings to open, the OSCQuery host/mirror endpoints,
// the optional NATS bridge, and the admin/metrics listen address.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/joho/godotenv"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/bridge"
)

// OSCBinding describes one OSC protocol endpoint to open.
type OSCBinding struct {
	Name         string `json:"name"`
	Mode         string `json:"mode"`      // "client" | "server"
	Transport    string `json:"transport"` // "udp" | "tcp" | "unix"
	Addr         string `json:"addr"`
	Version      string `json:"version"` // "1.0" | "1.1" | "extended"
	Strict       bool   `json:"strict"`
	Framing      string `json:"framing"` // "slip" | "length-prefix"
	MaxFrameSize int    `json:"max-frame-size"`
}

// OSCQueryHost describes the HTTP+WS discovery server to expose for
// this device's own tree.
type OSCQueryHost struct {
	Addr string `json:"addr"`
}

// OSCQueryMirror describes a remote OSCQuery tree to mirror into its own
// local device, named "<device-name>.<name>".
type OSCQueryMirror struct {
	Name    string `json:"name"`
	BaseURL string `json:"base-url"`
}

// Config is the root process configuration.
type Config struct {
	DeviceName string           `json:"device-name"`
	LogLevel   string           `json:"log-level"`
	AdminAddr  string           `json:"admin-addr"`
	User       string           `json:"user"`
	Group      string           `json:"group"`
	OSC        []OSCBinding     `json:"osc"`
	Host       *OSCQueryHost    `json:"oscquery-host"`
	Mirrors    []OSCQueryMirror `json:"oscquery-mirrors"`
	Bridge     *bridge.Config   `json:"bridge"`
}

// Keys holds the active configuration, populated by Init. Defaults
// here match a minimal single-device, no-network setup.
var Keys = Config{
	DeviceName: "ossia",
	LogLevel:   "info",
	AdminAddr:  ":9090",
}

// Schema is the JSON Schema instances are validated against before
// decoding. It checks field types, enums and required fields; it does
// not reject unknown keys, which the decoder's DisallowUnknownFields
// does in Init.
const Schema = `{
    "type": "object",
    "properties": {
        "device-name": { "type": "string" },
        "log-level": { "type": "string", "enum": ["debug", "info", "notice", "warn", "err", "crit"] },
        "admin-addr": { "type": "string" },
        "user": { "type": "string" },
        "group": { "type": "string" },
        "osc": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "name": { "type": "string" },
                    "mode": { "type": "string", "enum": ["client", "server"] },
                    "transport": { "type": "string", "enum": ["udp", "tcp", "unix"] },
                    "addr": { "type": "string" },
                    "version": { "type": "string", "enum": ["1.0", "1.1", "extended"] },
                    "strict": { "type": "boolean" },
                    "framing": { "type": "string", "enum": ["slip", "length-prefix"] },
                    "max-frame-size": { "type": "integer" }
                },
                "required": ["mode", "transport", "addr"]
            }
        },
        "oscquery-host": {
            "type": "object",
            "properties": { "addr": { "type": "string" } },
            "required": ["addr"]
        },
        "oscquery-mirrors": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "name": { "type": "string" },
                    "base-url": { "type": "string" }
                },
                "required": ["base-url"]
            }
        },
        "bridge": ` + bridge.ConfigSchema + `
    }
}`

// Init loads LoadDotEnv defaults, then reads and validates the config
// file at path, overriding Keys. A missing file is not an error (the
// defaults stand); a malformed or schema-invalid one aborts startup.
func Init(path string) {
	LoadDotEnv()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Fatalf("config: read %s: %v", path, err)
		}
		return
	}

	if err := Validate(Schema, raw); err != nil {
		cclog.Fatalf("config: validate %s: %v", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Fatalf("config: decode %s: %v", path, err)
	}
}

// LoadDotEnv loads a ".env" file from the working directory if
// present, for picking up local dev overrides; a missing file is
// silently ignored.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Warnf("config: .env: %v", err)
	}
}
