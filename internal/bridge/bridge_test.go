package bridge

import (
	"testing"

	"github.com/ossia-go/ossia/pkg/value"
)

func TestWireScalarRoundTrip(t *testing.T) {
	cases := []value.Value{
		value.NewInt(3),
		value.NewFloat(1.5),
		value.NewBool(true),
		value.NewString("x"),
		value.NewList(value.NewFloat(1), value.NewFloat(2)),
	}
	for _, v := range cases {
		wire := wireScalar(v)
		got := scalarToValue(wire)
		gf, gok := got.AsFloat()
		vf, vok := v.AsFloat()
		if gok != vok {
			// Lists/strings/bools don't coerce to float; compare via Equal instead.
			if !got.Equal(v) && got.Kind() != value.List {
				t.Fatalf("round trip %v -> %v", v, got)
			}
			continue
		}
		if gok && gf != vf {
			t.Fatalf("round trip %v -> %v", v, got)
		}
	}
}

func TestDecodeConfigRejectsUnknownFields(t *testing.T) {
	_, err := DecodeConfig([]byte(`{"address":"nats://x","bogus":1}`))
	if err == nil {
		t.Fatal("expected an error for an unknown config field")
	}
}

func TestDecodeConfigAcceptsKnownFields(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"address":"nats://localhost:4222","username":"u","password":"p"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != "nats://localhost:4222" || cfg.Username != "u" {
		t.Fatalf("got %+v", cfg)
	}
}
