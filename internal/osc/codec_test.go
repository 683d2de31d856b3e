package osc

import (
	"testing"

	"github.com/ossia-go/ossia/pkg/value"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	c := New(Extended, true)
	msg := &Message{
		Address: "/foo/bar",
		Args: []value.Value{
			value.NewInt(42),
			value.NewFloat(3.5),
			value.NewString("hello"),
			value.NewBool(true),
			value.NewBool(false),
			value.NewImpulse(),
			value.NewChar('Q'),
		},
	}

	enc, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc)%4 != 0 {
		t.Fatalf("encoded packet not 4-byte aligned: %d", len(enc))
	}

	decoded, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(*Message)
	if !ok {
		t.Fatalf("decoded %T, want *Message", decoded)
	}
	if got.Address != msg.Address {
		t.Fatalf("address = %q, want %q", got.Address, msg.Address)
	}
	if len(got.Args) != len(msg.Args) {
		t.Fatalf("got %d args, want %d", len(got.Args), len(msg.Args))
	}
	for i, a := range msg.Args {
		if !got.Args[i].Equal(a) {
			t.Fatalf("arg[%d] = %v, want %v", i, got.Args[i], a)
		}
	}
}

func TestEncodeDecodeInt64UsesHTag(t *testing.T) {
	c := New(V1_0, true)
	msg := &Message{Address: "/big", Args: []value.Value{value.NewInt(1 << 40)}}

	enc, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*Message)
	i, _ := got.Args[0].Int()
	if i != 1<<40 {
		t.Fatalf("got %d, want %d", i, int64(1)<<40)
	}
}

func TestDecodeNestedArray(t *testing.T) {
	c := New(Extended, true)
	msg := &Message{
		Address: "/arr",
		Args:    []value.Value{value.NewList(value.NewInt(1), value.NewInt(2), value.NewInt(3))},
	}
	enc, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*Message)
	items, ok := got.Args[0].List_()
	if !ok || len(items) != 3 {
		t.Fatalf("got %v", got.Args[0])
	}
}

func TestStrictModeRejectsUnknownTag(t *testing.T) {
	c := New(Extended, true)
	// Hand-built message with type tag string ",z" and no argument bytes.
	raw := append([]byte("/x\x00\x00"), []byte(",z\x00\x00")...)
	if _, err := c.Decode(raw); err == nil {
		t.Fatal("expected strict mode to reject an unknown tag")
	}
}

func TestNonStrictModeSubstitutesImpulse(t *testing.T) {
	c := New(Extended, false)
	raw := append([]byte("/x\x00\x00"), []byte(",z\x00\x00")...)
	decoded, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("non-strict decode should not error: %v", err)
	}
	msg := decoded.(*Message)
	if len(msg.Args) != 1 || msg.Args[0].Kind() != value.Impulse {
		t.Fatalf("got %v, want a single Impulse placeholder", msg.Args)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	c := New(Extended, true)
	inner := &Message{Address: "/a", Args: []value.Value{value.NewInt(1)}}
	bundle := &Bundle{Timetag: ImmediateTimetag, Elements: []Packet{inner}}

	enc, err := c.Encode(bundle)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(*Bundle)
	if !ok {
		t.Fatalf("decoded %T, want *Bundle", decoded)
	}
	if got.Timetag != ImmediateTimetag {
		t.Fatalf("timetag = %d, want %d", got.Timetag, ImmediateTimetag)
	}
	if len(got.Elements) != 1 {
		t.Fatalf("got %d elements, want 1", len(got.Elements))
	}
	innerGot := got.Elements[0].(*Message)
	if innerGot.Address != "/a" {
		t.Fatalf("address = %q", innerGot.Address)
	}
}

func TestMessageWithNoArguments(t *testing.T) {
	c := New(V1_0, true)
	enc, err := c.Encode(&Message{Address: "/bang"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*Message)
	if len(msg.Args) != 0 {
		t.Fatalf("got %d args, want 0", len(msg.Args))
	}
}
