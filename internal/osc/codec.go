// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package osc implements the OSC 1.0/1.1/extended wire codec: message and
// bundle encoding/decoding with the full type tag set.
package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ossia-go/ossia/pkg/value"
)

// Version names an OSC profile (1.0, 1.1, extended). The codec stores it
// but does not consult it: every Version encodes and decodes the same
// full tag set, arrays and 'h' 64-bit integers included.
type Version int

const (
	V1_0 Version = iota
	V1_1
	Extended
)

// Packet is either a *Message or a *Bundle.
type Packet interface{ isPacket() }

// Message is a decoded OSC message: an address pattern plus its argument
// values, already translated into the tree's tagged Value variant.
type Message struct {
	Address string
	Args    []value.Value
}

func (*Message) isPacket() {}

// Bundle is a decoded OSC bundle: an NTP timetag plus nested packets.
// Timetag 1 (the "immediate" timetag, defined as the 64-bit value 1 by
// the OSC spec) means "execute as soon as possible".
type Bundle struct {
	Timetag  uint64
	Elements []Packet
}

func (*Bundle) isPacket() {}

// ImmediateTimetag is the reserved NTP timetag meaning "now".
const ImmediateTimetag uint64 = 1

var (
	ErrTruncated    = errors.New("osc: truncated packet")
	ErrBadTypeTag   = errors.New("osc: malformed type tag string")
	ErrUnknownTag   = errors.New("osc: unknown type tag")
	ErrNotOSCPacket = errors.New("osc: not a message or #bundle")
)

// Codec encodes and decodes packets for one OSC version. Strict mode
// rejects a message containing an unrecognized type tag instead of
// substituting a placeholder.
type Codec struct {
	Version Version
	Strict  bool
}

func New(v Version, strict bool) *Codec {
	return &Codec{Version: v, Strict: strict}
}

// Decode parses a single top-level OSC packet (message or bundle).
func (c *Codec) Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	if bytes.HasPrefix(data, []byte("#bundle\x00")) {
		return c.decodeBundle(data)
	}
	if data[0] == '/' {
		return c.decodeMessage(data)
	}
	return nil, ErrNotOSCPacket
}

// Encode serializes a packet for transmission.
func (c *Codec) Encode(p Packet) ([]byte, error) {
	switch m := p.(type) {
	case *Message:
		return c.encodeMessage(m)
	case *Bundle:
		return c.encodeBundle(m)
	default:
		return nil, ErrNotOSCPacket
	}
}

func pad4(n int) int {
	r := n % 4
	if r == 0 {
		return n
	}
	return n + (4 - r)
}

func readOSCString(data []byte) (string, []byte, error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", nil, ErrTruncated
	}
	s := string(data[:i])
	next := pad4(i + 1)
	if next > len(data) {
		return "", nil, ErrTruncated
	}
	return s, data[next:], nil
}

func writeOSCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func readOSCBlob(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	if n < 0 || 4+n > len(data) {
		return nil, nil, ErrTruncated
	}
	blob := data[4 : 4+n]
	next := pad4(4 + n)
	if next > len(data) {
		next = len(data)
	}
	return blob, data[next:], nil
}

func writeOSCBlob(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func (c *Codec) decodeMessage(data []byte) (*Message, error) {
	addr, rest, err := readOSCString(data)
	if err != nil {
		return nil, fmt.Errorf("osc: address: %w", err)
	}
	if len(rest) == 0 {
		return &Message{Address: addr}, nil
	}

	tags, rest, err := readOSCString(rest)
	if err != nil {
		return nil, fmt.Errorf("osc: type tags: %w", err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return nil, ErrBadTypeTag
	}
	tags = tags[1:]

	args := make([]value.Value, 0, len(tags))
	var arrayStack [][]value.Value

	emit := func(v value.Value) {
		if n := len(arrayStack); n > 0 {
			arrayStack[n-1] = append(arrayStack[n-1], v)
		} else {
			args = append(args, v)
		}
	}

	for _, tag := range tags {
		var v value.Value
		switch tag {
		case 'i':
			if len(rest) < 4 {
				return nil, ErrTruncated
			}
			v = value.NewInt(int64(int32(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case 'f':
			if len(rest) < 4 {
				return nil, ErrTruncated
			}
			v = value.NewFloat(float64(math.Float32frombits(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case 'h':
			if len(rest) < 8 {
				return nil, ErrTruncated
			}
			v = value.NewInt(int64(binary.BigEndian.Uint64(rest[:8])))
			rest = rest[8:]
		case 'd':
			if len(rest) < 8 {
				return nil, ErrTruncated
			}
			v = value.NewFloat(math.Float64frombits(binary.BigEndian.Uint64(rest[:8])))
			rest = rest[8:]
		case 't':
			if len(rest) < 8 {
				return nil, ErrTruncated
			}
			v = value.NewInt(int64(binary.BigEndian.Uint64(rest[:8])))
			rest = rest[8:]
		case 's', 'S':
			var s string
			var err error
			s, rest, err = readOSCString(rest)
			if err != nil {
				return nil, err
			}
			v = value.NewString(s)
		case 'b':
			var blob []byte
			var err error
			blob, rest, err = readOSCBlob(rest)
			if err != nil {
				return nil, err
			}
			// The tree's Value variant has no distinct Blob kind; raw bytes
			// round-trip losslessly through a Go string.
			v = value.NewString(string(blob))
		case 'c':
			if len(rest) < 4 {
				return nil, ErrTruncated
			}
			v = value.NewChar(rune(binary.BigEndian.Uint32(rest[:4])))
			rest = rest[4:]
		case 'r', 'm':
			if len(rest) < 4 {
				return nil, ErrTruncated
			}
			bs := rest[:4]
			v = value.NewList(
				value.NewInt(int64(bs[0])), value.NewInt(int64(bs[1])),
				value.NewInt(int64(bs[2])), value.NewInt(int64(bs[3])),
			)
			rest = rest[4:]
		case 'T':
			v = value.NewBool(true)
		case 'F':
			v = value.NewBool(false)
		case 'N', 'I':
			v = value.NewImpulse()
		case '[':
			arrayStack = append(arrayStack, []value.Value{})
			continue
		case ']':
			if len(arrayStack) == 0 {
				return nil, ErrBadTypeTag
			}
			n := len(arrayStack)
			items := arrayStack[n-1]
			arrayStack = arrayStack[:n-1]
			emit(value.NewList(items...))
			continue
		default:
			if c.Strict {
				return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
			}
			v = value.NewImpulse()
		}
		emit(v)
	}

	if len(arrayStack) != 0 {
		return nil, fmt.Errorf("%w: unterminated array", ErrBadTypeTag)
	}

	return &Message{Address: addr, Args: args}, nil
}

func (c *Codec) encodeMessage(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	writeOSCString(&buf, m.Address)

	tags := []byte{','}
	var argBuf bytes.Buffer
	for _, a := range m.Args {
		appendArgTagAndBytes(&tags, &argBuf, a)
	}

	writeOSCString(&buf, string(tags))
	buf.Write(argBuf.Bytes())
	return buf.Bytes(), nil
}

func appendArgTagAndBytes(tags *[]byte, buf *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.Int:
		i, _ := v.Int()
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			*tags = append(*tags, 'i')
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(int32(i)))
			buf.Write(b[:])
		} else {
			*tags = append(*tags, 'h')
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(i))
			buf.Write(b[:])
		}
	case value.Float:
		f, _ := v.Float()
		*tags = append(*tags, 'f')
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(f)))
		buf.Write(b[:])
	case value.Bool:
		bv, _ := v.Bool()
		if bv {
			*tags = append(*tags, 'T')
		} else {
			*tags = append(*tags, 'F')
		}
	case value.Char:
		ch, _ := v.Char()
		*tags = append(*tags, 'c')
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(ch))
		buf.Write(b[:])
	case value.String:
		s, _ := v.String_()
		*tags = append(*tags, 's')
		writeOSCString(buf, s)
	case value.List:
		items, _ := v.List_()
		*tags = append(*tags, '[')
		for _, item := range items {
			appendArgTagAndBytes(tags, buf, item)
		}
		*tags = append(*tags, ']')
	case value.Impulse:
		*tags = append(*tags, 'I')
	case value.Vec2f, value.Vec3f, value.Vec4f:
		*tags = append(*tags, '[')
		for _, comp := range v.Components() {
			appendArgTagAndBytes(tags, buf, value.NewFloat(comp))
		}
		*tags = append(*tags, ']')
	default:
		*tags = append(*tags, 'N')
	}
}

func (c *Codec) decodeBundle(data []byte) (*Bundle, error) {
	if len(data) < 16 {
		return nil, ErrTruncated
	}
	timetag := binary.BigEndian.Uint64(data[8:16])
	rest := data[16:]

	b := &Bundle{Timetag: timetag}
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, ErrTruncated
		}
		n := int(binary.BigEndian.Uint32(rest[:4]))
		if n < 0 || 4+n > len(rest) {
			return nil, ErrTruncated
		}
		elemData := rest[4 : 4+n]
		elem, err := c.Decode(elemData)
		if err != nil {
			return nil, err
		}
		b.Elements = append(b.Elements, elem)
		rest = rest[4+n:]
	}
	return b, nil
}

func (c *Codec) encodeBundle(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("#bundle")
	buf.WriteByte(0)
	var tt [8]byte
	binary.BigEndian.PutUint64(tt[:], b.Timetag)
	buf.Write(tt[:])

	for _, elem := range b.Elements {
		enc, err := c.Encode(elem)
		if err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf.Write(lenBuf[:])
		buf.Write(enc)
	}
	return buf.Bytes(), nil
}
