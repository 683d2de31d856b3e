// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package oscquery implements the OSCQuery mirror and host: HTTP tree
// discovery plus a WebSocket value channel.
package oscquery

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

// Access mirrors the OSCQuery wire encoding of a parameter's access mode:
// 0=none, 1=get, 2=set, 3=bi.
type Access int

const (
	AccessNone Access = 0
	AccessGet  Access = 1
	AccessSet  Access = 2
	AccessBi   Access = 3
)

func accessToWire(a tree.AccessMode) Access {
	switch a {
	case tree.Get:
		return AccessGet
	case tree.Set:
		return AccessSet
	default:
		return AccessBi
	}
}

func accessFromWire(a Access) tree.AccessMode {
	switch a {
	case AccessGet:
		return tree.Get
	case AccessSet:
		return tree.Set
	default:
		return tree.Bi
	}
}

// RangeEntry is one element of a node's RANGE array: the bound and
// enumerated-value set for one value component.
type RangeEntry struct {
	Min  *float64      `json:"MIN,omitempty"`
	Max  *float64      `json:"MAX,omitempty"`
	Vals []interface{} `json:"VALS,omitempty"`
}

// ContentsEntry pairs a child's name with its document, preserving the
// JSON object's key order.
type ContentsEntry struct {
	Key  string
	Node *NodeDoc
}

// OrderedContents is a JSON object that marshals/unmarshals as an
// order-preserving sequence of key/value pairs instead of Go's
// map[string]T (which encoding/json always emits sorted by key).
type OrderedContents []ContentsEntry

func (o OrderedContents) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.Node)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *OrderedContents) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // opening '{'
		return fmt.Errorf("oscquery: CONTENTS: %w", err)
	}
	var out OrderedContents
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("oscquery: CONTENTS: non-string key")
		}
		var node NodeDoc
		if err := dec.Decode(&node); err != nil {
			return err
		}
		out = append(out, ContentsEntry{Key: key, Node: &node})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	*o = out
	return nil
}

// NodeDoc is the OSCQuery JSON node object.
type NodeDoc struct {
	FullPath     string          `json:"FULL_PATH"`
	Contents     OrderedContents `json:"CONTENTS,omitempty"`
	Type         string          `json:"TYPE,omitempty"`
	Value        []interface{}   `json:"VALUE,omitempty"`
	Range        []RangeEntry    `json:"RANGE,omitempty"`
	Unit         []string        `json:"UNIT,omitempty"`
	Access       Access          `json:"ACCESS,omitempty"`
	Description  string          `json:"DESCRIPTION,omitempty"`
	Tags         []string        `json:"TAGS,omitempty"`
	ExtendedType string          `json:"EXTENDED_TYPE,omitempty"`
	Critical     bool            `json:"CRITICAL,omitempty"`
	RefreshRate  float64         `json:"REFRESH_RATE,omitempty"`
	ClipMode     string          `json:"CLIPMODE,omitempty"`
	Priority     int             `json:"PRIORITY,omitempty"`
}

func clipModeString(b tree.BoundingMode) string {
	switch b {
	case tree.Clip:
		return "Both"
	case tree.Low:
		return "Low"
	case tree.High:
		return "High"
	case tree.Wrap:
		return "Wrap"
	case tree.Fold:
		return "Fold"
	default:
		return "None"
	}
}

func clipModeFromString(s string) tree.BoundingMode {
	switch s {
	case "Both":
		return tree.Clip
	case "Low":
		return tree.Low
	case "High":
		return tree.High
	case "Wrap":
		return tree.Wrap
	case "Fold":
		return tree.Fold
	default:
		return tree.Free
	}
}

// encodeNode translates a tree.Node and its subtree into a NodeDoc.
func encodeNode(n *tree.Node) *NodeDoc {
	attrs := n.Attributes()
	doc := &NodeDoc{
		FullPath:     n.Address(),
		Description:  attrs.Description,
		Tags:         attrs.Tags,
		ExtendedType: attrs.ExtendedType,
		Critical:     attrs.Critical,
		RefreshRate:  attrs.RefreshRate,
		Priority:     attrs.Priority,
	}

	if p := n.Parameter(); p != nil {
		tag, vals := valueToWire(p.Value())
		doc.Type = tag
		doc.Value = vals
		doc.Access = accessToWire(p.AccessMode())
		doc.ClipMode = clipModeString(p.BoundingMode())
		doc.Unit = unitToWire(p.Unit())
		if d := p.Domain(); len(d.Values) > 0 {
			entry := RangeEntry{}
			for _, v := range d.Values {
				_, raw := valueToWire(v)
				entry.Vals = append(entry.Vals, raw...)
			}
			doc.Range = []RangeEntry{entry}
		} else {
			min, max := domainBounds(p.Domain())
			if min != nil || max != nil {
				doc.Range = []RangeEntry{{Min: min, Max: max}}
			}
		}
	}

	for _, child := range n.ChildrenCopy() {
		doc.Contents = append(doc.Contents, ContentsEntry{Key: child.Name(), Node: encodeNode(child)})
	}
	return doc
}

func domainBounds(d tree.Domain) (min, max *float64) {
	return d.Min, d.Max
}

func unitToWire(u value.Unit) []string {
	if u == value.InvalidUnit {
		return nil
	}
	return []string{u.String()}
}

// valueToWire produces the OSC-style type tag and the flattened VALUE
// array for v.
func valueToWire(v value.Value) (tag string, vals []interface{}) {
	switch v.Kind() {
	case value.Int:
		i, _ := v.Int()
		return "i", []interface{}{i}
	case value.Float:
		f, _ := v.Float()
		return "f", []interface{}{f}
	case value.Bool:
		b, _ := v.Bool()
		if b {
			return "T", []interface{}{true}
		}
		return "F", []interface{}{false}
	case value.Char:
		c, _ := v.Char()
		return "c", []interface{}{string(c)}
	case value.String:
		s, _ := v.String_()
		return "s", []interface{}{s}
	case value.List:
		items, _ := v.List_()
		var tagBytes []byte
		var out []interface{}
		for _, item := range items {
			t, raw := valueToWire(item)
			tagBytes = append(tagBytes, []byte(t)...)
			out = append(out, raw...)
		}
		return string(tagBytes), out
	case value.Vec2f, value.Vec3f, value.Vec4f:
		var tagBytes []byte
		var out []interface{}
		for _, c := range v.Components() {
			tagBytes = append(tagBytes, 'f')
			out = append(out, c)
		}
		return string(tagBytes), out
	case value.Impulse:
		return "N", nil
	default:
		return "", nil
	}
}

// wireToValue reconstructs a tree Value from a TYPE tagstring and its
// VALUE array, the inverse of valueToWire.
func wireToValue(tagString string, vals []interface{}) value.Value {
	if len(tagString) == 0 {
		return value.NewImpulse()
	}
	items := make([]value.Value, 0, len(tagString))
	vi := 0
	next := func() interface{} {
		if vi < len(vals) {
			v := vals[vi]
			vi++
			return v
		}
		return nil
	}
	for _, tag := range tagString {
		switch tag {
		case 'i':
			items = append(items, value.NewInt(toInt64(next())))
		case 'f':
			items = append(items, value.NewFloat(toFloat64(next())))
		case 's':
			items = append(items, value.NewString(toString(next())))
		case 'c':
			s := toString(next())
			var r rune
			for _, ch := range s {
				r = ch
				break
			}
			items = append(items, value.NewChar(r))
		case 'T':
			next()
			items = append(items, value.NewBool(true))
		case 'F':
			next()
			items = append(items, value.NewBool(false))
		case 'N', 'I':
			items = append(items, value.NewImpulse())
		default:
			items = append(items, value.NewImpulse())
		}
	}
	if len(items) == 1 {
		return items[0]
	}
	return value.NewList(items...)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// decodeNode creates (or updates) the subtree rooted at parent to match
// doc: each JSON node becomes a device-tree node with optional
// parameter, attributes, domain, unit, and access mode; missing fields
// take defaults.
func decodeNode(parent *tree.Node, doc *NodeDoc) *tree.Node {
	name := lastSegment(doc.FullPath)
	n := parent
	if name != "" {
		n = nil
		for _, c := range parent.ChildrenCopy() {
			if c.Name() == name {
				n = c
				break
			}
		}
		if n == nil {
			n = parent.CreateChild(name)
		}
	}

	n.SetAttributes(tree.Attributes{
		Description:  doc.Description,
		Tags:         doc.Tags,
		Priority:     doc.Priority,
		Critical:     doc.Critical,
		RefreshRate:  doc.RefreshRate,
		ExtendedType: doc.ExtendedType,
	})

	if doc.Type != "" || doc.Value != nil {
		p := n.Parameter()
		if p == nil {
			p = n.CreateParameter(0)
		}
		p.SetAccessMode(accessFromWire(doc.Access))
		p.SetBoundingMode(clipModeFromString(doc.ClipMode))
		if len(doc.Unit) > 0 {
			if u := value.ParseUnit(doc.Unit[0]); u != value.InvalidUnit {
				p.SetUnit(u)
			}
		}
		if len(doc.Range) > 0 {
			p.SetDomain(tree.Domain{Min: doc.Range[0].Min, Max: doc.Range[0].Max})
		}
		p.PushValue(wireToValue(doc.Type, doc.Value))
	}

	for _, entry := range doc.Contents {
		decodeNode(n, entry.Node)
	}
	return n
}

func lastSegment(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}
