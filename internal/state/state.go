// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package state implements compound messages, piecewise merge, and
// commutative flattening of destination-indexed writes.
package state

import (
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

// Message is a (Destination, Value) pair.
type Message struct {
	Destination tree.Destination
	Value       value.Value
}

// PiecewiseMessage is (Address, List-of-Value with holes at unset indices).
type PiecewiseMessage struct {
	Address string
	Values  []value.Value
}

// Element is a state element: exactly one of Message, Piecewise, or State
// is non-nil/non-empty, per the sum-type design.
type Element struct {
	Message   *Message
	Piecewise *PiecewiseMessage
	Nested    *State
}

// State is an ordered list of state elements.
type State struct {
	Elements []Element
}

// Add appends e as-is.
func (s *State) Add(e Element) {
	s.Elements = append(s.Elements, e)
}

// AddMessage is a convenience wrapper around Add.
func (s *State) AddMessage(m Message) {
	s.Add(Element{Message: &m})
}

func addressOf(m Message) string { return m.Destination.Node.Address() }

// Flatten reduces a State into one entry per address: a Message until
// writes to two different indices of that address are merged, which
// turns the entry into a PiecewiseMessage.
//
// Guarantees: commutative over distinct
// indices of the same address; at most one entry per address in the
// result.
func Flatten(elements ...Element) *State {
	out := &State{}
	for _, e := range elements {
		flattenInto(out, e)
	}
	return out
}

// FlattenAndFilter applies one state element (Message, PiecewiseMessage,
// or nested State) to an existing flattened state, in place, matching the
// original's incremental `flatten_and_filter(state, element)` entry
// point used message-by-message.
func FlattenAndFilter(s *State, e Element) {
	flattenInto(s, e)
}

func flattenInto(s *State, e Element) {
	switch {
	case e.Message != nil:
		flattenMessage(s, *e.Message)
	case e.Piecewise != nil:
		flattenPiecewise(s, *e.Piecewise)
	case e.Nested != nil:
		// A nested State is inlined during flatten: recurse fully so no
		// residual nesting survives in the flattened output.
		for _, child := range e.Nested.Elements {
			flattenInto(s, child)
		}
	}
}

func findEntry(s *State, addr string) (idx int, isPiecewise bool, found bool) {
	for i, el := range s.Elements {
		if el.Message != nil && addressOf(*el.Message) == addr {
			return i, false, true
		}
		if el.Piecewise != nil && el.Piecewise.Address == addr {
			return i, true, true
		}
	}
	return -1, false, false
}

func flattenMessage(s *State, m Message) {
	addr := addressOf(m)
	idx := m.Destination.Index

	if m.Destination.Whole() {
		// whole-value write: remove any prior entries for addr, append.
		removeEntries(s, addr)
		s.Elements = append(s.Elements, Element{Message: &Message{Destination: m.Destination, Value: m.Value}})
		return
	}

	pos, isPW, found := findEntry(s, addr)
	if !found {
		s.Elements = append(s.Elements, Element{Message: &Message{Destination: m.Destination, Value: m.Value}})
		return
	}

	if isPW {
		setPiecewise(s.Elements[pos].Piecewise, idx, m.Value)
		return
	}

	existing := s.Elements[pos].Message
	if sameIndex(existing.Destination.Index, idx) {
		existing.Value = m.Value
		return
	}

	// Different index at the same address: upgrade to a piecewise message
	// containing both positions.
	pw := &PiecewiseMessage{Address: addr}
	setPiecewise(pw, existing.Destination.Index, existing.Value)
	setPiecewise(pw, idx, m.Value)
	s.Elements[pos] = Element{Piecewise: pw}
}

func flattenPiecewise(s *State, p PiecewiseMessage) {
	pos, isPW, found := findEntry(s, p.Address)
	if !found {
		cp := PiecewiseMessage{Address: p.Address, Values: append([]value.Value(nil), p.Values...)}
		s.Elements = append(s.Elements, Element{Piecewise: &cp})
		return
	}

	if isPW {
		for i, v := range p.Values {
			if !v.IsEmpty() {
				setPiecewise(s.Elements[pos].Piecewise, []int{i}, v)
			}
		}
		return
	}

	existing := s.Elements[pos].Message
	pw := &PiecewiseMessage{Address: p.Address}
	setPiecewise(pw, existing.Destination.Index, existing.Value)
	for i, v := range p.Values {
		if !v.IsEmpty() {
			setPiecewise(pw, []int{i}, v)
		}
	}
	s.Elements[pos] = Element{Piecewise: pw}
}

func removeEntries(s *State, addr string) {
	kept := s.Elements[:0]
	for _, el := range s.Elements {
		if el.Message != nil && addressOf(*el.Message) == addr {
			continue
		}
		if el.Piecewise != nil && el.Piecewise.Address == addr {
			continue
		}
		kept = append(kept, el)
	}
	s.Elements = kept
}

// setPiecewise writes v into pw.Values at the position selected by index,
// extending with Empty markers as needed: a length-mismatched merge
// extends to max(len), padding unset positions with an explicit empty
// marker rather than truncating.
func setPiecewise(pw *PiecewiseMessage, index []int, v value.Value) {
	if len(index) == 0 {
		// whole-value write into an address that already has a piecewise
		// entry: replace every position with v's own sub-components if it
		// is a List, else collapse to a single-element piecewise.
		if items, ok := v.List_(); ok {
			pw.Values = append([]value.Value(nil), items...)
		} else {
			pw.Values = []value.Value{v}
		}
		return
	}

	pos := index[0]
	for len(pw.Values) <= pos {
		pw.Values = append(pw.Values, value.Empty)
	}
	pw.Values[pos] = v
}

func sameIndex(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Size returns the number of top-level entries (one per address) in a
// flattened state.
func (s *State) Size() int { return len(s.Elements) }
