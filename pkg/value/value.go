// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package value implements the tagged variant used throughout the device
// tree for parameter values, together with the unit/dataspace conversion
// lattice described for the Value & Dataspace component.
package value

import (
	"fmt"
	"math"
)

// Kind tags the variant held by a Value. Implementations should use a sum
// type with exhaustive matching and a fixed set of variants; this is that
// fixed set.
type Kind int

const (
	Invalid Kind = iota
	Impulse
	Int
	Float
	Bool
	Char
	String
	List
	Vec2f
	Vec3f
	Vec4f
)

func (k Kind) String() string {
	switch k {
	case Impulse:
		return "Impulse"
	case Int:
		return "Int"
	case Float:
		return "Float"
	case Bool:
		return "Bool"
	case Char:
		return "Char"
	case String:
		return "String"
	case List:
		return "List"
	case Vec2f:
		return "Vec2f"
	case Vec3f:
		return "Vec3f"
	case Vec4f:
		return "Vec4f"
	default:
		return "Invalid"
	}
}

// Float64 is a named float64 with a NaN check. It has no custom JSON
// encoding, so json.Marshal fails on a NaN Float64 as on any NaN float64.
type Float64 float64

func (f Float64) IsNaN() bool { return math.IsNaN(float64(f)) }

// Empty marks an unset position in a List/Vec that was extended by a
// length-mismatched merge, padding unset positions with an explicit
// empty marker.
var Empty = Value{kind: Invalid}

// Value is the tagged variant described by the Data Model. Zero value is
// Invalid (distinct from Empty only by intent: Invalid is "never set",
// Empty is "explicitly cleared by a merge").
type Value struct {
	kind Kind

	i    int64
	f    Float64
	b    bool
	c    rune
	s    string
	list []Value
	vec  [4]Float64 // only first N components valid, N per Kind
}

func (v Value) Kind() Kind { return v.kind }

func NewImpulse() Value                { return Value{kind: Impulse} }
func NewInt(i int64) Value             { return Value{kind: Int, i: i} }
func NewFloat(f float64) Value         { return Value{kind: Float, f: Float64(f)} }
func NewBool(b bool) Value             { return Value{kind: Bool, b: b} }
func NewChar(c rune) Value             { return Value{kind: Char, c: c} }
func NewString(s string) Value         { return Value{kind: String, s: s} }
func NewList(items ...Value) Value     { return Value{kind: List, list: items} }
func NewVec2f(x, y float64) Value      { return Value{kind: Vec2f, vec: [4]Float64{Float64(x), Float64(y)}} }
func NewVec3f(x, y, z float64) Value {
	return Value{kind: Vec3f, vec: [4]Float64{Float64(x), Float64(y), Float64(z)}}
}
func NewVec4f(x, y, z, w float64) Value {
	return Value{kind: Vec4f, vec: [4]Float64{Float64(x), Float64(y), Float64(z), Float64(w)}}
}

// IsEmpty reports whether this is the "hole" marker produced by a
// length-mismatched List/Vec merge.
func (v Value) IsEmpty() bool { return v.kind == Invalid }

func (v Value) Int() (int64, bool)     { return v.i, v.kind == Int }
func (v Value) Float() (float64, bool) { return float64(v.f), v.kind == Float }
func (v Value) Bool() (bool, bool)     { return v.b, v.kind == Bool }
func (v Value) Char() (rune, bool)     { return v.c, v.kind == Char }
func (v Value) String_() (string, bool) { return v.s, v.kind == String }
func (v Value) List_() ([]Value, bool) {
	if v.kind != List {
		return nil, false
	}
	return v.list, true
}

func (v Value) vecLen() int {
	switch v.kind {
	case Vec2f:
		return 2
	case Vec3f:
		return 3
	case Vec4f:
		return 4
	default:
		return 0
	}
}

// Components returns the numeric sub-components of a Vec value, in order.
func (v Value) Components() []float64 {
	n := v.vecLen()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(v.vec[i])
	}
	return out
}

// AsFloat coerces numeric-like variants to float64. Coercion is explicit:
// callers must invoke this rather than relying on an implicit conversion.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case Float:
		return float64(v.f), true
	case Int:
		return float64(v.i), true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Equal implements variant-then-content equality.
func (a Value) Equal(b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Invalid, Impulse:
		return true
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case Bool:
		return a.b == b.b
	case Char:
		return a.c == b.c
	case String:
		return a.s == b.s
	case List:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !a.list[i].Equal(b.list[i]) {
				return false
			}
		}
		return true
	case Vec2f, Vec3f, Vec4f:
		n := a.vecLen()
		for i := 0; i < n; i++ {
			if a.vec[i] != b.vec[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare implements the total order: variant-then-content.
func (a Value) Compare(b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case Int:
		return cmp(a.i, b.i)
	case Float:
		return cmp(float64(a.f), float64(b.f))
	case Bool:
		return cmp(boolInt(a.b), boolInt(b.b))
	case Char:
		return cmp(int64(a.c), int64(b.c))
	case String:
		if a.s < b.s {
			return -1
		} else if a.s > b.s {
			return 1
		}
		return 0
	case List:
		n := min(len(a.list), len(b.list))
		for i := 0; i < n; i++ {
			if c := a.list[i].Compare(b.list[i]); c != 0 {
				return c
			}
		}
		return cmp(int64(len(a.list)), int64(len(b.list)))
	case Vec2f, Vec3f, Vec4f:
		n := a.vecLen()
		for i := 0; i < n; i++ {
			if c := cmp(float64(a.vec[i]), float64(b.vec[i])); c != 0 {
				return c
			}
		}
		return 0
	default:
		return 0
	}
}

func cmp[T int64 | float64](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (v Value) String() string {
	switch v.kind {
	case Impulse:
		return "impulse"
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return fmt.Sprintf("%g", float64(v.f))
	case Bool:
		return fmt.Sprintf("%t", v.b)
	case Char:
		return fmt.Sprintf("%c", v.c)
	case String:
		return v.s
	case List:
		return fmt.Sprintf("%v", v.list)
	case Vec2f, Vec3f, Vec4f:
		return fmt.Sprintf("%v", v.Components())
	default:
		return "<invalid>"
	}
}
