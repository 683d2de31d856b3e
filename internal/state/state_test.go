package state

import (
	"testing"

	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

func msg(n *tree.Node, idx int, f float64) Message {
	return Message{Destination: tree.Destination{Node: n, Index: []int{idx}}, Value: value.NewFloat(f)}
}

// TestFlattenPermutationsCommute checks that adding (/n1[0],5f),
// (/n1[1],10f), (/n1[2],15f) in all six permutations yields a single
// piecewise (/n1, [5,10,15]).
func TestFlattenPermutationsCommute(t *testing.T) {
	root := tree.NewRoot("dev")
	n1 := root.CreateChild("n1")

	m0 := msg(n1, 0, 5)
	m1 := msg(n1, 1, 10)
	m2 := msg(n1, 2, 15)

	perms := [][]Message{
		{m0, m1, m2}, {m0, m2, m1}, {m1, m0, m2},
		{m1, m2, m0}, {m2, m0, m1}, {m2, m1, m0},
	}

	var results []*State
	for _, perm := range perms {
		s := &State{}
		for _, m := range perm {
			FlattenAndFilter(s, Element{Message: &m})
		}
		results = append(results, s)
	}

	for _, s := range results {
		if s.Size() != 1 {
			t.Fatalf("expected exactly one entry per address, got %d", s.Size())
		}
		pw := s.Elements[0].Piecewise
		if pw == nil {
			t.Fatal("expected a piecewise message")
		}
		if pw.Address != "/n1" {
			t.Fatalf("address = %q, want /n1", pw.Address)
		}
		want := []float64{5, 10, 15}
		if len(pw.Values) != 3 {
			t.Fatalf("got %d values, want 3", len(pw.Values))
		}
		for i, w := range want {
			f, _ := pw.Values[i].AsFloat()
			if f != w {
				t.Fatalf("value[%d] = %v, want %v", i, f, w)
			}
		}
	}

	for i := 1; i < len(results); i++ {
		if !flattenedEqual(results[0], results[i]) {
			t.Fatalf("permutation %d differs from permutation 0", i)
		}
	}
}

// TestFlattenOverwrite checks that after settling (/n1, [5,10,15]),
// adding (/n1[0],7f) yields (/n1, [7,10,15]).
func TestFlattenOverwrite(t *testing.T) {
	root := tree.NewRoot("dev")
	n1 := root.CreateChild("n1")

	s := &State{}
	FlattenAndFilter(s, Element{Message: p(msg(n1, 0, 5))})
	FlattenAndFilter(s, Element{Message: p(msg(n1, 1, 10))})
	FlattenAndFilter(s, Element{Message: p(msg(n1, 2, 15))})
	FlattenAndFilter(s, Element{Message: p(msg(n1, 0, 7))})

	pw := s.Elements[0].Piecewise
	want := []float64{7, 10, 15}
	for i, w := range want {
		f, _ := pw.Values[i].AsFloat()
		if f != w {
			t.Fatalf("value[%d] = %v, want %v", i, f, w)
		}
	}
}

func TestWholeValueWriteClearsPriorEntries(t *testing.T) {
	root := tree.NewRoot("dev")
	n1 := root.CreateChild("n1")

	s := &State{}
	FlattenAndFilter(s, Element{Message: p(msg(n1, 0, 5))})
	FlattenAndFilter(s, Element{Message: p(msg(n1, 1, 10))})

	whole := Message{Destination: tree.Destination{Node: n1}, Value: value.NewFloat(99)}
	FlattenAndFilter(s, Element{Message: &whole})

	if s.Size() != 1 {
		t.Fatalf("expected 1 entry after whole-value write, got %d", s.Size())
	}
	got, _ := s.Elements[0].Message.Value.AsFloat()
	if got != 99 {
		t.Fatalf("got %v, want 99", got)
	}
}

func TestNestedStateInlinesOnFlatten(t *testing.T) {
	root := tree.NewRoot("dev")
	n1 := root.CreateChild("n1")

	inner := &State{}
	FlattenAndFilter(inner, Element{Message: p(msg(n1, 0, 1))})

	outer := &State{}
	FlattenAndFilter(outer, Element{Nested: inner})
	FlattenAndFilter(outer, Element{Message: p(msg(n1, 1, 2))})

	if outer.Size() != 1 {
		t.Fatalf("nested state must inline into a single entry, got %d", outer.Size())
	}
	if outer.Elements[0].Nested != nil {
		t.Fatal("flattened output must not retain nesting")
	}
}

func p(m Message) *Message { return &m }

func flattenedEqual(a, b *State) bool {
	if a.Size() != b.Size() {
		return false
	}
	for i := range a.Elements {
		ea, eb := a.Elements[i], b.Elements[i]
		if (ea.Piecewise == nil) != (eb.Piecewise == nil) {
			return false
		}
		if ea.Piecewise != nil {
			if ea.Piecewise.Address != eb.Piecewise.Address || len(ea.Piecewise.Values) != len(eb.Piecewise.Values) {
				return false
			}
			for j := range ea.Piecewise.Values {
				if !ea.Piecewise.Values[j].Equal(eb.Piecewise.Values[j]) {
					return false
				}
			}
		}
	}
	return true
}
