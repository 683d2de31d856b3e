package tree

import (
	"testing"

	"github.com/ossia-go/ossia/pkg/value"
)

func TestCreateNodeCollisionSuffixes(t *testing.T) {
	root := NewRoot("dev")
	a := root.CreateChild("x")
	b := root.CreateChild("x")
	c := root.CreateChild("x")

	if a.Name() != "x" || b.Name() != "x.1" || c.Name() != "x.2" {
		t.Fatalf("got names %q, %q, %q, want x, x.1, x.2", a.Name(), b.Name(), c.Name())
	}
}

func TestFindNodeExact(t *testing.T) {
	root := NewRoot("dev")
	a := root.CreateChild("a")
	b := a.CreateChild("b")

	if got := FindNode(root, "/a/b"); got != b {
		t.Fatalf("FindNode(/a/b) = %v, want %v", got, b)
	}
	if got := FindNode(root, "/"); got != root {
		t.Fatalf("FindNode(/) = %v, want root", got)
	}
	if got := FindNode(root, "/a/missing"); got != nil {
		t.Fatalf("FindNode(/a/missing) = %v, want nil", got)
	}
}

func TestFindNodesWildcards(t *testing.T) {
	root := NewRoot("dev")
	for _, name := range []string{"ch1", "ch2", "ch3", "other"} {
		root.CreateChild(name)
	}

	got, err := FindNodes(root, "/ch*")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3", len(got))
	}
}

func TestFindNodesAnyDepth(t *testing.T) {
	root := NewRoot("dev")
	a := root.CreateChild("a")
	b := a.CreateChild("b")
	target := b.CreateChild("target")

	got, err := FindNodes(root, "//target")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != target {
		t.Fatalf("got %v, want [target]", got)
	}
}

func TestFindNodesAlternation(t *testing.T) {
	root := NewRoot("dev")
	root.CreateChild("foo")
	root.CreateChild("bar")
	root.CreateChild("baz")

	got, err := FindNodes(root, "/{foo,bar}")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
}

func TestTrailingSlashRejected(t *testing.T) {
	root := NewRoot("dev")
	if _, err := FindNodes(root, "/a/"); err == nil {
		t.Fatal("expected error for trailing slash")
	}
}

func TestAboutToBeDeletedFiresOnce(t *testing.T) {
	root := NewRoot("dev")
	child := root.CreateChild("c")

	count := 0
	obs := funcObserver{onRemoving: func(n *Node) { count++ }}
	child.Subscribe(obs)

	if err := root.RemoveChild(child); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("aboutToBeDeleted fired %d times, want 1", count)
	}
}

func TestRepetitionFilterSuppressesDuplicateCallback(t *testing.T) {
	root := NewRoot("dev")
	n := root.CreateChild("p")
	p := n.CreateParameter(0)
	p.SetRepetitionFilter(true)

	calls := 0
	p.AddCallback(func(v value.Value) { calls++ })

	p.PushValue(value.NewFloat(1))
	p.PushValue(value.NewFloat(1))
	p.PushValue(value.NewFloat(1))

	if calls != 1 {
		t.Fatalf("got %d callbacks, want exactly 1", calls)
	}
}

func TestBoundingClip(t *testing.T) {
	root := NewRoot("dev")
	n := root.CreateChild("p")
	p := n.CreateParameter(0)
	min, max := 0.0, 10.0
	p.SetDomain(Domain{Min: &min, Max: &max})
	p.SetBoundingMode(Clip)

	p.PushValue(value.NewFloat(15))
	got, _ := p.Value().AsFloat()
	if got != 10 {
		t.Fatalf("clipped value = %v, want 10", got)
	}

	p.PushValue(value.NewFloat(-5))
	got, _ = p.Value().AsFloat()
	if got != 0 {
		t.Fatalf("clipped value = %v, want 0", got)
	}
}

type funcObserver struct {
	onRemoving func(*Node)
}

func (f funcObserver) OnNodeCreated(child *Node)          {}
func (f funcObserver) OnNodeRemoving(child *Node)         { if f.onRemoving != nil { f.onRemoving(child) } }
func (f funcObserver) OnAttributeModified(n *Node, a string) {}
func (f funcObserver) OnAddressCreated(n *Node)           {}
