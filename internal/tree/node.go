// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tree implements the device tree: nodes, parameters, attributes,
// pattern matching, and the structural observer set.
//
// Each node owns an ordered slice of children (order must be preserved)
// guarded by its own sync.RWMutex, so reads of a stable subtree never
// block a concurrent write to a sibling subtree.
package tree

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Attributes is the node attribute bag: tags, description,
// priority, critical flag, refresh rate, value step, repetition filter
// policy, plus any OSCQuery-sourced extras.
type Attributes struct {
	Description  string
	Tags         []string
	Priority     int
	Critical     bool
	RefreshRate  float64 // Hz, 0 = unlimited
	ExtendedType string
}

// NodeObserver receives structural events. Subscribers hold only a
// non-owning back-reference to the node; implementations must not retain the *Node past
// the OnNodeRemoving call for it.
type NodeObserver interface {
	OnNodeCreated(child *Node)
	OnNodeRemoving(child *Node)
	OnAttributeModified(n *Node, attr string)
	OnAddressCreated(n *Node)
}

// Node is a tree element. The parent reference is weak: a Node
// never keeps its parent alive, it is only ever reached top-down through
// the owning chain of children slices.
type Node struct {
	mu sync.RWMutex

	name     string
	parent   *Node
	children []*Node
	param    *Parameter
	attrs    Attributes

	subscribers      map[uuid.UUID]NodeObserver
	aboutToBeDeleted bool
}

// NewRoot creates a root node with no parent. The root node has no parent
// and its name is the device-level name.
func NewRoot(deviceName string) *Node {
	return &Node{name: deviceName, subscribers: make(map[uuid.UUID]NodeObserver)}
}

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

func (n *Node) Parameter() *Parameter {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.param
}

func (n *Node) Attributes() Attributes {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attrs
}

// SetAttributes replaces the attribute bag and fires OnAttributeModified
// for each subscriber, the way a structural edit is expected to notify
// observers of the change.
func (n *Node) SetAttributes(a Attributes) {
	n.mu.Lock()
	n.attrs = a
	n.mu.Unlock()
	n.broadcast(func(o NodeObserver) { o.OnAttributeModified(n, "*") })
}

// ChildrenCopy returns a stable snapshot list of child references valid for
// the caller's scope, so a read-only query never races a concurrent
// structural edit.
func (n *Node) ChildrenCopy() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Address returns this node's full OSC address, root-relative ("/a/b/c").
func (n *Node) Address() string {
	if n.parent == nil {
		return "/"
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.Name()}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

// CreateChild inserts a child under n. On name
// collision, it appends the smallest unused numeric suffix ".k", k>=1.
func (n *Node) CreateChild(requestedName string) *Node {
	n.mu.Lock()
	name := n.uniqueNameLocked(requestedName)
	child := &Node{name: name, parent: n, subscribers: make(map[uuid.UUID]NodeObserver)}
	n.children = append(n.children, child)
	n.mu.Unlock()

	n.broadcast(func(o NodeObserver) { o.OnNodeCreated(child) })
	return child
}

// uniqueNameLocked must be called with n.mu held.
func (n *Node) uniqueNameLocked(requested string) string {
	used := make(map[string]bool, len(n.children))
	for _, c := range n.children {
		used[c.name] = true
	}
	if !used[requested] {
		return requested
	}
	for k := 1; ; k++ {
		candidate := requested + "." + strconv.Itoa(k)
		if !used[candidate] {
			return candidate
		}
	}
}

// CreateParameter attaches an owned Parameter to n, replacing any existing
// one. A parameter's lifetime is strictly contained in its node's
// lifetime: it is created/destroyed only through this node.
func (n *Node) CreateParameter(kind int) *Parameter {
	p := newParameter(n)
	n.mu.Lock()
	n.param = p
	n.mu.Unlock()
	n.broadcast(func(o NodeObserver) { o.OnAddressCreated(n) })
	return p
}

// RemoveChild detaches child from n: fires aboutToBeDeleted pre-detach,
// releases owned storage post-detach.
func (n *Node) RemoveChild(child *Node) error {
	n.mu.RLock()
	idx := -1
	for i, c := range n.children {
		if c == child {
			idx = i
			break
		}
	}
	n.mu.RUnlock()
	if idx < 0 {
		return fmt.Errorf("tree: %q is not a child of %q", child.Name(), n.Address())
	}

	child.signalAboutToBeDeleted()
	n.broadcast(func(o NodeObserver) { o.OnNodeRemoving(child) })

	n.mu.Lock()
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	n.mu.Unlock()
	return nil
}

// signalAboutToBeDeleted fires exactly once and detaches every subscriber's
// back-reference before storage is released.
func (n *Node) signalAboutToBeDeleted() {
	n.mu.Lock()
	if n.aboutToBeDeleted {
		n.mu.Unlock()
		return
	}
	n.aboutToBeDeleted = true
	children := append([]*Node(nil), n.children...)
	subs := n.subscribers
	n.subscribers = nil
	n.mu.Unlock()

	for _, child := range children {
		child.signalAboutToBeDeleted()
	}
	for _, o := range subs {
		o.OnNodeRemoving(n)
	}
}

// Subscribe registers a structural observer keyed by a fresh identity
//. Returns the key to use
// with Unsubscribe.
func (n *Node) Subscribe(o NodeObserver) uuid.UUID {
	id := uuid.New()
	n.mu.Lock()
	if n.subscribers == nil {
		n.subscribers = make(map[uuid.UUID]NodeObserver)
	}
	n.subscribers[id] = o
	n.mu.Unlock()
	return id
}

func (n *Node) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	delete(n.subscribers, id)
	n.mu.Unlock()
}

func (n *Node) broadcast(f func(NodeObserver)) {
	n.mu.RLock()
	subs := make([]NodeObserver, 0, len(n.subscribers))
	for _, o := range n.subscribers {
		subs = append(subs, o)
	}
	n.mu.RUnlock()
	for _, o := range subs {
		f(o)
	}
}
