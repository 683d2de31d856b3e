package tree

import (
	"sync"

	"github.com/ossia-go/ossia/pkg/value"
)

// Destination is a reference to a node plus an optional index path into a
// compound value.
type Destination struct {
	Node  *Node
	Index []int
}

// Whole reports whether this destination addresses the entire value
// (empty index).
func (d Destination) Whole() bool { return len(d.Index) == 0 }

// UnhandledMessageHandler is invoked for inbound writes that could not be
// routed to a parameter (no tree match, no parameter on the node, or a
// Get-only parameter in the OSC binding). Values are not checked against
// a parameter's type, so a type mismatch does not reach this handler.
type UnhandledMessageHandler func(address string, v value.Value)

// Protocol is the contract a device drives. It is declared here, in
// package tree, to avoid a dependency cycle (internal/oscproto and
// internal/oscquery both depend on tree, not the reverse).
type Protocol interface {
	Push(p *Parameter) bool
	PushRaw(address string, v value.Value) bool
	Observe(p *Parameter, enable bool) bool
	Pull(p *Parameter) bool
	Stop()
}

// Device owns a tree rooted at Root and the protocol driving it.
type Device struct {
	mu       sync.RWMutex
	root     *Node
	protocol Protocol

	onUnhandled []UnhandledMessageHandler
}

// NewDevice creates a device with a fresh root node named deviceName.
func NewDevice(deviceName string) *Device {
	return &Device{root: NewRoot(deviceName)}
}

func (d *Device) Root() *Node { return d.root }

func (d *Device) SetProtocol(p Protocol) {
	d.mu.Lock()
	d.protocol = p
	d.mu.Unlock()
}

func (d *Device) Protocol() Protocol {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.protocol
}

// OnUnhandledMessage registers a handler for inbound writes that matched
// no tree address.
func (d *Device) OnUnhandledMessage(h UnhandledMessageHandler) {
	d.mu.Lock()
	d.onUnhandled = append(d.onUnhandled, h)
	d.mu.Unlock()
}

// DispatchUnhandled fires every registered handler. Called by protocol
// bindings (internal/oscproto, internal/oscquery, internal/bridge) when an
// inbound write finds no node or no parameter to apply to;
// internal/oscproto also calls it for a write to a Get-only parameter.
// Inbound values are not type-checked against the target parameter.
func (d *Device) DispatchUnhandled(address string, v value.Value) {
	d.mu.RLock()
	handlers := append([]UnhandledMessageHandler(nil), d.onUnhandled...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(address, v)
	}
}

// FindNode is a convenience wrapper over tree.FindNode rooted at d.Root().
func (d *Device) FindNode(path string) *Node { return FindNode(d.root, path) }

// FindNodes is a convenience wrapper over tree.FindNodes rooted at d.Root().
func (d *Device) FindNodes(pattern string) ([]*Node, error) {
	return FindNodes(d.root, pattern)
}

// CreateChild creates a child of the root.
func (d *Device) CreateChild(name string) *Node { return d.root.CreateChild(name) }
