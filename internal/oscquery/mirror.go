// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oscquery

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/osc"
	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

// State is the mirror connection state machine.
type State int

const (
	Disconnected State = iota
	HTTPFetching
	WSConnecting
	Running
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case HTTPFetching:
		return "HTTP_FETCHING"
	case WSConnecting:
		return "WS_CONNECTING"
	case Running:
		return "RUNNING"
	case Failed:
		return "FAILED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// backoffLadder is the mirror's reconnect delay sequence: 250ms, 500ms,
// 1s, 2s, then capped at 5s, reset after a successful RUNNING period of
// at least runningResetThreshold.
var backoffLadder = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

const runningResetThreshold = 30 * time.Second

// Mirror acquires a remote device tree over OSCQuery and keeps it
// synchronized, implementing tree.Protocol so a local device can be
// driven entirely by a remote one.
type Mirror struct {
	ctx     *reactor.Context
	device  *tree.Device
	wsURL   string
	httpURL string
	codec   *osc.Codec
	client  *http.Client

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	backoffIdx  int
	runningAt   time.Time
	listening   map[string]bool
	addNodeSeq  map[string][]chan *NodeDoc
	stopped     bool
}

// NewMirror creates a mirror for a base URL of the form "ws://host:port";
// the HTTP root is derived by stripping the ws/wss prefix.
func NewMirror(ctx *reactor.Context, device *tree.Device, baseURL string) *Mirror {
	httpURL := "http://" + strings.TrimPrefix(strings.TrimPrefix(baseURL, "ws://"), "wss://")
	if strings.HasPrefix(baseURL, "wss://") {
		httpURL = "https://" + strings.TrimPrefix(baseURL, "wss://")
	}
	m := &Mirror{
		ctx:        ctx,
		device:     device,
		wsURL:      baseURL,
		httpURL:    httpURL,
		codec:      osc.New(osc.Extended, false),
		client:     &http.Client{Timeout: 10 * time.Second},
		listening:  make(map[string]bool),
		addNodeSeq: make(map[string][]chan *NodeDoc),
	}
	device.SetProtocol(m)
	return m
}

func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mirror) setState(s State) {
	m.mu.Lock()
	m.state = s
	if s == Running {
		m.runningAt = time.Now()
	}
	m.mu.Unlock()
}

// Connect performs the startup handshake: HTTP GET of the tree, then a
// WebSocket connect on the same host/port.
func (m *Mirror) Connect() {
	m.setState(HTTPFetching)
	resp, err := m.client.Get(m.httpURL)
	if err != nil {
		cclog.Warnf("oscquery: mirror tree fetch %s: %v", m.httpURL, err)
		m.setState(Failed)
		m.scheduleReconnect()
		return
	}
	defer resp.Body.Close()

	var doc NodeDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		cclog.Warnf("oscquery: mirror tree decode: %v", err)
		m.setState(Failed)
		m.scheduleReconnect()
		return
	}
	for _, entry := range doc.Contents {
		decodeNode(m.device.Root(), entry.Node)
	}

	m.setState(WSConnecting)
	conn, _, err := websocket.DefaultDialer.Dial(m.wsURL, nil)
	if err != nil {
		cclog.Warnf("oscquery: mirror websocket dial %s: %v", m.wsURL, err)
		m.setState(Disconnected)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	m.conn = conn
	addrs := make([]string, 0, len(m.listening))
	for a := range m.listening {
		addrs = append(addrs, a)
	}
	m.mu.Unlock()

	m.setState(Running)
	// Re-LISTEN on every address this mirror was previously subscribed
	// to: resume subscriptions automatically on reconnect rather than
	// waiting for the application to re-observe.
	for _, addr := range addrs {
		m.sendJSON(map[string]string{"LISTEN": addr})
	}

	go m.readLoop(conn)
}

func (m *Mirror) scheduleReconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	idx := m.backoffIdx
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	delay := backoffLadder[idx]
	if m.backoffIdx < len(backoffLadder)-1 {
		m.backoffIdx++
	}
	m.mu.Unlock()

	m.ctx.AfterFunc(delay, m.Connect)
}

func (m *Mirror) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			wasRunning := m.state == Running
			ranLongEnough := wasRunning && time.Since(m.runningAt) >= runningResetThreshold
			if ranLongEnough {
				m.backoffIdx = 0
			}
			m.conn = nil
			m.mu.Unlock()

			m.setState(Disconnected)
			m.scheduleReconnect()
			return
		}
		if msgType == websocket.BinaryMessage {
			m.handleBinaryFrame(data)
			continue
		}
		m.handleTextFrame(data)
	}
}

func (m *Mirror) handleBinaryFrame(data []byte) {
	pkt, err := m.codec.Decode(data)
	if err != nil {
		cclog.Warnf("oscquery: mirror binary decode: %v", err)
		return
	}
	msg, ok := pkt.(*osc.Message)
	if !ok {
		return
	}
	n := tree.FindNode(m.device.Root(), msg.Address)
	if n == nil || n.Parameter() == nil {
		m.device.DispatchUnhandled(msg.Address, value.NewImpulse())
		return
	}
	var v value.Value
	switch len(msg.Args) {
	case 0:
		v = value.NewImpulse()
	case 1:
		v = msg.Args[0]
	default:
		v = value.NewList(msg.Args...)
	}
	n.Parameter().PushValue(v)
}

func (m *Mirror) handleTextFrame(data []byte) {
	var cmd inboundCommand
	if err := json.Unmarshal(data, &cmd); err == nil && cmd.Command != "" {
		switch cmd.Command {
		case "PATH_ADDED":
			var doc NodeDoc
			if err := json.Unmarshal(cmd.Data, &doc); err == nil {
				parent := parentOf(m.device, doc.FullPath)
				decodeNode(parent, &doc)
				m.resolveAddNode(doc.FullPath, &doc)
			}
		case "PATH_REMOVED":
			var payload struct {
				Path string `json:"PATH"`
			}
			if err := json.Unmarshal(cmd.Data, &payload); err == nil {
				if n := tree.FindNode(m.device.Root(), payload.Path); n != nil {
					if parent := n.Parent(); parent != nil {
						_ = parent.RemoveChild(n)
					}
				}
			}
		}
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	for addr, rawVal := range raw {
		n := tree.FindNode(m.device.Root(), addr)
		if n == nil || n.Parameter() == nil {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(rawVal, &decoded); err != nil {
			continue
		}
		vals, tag := toValueSlice(decoded, n.Parameter().Value())
		n.Parameter().PushValue(wireToValue(tag, vals))
	}
}

// toValueSlice normalizes a decoded JSON scalar/array into the VALUE/TYPE
// shape wireToValue expects, inferring the tag from the existing value's
// kind (the PATH_CHANGED shorthand omits TYPE).
func toValueSlice(decoded interface{}, existing value.Value) ([]interface{}, string) {
	switch d := decoded.(type) {
	case []interface{}:
		tag, _ := valueToWire(existing)
		if len(tag) != len(d) {
			tag = strings.Repeat("f", len(d))
		}
		return d, tag
	default:
		tag, _ := valueToWire(existing)
		if len(tag) != 1 {
			tag = "f"
		}
		return []interface{}{d}, tag
	}
}

func parentOf(device *tree.Device, fullPath string) *tree.Node {
	i := strings.LastIndexByte(fullPath, '/')
	if i <= 0 {
		return device.Root()
	}
	parentPath := fullPath[:i]
	if n := tree.FindNode(device.Root(), parentPath); n != nil {
		return n
	}
	return device.Root()
}

func (m *Mirror) sendJSON(v interface{}) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		cclog.Warnf("oscquery: mirror write: %v", err)
	}
}

// Push sends the parameter's current value as a PATH_CHANGED message.
func (m *Mirror) Push(p *tree.Parameter) bool {
	m.sendJSON(map[string]interface{}{p.Node().Address(): jsonValue(p.Value())})
	return true
}

func (m *Mirror) PushRaw(address string, v value.Value) bool {
	m.sendJSON(map[string]interface{}{address: jsonValue(v)})
	return true
}

// Observe issues LISTEN/IGNORE for p's address and tracks it for
// automatic re-subscription on reconnect.
func (m *Mirror) Observe(p *tree.Parameter, enable bool) bool {
	addr := p.Node().Address()
	m.mu.Lock()
	if enable {
		m.listening[addr] = true
	} else {
		delete(m.listening, addr)
	}
	m.mu.Unlock()

	if enable {
		m.sendJSON(map[string]string{"LISTEN": addr})
	} else {
		m.sendJSON(map[string]string{"IGNORE": addr})
	}
	return true
}

// Pull resolves immediately from the locally mirrored value; the
// OSCQuery wire protocol has no synchronous query round trip beyond the
// tree fetch and value channel already kept current by Observe.
func (m *Mirror) Pull(p *tree.Parameter) bool {
	p.ResolvePull(p.Value())
	return true
}

func (m *Mirror) Stop() {
	m.mu.Lock()
	m.stopped = true
	conn := m.conn
	m.mu.Unlock()
	m.setState(Stopped)
	if conn != nil {
		_ = conn.Close()
	}
}

// UpdateAsync triggers a full tree refetch, resolving the returned
// channel when it completes.
func (m *Mirror) UpdateAsync() <-chan error {
	ch := make(chan error, 1)
	go func() {
		resp, err := m.client.Get(m.httpURL)
		if err != nil {
			ch <- err
			return
		}
		defer resp.Body.Close()
		var doc NodeDoc
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			ch <- err
			return
		}
		m.ctx.Post(func() {
			for _, entry := range doc.Contents {
				decodeNode(m.device.Root(), entry.Node)
			}
			ch <- nil
		})
	}()
	return ch
}

// RequestAddNode emits a PATH_ADD request for a child of parent and
// returns a channel resolved with the server's PATH_ADDED document,
// whose name may differ from requestedName due to a collision suffix.
// Two requests for the same parent/name
// queue up and resolve in the order the server answers them, rather
// than the second overwriting the first's channel.
func (m *Mirror) RequestAddNode(parent *tree.Node, requestedName string) <-chan *NodeDoc {
	ch := make(chan *NodeDoc, 1)
	path := parent.Address()
	key := path + "/" + requestedName

	m.mu.Lock()
	m.addNodeSeq[key] = append(m.addNodeSeq[key], ch)
	m.mu.Unlock()

	m.sendJSON(struct {
		Command string      `json:"COMMAND"`
		Data    pathAddData `json:"DATA"`
	}{Command: "PATH_ADD", Data: pathAddData{Name: requestedName, Path: path}})
	return ch
}

func (m *Mirror) resolveAddNode(fullPath string, doc *NodeDoc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, queue := range m.addNodeSeq {
		if len(queue) == 0 {
			continue
		}
		sep := strings.LastIndexByte(key, '/')
		parentPrefix, name := key[:sep], key[sep+1:]
		got := lastSegment(fullPath)
		if !strings.HasPrefix(fullPath, parentPrefix) || (got != name && !strings.HasPrefix(got, name+".")) {
			continue
		}
		// Best-effort correlation: deliver to the oldest unresolved
		// request for this parent/name, since PATH_ADDED carries the
		// server-assigned name rather than echoing the request.
		queue[0] <- doc
		if len(queue) == 1 {
			delete(m.addNodeSeq, key)
		} else {
			m.addNodeSeq[key] = queue[1:]
		}
		return
	}
}
