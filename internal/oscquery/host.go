// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oscquery

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/osc"
	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/lrucache"
	"github.com/ossia-go/ossia/pkg/value"
)

// nodeQueryCacheTTL bounds how stale a single-node GET response may be;
// short enough that a parameter write is reflected to the next poller
// within one tick, long enough to absorb a burst of identical polls.
const nodeQueryCacheTTL = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Host serves device's tree over HTTP (GET "/" → JSON document) and a
// WebSocket value channel on the same path.
type Host struct {
	ctx    *reactor.Context
	device *tree.Device
	codec  *osc.Codec
	router *mux.Router
	server *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]map[string]bool // conn -> LISTEN'd addresses

	callbackIDs map[*tree.Parameter]uuid.UUID
}

// NewHost wires an HTTP+WebSocket OSCQuery server for device at addr.
func NewHost(ctx *reactor.Context, device *tree.Device, addr string) *Host {
	h := &Host{
		ctx:         ctx,
		device:      device,
		codec:       osc.New(osc.Extended, false),
		router:      mux.NewRouter(),
		clients:     make(map[*websocket.Conn]map[string]bool),
		callbackIDs: make(map[*tree.Parameter]uuid.UUID),
	}
	h.router.HandleFunc("/", h.handleRoot)
	h.router.Handle("/{address:.+}", lrucache.NewMiddleware(1<<20, nodeQueryCacheTTL)(http.HandlerFunc(h.handleNodeQuery))).Methods(http.MethodGet)

	logged := handlers.CustomLoggingHandler(io.Discard, h.router, func(_ io.Writer, params handlers.LogFormatterParams) {
		cclog.Debugf("oscquery: %s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(), params.StatusCode,
			time.Since(params.TimeStamp).Milliseconds())
	})
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(logged)
	h.server = &http.Server{Addr: addr, Handler: recovered}

	device.Root().Subscribe(h)
	h.attach(device.Root())
	return h
}

// attach recursively registers a value callback on every existing
// parameter and subscribes to every node's structural events, so newly
// created nodes stay covered without rescanning the tree.
func (h *Host) attach(n *tree.Node) {
	if n != h.device.Root() {
		n.Subscribe(h)
	}
	if p := n.Parameter(); p != nil {
		id := p.AddCallback(func(v value.Value) { h.Broadcast(n.Address(), v) })
		h.callbackIDs[p] = id
	}
	for _, child := range n.ChildrenCopy() {
		h.attach(child)
	}
}

// Structural NodeObserver methods: every newly created node/parameter is
// attached, so a node added after construction still broadcasts its
// value changes.
func (h *Host) OnNodeCreated(child *tree.Node)               { h.attach(child) }
func (h *Host) OnNodeRemoving(child *tree.Node)              {}
func (h *Host) OnAttributeModified(n *tree.Node, attr string) {}
func (h *Host) OnAddressCreated(n *tree.Node) {
	if p := n.Parameter(); p != nil {
		if _, already := h.callbackIDs[p]; !already {
			id := p.AddCallback(func(v value.Value) { h.Broadcast(n.Address(), v) })
			h.callbackIDs[p] = id
		}
	}
}

func (h *Host) ListenAndServe() error {
	return h.server.ListenAndServe()
}

func (h *Host) Close() error {
	h.mu.Lock()
	for c := range h.clients {
		_ = c.Close()
	}
	h.mu.Unlock()
	return h.server.Close()
}

func (h *Host) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r)
		return
	}
	doc := encodeNode(h.device.Root())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		cclog.Errorf("oscquery: host encode tree: %v", err)
	}
}

// handleNodeQuery serves "GET /<address>" as a single-node JSON document,
// the way an OSCQuery client resolves one path without fetching the
// whole tree.
func (h *Host) handleNodeQuery(w http.ResponseWriter, r *http.Request) {
	address := "/" + strings.TrimPrefix(mux.Vars(r)["address"], "/")
	n := tree.FindNode(h.device.Root(), address)
	if n == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(encodeNode(n)); err != nil {
		cclog.Errorf("oscquery: host encode node %s: %v", address, err)
	}
}

func (h *Host) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cclog.Warnf("oscquery: websocket upgrade: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = make(map[string]bool)
	h.mu.Unlock()

	go h.readClient(conn)
}

func (h *Host) readClient(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			h.handleBinaryFrame(conn, data)
			continue
		}
		h.handleTextFrame(conn, data)
	}
}

func (h *Host) handleBinaryFrame(conn *websocket.Conn, data []byte) {
	pkt, err := h.codec.Decode(data)
	if err != nil {
		cclog.Warnf("oscquery: binary frame decode: %v", err)
		return
	}
	msg, ok := pkt.(*osc.Message)
	if !ok {
		return
	}
	n := tree.FindNode(h.device.Root(), msg.Address)
	if n == nil || n.Parameter() == nil {
		h.device.DispatchUnhandled(msg.Address, value.NewImpulse())
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

// inboundCommand mirrors the subset of commands a host must accept
// from a connected client: LISTEN/IGNORE subscription requests and
// PATH_ADD creation requests.
type inboundCommand struct {
	Command string          `json:"COMMAND"`
	Data    json.RawMessage `json:"DATA"`
}

type pathAddData struct {
	Name string `json:"NAME"`
	Path string `json:"PATH"`
}

func (h *Host) handleTextFrame(conn *websocket.Conn, data []byte) {
	var listen struct {
		Listen string `json:"LISTEN"`
	}
	if err := json.Unmarshal(data, &listen); err == nil && listen.Listen != "" {
		h.mu.Lock()
		if set := h.clients[conn]; set != nil {
			set[listen.Listen] = true
		}
		h.mu.Unlock()
		return
	}

	var ignore struct {
		Ignore string `json:"IGNORE"`
	}
	if err := json.Unmarshal(data, &ignore); err == nil && ignore.Ignore != "" {
		h.mu.Lock()
		if set := h.clients[conn]; set != nil {
			delete(set, ignore.Ignore)
		}
		h.mu.Unlock()
		return
	}

	var cmd inboundCommand
	if err := json.Unmarshal(data, &cmd); err == nil && cmd.Command == "PATH_ADD" {
		h.handlePathAdd(conn, cmd.Data)
		return
	}
}

// handlePathAdd implements request_add_node's server side: create the
// child (auto-suffixed on collision) and emit PATH_ADDED with its
// actual name.
func (h *Host) handlePathAdd(conn *websocket.Conn, raw json.RawMessage) {
	var req pathAddData
	if err := json.Unmarshal(raw, &req); err != nil {
		cclog.Warnf("oscquery: malformed PATH_ADD: %v", err)
		return
	}
	parent := tree.FindNode(h.device.Root(), req.Path)
	if parent == nil {
		parent = h.device.Root()
	}
	child := parent.CreateChild(req.Name)

	event := struct {
		Command string   `json:"COMMAND"`
		Data    *NodeDoc `json:"DATA"`
	}{Command: "PATH_ADDED", Data: encodeNode(child)}

	payload, err := json.Marshal(event)
	if err != nil {
		cclog.Errorf("oscquery: encode PATH_ADDED: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		cclog.Warnf("oscquery: write PATH_ADDED: %v", err)
	}
}

// Broadcast pushes v as a PATH_CHANGED value message to every client
// currently LISTEN'ing on address.
func (h *Host) Broadcast(address string, v value.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, listened := range h.clients {
		if !listened[address] {
			continue
		}
		payload, err := json.Marshal(map[string]interface{}{address: jsonValue(v)})
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			cclog.Warnf("oscquery: broadcast to client: %v", err)
		}
	}
}

func jsonValue(v value.Value) interface{} {
	_, vals := valueToWire(v)
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}
