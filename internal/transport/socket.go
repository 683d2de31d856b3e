// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"sync"

	cclog "github.com/ossia-go/ossia/pkg/log"

	"github.com/ossia-go/ossia/internal/reactor"
)

// Kind selects the socket family.
type Kind int

const (
	KindUDP Kind = iota
	KindTCP
	KindUnix
)

func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindTCP:
		return "tcp"
	case KindUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// FrameMode selects the stream framing strategy. Datagram transports
// (UDP) ignore this -- one read yields exactly one OSC packet.
type FrameMode int

const (
	FrameSLIP FrameMode = iota
	FrameLengthPrefix
)

// Config describes how to open a transport endpoint.
type Config struct {
	Kind Kind
	// Addr is host:port for UDP/TCP, or a filesystem path for Unix.
	Addr string
	// Listen opens a server socket (bind/listen/accept) instead of
	// dialing out.
	Listen bool
	// Frame selects the stream framer for TCP/Unix connections.
	Frame        FrameMode
	MaxFrameSize int
}

// Transport is the contract osc codecs and the protocol binder use to
// send and receive raw packets, independent of the underlying socket
// kind.
type Transport interface {
	// Send transmits one complete OSC packet (message or bundle).
	Send(packet []byte) error
	// OnReceive registers the callback invoked for every decoded
	// packet. The callback always runs on ctx's driving thread.
	OnReceive(func(packet []byte, from net.Addr))
	// OnFramingError registers the callback invoked when a stream
	// framer drops a malformed frame.
	OnFramingError(func(err error))
	Close() error
	LocalAddr() net.Addr
}

func newFramer(mode FrameMode, maxFrameSize int) Framer {
	if mode == FrameLengthPrefix {
		return NewLengthPrefixFramer(maxFrameSize)
	}
	return NewSLIPFramer(maxFrameSize)
}

// Open establishes a transport per cfg, posting every received packet
// and framing error through ctx.
func Open(ctx *reactor.Context, cfg Config) (Transport, error) {
	switch cfg.Kind {
	case KindUDP:
		return openUDP(ctx, cfg)
	case KindTCP, KindUnix:
		return openStream(ctx, cfg)
	default:
		return nil, fmt.Errorf("transport: unknown kind %v", cfg.Kind)
	}
}

// udpTransport is a single datagram socket: one packet per read, no
// framer needed.
type udpTransport struct {
	ctx      *reactor.Context
	conn     net.PacketConn
	onRecv   func([]byte, net.Addr)
	onFrameE func(error)
	mu       sync.Mutex
}

func openUDP(ctx *reactor.Context, cfg Config) (Transport, error) {
	var conn net.PacketConn
	if cfg.Listen {
		c, err := net.ListenPacket("udp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("transport: udp listen %s: %w", cfg.Addr, err)
		}
		conn = c
	} else {
		// Dial rather than ListenPacket so Send can use the connected
		// socket's Write instead of tracking a destination address.
		c, err := net.Dial("udp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("transport: udp dial %s: %w", cfg.Addr, err)
		}
		conn = c.(*net.UDPConn)
	}
	t := &udpTransport{ctx: ctx, conn: conn}
	go t.readLoop()
	return t, nil
}

func (t *udpTransport) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		t.mu.Lock()
		cb := t.onRecv
		t.mu.Unlock()
		if cb != nil {
			t.ctx.Post(func() { cb(packet, addr) })
		}
	}
}

// Send requires a connected (dialed) socket. A listening socket has no
// implicit destination; use SendTo instead.
func (t *udpTransport) Send(packet []byte) error {
	conn, ok := t.conn.(net.Conn)
	if !ok {
		return fmt.Errorf("transport: Send requires a dialed udp socket, use SendTo")
	}
	_, err := conn.Write(packet)
	return err
}

func (t *udpTransport) SendTo(packet []byte, addr net.Addr) error {
	_, err := t.conn.WriteTo(packet, addr)
	return err
}

func (t *udpTransport) OnReceive(f func([]byte, net.Addr)) {
	t.mu.Lock()
	t.onRecv = f
	t.mu.Unlock()
}

func (t *udpTransport) OnFramingError(f func(error)) {
	t.mu.Lock()
	t.onFrameE = f
	t.mu.Unlock()
}

func (t *udpTransport) Close() error { return t.conn.Close() }
func (t *udpTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// streamTransport multiplexes over one or more accepted stream
// connections (TCP/Unix), each with its own Framer instance, feeding
// decoded frames back through ctx.
type streamTransport struct {
	ctx      *reactor.Context
	cfg      Config
	listener net.Listener
	conn     net.Conn
	onRecv   func([]byte, net.Addr)
	onFrameE func(error)
	mu       sync.Mutex

	connsMu sync.Mutex
	conns   []net.Conn
}

func openStream(ctx *reactor.Context, cfg Config) (Transport, error) {
	network := cfg.Kind.String()
	t := &streamTransport{ctx: ctx, cfg: cfg}

	if cfg.Listen {
		ln, err := net.Listen(network, cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("transport: %s listen %s: %w", network, cfg.Addr, err)
		}
		t.listener = ln
		go t.acceptLoop()
		return t, nil
	}

	conn, err := net.Dial(network, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("transport: %s dial %s: %w", network, cfg.Addr, err)
	}
	t.conn = conn
	t.trackConn(conn)
	go t.readLoop(conn)
	return t, nil
}

func (t *streamTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.trackConn(conn)
		go t.readLoop(conn)
	}
}

func (t *streamTransport) trackConn(c net.Conn) {
	t.connsMu.Lock()
	t.conns = append(t.conns, c)
	t.connsMu.Unlock()
}

func (t *streamTransport) untrackConn(c net.Conn) {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	for i, other := range t.conns {
		if other == c {
			t.conns = append(t.conns[:i], t.conns[i+1:]...)
			return
		}
	}
}

func (t *streamTransport) readLoop(conn net.Conn) {
	defer t.untrackConn(conn)
	framer := newFramer(t.cfg.Frame, t.cfg.MaxFrameSize)
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			if ferr != nil {
				t.mu.Lock()
				cb := t.onFrameE
				t.mu.Unlock()
				if cb != nil {
					t.ctx.Post(func() { cb(ferr) })
				} else {
					cclog.Warnf("transport: framing error on %s: %v", conn.RemoteAddr(), ferr)
				}
			}
			for _, frame := range frames {
				packet := frame
				remote := conn.RemoteAddr()
				t.mu.Lock()
				cb := t.onRecv
				t.mu.Unlock()
				if cb != nil {
					t.ctx.Post(func() { cb(packet, remote) })
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *streamTransport) Send(packet []byte) error {
	framer := newFramer(t.cfg.Frame, t.cfg.MaxFrameSize)
	framed := framer.Encode(packet)

	t.connsMu.Lock()
	conns := append([]net.Conn(nil), t.conns...)
	t.connsMu.Unlock()

	if len(conns) == 0 {
		return fmt.Errorf("transport: no active connection")
	}
	var firstErr error
	for _, c := range conns {
		if _, err := c.Write(framed); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *streamTransport) OnReceive(f func([]byte, net.Addr)) {
	t.mu.Lock()
	t.onRecv = f
	t.mu.Unlock()
}

func (t *streamTransport) OnFramingError(f func(error)) {
	t.mu.Lock()
	t.onFrameE = f
	t.mu.Unlock()
}

func (t *streamTransport) Close() error {
	t.connsMu.Lock()
	conns := append([]net.Conn(nil), t.conns...)
	t.connsMu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *streamTransport) LocalAddr() net.Addr {
	if t.listener != nil {
		return t.listener.Addr()
	}
	if t.conn != nil {
		return t.conn.LocalAddr()
	}
	return nil
}
