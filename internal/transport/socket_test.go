package transport

import (
	"net"
	"testing"
	"time"

	"github.com/ossia-go/ossia/internal/reactor"
)

func TestUDPLoopback(t *testing.T) {
	ctx := reactor.New()
	defer ctx.Stop()

	server, err := Open(ctx, Config{Kind: KindUDP, Addr: "127.0.0.1:0", Listen: true})
	if err != nil {
		t.Fatalf("open server: %v", err)
	}
	defer server.Close()

	received := make(chan []byte, 1)
	server.OnReceive(func(p []byte, from net.Addr) { received <- p })

	client, err := Open(ctx, Config{Kind: KindUDP, Addr: server.LocalAddr().String()})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	defer client.Close()

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case <-deadline:
				return
			default:
				if ctx.PollOne() {
					continue
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	select {
	case p := <-received:
		if string(p) != "hello" {
			t.Fatalf("got %q, want %q", p, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for udp packet")
	}
}

func TestTCPLoopbackWithSLIPFraming(t *testing.T) {
	ctx := reactor.New()
	defer ctx.Stop()

	server, err := Open(ctx, Config{Kind: KindTCP, Addr: "127.0.0.1:0", Listen: true, Frame: FrameSLIP})
	if err != nil {
		t.Fatalf("open server: %v", err)
	}
	defer server.Close()

	received := make(chan []byte, 1)
	server.OnReceive(func(p []byte, from net.Addr) { received <- p })

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case <-deadline:
				return
			default:
				if ctx.PollOne() {
					continue
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	client, err := Open(ctx, Config{Kind: KindTCP, Addr: server.LocalAddr().String(), Frame: FrameSLIP})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	defer client.Close()

	// Give the server's accept goroutine a moment to register the conn.
	time.Sleep(50 * time.Millisecond)

	if err := client.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case p := <-received:
		if len(p) != 3 || p[0] != 1 || p[1] != 2 || p[2] != 3 {
			t.Fatalf("got %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tcp frame")
	}
}
