package oscquery

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ossia-go/ossia/internal/reactor"
	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func driveForDuration(ctx *reactor.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !ctx.PollOne() {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestMirrorFetchesServerTree(t *testing.T) {
	addr := freeAddr(t)

	serverCtx := reactor.New()
	defer serverCtx.Stop()
	serverDevice := tree.NewDevice("server")
	layer := serverDevice.CreateChild("layer")
	p := layer.CreateParameter(0)
	p.PushValue(value.NewFloat(3))

	host := NewHost(serverCtx, serverDevice, addr)
	go host.ListenAndServe()
	defer host.Close()

	// Give the HTTP listener a moment to bind.
	waitForServer(t, addr)

	clientCtx := reactor.New()
	defer clientCtx.Stop()
	clientDevice := tree.NewDevice("client")
	mirror := NewMirror(clientCtx, clientDevice, "ws://"+addr)
	mirror.Connect()
	defer mirror.Stop()

	driveForDuration(clientCtx, 500*time.Millisecond)

	n := tree.FindNode(clientDevice.Root(), "/layer")
	if n == nil {
		t.Fatal("expected mirror to have fetched /layer")
	}
	if n.Parameter() == nil {
		t.Fatal("expected /layer to carry a mirrored parameter")
	}
	f, ok := n.Parameter().Value().AsFloat()
	if !ok || f != 3 {
		t.Fatalf("got %v, want 3", n.Parameter().Value())
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", addr)
}

func TestHostServesSingleNodeQuery(t *testing.T) {
	addr := freeAddr(t)

	serverCtx := reactor.New()
	defer serverCtx.Stop()
	serverDevice := tree.NewDevice("server")
	layer := serverDevice.CreateChild("layer")
	layer.CreateParameter(0).PushValue(value.NewFloat(5))

	host := NewHost(serverCtx, serverDevice, addr)
	go host.ListenAndServe()
	defer host.Close()
	waitForServer(t, addr)

	resp, err := http.Get("http://" + addr + "/layer")
	if err != nil {
		t.Fatalf("GET /layer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var doc NodeDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.FullPath != "/layer" {
		t.Fatalf("got FullPath %q", doc.FullPath)
	}

	resp404, err := http.Get("http://" + addr + "/does-not-exist")
	if err != nil {
		t.Fatalf("GET /does-not-exist: %v", err)
	}
	defer resp404.Body.Close()
	if resp404.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", resp404.StatusCode)
	}
}

// TestMirrorAddNodeTwiceGetsSuffixedSibling calls
// request_add_node(root, "layer") twice: the server creates "layer"
// then "layer.1", and the mirror receives two distinct PATH_ADDED
// events reflecting both in its tree.
func TestMirrorAddNodeTwiceGetsSuffixedSibling(t *testing.T) {
	addr := freeAddr(t)

	serverCtx := reactor.New()
	defer serverCtx.Stop()
	serverDevice := tree.NewDevice("server")

	host := NewHost(serverCtx, serverDevice, addr)
	go host.ListenAndServe()
	defer host.Close()
	waitForServer(t, addr)

	clientCtx := reactor.New()
	defer clientCtx.Stop()
	clientDevice := tree.NewDevice("client")
	mirror := NewMirror(clientCtx, clientDevice, "ws://"+addr)
	mirror.Connect()
	defer mirror.Stop()

	driveForDuration(clientCtx, 300*time.Millisecond)

	first := mirror.RequestAddNode(clientDevice.Root(), "layer")
	driveForDuration(clientCtx, 300*time.Millisecond)
	second := mirror.RequestAddNode(clientDevice.Root(), "layer")
	driveForDuration(clientCtx, 300*time.Millisecond)

	var firstDoc, secondDoc *NodeDoc
	select {
	case firstDoc = <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first PATH_ADDED")
	}
	select {
	case secondDoc = <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second PATH_ADDED")
	}

	if firstDoc.FullPath != "/layer" {
		t.Fatalf("got first FullPath %q, want /layer", firstDoc.FullPath)
	}
	if secondDoc.FullPath != "/layer.1" {
		t.Fatalf("got second FullPath %q, want /layer.1", secondDoc.FullPath)
	}
	if tree.FindNode(clientDevice.Root(), "/layer") == nil {
		t.Fatal("expected mirror tree to contain /layer")
	}
	if tree.FindNode(clientDevice.Root(), "/layer.1") == nil {
		t.Fatal("expected mirror tree to contain /layer.1")
	}
}

func TestMirrorStateStringer(t *testing.T) {
	if Running.String() != "RUNNING" {
		t.Fatalf("got %q", Running.String())
	}
	if !strings.Contains(Disconnected.String(), "DISCONNECTED") {
		t.Fatalf("got %q", Disconnected.String())
	}
}
