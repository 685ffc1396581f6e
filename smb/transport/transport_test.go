package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"golang.org/x/net/nettest"
)

func TestTCPTransportRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewTCP(a)
	server := NewTCP(b)

	msg := []byte("negotiate request body")
	done := make(chan error, 1)
	go func() { done <- client.WriteMessage(msg) }()

	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}

func TestNetBIOSTransportRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewNetBIOS(a)
	server := NewNetBIOS(b)

	msg := bytes.Repeat([]byte{0xab}, 1024)
	done := make(chan error, 1)
	go func() { done <- client.WriteMessage(msg) }()

	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("round trip mismatch, got %d bytes want %d", len(got), len(msg))
	}
}

func TestNetBIOSTransportRejectsNonSessionMessage(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := NewNetBIOS(b)
	go func() {
		a.Write([]byte{0x85, 0x00, 0x00, 0x00}) // NEGATIVE SESSION RESPONSE
	}()

	if _, err := server.ReadMessage(); err == nil {
		t.Fatal("expected an error for a non-session-message packet type")
	}
}

// TestTCPTransportUsesRealNetConn exercises the framing over an actual
// TCP socket pair (via nettest's loopback listener) rather than an
// in-memory pipe, matching the teacher's test tooling choice of
// golang.org/x/net/nettest for transport-level tests.
func TestTCPTransportUsesRealNetConn(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Skipf("no local TCP listener available: %v", err)
	}
	defer ln.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			serverConnCh <- conn
		}
	}()

	clientConn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	serverConn := <-serverConnCh
	defer serverConn.Close()

	client := NewTCP(clientConn)
	server := NewTCP(serverConn)

	msg := []byte("hello over a real socket")
	go client.WriteMessage(msg)

	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}
