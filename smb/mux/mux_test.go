package mux

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/transport"
)

func TestCreditPoolReserveAndGrant(t *testing.T) {
	p := NewCreditPool(2)
	if err := p.Reserve(context.Background(), 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Reserve(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatal("Reserve returned before credits were granted")
	case <-time.After(20 * time.Millisecond):
	}

	p.Grant(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reserve after grant: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reserve did not unblock after Grant")
	}
}

func TestCreditPoolReserveRespectsContext(t *testing.T) {
	p := NewCreditPool(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Reserve(ctx, 1); err == nil {
		t.Fatal("expected Reserve to time out")
	}
}

func TestCreditCharge(t *testing.T) {
	cases := []struct {
		in, out int
		want    uint16
	}{
		{0, 0, 1},
		{1, 0, 1},
		{65536, 0, 1},
		{65537, 0, 2},
		{0, 131072, 2},
	}
	for _, c := range cases {
		got := CreditCharge(c.in, c.out)
		if got != c.want {
			t.Errorf("CreditCharge(%d,%d) = %d, want %d", c.in, c.out, got, c.want)
		}
	}
}

// fakeServer reads one message off conn, and replies with a minimal SMB2
// header carrying the same MessageId and a credit grant, used to drive the
// engine's Send/dispatch path without a real SMB server.
func fakeServer(t *testing.T, conn net.Conn, creditsGranted uint16) {
	t.Helper()
	srv := transport.NewTCP(conn)
	for {
		req, err := srv.ReadMessage()
		if err != nil {
			return
		}
		view, ok := encoder.ViewHeader(req)
		if !ok {
			return
		}
		resp := make([]byte, encoder.SMB2HeaderLen)
		h := encoder.Header{Command: view.Command, MessageID: view.MessageID, CreditsReqResp: creditsGranted}
		h.Encode(resp)
		if err := srv.WriteMessage(resp); err != nil {
			return
		}
	}
}

func TestEngineSendReceivesMatchingResponse(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go fakeServer(t, serverConn, 16)

	eng := NewEngine(transport.NewTCP(clientConn), 4)
	defer eng.Close()

	msg := make([]byte, encoder.SMB2HeaderLen)
	h := encoder.Header{Command: encoder.CmdEcho}
	h.Encode(msg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := eng.Send(ctx, msg, 1)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	view, ok := encoder.ViewHeader(resp)
	if !ok {
		t.Fatal("response missing a valid header")
	}
	if view.Command != encoder.CmdEcho {
		t.Fatalf("command = %#x, want %#x", view.Command, encoder.CmdEcho)
	}
}

// rejectingSigner is a Signer stub whose Verify always reports a
// mismatch, used to exercise the engine's fatal-teardown-on-bad-signature
// path without needing a real key mismatch.
type rejectingSigner struct{}

func (rejectingSigner) Sign(message []byte) [16]byte { return [16]byte{} }
func (rejectingSigner) Verify(message []byte) bool   { return false }

func TestEngineTearsDownOnSignatureMismatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func(conn net.Conn) {
		t.Helper()
		srv := transport.NewTCP(conn)
		req, err := srv.ReadMessage()
		if err != nil {
			return
		}
		view, ok := encoder.ViewHeader(req)
		if !ok {
			return
		}
		resp := make([]byte, encoder.SMB2HeaderLen)
		h := encoder.Header{Command: view.Command, MessageID: view.MessageID, CreditsReqResp: 16, Flags: encoder.FlagSigned}
		h.Encode(resp)
		srv.WriteMessage(resp)
	}(serverConn)

	eng := NewEngine(transport.NewTCP(clientConn), 4)
	defer eng.Close()
	eng.SetSigner(rejectingSigner{})

	msg := make([]byte, encoder.SMB2HeaderLen)
	h := encoder.Header{Command: encoder.CmdEcho}
	h.Encode(msg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := eng.Send(ctx, msg, 1); err == nil {
		t.Fatal("expected Send to fail once the response's signature fails verification")
	}

	// The engine must be torn down entirely, not just have dropped that
	// one response: a second Send must also fail.
	msg2 := make([]byte, encoder.SMB2HeaderLen)
	h.Encode(msg2)
	if _, err := eng.Send(ctx, msg2, 1); err == nil {
		t.Fatal("expected the engine to stay torn down after a signature mismatch")
	}
}

func TestEngineConcurrentSendsGetDistinctMessageIDs(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go fakeServer(t, serverConn, 16)

	eng := NewEngine(transport.NewTCP(clientConn), 8)
	defer eng.Close()

	const n = 5
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			msg := make([]byte, encoder.SMB2HeaderLen)
			h := encoder.Header{Command: encoder.CmdEcho}
			h.Encode(msg)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := eng.Send(ctx, msg, 1)
			results <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
}
