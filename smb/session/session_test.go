package session

import (
	"context"
	"testing"

	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/mux"
	"github.com/ericblavier/go-smb3/smb/negotiate"
)

// fakeEngine is a mux.Engine test double that drives a scripted
// sequence of SESSION_SETUP responses without any real transport,
// letting the state machine be tested in isolation.
type fakeEngine struct {
	responses []func(reqBody []byte) encoder.Message
	call      int
	signer    mux.Signer
}

func (e *fakeEngine) Send(ctx context.Context, msg []byte, credits uint16) ([]byte, error) {
	req, err := encoder.DecodeMessage(msg)
	if err != nil {
		return nil, err
	}
	resp := e.responses[e.call](req.Body)
	e.call++
	resp.Header.SessionID = req.Header.SessionID
	if resp.Header.SessionID == 0 {
		resp.Header.SessionID = 7
	}
	return resp.Encode(), nil
}
func (e *fakeEngine) Cancel(ctx context.Context, id uint64) error { return nil }
func (e *fakeEngine) Close() error                                { return nil }
func (e *fakeEngine) SetSigner(s mux.Signer)                      { e.signer = s }
func (e *fakeEngine) SetSealer(s mux.Sealer)                      {}
func (e *fakeEngine) SetCompressor(c mux.Compressor)              {}

type stubAuth struct {
	negotiateToken []byte
	authToken      []byte
	session        []byte
	calls          int
}

func (a *stubAuth) Negotiate() ([]byte, error) { return a.negotiateToken, nil }
func (a *stubAuth) Authenticate(server []byte) ([]byte, bool, error) {
	a.calls++
	return a.authToken, true, nil
}
func (a *stubAuth) SessionKey() []byte { return a.session }
func (a *stubAuth) AuthUsername() string { return "alice" }
func (a *stubAuth) AuthDomain() string   { return "EXAMPLE" }

func sessionSetupResponse(status encoder.NtStatus, sessionFlags uint16) encoder.Message {
	resp := &encoder.SessionSetupResponse{SessionFlags: sessionFlags}
	body, _ := resp.MarshalBinary(nil)
	return encoder.Message{
		Header: encoder.Header{Command: encoder.CmdSessionSetup, Status: uint32(status)},
		Body:   body,
	}
}

func TestSessionSetUpSingleRoundTrip(t *testing.T) {
	engine := &fakeEngine{
		responses: []func([]byte) encoder.Message{
			func([]byte) encoder.Message { return sessionSetupResponse(encoder.StatusSuccess, 0) },
		},
	}
	auth := &stubAuth{negotiateToken: []byte("nego"), session: make([]byte, 16)}
	neg := &negotiate.Result{Dialect: encoder.Dialect300}
	s := New(engine, neg, auth)

	if err := s.SetUp(context.Background()); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("session not authenticated after SUCCESS")
	}
	if s.GetAuthUsername() != "alice" {
		t.Fatalf("username = %q, want alice", s.GetAuthUsername())
	}
	if engine.signer == nil {
		t.Fatal("engine never received a signer")
	}
}

func TestSessionSetUpMultiRoundTrip(t *testing.T) {
	engine := &fakeEngine{
		responses: []func([]byte) encoder.Message{
			func([]byte) encoder.Message {
				return sessionSetupResponse(encoder.StatusMoreProcessingRequired, 0)
			},
			func([]byte) encoder.Message { return sessionSetupResponse(encoder.StatusSuccess, 0) },
		},
	}
	auth := &stubAuth{negotiateToken: []byte("nego"), authToken: []byte("auth"), session: make([]byte, 16)}
	neg := &negotiate.Result{Dialect: encoder.Dialect311}
	s := New(engine, neg, auth)

	if err := s.SetUp(context.Background()); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	if auth.calls != 1 {
		t.Fatalf("Authenticate called %d times, want 1", auth.calls)
	}
	if !s.IsAuthenticated() {
		t.Fatal("session not authenticated")
	}
	var zero [64]byte
	if s.preauth.Value() == zero {
		t.Fatal("preauth hash never updated across the SESSION_SETUP round trips")
	}
}

func TestSessionSetUpFailureStatus(t *testing.T) {
	engine := &fakeEngine{
		responses: []func([]byte) encoder.Message{
			func([]byte) encoder.Message {
				return sessionSetupResponse(encoder.StatusLogonFailure, 0)
			},
		},
	}
	auth := &stubAuth{negotiateToken: []byte("nego")}
	neg := &negotiate.Result{Dialect: encoder.Dialect300}
	s := New(engine, neg, auth)

	err := s.SetUp(context.Background())
	if err == nil {
		t.Fatal("expected an error for STATUS_LOGON_FAILURE")
	}
	if s.IsAuthenticated() {
		t.Fatal("session should not be authenticated after a failure status")
	}
}

func TestSessionLogoffRequiresAuthentication(t *testing.T) {
	s := New(&fakeEngine{}, &negotiate.Result{}, &stubAuth{})
	if err := s.Logoff(context.Background()); err != ErrNotAuthenticated {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestSessionHMACSignerUsedBelowDialect300(t *testing.T) {
	engine := &fakeEngine{
		responses: []func([]byte) encoder.Message{
			func([]byte) encoder.Message { return sessionSetupResponse(encoder.StatusSuccess, 0) },
		},
	}
	auth := &stubAuth{negotiateToken: []byte("nego"), session: make([]byte, 16)}
	neg := &negotiate.Result{Dialect: encoder.Dialect202}
	s := New(engine, neg, auth)
	if err := s.SetUp(context.Background()); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	if _, ok := engine.signer.(*crypto.HMACSigner); !ok {
		t.Fatalf("signer = %T, want *crypto.HMACSigner for dialect 2.0.2", engine.signer)
	}
}
