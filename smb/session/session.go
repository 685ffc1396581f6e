// Package session drives SMB2 SESSION_SETUP (C7): the authentication
// state machine between a negotiated connection and an established,
// signed (and optionally encrypted) session. It is grounded on
// ericblavier-go-smb/main.go's session usage
// (session.IsAuthenticated(), session.GetAuthUsername(),
// session.TreeConnect/TreeDisconnect) and lorenz-go-smb2's conn.go for
// the preauth-hash-folding and session-key-derivation sequencing
// around SESSION_SETUP (see DESIGN.md).
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/mux"
	"github.com/ericblavier/go-smb3/smb/negotiate"
	"github.com/ericblavier/go-smb3/spnego"
)

// State is the SESSION_SETUP state machine's position, per SPEC_FULL.md.
type State int

const (
	StateIdle State = iota
	StateSettingUp
	StateValid
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingUp:
		return "setting-up"
	case StateValid:
		return "valid"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrAlreadyValid     = errors.New("session: already established")
)

// Session is one SMB2 session over one negotiated connection.
type Session struct {
	mu sync.Mutex

	engine     mux.Engine
	negotiated *negotiate.Result
	auth       spnego.AuthProvider

	state     State
	sessionID uint64
	keys      crypto.SessionKeys
	signer    crypto.Signer

	username string
	domain   string

	// preauth is a snapshot of the connection's running preauth hash,
	// folded with every SESSION_SETUP request/response pair up through
	// the one that completes authentication (MS-SMB2 3.2.5.3).
	preauth crypto.PreauthHash
}

// New builds a Session bound to engine, a completed negotiate.Result,
// and an auth provider. The session's preauth hash is seeded from
// negotiated.PreauthHash, which negotiate.Client.ParseResponse already
// folded the NEGOTIATE request/response into — SetUp then continues
// folding forward from that snapshot rather than restarting at zero.
func New(engine mux.Engine, negotiated *negotiate.Result, auth spnego.AuthProvider) *Session {
	return &Session{
		engine:     engine,
		negotiated: negotiated,
		auth:       auth,
		state:      StateIdle,
		preauth:    crypto.PreauthHashFrom(negotiated.PreauthHash),
	}
}

// SetUp drives the SESSION_SETUP loop to completion: one request per
// round trip, feeding each response's security buffer back into auth,
// until the server returns STATUS_SUCCESS (or a terminal error).
func (s *Session) SetUp(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateValid {
		s.mu.Unlock()
		return ErrAlreadyValid
	}
	s.state = StateSettingUp
	s.mu.Unlock()

	token, err := s.auth.Negotiate()
	if err != nil {
		s.fail()
		return err
	}

	for {
		reqBody := &encoder.SessionSetupRequest{
			SecurityMode:   1, // SMB2_NEGOTIATE_SIGNING_ENABLED
			SecurityBuffer: token,
		}
		body, err := reqBody.MarshalBinary(nil)
		if err != nil {
			s.fail()
			return err
		}
		msg := &encoder.Message{
			Header: encoder.Header{Command: encoder.CmdSessionSetup, SessionID: s.sessionID},
			Body:   body,
		}
		reqWire := msg.Encode()

		respWire, err := s.engine.Send(ctx, reqWire, 1)
		if err != nil {
			s.fail()
			return err
		}

		respMsg, err := encoder.DecodeMessage(respWire)
		if err != nil {
			s.fail()
			return err
		}
		var resp encoder.SessionSetupResponse
		if uerr := resp.UnmarshalBinary(respMsg.Body, nil); uerr != nil {
			s.fail()
			return uerr
		}

		if s.negotiated.Dialect == encoder.Dialect311 {
			s.preauth.Update(reqWire)
			s.preauth.Update(respWire)
		}
		s.sessionID = respMsg.Header.SessionID

		switch encoder.NtStatus(respMsg.Header.Status) {
		case encoder.StatusMoreProcessingRequired:
			// done only means the client side has nothing left to send;
			// the server still gets the final say via its next status,
			// so the loop always sends nextToken and waits again.
			nextToken, _, aerr := s.auth.Authenticate(resp.SecurityBuffer)
			if aerr != nil {
				s.fail()
				return aerr
			}
			token = nextToken
			continue
		case encoder.StatusSuccess:
			return s.complete(resp)
		default:
			s.fail()
			return &StatusError{Status: encoder.NtStatus(respMsg.Header.Status)}
		}
	}
}

// StatusError wraps a non-success SESSION_SETUP response status.
type StatusError struct {
	Status encoder.NtStatus
}

func (e *StatusError) Error() string { return "session: SESSION_SETUP failed: " + e.Status.String() }

func (s *Session) complete(resp encoder.SessionSetupResponse) error {
	sessionKey := s.auth.SessionKey()
	keyBits := uint32(128)
	if s.negotiated.CipherID != 0 {
		keyBits = crypto.KeyBitsForCipher(s.negotiated.CipherID)
	}
	dialect := crypto.Dialect(s.negotiated.Dialect)

	s.mu.Lock()
	defer s.mu.Unlock()

	if dialect >= crypto.Dialect300 {
		s.keys = crypto.DeriveSessionKeys(sessionKey, dialect, keyBits, s.preauth.Value())
		s.signer = crypto.NewSigner(dialect, s.negotiated.SigningAlgID, s.keys.Signing)
	} else {
		s.signer = crypto.NewHMACSigner(sessionKey)
	}
	s.engine.SetSigner(s.signer)

	if id, ok := s.auth.(spnego.Identifier); ok {
		s.username = id.AuthUsername()
		s.domain = id.AuthDomain()
	}

	s.state = StateValid
	return nil
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// IsAuthenticated reports whether SESSION_SETUP has completed
// successfully, matching ericblavier-go-smb's session.IsAuthenticated().
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateValid
}

// GetAuthUsername returns the username the session authenticated as,
// matching ericblavier-go-smb's session.GetAuthUsername().
func (s *Session) GetAuthUsername() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// GetAuthDomain returns the domain/realm the session authenticated in.
func (s *Session) GetAuthDomain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain
}

// ID returns the wire SessionId assigned by the server.
func (s *Session) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ApplicationKey returns the key derived for higher-layer protocols
// (e.g. RPC-over-SMB sealing) bound to this session, or nil for
// dialects below 3.0.
func (s *Session) ApplicationKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.Application
}

// EncryptionKeys returns the per-direction transform keys for this
// session and the negotiated cipher. The keys are nil below dialect 3.0;
// cipherID is 0 when NEGOTIATE selected no cipher, while on 3.x the keys
// are derived all the same.
func (s *Session) EncryptionKeys() (encryptKey, decryptKey []byte, cipherID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.Encryption, s.keys.Decryption, s.negotiated.CipherID
}

// Logoff sends SMB2 LOGOFF and marks the session invalid regardless of
// the outcome, since a session that might already be torn down
// server-side must never be reused.
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateValid {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	sessionID := s.sessionID
	s.mu.Unlock()
	defer s.fail()

	var req encoder.LogoffRequest
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	msg := &encoder.Message{
		Header: encoder.Header{Command: encoder.CmdLogoff, SessionID: sessionID},
		Body:   body,
	}
	_, err = s.engine.Send(ctx, msg.Encode(), 1)
	return err
}

// Reconnect rebinds this session onto a new, already-negotiated
// engine — the durable-handle recovery path SPEC_FULL.md adds:
// a dropped TCP connection doesn't invalidate open handles as long as
// the session (and its signing/encryption keys) can be reestablished
// against a fresh connection bearing the same SessionId. It replays
// SESSION_SETUP against the new engine using PreviousSessionID, then
// re-derives keys exactly as SetUp does.
func (s *Session) Reconnect(ctx context.Context, engine mux.Engine, negotiated *negotiate.Result) error {
	s.mu.Lock()
	previousID := s.sessionID
	s.mu.Unlock()

	token, err := s.auth.Negotiate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engine = engine
	s.negotiated = negotiated
	s.state = StateSettingUp
	s.preauth = crypto.PreauthHashFrom(negotiated.PreauthHash)
	s.sessionID = 0
	s.mu.Unlock()

	for {
		reqBody := &encoder.SessionSetupRequest{
			SecurityMode:      1,
			SecurityBuffer:    token,
			PreviousSessionID: previousID,
		}
		body, err := reqBody.MarshalBinary(nil)
		if err != nil {
			s.fail()
			return err
		}
		msg := &encoder.Message{
			Header: encoder.Header{Command: encoder.CmdSessionSetup},
			Body:   body,
		}
		reqWire := msg.Encode()

		respWire, err := engine.Send(ctx, reqWire, 1)
		if err != nil {
			s.fail()
			return err
		}
		respMsg, err := encoder.DecodeMessage(respWire)
		if err != nil {
			s.fail()
			return err
		}
		var resp encoder.SessionSetupResponse
		if uerr := resp.UnmarshalBinary(respMsg.Body, nil); uerr != nil {
			s.fail()
			return uerr
		}
		if negotiated.Dialect == encoder.Dialect311 {
			s.preauth.Update(reqWire)
			s.preauth.Update(respWire)
		}
		s.mu.Lock()
		s.sessionID = respMsg.Header.SessionID
		s.mu.Unlock()

		switch encoder.NtStatus(respMsg.Header.Status) {
		case encoder.StatusMoreProcessingRequired:
			nextToken, _, aerr := s.auth.Authenticate(resp.SecurityBuffer)
			if aerr != nil {
				s.fail()
				return aerr
			}
			token = nextToken
			continue
		case encoder.StatusSuccess:
			return s.complete(resp)
		default:
			s.fail()
			return &StatusError{Status: encoder.NtStatus(respMsg.Header.Status)}
		}
	}
}
