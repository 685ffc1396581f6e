// Package smb is the client-facing facade (C9 Connection, C8 Tree and
// Handle manager): dial, NEGOTIATE, SESSION_SETUP, and the
// TreeConnect/Create/Read/Write/Close surface built on top of
// smb/{transport,mux,negotiate,session,encoder,crypto,compress} and the
// spnego auth providers. Grounded on ericblavier-go-smb/main.go's
// smb.Options{Host, Port, Initiator} / smb.NewConnection(options) shape.
package smb

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/ericblavier/go-smb3/smb/compress"
	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/mux"
	"github.com/ericblavier/go-smb3/smb/negotiate"
	"github.com/ericblavier/go-smb3/smb/session"
	"github.com/ericblavier/go-smb3/smb/transport"
)

// Connection is one negotiated, authenticated SMB2 connection: a
// transport, a multiplexing engine, and the session established over
// it, plus whatever trees the caller has connected.
type Connection struct {
	opts Options

	mu        sync.Mutex
	conn      net.Conn
	transport transport.Transport
	engine    mux.Engine

	negotiated *negotiate.Result
	preauth    crypto.PreauthHash
	session    *session.Session

	trees map[uint32]*Tree
}

// NewConnection dials opts.Host:opts.Port, runs NEGOTIATE (optionally
// preceded by the legacy SMB1 probe when opts.ProbeSMB1 is set), and
// drives SESSION_SETUP to completion through opts.Initiator. A nil
// Initiator still completes NEGOTIATE but skips SESSION_SETUP, so the
// resulting Connection reports IsAuthenticated() false. Any other
// Initiator, including an NTLMInitiator with every field empty, runs
// SESSION_SETUP, and a failure there makes NewConnection return an error.
func NewConnection(opts Options) (*Connection, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	raw, err := net.DialTimeout("tcp", addr, opts.RequestTimeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Connection{
		opts:      opts,
		conn:      raw,
		transport: transport.NewTCP(raw),
		trees:     make(map[uint32]*Tree),
	}

	if opts.ProbeSMB1 {
		if err := c.probeSMB1(); err != nil {
			log.Debugln("smb1 probe failed, falling back to direct SMB2 negotiate:", err)
		}
	}

	c.engine = mux.NewEngine(c.transport, opts.CreditWindowTarget)

	negClient := &negotiate.Client{
		Dialects:          opts.dialects(),
		Ciphers:           opts.Ciphers,
		CompressionAlgos:  []uint16{encoder.CompressLZ77, encoder.CompressLZNT1, encoder.CompressPatternV1},
		SigningAlgorithms: opts.SigningAlgorithms,
	}
	io.ReadFull(rand.Reader, negClient.ClientGUID[:])
	_, reqWire, err := negClient.BuildRequest()
	if err != nil {
		c.engine.Close()
		return nil, &ProtocolViolationError{Detail: "building NEGOTIATE request", Err: err}
	}
	respWire, err := c.engine.Send(context.Background(), reqWire, 1)
	if err != nil {
		c.engine.Close()
		return nil, &TransportError{Op: "NEGOTIATE", Err: err}
	}
	result, err := negClient.ParseResponse(reqWire, respWire, &c.preauth)
	if err != nil {
		c.engine.Close()
		return nil, &ProtocolViolationError{Detail: "NEGOTIATE response", Err: err}
	}
	c.negotiated = result
	log.Debugln(fmt.Sprintf("negotiated dialect 0x%04x, cipher 0x%04x", result.Dialect, result.CipherID))

	auth := opts.Initiator
	if auth == nil {
		return c, nil
	}
	c.session = session.New(c.engine, c.negotiated, auth)
	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
	defer cancel()
	if err := c.session.SetUp(ctx); err != nil {
		c.engine.Close()
		return nil, &AuthFailureError{Err: err}
	}

	if result.CipherID != 0 {
		encKey, decKey, cipherID := c.session.EncryptionKeys()
		c.engine.SetSealer(&messageSealer{cipherID: cipherID, sessionID: c.session.ID(), encryptKey: encKey, decryptKey: decKey})
	}
	if len(result.CompressionIDs) > 0 {
		c.engine.SetCompressor(&messageCompressor{compress.Compressor{Algorithm: result.CompressionIDs[0]}})
	}
	return c, nil
}

// Close logs off the session (if any), closes the engine, and closes the
// underlying connection, in that order, tolerating failures at any step
// since the goal is releasing resources, not a clean protocol teardown.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.IsAuthenticated() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		if err := c.session.Logoff(ctx); err != nil {
			log.Debugln("logoff failed during close:", err)
		}
		cancel()
	}
	var err error
	if c.engine != nil {
		err = c.engine.Close()
	}
	return err
}

// IsAuthenticated reports whether SESSION_SETUP completed.
func (c *Connection) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.IsAuthenticated()
}

// GetAuthUsername returns the username this connection authenticated as.
func (c *Connection) GetAuthUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.GetAuthUsername()
}

// GetAuthDomain returns the domain/realm this connection authenticated in.
func (c *Connection) GetAuthDomain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.GetAuthDomain()
}

// IsSigningSupported reports the SMB2_NEGOTIATE_SIGNING_ENABLED bit from
// NEGOTIATE.
func (c *Connection) IsSigningSupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated != nil && c.negotiated.SecurityMode&encoder.NegotiateSigningEnabled != 0
}

// IsSigningRequired reports the SMB2_NEGOTIATE_SIGNING_REQUIRED bit from
// NEGOTIATE.
func (c *Connection) IsSigningRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated != nil && c.negotiated.SecurityMode&encoder.NegotiateSigningRequired != 0
}

// Dialect returns the negotiated SMB2 dialect revision.
func (c *Connection) Dialect() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiated == nil {
		return 0
	}
	return c.negotiated.Dialect
}

// TreeConnect connects to the given share path (e.g. "\\\\server\\share"
// or "server\\share" — both forms are accepted, the backslash prefix is
// normalized) and returns a Tree for issuing CREATE/READ/WRITE/etc
// against it.
func (c *Connection) TreeConnect(ctx context.Context, path string) (*Tree, error) {
	req := &encoder.TreeConnectRequest{Path: encoder.EncodeUTF16LE(normalizeSharePath(path))}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	sessionID := uint64(0)
	if c.session != nil {
		sessionID = c.session.ID()
	}
	c.mu.Unlock()

	msg := &encoder.Message{Header: encoder.Header{Command: encoder.CmdTreeConnect, SessionID: sessionID}, Body: body}
	respWire, err := c.engine.Send(ctx, msg.Encode(), mux.CreditCharge(len(body), 64))
	if err != nil {
		return nil, &TransportError{Op: "TREE_CONNECT", Err: err}
	}
	respMsg, err := encoder.DecodeMessage(respWire)
	if err != nil {
		return nil, &FramingError{Err: err}
	}
	if status := encoder.NtStatus(respMsg.Header.Status); status != encoder.StatusSuccess {
		return nil, &ServerStatusError{Op: "TREE_CONNECT " + path, Status: status}
	}
	var resp encoder.TreeConnectResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "TREE_CONNECT response", Err: err}
	}

	encrypted := resp.ShareFlags&encoder.ShareFlagEncryptData != 0
	if c.opts.RequireEncryption && !encrypted {
		return nil, &ConfigurationError{Field: "RequireEncryption", Err: fmt.Errorf("share %s did not require encryption", path)}
	}

	t := &Tree{
		conn:       c,
		treeID:     respMsg.Header.TreeID,
		path:       path,
		sessionID:  sessionID,
		shareType:  resp.ShareType,
		shareFlags: resp.ShareFlags,
		encrypted:  encrypted,
	}
	c.mu.Lock()
	c.trees[t.treeID] = t
	c.mu.Unlock()
	return t, nil
}

func normalizeSharePath(path string) string {
	for len(path) > 0 && path[0] == '\\' {
		path = path[1:]
	}
	return `\\` + path
}

// Echo sends SMB2 ECHO, a connection-level keep-alive/liveness check
// that carries no session or tree context.
func (c *Connection) Echo(ctx context.Context) error {
	var req encoder.EchoRequest
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	msg := &encoder.Message{Header: encoder.Header{Command: encoder.CmdEcho}, Body: body}
	respWire, err := c.engine.Send(ctx, msg.Encode(), 1)
	if err != nil {
		return &TransportError{Op: "ECHO", Err: err}
	}
	respMsg, err := encoder.DecodeMessage(respWire)
	if err != nil {
		return &FramingError{Err: err}
	}
	if status := encoder.NtStatus(respMsg.Header.Status); status != encoder.StatusSuccess {
		return &ServerStatusError{Op: "ECHO", Status: status}
	}
	return nil
}

// probeSMB1 sends the legacy SMB1 multi-protocol NEGOTIATE and returns
// nil only if the server answered with the SMB2 wildcard dialect,
// confirming it's safe to proceed with a native SMB2 NEGOTIATE over the
// same connection (MS-SMB2 3.2.4.2.2.1).
func (c *Connection) probeSMB1() error {
	req, err := newSMB1NegotiateReq()
	if err != nil {
		return err
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	if err := c.transport.WriteMessage(body); err != nil {
		return &TransportError{Op: "SMB1 negotiate", Err: err}
	}
	respWire, err := c.transport.ReadMessage()
	if err != nil {
		return &TransportError{Op: "SMB1 negotiate response", Err: err}
	}
	var resp SMB1NegotiateRes
	if err := resp.UnmarshalBinary(respWire, nil); err != nil {
		return err
	}
	if resp.DialectIndex != smb2WildcardDialectIndex {
		return fmt.Errorf("smb: server did not select the SMB2 wildcard dialect")
	}
	return nil
}

// Reconnect re-dials the server and rebinds this Connection's session
// onto the new transport/engine, the durable-handle recovery path
// SPEC_FULL.md adds. smb/session.Session.Reconnect takes the new engine
// and negotiate.Result directly rather than a *Connection (see
// DESIGN.md: smb/session can't import this package without an import
// cycle, since this package already imports smb/session).
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	opts := c.opts
	c.mu.Unlock()
	if sess == nil {
		return ErrNotAuthenticated
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	raw, err := net.DialTimeout("tcp", addr, opts.RequestTimeout)
	if err != nil {
		return &TransportError{Op: "reconnect dial", Err: err}
	}
	newTransport := transport.NewTCP(raw)
	newEngine := mux.NewEngine(newTransport, opts.CreditWindowTarget)

	negClient := &negotiate.Client{
		Dialects:          opts.dialects(),
		Ciphers:           opts.Ciphers,
		CompressionAlgos:  []uint16{encoder.CompressLZ77, encoder.CompressLZNT1, encoder.CompressPatternV1},
		SigningAlgorithms: opts.SigningAlgorithms,
	}
	io.ReadFull(rand.Reader, negClient.ClientGUID[:])
	_, reqWire, err := negClient.BuildRequest()
	if err != nil {
		newEngine.Close()
		return err
	}
	respWire, err := newEngine.Send(ctx, reqWire, 1)
	if err != nil {
		newEngine.Close()
		return &TransportError{Op: "reconnect NEGOTIATE", Err: err}
	}
	var preauth crypto.PreauthHash
	result, err := negClient.ParseResponse(reqWire, respWire, &preauth)
	if err != nil {
		newEngine.Close()
		return &ProtocolViolationError{Detail: "reconnect NEGOTIATE response", Err: err}
	}

	if err := sess.Reconnect(ctx, newEngine, result); err != nil {
		newEngine.Close()
		return &AuthFailureError{Err: err}
	}

	c.mu.Lock()
	c.conn.Close()
	c.conn = raw
	c.transport = newTransport
	c.engine = newEngine
	c.negotiated = result
	c.preauth = preauth
	c.mu.Unlock()
	if result.CipherID != 0 {
		encKey, decKey, cipherID := sess.EncryptionKeys()
		newEngine.SetSealer(&messageSealer{cipherID: cipherID, sessionID: sess.ID(), encryptKey: encKey, decryptKey: decKey})
	}
	if len(result.CompressionIDs) > 0 {
		newEngine.SetCompressor(&messageCompressor{compress.Compressor{Algorithm: result.CompressionIDs[0]}})
	}
	return nil
}

// ErrNotAuthenticated is returned by operations that require a completed
// SESSION_SETUP on a Connection that never authenticated.
var ErrNotAuthenticated = &AuthFailureError{Err: fmt.Errorf("connection has no established session")}

// messageSealer adapts smb/crypto's EncryptMessage/DecryptMessage to
// mux.Sealer. encryptKey encrypts outgoing (client-to-server) traffic;
// decryptKey is used for incoming (server-to-client) traffic — MS-SMB2
// derives these as two distinct directional keys (3.1.4.2).
type messageSealer struct {
	cipherID   uint16
	sessionID  uint64
	encryptKey []byte
	decryptKey []byte
}

func (s *messageSealer) Seal(message []byte) ([]byte, error) {
	return crypto.EncryptMessage(s.cipherID, s.encryptKey, s.sessionID, message)
}

func (s *messageSealer) Unseal(wire []byte) ([]byte, error) {
	return crypto.DecryptMessage(s.cipherID, s.decryptKey, wire)
}

// messageCompressor adapts smb/compress's Compressor to mux.Compressor.
type messageCompressor struct {
	compress.Compressor
}

func (c *messageCompressor) TryCompress(message []byte) ([]byte, bool, error) {
	return c.Compress(message)
}

func (c *messageCompressor) Decompress(wire []byte) ([]byte, error) {
	return compress.Decompress(wire)
}
