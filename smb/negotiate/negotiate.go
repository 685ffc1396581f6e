// Package negotiate drives the SMB2 NEGOTIATE exchange (C6): building the
// multi-dialect request with its 3.1.1 negotiate-context list, validating
// the server's response, and folding both messages into the preauth
// integrity hash. It is grounded on ericblavier-go-smb's SMB1-to-SMB2
// negotiate flow (smb/smb1.go), generalized to SMB2-native multi-dialect
// negotiate.
package negotiate

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
)

// Result is everything a session needs out of a successful negotiate.
type Result struct {
	Dialect         uint16
	SecurityMode    uint16
	CipherID        uint16 // 0 if encryption wasn't negotiated
	CompressionIDs  []uint16
	SigningAlgID    uint16
	ServerGUID      [16]byte
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SecurityBuffer  []byte
	PreauthHash     [64]byte
}

// Client drives one NEGOTIATE exchange.
type Client struct {
	Dialects          []uint16
	Ciphers           []uint16 // preference order, most preferred first
	CompressionAlgos  []uint16
	SigningAlgorithms []uint16
	ClientGUID        [16]byte
}

// DefaultClient negotiates every dialect from 2.0.2 through 3.1.1 with the
// full cipher/compression/signing option set this module implements.
func DefaultClient() *Client {
	var guid [16]byte
	io.ReadFull(rand.Reader, guid[:])
	return &Client{
		Dialects:         []uint16{encoder.Dialect202, encoder.Dialect210, encoder.Dialect300, encoder.Dialect302, encoder.Dialect311},
		Ciphers:          []uint16{crypto.CipherAES256GCM, crypto.CipherAES128GCM, crypto.CipherAES256CCM, crypto.CipherAES128CCM},
		CompressionAlgos: []uint16{encoder.CompressLZ77, encoder.CompressLZNT1, encoder.CompressPatternV1},
		SigningAlgorithms: []uint16{crypto.SigningAlgAESGMAC, crypto.SigningAlgAESCMAC, crypto.SigningAlgHMACSHA256},
		ClientGUID:       guid,
	}
}

// is311 reports whether the client is offering 3.1.1, which is what
// triggers the negotiate-context list and preauth integrity.
func (c *Client) is311() bool {
	for _, d := range c.Dialects {
		if d == encoder.Dialect311 {
			return true
		}
	}
	return false
}

// BuildRequest constructs the NEGOTIATE request body and its encoded
// wire form together, so the caller can feed the exact bytes sent into
// the preauth hash.
func (c *Client) BuildRequest() (*encoder.NegotiateRequest, []byte, error) {
	req := &encoder.NegotiateRequest{
		SecurityMode: encoder.NegotiateSigningEnabled,
		Capabilities: encoder.CapLargeMTU | encoder.CapEncryption,
		ClientGUID:   c.ClientGUID,
		Dialects:     c.Dialects,
	}
	if c.is311() {
		var salt [32]byte
		io.ReadFull(rand.Reader, salt[:])
		req.Contexts = []encoder.NegotiateContext{
			{
				ContextType: encoder.CtxPreauthIntegrityCapabilities,
				Data: encoder.PreauthIntegrityData{
					HashAlgorithms: []uint16{0x0001}, // SHA-512, the only defined value
					Salt:           salt[:],
				}.Encode(),
			},
			{
				ContextType: encoder.CtxEncryptionCapabilities,
				Data:        encoder.EncryptionData{Ciphers: c.Ciphers}.Encode(),
			},
			{
				ContextType: encoder.CtxCompressionCapabilities,
				Data:        encoder.CompressionData{Algorithms: c.CompressionAlgos}.Encode(),
			},
			{
				ContextType: encoder.CtxSigningCapabilities,
				Data:        encoder.SigningData{Algorithms: c.SigningAlgorithms}.Encode(),
			},
		}
	}

	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, nil, err
	}
	msg := &encoder.Message{
		Header: encoder.Header{Command: encoder.CmdNegotiate, CreditsReqResp: 1},
		Body:   body,
	}
	return req, msg.Encode(), nil
}

var (
	ErrNoUsableDialect  = errors.New("negotiate: server selected a dialect the client did not offer")
	ErrSigningRequired  = errors.New("negotiate: server requires signing but none was negotiated")
	ErrMissingSalt      = errors.New("negotiate: 3.1.1 response missing preauth integrity context")
)

// ParseResponse validates a NEGOTIATE response against what was offered
// and extracts the negotiated parameters. preauth, if non-nil, is folded
// with both the request and response bytes (only meaningful for 3.1.1;
// callers may pass nil for earlier dialects).
func (c *Client) ParseResponse(requestWire, responseWire []byte, preauth *crypto.PreauthHash) (*Result, error) {
	msg, err := encoder.DecodeMessage(responseWire)
	if err != nil {
		return nil, err
	}
	var resp encoder.NegotiateResponse
	if err := resp.UnmarshalBinary(msg.Body, nil); err != nil {
		return nil, err
	}

	if !c.offered(resp.DialectRevision) {
		return nil, ErrNoUsableDialect
	}

	res := &Result{
		Dialect:         resp.DialectRevision,
		SecurityMode:    resp.SecurityMode,
		ServerGUID:      resp.ServerGUID,
		MaxTransactSize: resp.MaxTransactSize,
		MaxReadSize:     resp.MaxReadSize,
		MaxWriteSize:    resp.MaxWriteSize,
		SecurityBuffer:  resp.SecurityBuffer,
	}

	for _, ctx := range resp.Contexts {
		switch ctx.ContextType {
		case encoder.CtxEncryptionCapabilities:
			if d, err := encoder.DecodeEncryptionData(ctx.Data); err == nil && len(d.Ciphers) > 0 {
				res.CipherID = d.Ciphers[0]
			}
		case encoder.CtxCompressionCapabilities:
			if d, err := encoder.DecodeCompressionData(ctx.Data); err == nil {
				res.CompressionIDs = d.Algorithms
			}
		case encoder.CtxSigningCapabilities:
			if d, err := encoder.DecodeSigningData(ctx.Data); err == nil && len(d.Algorithms) > 0 {
				res.SigningAlgID = d.Algorithms[0]
			}
		}
	}

	if resp.DialectRevision == encoder.Dialect311 {
		hasPreauthCtx := false
		for _, ctx := range resp.Contexts {
			if ctx.ContextType == encoder.CtxPreauthIntegrityCapabilities {
				hasPreauthCtx = true
			}
		}
		if !hasPreauthCtx {
			return nil, ErrMissingSalt
		}
	}

	if preauth != nil {
		preauth.Update(requestWire)
		preauth.Update(responseWire)
		res.PreauthHash = preauth.Value()
	}

	return res, nil
}

func (c *Client) offered(dialect uint16) bool {
	for _, d := range c.Dialects {
		if d == dialect {
			return true
		}
	}
	return false
}
