package negotiate

import (
	"testing"

	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
)

func buildServerResponse(t *testing.T, dialect uint16, withContexts bool) []byte {
	t.Helper()
	resp := &encoder.NegotiateResponse{
		SecurityMode:    encoder.NegotiateSigningRequired,
		DialectRevision: dialect,
		Capabilities:    encoder.CapLargeMTU | encoder.CapEncryption,
		MaxTransactSize: 1 << 20,
		MaxReadSize:     1 << 20,
		MaxWriteSize:    1 << 20,
		SecurityBuffer:  []byte{0xa0, 0x01, 0x02},
	}
	if withContexts {
		resp.Contexts = []encoder.NegotiateContext{
			{ContextType: encoder.CtxPreauthIntegrityCapabilities, Data: encoder.PreauthIntegrityData{HashAlgorithms: []uint16{1}, Salt: make([]byte, 32)}.Encode()},
			{ContextType: encoder.CtxEncryptionCapabilities, Data: encoder.EncryptionData{Ciphers: []uint16{crypto.CipherAES128GCM}}.Encode()},
			{ContextType: encoder.CtxCompressionCapabilities, Data: encoder.CompressionData{Algorithms: []uint16{encoder.CompressLZ77}}.Encode()},
			{ContextType: encoder.CtxSigningCapabilities, Data: encoder.SigningData{Algorithms: []uint16{crypto.SigningAlgAESCMAC}}.Encode()},
		}
	}
	body, err := resp.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	msg := &encoder.Message{Header: encoder.Header{Command: encoder.CmdNegotiate}, Body: body}
	return msg.Encode()
}

func TestNegotiateRequestOffersAllDialects(t *testing.T) {
	c := DefaultClient()
	req, wire, err := c.BuildRequest()
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if len(req.Dialects) != len(c.Dialects) {
		t.Fatalf("dialects = %d, want %d", len(req.Dialects), len(c.Dialects))
	}
	if len(req.Contexts) == 0 {
		t.Fatal("expected negotiate contexts when offering 3.1.1")
	}
	if len(wire) < encoder.SMB2HeaderLen {
		t.Fatal("encoded request shorter than one header")
	}
}

func TestParseResponse311PopulatesNegotiatedParameters(t *testing.T) {
	c := DefaultClient()
	_, reqWire, err := c.BuildRequest()
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	respWire := buildServerResponse(t, encoder.Dialect311, true)

	var preauth crypto.PreauthHash
	result, err := c.ParseResponse(reqWire, respWire, &preauth)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if result.Dialect != encoder.Dialect311 {
		t.Fatalf("dialect = %#x, want 3.1.1", result.Dialect)
	}
	if result.CipherID != crypto.CipherAES128GCM {
		t.Fatalf("cipher = %#x, want AES128GCM", result.CipherID)
	}
	if result.SigningAlgID != crypto.SigningAlgAESCMAC {
		t.Fatalf("signing alg = %#x, want AES-CMAC", result.SigningAlgID)
	}
	var zero [64]byte
	if result.PreauthHash == zero {
		t.Fatal("preauth hash was never updated")
	}
}

func TestParseResponseRejectsUnofferedDialect(t *testing.T) {
	c := &Client{Dialects: []uint16{encoder.Dialect202}}
	respWire := buildServerResponse(t, encoder.Dialect300, false)
	if _, err := c.ParseResponse(nil, respWire, nil); err != ErrNoUsableDialect {
		t.Fatalf("err = %v, want ErrNoUsableDialect", err)
	}
}

func TestParseResponse311RequiresPreauthContext(t *testing.T) {
	c := DefaultClient()
	respWire := buildServerResponse(t, encoder.Dialect311, false)
	if _, err := c.ParseResponse(nil, respWire, nil); err != ErrMissingSalt {
		t.Fatalf("err = %v, want ErrMissingSalt", err)
	}
}
