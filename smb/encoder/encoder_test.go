package encoder

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		CreditCharge:   2,
		Status:         0,
		Command:        CmdRead,
		CreditsReqResp: 64,
		Flags:          FlagSigned,
		MessageID:      42,
		TreeID:         7,
		SessionID:      0xdeadbeef,
	}
	buf := make([]byte, SMB2HeaderLen)
	h.Encode(buf)

	var got Header
	if err := got.Decode(buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Command != h.Command || got.MessageID != h.MessageID || got.SessionID != h.SessionID || got.TreeID != h.TreeID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if got.ProtocolID != SMB2ProtocolID {
		t.Fatalf("protocol id = %#x, want %#x", got.ProtocolID, SMB2ProtocolID)
	}
}

func TestHeaderViewMatchesDecode(t *testing.T) {
	h := Header{Command: CmdCreate, MessageID: 99, SessionID: 5, TreeID: 3, Flags: FlagSigned}
	buf := make([]byte, SMB2HeaderLen)
	h.Encode(buf)

	view, ok := ViewHeader(buf)
	if !ok {
		t.Fatal("ViewHeader rejected a valid header")
	}
	if view.Command != h.Command || view.MessageID != h.MessageID || view.SessionID != h.SessionID || view.TreeID != h.TreeID {
		t.Fatalf("header view mismatch: %+v", view)
	}
}

func TestNegotiateRequestRoundTrip(t *testing.T) {
	req := &NegotiateRequest{
		SecurityMode: NegotiateSigningEnabled,
		Capabilities: CapLargeMTU | CapEncryption,
		Dialects:     []uint16{Dialect202, Dialect210, Dialect300, Dialect302, Dialect311},
		Contexts: []NegotiateContext{
			{ContextType: CtxPreauthIntegrityCapabilities, Data: PreauthIntegrityData{HashAlgorithms: []uint16{1}, Salt: bytes.Repeat([]byte{0x11}, 32)}.Encode()},
			{ContextType: CtxEncryptionCapabilities, Data: EncryptionData{Ciphers: []uint16{2, 1}}.Encode()},
		},
	}
	b, err := req.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got NegotiateRequest
	if err := got.UnmarshalBinary(b, nil); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Dialects) != len(req.Dialects) {
		t.Fatalf("dialects = %v, want %v", got.Dialects, req.Dialects)
	}
	for i := range req.Dialects {
		if got.Dialects[i] != req.Dialects[i] {
			t.Fatalf("dialect[%d] = %#x, want %#x", i, got.Dialects[i], req.Dialects[i])
		}
	}
	if len(got.Contexts) != 2 {
		t.Fatalf("contexts = %d, want 2", len(got.Contexts))
	}
	pre, err := DecodePreauthIntegrityData(got.Contexts[0].Data)
	if err != nil {
		t.Fatalf("decode preauth context: %v", err)
	}
	if len(pre.Salt) != 32 {
		t.Fatalf("salt len = %d, want 32", len(pre.Salt))
	}
}

func TestNegotiateResponseRoundTrip(t *testing.T) {
	resp := &NegotiateResponse{
		SecurityMode:    NegotiateSigningRequired,
		DialectRevision: Dialect311,
		Capabilities:    CapLargeMTU,
		MaxTransactSize: 1 << 20,
		MaxReadSize:     1 << 20,
		MaxWriteSize:    1 << 20,
		SecurityBuffer:  []byte{1, 2, 3, 4},
	}
	b, err := resp.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got NegotiateResponse
	if err := got.UnmarshalBinary(b, nil); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.DialectRevision != resp.DialectRevision || !bytes.Equal(got.SecurityBuffer, resp.SecurityBuffer) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateRequestRoundTripWithContexts(t *testing.T) {
	req := &CreateRequest{
		DesiredAccess:     0x00120089,
		CreateDisposition: FileOpenIf,
		Name:              []byte{'a', 0, 'b', 0},
		Contexts: []CreateContext{
			{Name: CtxDurableHandleRequestV2, Data: bytes.Repeat([]byte{0xaa}, 32)},
		},
	}
	b, err := req.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got CreateRequest
	if err := got.UnmarshalBinary(b, nil); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(got.Name, req.Name) {
		t.Fatalf("name = %v, want %v", got.Name, req.Name)
	}
	if len(got.Contexts) != 1 || got.Contexts[0].Name != CtxDurableHandleRequestV2 {
		t.Fatalf("contexts = %+v", got.Contexts)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	wreq := &WriteRequest{Offset: 4096, FileID: FileID{Persistent: 1, Volatile: 2}, Data: []byte("hello world")}
	b, err := wreq.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal write: %v", err)
	}
	var gotW WriteRequest
	if err := gotW.UnmarshalBinary(b, nil); err != nil {
		t.Fatalf("unmarshal write: %v", err)
	}
	if !bytes.Equal(gotW.Data, wreq.Data) || gotW.Offset != wreq.Offset {
		t.Fatalf("write round trip mismatch: %+v", gotW)
	}

	rresp := &ReadResponse{Data: []byte("hello world"), DataRemaining: 0}
	rb, err := rresp.MarshalBinary(nil)
	if err != nil {
		t.Fatalf("marshal read resp: %v", err)
	}
	var gotR ReadResponse
	if err := gotR.UnmarshalBinary(rb, nil); err != nil {
		t.Fatalf("unmarshal read resp: %v", err)
	}
	if !bytes.Equal(gotR.Data, rresp.Data) {
		t.Fatalf("read response mismatch: %v", gotR.Data)
	}
}
