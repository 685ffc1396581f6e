package smb

import (
	"context"
	"testing"

	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/mux"
)

// fakeTreeEngine is a mux.Engine test double that answers one scripted
// response per call, letting Connection/Tree/Handle be exercised without
// a real transport — the same style as smb/session's fakeEngine.
type fakeTreeEngine struct {
	responses []func(req *encoder.Message) encoder.Message
	call      int
}

func (e *fakeTreeEngine) Send(ctx context.Context, msg []byte, credits uint16) ([]byte, error) {
	req, err := encoder.DecodeMessage(msg)
	if err != nil {
		return nil, err
	}
	resp := e.responses[e.call](req)
	e.call++
	resp.Header.MessageID = req.Header.MessageID
	resp.Header.SessionID = req.Header.SessionID
	resp.Header.TreeID = req.Header.TreeID
	return resp.Encode(), nil
}
func (e *fakeTreeEngine) Cancel(ctx context.Context, id uint64) error { return nil }
func (e *fakeTreeEngine) Close() error                                { return nil }
func (e *fakeTreeEngine) SetSigner(s mux.Signer)                      {}
func (e *fakeTreeEngine) SetSealer(s mux.Sealer)                      {}
func (e *fakeTreeEngine) SetCompressor(c mux.Compressor)              {}

func treeConnectResponse(status encoder.NtStatus, shareFlags uint32) encoder.Message {
	resp := &encoder.TreeConnectResponse{ShareType: encoder.ShareTypeDisk, ShareFlags: shareFlags}
	body, _ := resp.MarshalBinary(nil)
	return encoder.Message{
		Header: encoder.Header{Command: encoder.CmdTreeConnect, Status: uint32(status), TreeID: 7},
		Body:   body,
	}
}

func TestConnectionTreeConnect(t *testing.T) {
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(*encoder.Message) encoder.Message { return treeConnectResponse(encoder.StatusSuccess, 0) },
		},
	}
	c := &Connection{engine: engine, trees: make(map[uint32]*Tree)}

	tree, err := c.TreeConnect(context.Background(), `\\srv\share`)
	if err != nil {
		t.Fatalf("TreeConnect: %v", err)
	}
	if tree.ShareType() != encoder.ShareTypeDisk {
		t.Fatalf("ShareType = %d, want ShareTypeDisk", tree.ShareType())
	}
	if tree.Encrypted() {
		t.Fatal("tree reported encrypted without ShareFlagEncryptData set")
	}
	if len(c.trees) != 1 {
		t.Fatalf("connection tracked %d trees, want 1", len(c.trees))
	}
}

func TestConnectionTreeConnectRequiresEncryption(t *testing.T) {
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(*encoder.Message) encoder.Message { return treeConnectResponse(encoder.StatusSuccess, 0) },
		},
	}
	c := &Connection{engine: engine, trees: make(map[uint32]*Tree), opts: Options{RequireEncryption: true}}

	if _, err := c.TreeConnect(context.Background(), `\\srv\share`); err == nil {
		t.Fatal("expected an error when the share didn't set ShareFlagEncryptData")
	}
}

func TestConnectionTreeConnectFailureStatus(t *testing.T) {
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(*encoder.Message) encoder.Message { return treeConnectResponse(encoder.StatusAccessDenied, 0) },
		},
	}
	c := &Connection{engine: engine, trees: make(map[uint32]*Tree)}

	_, err := c.TreeConnect(context.Background(), `\\srv\share`)
	if err == nil {
		t.Fatal("expected an error for STATUS_ACCESS_DENIED")
	}
}

func createResponse(status encoder.NtStatus, persistent, volatile uint64, action uint32) encoder.Message {
	resp := &encoder.CreateResponse{FileIDPersistent: persistent, FileIDVolatile: volatile, CreateAction: action}
	body, _ := resp.MarshalBinary(nil)
	return encoder.Message{
		Header: encoder.Header{Command: encoder.CmdCreate, Status: uint32(status)},
		Body:   body,
	}
}

func newTestTree(engine mux.Engine) *Tree {
	return &Tree{conn: &Connection{engine: engine}, treeID: 7, sessionID: 42}
}

func TestTreeCreate(t *testing.T) {
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(*encoder.Message) encoder.Message {
				return createResponse(encoder.StatusSuccess, 1, 2, 1)
			},
		},
	}
	tree := newTestTree(engine)

	h, err := tree.Create(context.Background(), "foo.txt", 0x00100081, encoder.FileOpenIf, 0, 0, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.fileID.Persistent != 1 || h.fileID.Volatile != 2 {
		t.Fatalf("fileID = %+v, want {1 2}", h.fileID)
	}
	if h.CreateAction() != 1 {
		t.Fatalf("CreateAction = %d, want 1", h.CreateAction())
	}
}

func readResponse(data []byte, remaining uint32) encoder.Message {
	resp := &encoder.ReadResponse{Data: data, DataRemaining: remaining}
	body, _ := resp.MarshalBinary(nil)
	return encoder.Message{Header: encoder.Header{Command: encoder.CmdRead, Status: uint32(encoder.StatusSuccess)}, Body: body}
}

func TestHandleReadWrite(t *testing.T) {
	payload := []byte("hello, smb")
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(*encoder.Message) encoder.Message { return readResponse(payload, 0) },
			func(*encoder.Message) encoder.Message {
				resp := &encoder.WriteResponse{Count: uint32(len(payload))}
				body, _ := resp.MarshalBinary(nil)
				return encoder.Message{Header: encoder.Header{Command: encoder.CmdWrite, Status: uint32(encoder.StatusSuccess)}, Body: body}
			},
		},
	}
	tree := newTestTree(engine)
	h := &Handle{tree: tree, fileID: encoder.FileID{Persistent: 1, Volatile: 2}}

	data, err := h.Read(context.Background(), 0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("Read data = %q, want %q", data, payload)
	}

	n, err := h.Write(context.Background(), 0, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != uint32(len(payload)) {
		t.Fatalf("Write count = %d, want %d", n, len(payload))
	}
}

func TestHandleCloseUsesFileID(t *testing.T) {
	var sawFileID encoder.FileID
	engine := &fakeTreeEngine{
		responses: []func(*encoder.Message) encoder.Message{
			func(req *encoder.Message) encoder.Message {
				var r encoder.CloseRequest
				r.UnmarshalBinary(req.Body, nil)
				sawFileID = r.FileID
				resp := &encoder.CloseResponse{}
				body, _ := resp.MarshalBinary(nil)
				return encoder.Message{Header: encoder.Header{Command: encoder.CmdClose, Status: uint32(encoder.StatusSuccess)}, Body: body}
			},
		},
	}
	tree := newTestTree(engine)
	want := encoder.FileID{Persistent: 9, Volatile: 4}
	h := &Handle{tree: tree, fileID: want}

	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sawFileID != want {
		t.Fatalf("server saw FileID %+v, want %+v", sawFileID, want)
	}
}
