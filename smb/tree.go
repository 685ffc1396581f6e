package smb

import (
	"context"

	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/mux"
)

// Tree is one connected share (C8, part 1): the TreeId a CREATE/QUERY/
// SET/IOCTL request must carry alongside the session's SessionId.
type Tree struct {
	conn       *Connection
	treeID     uint32
	path       string
	sessionID  uint64
	shareType  uint8
	shareFlags uint32
	encrypted  bool
}

// ShareType returns ShareTypeDisk/Pipe/Print as reported by TREE_CONNECT.
func (t *Tree) ShareType() uint8 { return t.shareType }

// Encrypted reports whether the share requires per-message encryption
// (SMB2_SHAREFLAG_ENCRYPT_DATA), the condition Connection.TreeConnect
// checks against Options.RequireEncryption.
func (t *Tree) Encrypted() bool { return t.encrypted }

// send marshals body, wraps it in an SMB2 header carrying this tree's
// SessionId/TreeId, and hands it to the connection's engine, charging
// credits for the larger of the two payload directions per MS-SMB2
// 3.1.5.2.
func (t *Tree) send(ctx context.Context, cmd uint16, body []byte, expectedOutLen int) (*encoder.Message, error) {
	msg := &encoder.Message{
		Header: encoder.Header{Command: cmd, SessionID: t.sessionID, TreeID: t.treeID},
		Body:   body,
	}
	respWire, err := t.conn.engine.Send(ctx, msg.Encode(), mux.CreditCharge(len(body), expectedOutLen))
	if err != nil {
		return nil, &TransportError{Op: commandName(cmd), Err: err}
	}
	respMsg, err := encoder.DecodeMessage(respWire)
	if err != nil {
		return nil, &FramingError{Err: err}
	}
	if status := encoder.NtStatus(respMsg.Header.Status); status != encoder.StatusSuccess && status != encoder.StatusPending {
		return nil, &ServerStatusError{Op: commandName(cmd), Status: status}
	}
	return respMsg, nil
}

func commandName(cmd uint16) string {
	switch cmd {
	case encoder.CmdCreate:
		return "CREATE"
	case encoder.CmdClose:
		return "CLOSE"
	case encoder.CmdRead:
		return "READ"
	case encoder.CmdWrite:
		return "WRITE"
	case encoder.CmdFlush:
		return "FLUSH"
	case encoder.CmdLock:
		return "LOCK"
	case encoder.CmdIoctl:
		return "IOCTL"
	case encoder.CmdQueryDirectory:
		return "QUERY_DIRECTORY"
	case encoder.CmdQueryInfo:
		return "QUERY_INFO"
	case encoder.CmdSetInfo:
		return "SET_INFO"
	case encoder.CmdChangeNotify:
		return "CHANGE_NOTIFY"
	case encoder.CmdTreeDisconnect:
		return "TREE_DISCONNECT"
	default:
		return "SMB2"
	}
}

// Create opens or creates name on this share (MS-SMB2 CREATE, 2.2.13)
// and returns a Handle for the resulting FileId.
func (t *Tree) Create(ctx context.Context, name string, desiredAccess, createDisposition, createOptions, shareAccess uint32, contexts []encoder.CreateContext) (*Handle, error) {
	req := &encoder.CreateRequest{
		ImpersonationLevel: 2, // Impersonation, the level every example in the pack uses
		DesiredAccess:      desiredAccess,
		FileAttributes:     0,
		ShareAccess:        shareAccess,
		CreateDisposition:  createDisposition,
		CreateOptions:      createOptions,
		Name:               encoder.EncodeUTF16LE(name),
		Contexts:           contexts,
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := t.send(ctx, encoder.CmdCreate, body, 512)
	if err != nil {
		return nil, err
	}
	var resp encoder.CreateResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "CREATE response", Err: err}
	}
	return &Handle{
		tree:    t,
		fileID:  encoder.FileID{Persistent: resp.FileIDPersistent, Volatile: resp.FileIDVolatile},
		action:  resp.CreateAction,
		oplock:  resp.OplockLevel,
		contexts: resp.Contexts,
	}, nil
}

// ReopenDurable replays CREATE against name with a DURABLE_RECONNECT (or,
// when v2 is set, DURABLE_RECONNECT_V2) context carrying fileID, the
// recovery path spec.md 4.8 describes for a handle manager reattaching
// to an open file across a dropped-and-restored Connection. createGuid is
// required (and must match the value used on the original DURABLE_HANDLE
// _REQUEST_V2) when v2 is set; it's ignored for the v1 context.
func (t *Tree) ReopenDurable(ctx context.Context, name string, fileID encoder.FileID, v2 bool, createGuid [16]byte) (*Handle, error) {
	var reconnectCtx encoder.CreateContext
	if v2 {
		data := make([]byte, 36)
		fileID.Encode(data[0:16])
		copy(data[16:32], createGuid[:])
		reconnectCtx = encoder.CreateContext{Name: encoder.CtxDurableHandleReconnectV2, Data: data}
	} else {
		data := make([]byte, 16)
		fileID.Encode(data)
		reconnectCtx = encoder.CreateContext{Name: encoder.CtxDurableHandleReconnect, Data: data}
	}
	return t.Create(ctx, name, 0, encoder.FileOpen, 0, 0, []encoder.CreateContext{reconnectCtx})
}

// Disconnect sends TREE_DISCONNECT and removes this tree from its
// Connection's bookkeeping, regardless of the server's answer.
func (t *Tree) Disconnect(ctx context.Context) error {
	var req encoder.TreeDisconnectRequest
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	t.conn.mu.Lock()
	delete(t.conn.trees, t.treeID)
	t.conn.mu.Unlock()
	_, err = t.send(ctx, encoder.CmdTreeDisconnect, body, 4)
	return err
}
