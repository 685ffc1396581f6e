package smb

import (
	"context"

	"github.com/ericblavier/go-smb3/smb/encoder"
)

// Handle is one open FileId on a Tree (C8, part 2): the per-file
// READ/WRITE/CLOSE/QUERY/SET/IOCTL surface CREATE hands back.
type Handle struct {
	tree     *Tree
	fileID   encoder.FileID
	action   uint32
	oplock   uint8
	contexts []encoder.CreateContext
}

// CreateAction reports which of FILE_SUPERSEDED/FILE_CREATED/FILE_OPENED/
// FILE_OVERWRITTEN/FILE_EXISTS/FILE_DOES_NOT_EXIST CREATE took.
func (h *Handle) CreateAction() uint32 { return h.action }

// Contexts returns the create contexts the server echoed back (durable
// handle grants, maximal access, on-disk id, etc).
func (h *Handle) Contexts() []encoder.CreateContext { return h.contexts }

// OplockLevel reports the oplock (or lease, on dialects that use one)
// level the server granted.
func (h *Handle) OplockLevel() uint8 { return h.oplock }

// Read issues SMB2 READ for length bytes starting at offset.
func (h *Handle) Read(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	req := &encoder.ReadRequest{Length: length, Offset: offset, FileID: h.fileID, MinimumCount: 1}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdRead, body, int(length))
	if err != nil {
		return nil, err
	}
	var resp encoder.ReadResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "READ response", Err: err}
	}
	return resp.Data, nil
}

// Write issues SMB2 WRITE of data at offset and returns the byte count
// the server reports written.
func (h *Handle) Write(ctx context.Context, offset uint64, data []byte) (uint32, error) {
	req := &encoder.WriteRequest{Offset: offset, FileID: h.fileID, Data: data}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return 0, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdWrite, body, 16)
	if err != nil {
		return 0, err
	}
	var resp encoder.WriteResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return 0, &ProtocolViolationError{Detail: "WRITE response", Err: err}
	}
	return resp.Count, nil
}

// Close issues SMB2 CLOSE. The Handle must not be used afterward.
func (h *Handle) Close(ctx context.Context) error {
	req := &encoder.CloseRequest{FileID: h.fileID}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	_, err = h.tree.send(ctx, encoder.CmdClose, body, 60)
	return err
}

// Flush issues SMB2 FLUSH, committing any buffered writes to stable
// storage.
func (h *Handle) Flush(ctx context.Context) error {
	req := &encoder.FlushRequest{FileID: h.fileID}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	_, err = h.tree.send(ctx, encoder.CmdFlush, body, 4)
	return err
}

// Lock issues SMB2 LOCK for the given byte-range locks.
func (h *Handle) Lock(ctx context.Context, locks []encoder.LockElement) error {
	req := &encoder.LockRequest{FileID: h.fileID, Locks: locks}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	_, err = h.tree.send(ctx, encoder.CmdLock, body, 4)
	return err
}

// Ioctl issues SMB2 IOCTL (or FSCTL, when isFsctl is set) against this
// handle and returns the server's output buffer.
func (h *Handle) Ioctl(ctx context.Context, ctlCode uint32, input []byte, maxOutput uint32, isFsctl bool) ([]byte, error) {
	var flags uint32
	if isFsctl {
		flags = encoder.IoctlFlagIsFsctl
	}
	req := &encoder.IoctlRequest{
		CtlCode:           ctlCode,
		FileID:            h.fileID,
		InputBuffer:       input,
		MaxOutputResponse: maxOutput,
		Flags:             flags,
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdIoctl, body, int(maxOutput))
	if err != nil {
		return nil, err
	}
	var resp encoder.IoctlResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "IOCTL response", Err: err}
	}
	return resp.OutputBuffer, nil
}

// QueryDirectory issues SMB2 QUERY_DIRECTORY with the given search
// pattern (e.g. "*") and returns the raw, concatenated
// FILE_*_INFORMATION entries.
func (h *Handle) QueryDirectory(ctx context.Context, pattern string, infoClass, flags uint8, outputBufferLength uint32) ([]byte, error) {
	req := &encoder.QueryDirectoryRequest{
		FileInformationClass: infoClass,
		Flags:                flags,
		FileID:               h.fileID,
		OutputBufferLength:   outputBufferLength,
		FileName:             encoder.EncodeUTF16LE(pattern),
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdQueryDirectory, body, int(outputBufferLength))
	if err != nil {
		return nil, err
	}
	var resp encoder.QueryDirectoryResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "QUERY_DIRECTORY response", Err: err}
	}
	return resp.Data, nil
}

// QueryInfo issues SMB2 QUERY_INFO against this handle.
func (h *Handle) QueryInfo(ctx context.Context, infoType, infoClass uint8, additionalInfo, outputBufferLength uint32, input []byte) ([]byte, error) {
	req := &encoder.QueryInfoRequest{
		InfoType:              infoType,
		FileInformationClass:  infoClass,
		OutputBufferLength:    outputBufferLength,
		AdditionalInformation: additionalInfo,
		FileID:                h.fileID,
		InputBuffer:           input,
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdQueryInfo, body, int(outputBufferLength))
	if err != nil {
		return nil, err
	}
	var resp encoder.QueryInfoResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "QUERY_INFO response", Err: err}
	}
	return resp.Data, nil
}

// SetInfo issues SMB2 SET_INFO against this handle.
func (h *Handle) SetInfo(ctx context.Context, infoType, infoClass uint8, additionalInfo uint32, data []byte) error {
	req := &encoder.SetInfoRequest{
		InfoType:              infoType,
		FileInformationClass:  infoClass,
		AdditionalInformation: additionalInfo,
		FileID:                h.fileID,
		Data:                  data,
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return err
	}
	_, err = h.tree.send(ctx, encoder.CmdSetInfo, body, 4)
	return err
}

// ChangeNotify issues SMB2 CHANGE_NOTIFY, which the server answers
// asynchronously once a matching change occurs (or immediately with
// STATUS_NOTIFY_ENUM_DIR if too much changed to report individually);
// only ctx bounds how long this call blocks.
func (h *Handle) ChangeNotify(ctx context.Context, flags uint16, outputBufferLength uint32, completionFilter uint32) ([]byte, error) {
	req := &encoder.ChangeNotifyRequest{
		Flags:              flags,
		OutputBufferLength: outputBufferLength,
		FileID:             h.fileID,
		CompletionFilter:   completionFilter,
	}
	body, err := req.MarshalBinary(nil)
	if err != nil {
		return nil, err
	}
	respMsg, err := h.tree.send(ctx, encoder.CmdChangeNotify, body, int(outputBufferLength))
	if err != nil {
		return nil, err
	}
	var resp encoder.ChangeNotifyResponse
	if err := resp.UnmarshalBinary(respMsg.Body, nil); err != nil {
		return nil, &ProtocolViolationError{Detail: "CHANGE_NOTIFY response", Err: err}
	}
	return resp.Data, nil
}
