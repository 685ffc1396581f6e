package encoder

import "encoding/binary"

// IOCTL/FSCTL flags, MS-SMB2 2.2.31.
const (
	IoctlFlagIsFsctl uint32 = 0x00000001
)

// IoctlRequest/Response, MS-SMB2 2.2.31/2.2.32.
type IoctlRequest struct {
	CtlCode           uint32
	FileID            FileID
	InputBuffer       []byte
	MaxInputResponse  uint32
	MaxOutputResponse uint32
	Flags             uint32
}

func (r *IoctlRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	inOff := SMB2HeaderLen + 56
	head := make([]byte, 56)
	le.PutUint16(head[0:2], 57)
	le.PutUint32(head[4:8], r.CtlCode)
	r.FileID.Encode(head[8:24])
	le.PutUint32(head[24:28], uint32(inOff))
	le.PutUint32(head[28:32], uint32(len(r.InputBuffer)))
	le.PutUint32(head[32:36], r.MaxInputResponse)
	le.PutUint32(head[44:48], r.MaxOutputResponse)
	le.PutUint32(head[48:52], r.Flags)
	return append(head, r.InputBuffer...), nil
}

func (r *IoctlRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 56 {
		return errShort("ioctl request")
	}
	le := binary.LittleEndian
	r.CtlCode = le.Uint32(buf[4:8])
	r.FileID = decodeFileID(buf[8:24])
	inOff := int(le.Uint32(buf[24:28]))
	inLen := int(le.Uint32(buf[28:32]))
	r.MaxInputResponse = le.Uint32(buf[32:36])
	r.MaxOutputResponse = le.Uint32(buf[44:48])
	r.Flags = le.Uint32(buf[48:52])
	if rel := inOff - SMB2HeaderLen; inLen > 0 && rel >= 0 && rel+inLen <= len(buf) {
		r.InputBuffer = append([]byte(nil), buf[rel:rel+inLen]...)
	}
	return nil
}

type IoctlResponse struct {
	CtlCode     uint32
	FileID      FileID
	OutputBuffer []byte
	Flags       uint32
}

func (r *IoctlResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	outOff := SMB2HeaderLen + 48
	head := make([]byte, 48)
	le.PutUint16(head[0:2], 49)
	le.PutUint32(head[4:8], r.CtlCode)
	r.FileID.Encode(head[8:24])
	le.PutUint32(head[32:36], uint32(outOff))
	le.PutUint32(head[36:40], uint32(len(r.OutputBuffer)))
	le.PutUint32(head[44:48], r.Flags)
	return append(head, r.OutputBuffer...), nil
}

func (r *IoctlResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 48 {
		return errShort("ioctl response")
	}
	le := binary.LittleEndian
	r.CtlCode = le.Uint32(buf[4:8])
	r.FileID = decodeFileID(buf[8:24])
	outOff := int(le.Uint32(buf[32:36]))
	outLen := int(le.Uint32(buf[36:40]))
	r.Flags = le.Uint32(buf[44:48])
	if rel := outOff - SMB2HeaderLen; outLen > 0 && rel >= 0 && rel+outLen <= len(buf) {
		r.OutputBuffer = append([]byte(nil), buf[rel:rel+outLen]...)
	}
	return nil
}

// ChangeNotifyRequest/Response, MS-SMB2 2.2.35/2.2.36. The response is
// always an interim-capable, asynchronously completed operation.
type ChangeNotifyRequest struct {
	Flags              uint16
	OutputBufferLength uint32
	FileID             FileID
	CompletionFilter   uint32
}

func (r *ChangeNotifyRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 32)
	le.PutUint16(buf[0:2], 32)
	le.PutUint16(buf[2:4], r.Flags)
	le.PutUint32(buf[4:8], r.OutputBufferLength)
	r.FileID.Encode(buf[8:24])
	le.PutUint32(buf[24:28], r.CompletionFilter)
	return buf, nil
}

func (r *ChangeNotifyRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 32 {
		return errShort("change notify request")
	}
	le := binary.LittleEndian
	r.Flags = le.Uint16(buf[2:4])
	r.OutputBufferLength = le.Uint32(buf[4:8])
	r.FileID = decodeFileID(buf[8:24])
	r.CompletionFilter = le.Uint32(buf[24:28])
	return nil
}

type ChangeNotifyResponse struct {
	Data []byte
}

func (r *ChangeNotifyResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	le.PutUint16(head[2:4], uint16(SMB2HeaderLen+8))
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	return append(head, r.Data...), nil
}

func (r *ChangeNotifyResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("change notify response")
	}
	le := binary.LittleEndian
	dataOff := int(le.Uint16(buf[2:4]))
	dataLen := int(le.Uint32(buf[4:8]))
	rel := dataOff - SMB2HeaderLen
	if rel >= 0 && rel+dataLen <= len(buf) {
		r.Data = append([]byte(nil), buf[rel:rel+dataLen]...)
	}
	return nil
}

// EchoRequest/Response, MS-SMB2 2.2.28/2.2.29.
type EchoRequest struct{}

func (r *EchoRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *EchoRequest) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

type EchoResponse struct{}

func (r *EchoResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *EchoResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

// CancelRequest, MS-SMB2 2.2.30. Carries no body; it is distinguished by
// reusing the MessageId (or AsyncId, via FlagAsyncCommand) of the request
// being cancelled.
type CancelRequest struct{}

func (r *CancelRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *CancelRequest) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

// ErrorResponse, MS-SMB2 2.2.2.
type ErrorResponse struct {
	ErrorContextCount uint8
	ErrorData         []byte
}

func (r *ErrorResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	head[2] = r.ErrorContextCount
	le.PutUint32(head[4:8], uint32(len(r.ErrorData)))
	return append(head, r.ErrorData...), nil
}

func (r *ErrorResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("error response")
	}
	le := binary.LittleEndian
	r.ErrorContextCount = buf[2]
	dataLen := int(le.Uint32(buf[4:8]))
	if 8+dataLen <= len(buf) {
		r.ErrorData = append([]byte(nil), buf[8:8+dataLen]...)
	}
	return nil
}
