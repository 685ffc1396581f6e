package encoder

import "encoding/binary"

// Share types and flags, MS-SMB2 2.2.10.
const (
	ShareTypeDisk  uint8 = 0x01
	ShareTypePipe  uint8 = 0x02
	ShareTypePrint uint8 = 0x03

	ShareFlagEncryptData uint32 = 0x00008000
)

// TreeConnectRequest is the SMB2 TREE_CONNECT request body. Path is the
// UTF-16LE share path (\\server\share), already encoded by the caller.
type TreeConnectRequest struct {
	Flags uint16
	Path  []byte
}

func (r *TreeConnectRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	pathOff := SMB2HeaderLen + 8
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	le.PutUint16(head[2:4], r.Flags)
	le.PutUint16(head[4:6], uint16(pathOff))
	le.PutUint16(head[6:8], uint16(len(r.Path)))
	return append(head, r.Path...), nil
}

func (r *TreeConnectRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("tree connect request")
	}
	le := binary.LittleEndian
	r.Flags = le.Uint16(buf[2:4])
	pathOff := int(le.Uint16(buf[4:6]))
	pathLen := int(le.Uint16(buf[6:8]))
	rel := pathOff - SMB2HeaderLen
	if rel >= 0 && rel+pathLen <= len(buf) {
		r.Path = append([]byte(nil), buf[rel:rel+pathLen]...)
	}
	return nil
}

// TreeConnectResponse is the SMB2 TREE_CONNECT response body.
type TreeConnectResponse struct {
	ShareType    uint8
	ShareFlags   uint32
	Capabilities uint32
	MaximalAccess uint32
}

func (r *TreeConnectResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 16)
	le.PutUint16(buf[0:2], 16)
	buf[2] = r.ShareType
	le.PutUint32(buf[4:8], r.ShareFlags)
	le.PutUint32(buf[8:12], r.Capabilities)
	le.PutUint32(buf[12:16], r.MaximalAccess)
	return buf, nil
}

func (r *TreeConnectResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 16 {
		return errShort("tree connect response")
	}
	le := binary.LittleEndian
	r.ShareType = buf[2]
	r.ShareFlags = le.Uint32(buf[4:8])
	r.Capabilities = le.Uint32(buf[8:12])
	r.MaximalAccess = le.Uint32(buf[12:16])
	return nil
}

// TreeDisconnectRequest/Response are the fixed 4-byte bodies.
type TreeDisconnectRequest struct{}

func (r *TreeDisconnectRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *TreeDisconnectRequest) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

type TreeDisconnectResponse struct{}

func (r *TreeDisconnectResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *TreeDisconnectResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }
