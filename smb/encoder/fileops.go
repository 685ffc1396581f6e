package encoder

import "encoding/binary"

// FileID is the 128-bit (persistent, volatile) file identifier handed out
// by CREATE and referenced by every subsequent per-handle operation.
type FileID struct {
	Persistent uint64
	Volatile   uint64
}

func (f FileID) Encode(dst []byte) {
	le := binary.LittleEndian
	le.PutUint64(dst[0:8], f.Persistent)
	le.PutUint64(dst[8:16], f.Volatile)
}

func decodeFileID(src []byte) FileID {
	le := binary.LittleEndian
	return FileID{Persistent: le.Uint64(src[0:8]), Volatile: le.Uint64(src[8:16])}
}

// CloseRequest/Response, MS-SMB2 2.2.15/2.2.16.
type CloseRequest struct {
	Flags  uint16
	FileID FileID
}

func (r *CloseRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 24)
	le.PutUint16(buf[0:2], 24)
	le.PutUint16(buf[2:4], r.Flags)
	r.FileID.Encode(buf[8:24])
	return buf, nil
}

func (r *CloseRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 24 {
		return errShort("close request")
	}
	le := binary.LittleEndian
	r.Flags = le.Uint16(buf[2:4])
	r.FileID = decodeFileID(buf[8:24])
	return nil
}

type CloseResponse struct {
	Flags          uint16
	EndOfFile      uint64
	FileAttributes uint32
}

func (r *CloseResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 60)
	le.PutUint16(buf[0:2], 60)
	le.PutUint16(buf[2:4], r.Flags)
	le.PutUint64(buf[40:48], r.EndOfFile)
	le.PutUint32(buf[56:60], r.FileAttributes)
	return buf, nil
}

func (r *CloseResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 60 {
		return errShort("close response")
	}
	le := binary.LittleEndian
	r.Flags = le.Uint16(buf[2:4])
	r.EndOfFile = le.Uint64(buf[40:48])
	r.FileAttributes = le.Uint32(buf[56:60])
	return nil
}

// ReadRequest/Response, MS-SMB2 2.2.19/2.2.20.
type ReadRequest struct {
	Length       uint32
	Offset       uint64
	FileID       FileID
	MinimumCount uint32
	RemainingBytes uint32
}

func (r *ReadRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 49)
	le.PutUint16(buf[0:2], 49)
	le.PutUint32(buf[4:8], r.Length)
	le.PutUint64(buf[8:16], r.Offset)
	r.FileID.Encode(buf[16:32])
	le.PutUint32(buf[32:36], r.MinimumCount)
	le.PutUint32(buf[40:44], r.RemainingBytes)
	return buf, nil
}

func (r *ReadRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 49 {
		return errShort("read request")
	}
	le := binary.LittleEndian
	r.Length = le.Uint32(buf[4:8])
	r.Offset = le.Uint64(buf[8:16])
	r.FileID = decodeFileID(buf[16:32])
	r.MinimumCount = le.Uint32(buf[32:36])
	r.RemainingBytes = le.Uint32(buf[40:44])
	return nil
}

type ReadResponse struct {
	DataRemaining uint32
	Data          []byte
}

func (r *ReadResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 16)
	le.PutUint16(head[0:2], 17)
	head[2] = byte(SMB2HeaderLen + 16) // DataOffset (1 byte, MS-SMB2 2.2.20)
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	le.PutUint32(head[8:12], r.DataRemaining)
	return append(head, r.Data...), nil
}

func (r *ReadResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 16 {
		return errShort("read response")
	}
	le := binary.LittleEndian
	dataOff := int(buf[2])
	dataLen := int(le.Uint32(buf[4:8]))
	r.DataRemaining = le.Uint32(buf[8:12])
	rel := dataOff - SMB2HeaderLen
	if rel >= 0 && rel+dataLen <= len(buf) {
		r.Data = append([]byte(nil), buf[rel:rel+dataLen]...)
	}
	return nil
}

// WriteRequest/Response, MS-SMB2 2.2.21/2.2.22.
type WriteRequest struct {
	Offset  uint64
	FileID  FileID
	Channel uint32
	RemainingBytes uint32
	Flags   uint32
	Data    []byte
}

func (r *WriteRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	dataOff := SMB2HeaderLen + 48
	head := make([]byte, 48)
	le.PutUint16(head[0:2], 49)
	le.PutUint16(head[2:4], uint16(dataOff))
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	le.PutUint64(head[8:16], r.Offset)
	r.FileID.Encode(head[16:32])
	le.PutUint32(head[32:36], r.Channel)
	le.PutUint32(head[36:40], r.RemainingBytes)
	le.PutUint32(head[44:48], r.Flags)
	return append(head, r.Data...), nil
}

func (r *WriteRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 48 {
		return errShort("write request")
	}
	le := binary.LittleEndian
	dataOff := int(le.Uint16(buf[2:4]))
	dataLen := int(le.Uint32(buf[4:8]))
	r.Offset = le.Uint64(buf[8:16])
	r.FileID = decodeFileID(buf[16:32])
	r.Channel = le.Uint32(buf[32:36])
	r.RemainingBytes = le.Uint32(buf[36:40])
	r.Flags = le.Uint32(buf[44:48])
	rel := dataOff - SMB2HeaderLen
	if rel >= 0 && rel+dataLen <= len(buf) {
		r.Data = append([]byte(nil), buf[rel:rel+dataLen]...)
	}
	return nil
}

type WriteResponse struct {
	Count uint32
	Remaining uint32
}

func (r *WriteResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 16)
	le.PutUint16(buf[0:2], 17)
	le.PutUint32(buf[4:8], r.Count)
	le.PutUint32(buf[8:12], r.Remaining)
	return buf, nil
}

func (r *WriteResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 16 {
		return errShort("write response")
	}
	le := binary.LittleEndian
	r.Count = le.Uint32(buf[4:8])
	r.Remaining = le.Uint32(buf[8:12])
	return nil
}

// FlushRequest/Response, MS-SMB2 2.2.17/2.2.18.
type FlushRequest struct {
	FileID FileID
}

func (r *FlushRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint16(buf[0:2], 24)
	r.FileID.Encode(buf[8:24])
	return buf, nil
}

func (r *FlushRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 24 {
		return errShort("flush request")
	}
	r.FileID = decodeFileID(buf[8:24])
	return nil
}

type FlushResponse struct{}

func (r *FlushResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *FlushResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

// LockElement is one range in a LOCK request, MS-SMB2 2.2.26.1.
type LockElement struct {
	Offset uint64
	Length uint64
	Flags  uint32
}

// LockRequest/Response, MS-SMB2 2.2.26/2.2.27.
type LockRequest struct {
	FileID FileID
	Locks  []LockElement
}

func (r *LockRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 24)
	le.PutUint16(head[0:2], 48)
	le.PutUint16(head[2:4], uint16(len(r.Locks)))
	r.FileID.Encode(head[8:24])
	body := make([]byte, 24*len(r.Locks))
	for i, l := range r.Locks {
		off := i * 24
		le.PutUint64(body[off:off+8], l.Offset)
		le.PutUint64(body[off+8:off+16], l.Length)
		le.PutUint32(body[off+16:off+20], l.Flags)
	}
	return append(head, body...), nil
}

func (r *LockRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 24 {
		return errShort("lock request")
	}
	le := binary.LittleEndian
	count := int(le.Uint16(buf[2:4]))
	r.FileID = decodeFileID(buf[8:24])
	off := 24
	for i := 0; i < count; i++ {
		if len(buf) < off+24 {
			return errShort("lock element list")
		}
		r.Locks = append(r.Locks, LockElement{
			Offset: le.Uint64(buf[off : off+8]),
			Length: le.Uint64(buf[off+8 : off+16]),
			Flags:  le.Uint32(buf[off+16 : off+20]),
		})
		off += 24
	}
	return nil
}

type LockResponse struct{}

func (r *LockResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}
func (r *LockResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }
