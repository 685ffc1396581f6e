package encoder

import "encoding/binary"

// CREATE disposition/options (subset used by the core), MS-SMB2 2.2.13.
const (
	FileSupersede uint32 = 0x00000000
	FileOpen      uint32 = 0x00000001
	FileCreate    uint32 = 0x00000002
	FileOpenIf    uint32 = 0x00000003
	FileOverwrite uint32 = 0x00000004
	FileOverwriteIf uint32 = 0x00000005
)

// Durable/persistent create context names, MS-SMB2 2.2.13.2.
const (
	CtxDurableHandleRequest     = "DHnQ"
	CtxDurableHandleReconnect   = "DHnC"
	CtxDurableHandleRequestV2   = "DH2Q"
	CtxDurableHandleReconnectV2 = "DH2C"
	CtxQueryMaximalAccess       = "MxAc"
	CtxQueryOnDiskID            = "QFid"
)

// CreateContext is one chained context in a CREATE request/response.
type CreateContext struct {
	Name string
	Data []byte
}

func encodeCreateContexts(ctxs []CreateContext) []byte {
	le := binary.LittleEndian
	var out []byte
	for i, c := range ctxs {
		nameBuf := []byte(c.Name)
		entryLen := 16 + len(nameBuf) + len(c.Data)
		pad := 0
		if m := (16 + len(nameBuf)) % 8; m != 0 {
			pad = 8 - m
		}
		entry := make([]byte, 16+len(nameBuf)+pad+len(c.Data))
		le.PutUint16(entry[4:6], 16)
		le.PutUint16(entry[6:8], uint16(len(nameBuf)))
		if len(c.Data) > 0 {
			le.PutUint16(entry[10:12], uint16(16+len(nameBuf)+pad))
		}
		le.PutUint32(entry[12:16], uint32(len(c.Data)))
		copy(entry[16:], nameBuf)
		copy(entry[16+len(nameBuf)+pad:], c.Data)
		if i < len(ctxs)-1 {
			le.PutUint32(entry[0:4], uint32(len(entry)))
		}
		_ = entryLen
		out = append(out, entry...)
		if m := len(out) % 8; m != 0 {
			out = append(out, make([]byte, 8-m)...)
		}
	}
	return out
}

func decodeCreateContexts(buf []byte) ([]CreateContext, error) {
	le := binary.LittleEndian
	var out []CreateContext
	for len(buf) >= 16 {
		next := le.Uint32(buf[0:4])
		nameOff := le.Uint16(buf[4:6])
		nameLen := le.Uint16(buf[6:8])
		dataOff := le.Uint16(buf[10:12])
		dataLen := le.Uint32(buf[12:16])
		_ = nameOff
		if int(dataOff)+int(dataLen) > len(buf) || 16+int(nameLen) > len(buf) {
			return out, nil
		}
		name := string(buf[16 : 16+nameLen])
		data := append([]byte(nil), buf[dataOff:int(dataOff)+int(dataLen)]...)
		out = append(out, CreateContext{Name: name, Data: data})
		if next == 0 {
			break
		}
		if int(next) > len(buf) {
			break
		}
		buf = buf[next:]
	}
	return out, nil
}

// CreateRequest is the SMB2 CREATE request body.
type CreateRequest struct {
	RequestedOplockLevel uint8
	ImpersonationLevel   uint32
	DesiredAccess        uint32
	FileAttributes       uint32
	ShareAccess          uint32
	CreateDisposition    uint32
	CreateOptions        uint32
	Name                 []byte // UTF-16LE
	Contexts             []CreateContext
}

func (r *CreateRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 56)
	le.PutUint16(head[0:2], 57)
	head[3] = r.RequestedOplockLevel
	le.PutUint32(head[8:12], r.ImpersonationLevel)
	le.PutUint32(head[24:28], r.DesiredAccess)
	le.PutUint32(head[28:32], r.FileAttributes)
	le.PutUint32(head[32:36], r.ShareAccess)
	le.PutUint32(head[36:40], r.CreateDisposition)
	le.PutUint32(head[40:44], r.CreateOptions)

	nameOff := SMB2HeaderLen + 56
	le.PutUint16(head[44:46], uint16(nameOff))
	le.PutUint16(head[46:48], uint16(len(r.Name)))

	out := append(head, r.Name...)
	ctxBytes := encodeCreateContexts(r.Contexts)
	if len(ctxBytes) > 0 {
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
		ctxOff := SMB2HeaderLen + len(out)
		le.PutUint32(out[48:52], uint32(ctxOff))
		le.PutUint32(out[52:56], uint32(len(ctxBytes)))
		out = append(out, ctxBytes...)
	}
	return out, nil
}

func (r *CreateRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 56 {
		return errShort("create request")
	}
	le := binary.LittleEndian
	r.RequestedOplockLevel = buf[3]
	r.ImpersonationLevel = le.Uint32(buf[8:12])
	r.DesiredAccess = le.Uint32(buf[24:28])
	r.FileAttributes = le.Uint32(buf[28:32])
	r.ShareAccess = le.Uint32(buf[32:36])
	r.CreateDisposition = le.Uint32(buf[36:40])
	r.CreateOptions = le.Uint32(buf[40:44])
	nameOff := int(le.Uint16(buf[44:46]))
	nameLen := int(le.Uint16(buf[46:48]))
	ctxOff := le.Uint32(buf[48:52])
	ctxLen := le.Uint32(buf[52:56])

	if rel := nameOff - SMB2HeaderLen; rel >= 0 && rel+nameLen <= len(buf) {
		r.Name = append([]byte(nil), buf[rel:rel+nameLen]...)
	}
	if ctxLen > 0 {
		if rel := int(ctxOff) - SMB2HeaderLen; rel >= 0 && rel+int(ctxLen) <= len(buf) {
			ctxs, err := decodeCreateContexts(buf[rel : rel+int(ctxLen)])
			if err != nil {
				return err
			}
			r.Contexts = ctxs
		}
	}
	return nil
}

// CreateResponse is the SMB2 CREATE response body.
type CreateResponse struct {
	OplockLevel    uint8
	Flags          uint8
	CreateAction   uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes uint32
	FileIDPersistent uint64
	FileIDVolatile   uint64
	Contexts       []CreateContext
}

func (r *CreateResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 88)
	le.PutUint16(head[0:2], 89)
	head[2] = r.OplockLevel
	head[3] = r.Flags
	le.PutUint32(head[4:8], r.CreateAction)
	le.PutUint64(head[8:16], r.CreationTime)
	le.PutUint64(head[16:24], r.LastAccessTime)
	le.PutUint64(head[24:32], r.LastWriteTime)
	le.PutUint64(head[32:40], r.ChangeTime)
	le.PutUint64(head[40:48], r.AllocationSize)
	le.PutUint64(head[48:56], r.EndOfFile)
	le.PutUint32(head[56:60], r.FileAttributes)
	le.PutUint64(head[64:72], r.FileIDPersistent)
	le.PutUint64(head[72:80], r.FileIDVolatile)

	ctxBytes := encodeCreateContexts(r.Contexts)
	out := head
	if len(ctxBytes) > 0 {
		ctxOff := SMB2HeaderLen + len(out)
		le.PutUint32(head[80:84], uint32(ctxOff))
		le.PutUint32(head[84:88], uint32(len(ctxBytes)))
		out = append(out, ctxBytes...)
	}
	return out, nil
}

func (r *CreateResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 88 {
		return errShort("create response")
	}
	le := binary.LittleEndian
	r.OplockLevel = buf[2]
	r.Flags = buf[3]
	r.CreateAction = le.Uint32(buf[4:8])
	r.CreationTime = le.Uint64(buf[8:16])
	r.LastAccessTime = le.Uint64(buf[16:24])
	r.LastWriteTime = le.Uint64(buf[24:32])
	r.ChangeTime = le.Uint64(buf[32:40])
	r.AllocationSize = le.Uint64(buf[40:48])
	r.EndOfFile = le.Uint64(buf[48:56])
	r.FileAttributes = le.Uint32(buf[56:60])
	r.FileIDPersistent = le.Uint64(buf[64:72])
	r.FileIDVolatile = le.Uint64(buf[72:80])
	ctxOff := le.Uint32(buf[80:84])
	ctxLen := le.Uint32(buf[84:88])
	if ctxLen > 0 {
		if rel := int(ctxOff) - SMB2HeaderLen; rel >= 0 && rel+int(ctxLen) <= len(buf) {
			ctxs, err := decodeCreateContexts(buf[rel : rel+int(ctxLen)])
			if err != nil {
				return err
			}
			r.Contexts = ctxs
		}
	}
	return nil
}
