package encoder

import "encoding/binary"

// Negotiate context types, MS-SMB2 2.2.3.1.
const (
	CtxPreauthIntegrityCapabilities uint16 = 0x0001
	CtxEncryptionCapabilities       uint16 = 0x0002
	CtxCompressionCapabilities      uint16 = 0x0003
	CtxNetnameNegotiateContextID    uint16 = 0x0005
	CtxTransportCapabilities        uint16 = 0x0006
	CtxRDMATransformCapabilities    uint16 = 0x0007
	CtxSigningCapabilities          uint16 = 0x0008
)

// Global capability bits, MS-SMB2 2.2.3.
const (
	CapDFS                uint32 = 0x00000001
	CapLeasing            uint32 = 0x00000002
	CapLargeMTU           uint32 = 0x00000004
	CapMultiChannel       uint32 = 0x00000008
	CapPersistentHandles  uint32 = 0x00000010
	CapDirectoryLeasing   uint32 = 0x00000020
	CapEncryption         uint32 = 0x00000040
)

// Security mode bits.
const (
	NegotiateSigningEnabled  uint16 = 0x0001
	NegotiateSigningRequired uint16 = 0x0002
)

// NegotiateContext is one TLV entry of the NEGOTIATE request/response
// negotiate context list (SMB 3.1.1 only).
type NegotiateContext struct {
	ContextType uint16
	Data        []byte
}

func encodeContexts(ctxs []NegotiateContext) []byte {
	buf := make([]byte, 0, 64*len(ctxs))
	for _, c := range ctxs {
		entry := make([]byte, 8+len(c.Data))
		le := binary.LittleEndian
		le.PutUint16(entry[0:2], c.ContextType)
		le.PutUint16(entry[2:4], uint16(len(c.Data)))
		copy(entry[8:], c.Data)
		buf = append(buf, entry...)
		if pad := (8 + len(c.Data)) % 8; pad != 0 {
			buf = append(buf, make([]byte, 8-pad)...)
		}
	}
	return buf
}

func decodeContexts(buf []byte, count int) ([]NegotiateContext, error) {
	out := make([]NegotiateContext, 0, count)
	le := binary.LittleEndian
	for i := 0; i < count; i++ {
		if len(buf) < 8 {
			return nil, errShort("negotiate context")
		}
		ctxType := le.Uint16(buf[0:2])
		dataLen := le.Uint16(buf[2:4])
		if len(buf) < int(8+dataLen) {
			return nil, errShort("negotiate context data")
		}
		data := make([]byte, dataLen)
		copy(data, buf[8:8+dataLen])
		out = append(out, NegotiateContext{ContextType: ctxType, Data: data})
		adv := 8 + int(dataLen)
		if pad := adv % 8; pad != 0 {
			adv += 8 - pad
		}
		if len(buf) < adv {
			buf = nil
			break
		}
		buf = buf[adv:]
	}
	return out, nil
}

// PreauthIntegrityData is the body of a PREAUTH_INTEGRITY_CAPABILITIES
// context: a list of hash algorithms followed by a salt.
type PreauthIntegrityData struct {
	HashAlgorithms []uint16
	Salt           []byte
}

func (d PreauthIntegrityData) Encode() []byte {
	le := binary.LittleEndian
	buf := make([]byte, 4+2*len(d.HashAlgorithms)+len(d.Salt))
	le.PutUint16(buf[0:2], uint16(len(d.HashAlgorithms)))
	le.PutUint16(buf[2:4], uint16(len(d.Salt)))
	off := 4
	for _, h := range d.HashAlgorithms {
		le.PutUint16(buf[off:off+2], h)
		off += 2
	}
	copy(buf[off:], d.Salt)
	return buf
}

func DecodePreauthIntegrityData(buf []byte) (PreauthIntegrityData, error) {
	if len(buf) < 4 {
		return PreauthIntegrityData{}, errShort("preauth integrity context")
	}
	le := binary.LittleEndian
	hashCount := int(le.Uint16(buf[0:2]))
	saltLen := int(le.Uint16(buf[2:4]))
	off := 4
	var d PreauthIntegrityData
	for i := 0; i < hashCount; i++ {
		if len(buf) < off+2 {
			return PreauthIntegrityData{}, errShort("preauth integrity hash list")
		}
		d.HashAlgorithms = append(d.HashAlgorithms, le.Uint16(buf[off:off+2]))
		off += 2
	}
	if len(buf) < off+saltLen {
		return PreauthIntegrityData{}, errShort("preauth integrity salt")
	}
	d.Salt = append([]byte(nil), buf[off:off+saltLen]...)
	return d, nil
}

// EncryptionData is the body of an ENCRYPTION_CAPABILITIES context.
type EncryptionData struct {
	Ciphers []uint16
}

func (d EncryptionData) Encode() []byte {
	le := binary.LittleEndian
	buf := make([]byte, 2+2*len(d.Ciphers))
	le.PutUint16(buf[0:2], uint16(len(d.Ciphers)))
	for i, c := range d.Ciphers {
		le.PutUint16(buf[2+2*i:4+2*i], c)
	}
	return buf
}

func DecodeEncryptionData(buf []byte) (EncryptionData, error) {
	if len(buf) < 2 {
		return EncryptionData{}, errShort("encryption context")
	}
	le := binary.LittleEndian
	count := int(le.Uint16(buf[0:2]))
	var d EncryptionData
	for i := 0; i < count; i++ {
		if len(buf) < 2+2*i+2 {
			return EncryptionData{}, errShort("cipher list")
		}
		d.Ciphers = append(d.Ciphers, le.Uint16(buf[2+2*i:4+2*i]))
	}
	return d, nil
}

// CompressionData is the body of a COMPRESSION_CAPABILITIES context.
type CompressionData struct {
	Flags     uint32
	Algorithms []uint16
}

func (d CompressionData) Encode() []byte {
	le := binary.LittleEndian
	buf := make([]byte, 8+2*len(d.Algorithms))
	le.PutUint16(buf[0:2], uint16(len(d.Algorithms)))
	// bytes 2:4 padding, 4:8 flags
	le.PutUint32(buf[4:8], d.Flags)
	for i, a := range d.Algorithms {
		le.PutUint16(buf[8+2*i:10+2*i], a)
	}
	return buf
}

func DecodeCompressionData(buf []byte) (CompressionData, error) {
	if len(buf) < 8 {
		return CompressionData{}, errShort("compression context")
	}
	le := binary.LittleEndian
	count := int(le.Uint16(buf[0:2]))
	var d CompressionData
	d.Flags = le.Uint32(buf[4:8])
	for i := 0; i < count; i++ {
		if len(buf) < 8+2*i+2 {
			return CompressionData{}, errShort("compression algorithm list")
		}
		d.Algorithms = append(d.Algorithms, le.Uint16(buf[8+2*i:10+2*i]))
	}
	return d, nil
}

// SigningData is the body of a SIGNING_CAPABILITIES context.
type SigningData struct {
	Algorithms []uint16
}

func (d SigningData) Encode() []byte {
	le := binary.LittleEndian
	buf := make([]byte, 2+2*len(d.Algorithms))
	le.PutUint16(buf[0:2], uint16(len(d.Algorithms)))
	for i, a := range d.Algorithms {
		le.PutUint16(buf[2+2*i:4+2*i], a)
	}
	return buf
}

func DecodeSigningData(buf []byte) (SigningData, error) {
	if len(buf) < 2 {
		return SigningData{}, errShort("signing context")
	}
	le := binary.LittleEndian
	count := int(le.Uint16(buf[0:2]))
	var d SigningData
	for i := 0; i < count; i++ {
		if len(buf) < 2+2*i+2 {
			return SigningData{}, errShort("signing algorithm list")
		}
		d.Algorithms = append(d.Algorithms, le.Uint16(buf[2+2*i:4+2*i]))
	}
	return d, nil
}

// NegotiateRequest is the SMB2 NEGOTIATE request body (MS-SMB2 2.2.3).
type NegotiateRequest struct {
	SecurityMode uint16
	Capabilities uint32
	ClientGUID   [16]byte
	Dialects     []uint16
	Contexts     []NegotiateContext // only for 3.1.1
}

func (r *NegotiateRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	hasCtx := len(r.Contexts) > 0

	head := make([]byte, 36)
	le.PutUint16(head[0:2], 36)
	le.PutUint16(head[2:4], uint16(len(r.Dialects)))
	le.PutUint16(head[4:6], r.SecurityMode)
	// reserved 6:8
	le.PutUint32(head[8:12], r.Capabilities)
	copy(head[12:28], r.ClientGUID[:])

	dialects := make([]byte, 2*len(r.Dialects))
	for i, d := range r.Dialects {
		le.PutUint16(dialects[2*i:2*i+2], d)
	}

	var ctxBlock []byte
	if hasCtx {
		// NegotiateContextOffset/Count live at offset 28 in place of the
		// legacy ClientStartTime field for 3.1.1 requests.
		offset := SMB2HeaderLen + 36 + len(dialects)
		if pad := offset % 8; pad != 0 {
			offset += 8 - pad
		}
		le.PutUint32(head[28:32], uint32(offset))
		le.PutUint16(head[32:34], uint16(len(r.Contexts)))
		ctxBlock = encodeContexts(r.Contexts)
	}

	out := append(head, dialects...)
	if hasCtx {
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
		out = append(out, ctxBlock...)
	}
	return out, nil
}

func (r *NegotiateRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 36 {
		return errShort("negotiate request")
	}
	le := binary.LittleEndian
	dialectCount := int(le.Uint16(buf[2:4]))
	r.SecurityMode = le.Uint16(buf[4:6])
	r.Capabilities = le.Uint32(buf[8:12])
	copy(r.ClientGUID[:], buf[12:28])
	ctxOffset := le.Uint32(buf[28:32])
	ctxCount := int(le.Uint16(buf[32:34]))

	off := 36
	for i := 0; i < dialectCount; i++ {
		if len(buf) < off+2 {
			return errShort("dialect list")
		}
		r.Dialects = append(r.Dialects, le.Uint16(buf[off:off+2]))
		off += 2
	}
	if ctxCount > 0 && int(ctxOffset) >= SMB2HeaderLen {
		rel := int(ctxOffset) - SMB2HeaderLen
		if rel >= 0 && rel <= len(buf) {
			ctxs, err := decodeContexts(buf[rel:], ctxCount)
			if err != nil {
				return err
			}
			r.Contexts = ctxs
		}
	}
	return nil
}

// NegotiateResponse is the SMB2 NEGOTIATE response body.
type NegotiateResponse struct {
	SecurityMode      uint16
	DialectRevision   uint16
	ServerGUID        [16]byte
	Capabilities      uint32
	MaxTransactSize   uint32
	MaxReadSize       uint32
	MaxWriteSize      uint32
	SystemTime        uint64
	ServerStartTime   uint64
	SecurityBuffer    []byte
	Contexts          []NegotiateContext
}

func (r *NegotiateResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	hasCtx := len(r.Contexts) > 0
	secOff := SMB2HeaderLen + 64
	head := make([]byte, 64)
	le.PutUint16(head[0:2], 65)
	le.PutUint16(head[2:4], r.SecurityMode)
	le.PutUint16(head[4:6], r.DialectRevision)
	le.PutUint16(head[6:8], uint16(len(r.Contexts)))
	copy(head[8:24], r.ServerGUID[:])
	le.PutUint32(head[24:28], r.Capabilities)
	le.PutUint32(head[28:32], r.MaxTransactSize)
	le.PutUint32(head[32:36], r.MaxReadSize)
	le.PutUint32(head[36:40], r.MaxWriteSize)
	le.PutUint64(head[40:48], r.SystemTime)
	le.PutUint64(head[48:56], r.ServerStartTime)
	le.PutUint16(head[56:58], uint16(secOff))
	le.PutUint16(head[58:60], uint16(len(r.SecurityBuffer)))
	ctxOffset := secOff + len(r.SecurityBuffer)
	if pad := ctxOffset % 8; pad != 0 {
		ctxOffset += 8 - pad
	}
	le.PutUint32(head[60:64], uint32(ctxOffset))

	out := append(head, r.SecurityBuffer...)
	if hasCtx {
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
		out = append(out, encodeContexts(r.Contexts)...)
	}
	return out, nil
}

func (r *NegotiateResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 64 {
		return errShort("negotiate response")
	}
	le := binary.LittleEndian
	r.SecurityMode = le.Uint16(buf[2:4])
	r.DialectRevision = le.Uint16(buf[4:6])
	ctxCount := int(le.Uint16(buf[6:8]))
	copy(r.ServerGUID[:], buf[8:24])
	r.Capabilities = le.Uint32(buf[24:28])
	r.MaxTransactSize = le.Uint32(buf[28:32])
	r.MaxReadSize = le.Uint32(buf[32:36])
	r.MaxWriteSize = le.Uint32(buf[36:40])
	r.SystemTime = le.Uint64(buf[40:48])
	r.ServerStartTime = le.Uint64(buf[48:56])
	secOff := int(le.Uint16(buf[56:58]))
	secLen := int(le.Uint16(buf[58:60]))
	ctxOffset := le.Uint32(buf[60:64])

	rel := secOff - SMB2HeaderLen
	if rel >= 0 && rel+secLen <= len(buf) {
		r.SecurityBuffer = append([]byte(nil), buf[rel:rel+secLen]...)
	}
	if ctxCount > 0 && int(ctxOffset) >= SMB2HeaderLen {
		crel := int(ctxOffset) - SMB2HeaderLen
		if crel >= 0 && crel <= len(buf) {
			ctxs, err := decodeContexts(buf[crel:], ctxCount)
			if err != nil {
				return err
			}
			r.Contexts = ctxs
		}
	}
	return nil
}
