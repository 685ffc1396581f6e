package encoder

import "encoding/binary"

// TransformFlagEncrypted is the only defined Flags value in
// TRANSFORM_HEADER (MS-SMB2 2.2.41).
const TransformFlagEncrypted uint16 = 0x0001

// TransformHeader is the 52-byte header that replaces the plain SMB2
// header for the whole message (including any compound chain) once
// encryption is active (spec §4.2 / key invariants).
type TransformHeader struct {
	Nonce         [16]byte // only the first 11 (CCM) or 12 (GCM) bytes are meaningful
	OriginalSize  uint32
	Flags         uint16
	SessionID     uint64
	Signature     [16]byte // the AEAD tag
}

func (h *TransformHeader) Encode() []byte {
	buf := make([]byte, TransformHeaderLen)
	be := binary.BigEndian
	le := binary.LittleEndian
	be.PutUint32(buf[0:4], TransformProtoID)
	copy(buf[4:20], h.Signature[:])
	copy(buf[20:36], h.Nonce[:])
	le.PutUint32(buf[36:40], h.OriginalSize)
	// bytes 40:42 reserved
	le.PutUint16(buf[42:44], h.Flags)
	le.PutUint64(buf[44:52], h.SessionID)
	return buf
}

func DecodeTransformHeader(buf []byte) (*TransformHeader, error) {
	if len(buf) < TransformHeaderLen {
		return nil, errShort("transform header")
	}
	le := binary.LittleEndian
	h := &TransformHeader{}
	copy(h.Signature[:], buf[4:20])
	copy(h.Nonce[:], buf[20:36])
	h.OriginalSize = le.Uint32(buf[36:40])
	h.Flags = le.Uint16(buf[42:44])
	h.SessionID = le.Uint64(buf[44:52])
	return h, nil
}

// AAD is the portion of the transform header authenticated but not
// encrypted: everything from the nonce through the session ID field
// (spec §4.2) — 32 bytes, regardless of which cipher's nonce length is in
// use (the unused nonce tail bytes are already zeroed).
func (h *TransformHeader) AAD() []byte {
	buf := h.Encode()
	return buf[20:52]
}
