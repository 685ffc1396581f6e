package encoder

import "encoding/binary"

// SMB2 constants a caller needs without a full command-body parse.
const (
	SMB2HeaderLen      = 64
	SMB2ProtocolID     = 0xfe534d42 // "\xfeSMB" read big-endian
	SMB2SignatureOff   = 48
	SMB2SignatureLen   = 16
	TransformHeaderLen = 52
	TransformProtoID   = 0xfd534d42 // "\xfdSMB"
	CompressionProtoID = 0xfc534d42 // "\xfcSMB"

	FlagServerToRedir = 0x00000001
	FlagAsyncCommand  = 0x00000002
	FlagRelated       = 0x00000004
	FlagSigned        = 0x00000008
	FlagPriorityMask  = 0x00000070
	FlagDFSOperation  = 0x10000000
	FlagReplayOp      = 0x20000000
)

// HeaderView is the C1 `header_view` accessor: it reads the fixed-offset
// fields of an SMB2 header without invoking the full command-body codec,
// which is all the multiplexer (smb/mux) needs to route a response.
type HeaderView struct {
	ProtocolID    uint32
	Command       uint16
	CreditCharge  uint16
	Status        uint32 // also ChannelSequence+Reserved on requests
	Flags         uint32
	NextCommand   uint32
	MessageID     uint64
	Reserved      uint32
	TreeID        uint32
	SessionID     uint64
	AsyncID       uint64 // aliases Reserved+TreeID when FlagAsyncCommand is set
	Credits       uint16 // CreditRequest on requests, CreditResponse on responses
	SignatureOff  int
	raw           []byte
}

// ViewHeader parses only the 64-byte SMB2 header prefix of buf.
func ViewHeader(buf []byte) (HeaderView, bool) {
	if len(buf) < SMB2HeaderLen {
		return HeaderView{}, false
	}
	le := binary.LittleEndian
	var v HeaderView
	v.ProtocolID = be32(buf[0:4])
	v.Command = le.Uint16(buf[12:14])
	v.CreditCharge = le.Uint16(buf[6:8])
	v.Status = le.Uint32(buf[8:12])
	v.Flags = le.Uint32(buf[16:20])
	v.NextCommand = le.Uint32(buf[20:24])
	v.MessageID = le.Uint64(buf[24:32])
	if v.Flags&FlagAsyncCommand != 0 {
		v.AsyncID = le.Uint64(buf[32:40])
	} else {
		v.Reserved = le.Uint32(buf[32:36])
		v.TreeID = le.Uint32(buf[36:40])
	}
	v.SessionID = le.Uint64(buf[40:48])
	v.Credits = le.Uint16(buf[14:16])
	v.SignatureOff = SMB2SignatureOff
	v.raw = buf
	return v, true
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// IsSMB2 reports whether buf begins with the plain (unencrypted,
// uncompressed) SMB2 protocol ID.
func IsSMB2(buf []byte) bool {
	return len(buf) >= 4 && be32(buf[:4]) == SMB2ProtocolID
}

// IsTransformed reports whether buf begins with the SMB2 TRANSFORM_HEADER
// magic (i.e. the message is encrypted).
func IsTransformed(buf []byte) bool {
	return len(buf) >= 4 && be32(buf[:4]) == TransformProtoID
}

// IsCompressed reports whether buf begins with the SMB2
// COMPRESSION_TRANSFORM_HEADER magic.
func IsCompressed(buf []byte) bool {
	return len(buf) >= 4 && be32(buf[:4]) == CompressionProtoID
}

// Signature returns the 16-byte signature field of a parsed header.
func (v HeaderView) Signature() []byte {
	if len(v.raw) < v.SignatureOff+SMB2SignatureLen {
		return nil
	}
	return v.raw[v.SignatureOff : v.SignatureOff+SMB2SignatureLen]
}

// ZeroSignature overwrites the signature field in place, as required before
// computing a new one.
func ZeroSignature(buf []byte) {
	if len(buf) < SMB2SignatureOff+SMB2SignatureLen {
		return
	}
	clear(buf[SMB2SignatureOff : SMB2SignatureOff+SMB2SignatureLen])
}

// SetSigned sets the SMB2_FLAGS_SIGNED bit and writes sig into the
// signature field.
func SetSigned(buf []byte, sig []byte) {
	if len(buf) < SMB2HeaderLen {
		return
	}
	le := binary.LittleEndian
	flags := le.Uint32(buf[16:20])
	flags |= FlagSigned
	le.PutUint32(buf[16:20], flags)
	copy(buf[SMB2SignatureOff:SMB2SignatureOff+SMB2SignatureLen], sig)
}

// SetMessageID writes the MessageId field.
func SetMessageID(buf []byte, id uint64) {
	binary.LittleEndian.PutUint64(buf[24:32], id)
}

// SetTreeSession writes TreeId and SessionId.
func SetTreeSession(buf []byte, treeID uint32, sessionID uint64) {
	binary.LittleEndian.PutUint32(buf[36:40], treeID)
	binary.LittleEndian.PutUint64(buf[40:48], sessionID)
}

// SetCredits writes CreditCharge (offset 6) and CreditRequest/Response
// (offset 14).
func SetCredits(buf []byte, charge, request uint16) {
	binary.LittleEndian.PutUint16(buf[6:8], charge)
	binary.LittleEndian.PutUint16(buf[14:16], request)
}
