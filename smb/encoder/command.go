package encoder

import "encoding/binary"

// SMB2 command codes, MS-SMB2 2.2.1.
const (
	CmdNegotiate      uint16 = 0x0000
	CmdSessionSetup   uint16 = 0x0001
	CmdLogoff         uint16 = 0x0002
	CmdTreeConnect    uint16 = 0x0003
	CmdTreeDisconnect uint16 = 0x0004
	CmdCreate         uint16 = 0x0005
	CmdClose          uint16 = 0x0006
	CmdFlush          uint16 = 0x0007
	CmdRead           uint16 = 0x0008
	CmdWrite          uint16 = 0x0009
	CmdLock           uint16 = 0x000a
	CmdIoctl          uint16 = 0x000b
	CmdCancel         uint16 = 0x000c
	CmdEcho           uint16 = 0x000d
	CmdQueryDirectory uint16 = 0x000e
	CmdChangeNotify   uint16 = 0x000f
	CmdQueryInfo      uint16 = 0x0010
	CmdSetInfo        uint16 = 0x0011
	CmdOplockBreak    uint16 = 0x0012
)

// Dialect revisions, MS-SMB2 2.2.3.
const (
	Dialect202      uint16 = 0x0202
	Dialect210      uint16 = 0x0210
	Dialect300      uint16 = 0x0300
	Dialect302      uint16 = 0x0302
	Dialect311      uint16 = 0x0311
	Dialect2Wildcard uint16 = 0x02ff
)

// Header is the mutable 64-byte SMB2 header. Field order matches the wire
// layout exactly; Encode/Decode do the little-endian packing.
type Header struct {
	ProtocolID    uint32 // always SMB2ProtocolID once set
	StructureSize uint16 // always 64
	CreditCharge  uint16
	Status        uint32 // ChannelSequence(2)+Reserved(2) on a request
	Command       uint16
	CreditsReqResp uint16
	Flags         uint32
	NextCommand   uint32
	MessageID     uint64
	Reserved      uint32 // AsyncID low 32 bits when FlagAsyncCommand
	TreeID        uint32 // AsyncID high 32 bits when FlagAsyncCommand
	SessionID     uint64
	Signature     [16]byte
}

func (h *Header) AsyncID() uint64 {
	return uint64(h.TreeID)<<32 | uint64(h.Reserved)
}

func (h *Header) SetAsyncID(id uint64) {
	h.Reserved = uint32(id)
	h.TreeID = uint32(id >> 32)
}

// Encode writes the header into the first 64 bytes of dst, which must be
// at least 64 bytes long.
func (h *Header) Encode(dst []byte) {
	le := binary.LittleEndian
	be := binary.BigEndian
	be.PutUint32(dst[0:4], SMB2ProtocolID)
	le.PutUint16(dst[4:6], 64)
	le.PutUint16(dst[6:8], h.CreditCharge)
	le.PutUint32(dst[8:12], h.Status)
	le.PutUint16(dst[12:14], h.Command)
	le.PutUint16(dst[14:16], h.CreditsReqResp)
	le.PutUint32(dst[16:20], h.Flags)
	le.PutUint32(dst[20:24], h.NextCommand)
	le.PutUint64(dst[24:32], h.MessageID)
	le.PutUint32(dst[32:36], h.Reserved)
	le.PutUint32(dst[36:40], h.TreeID)
	le.PutUint64(dst[40:48], h.SessionID)
	copy(dst[48:64], h.Signature[:])
}

// Decode parses the first 64 bytes of src into h.
func (h *Header) Decode(src []byte) error {
	if len(src) < SMB2HeaderLen {
		return errShort("SMB2 header")
	}
	le := binary.LittleEndian
	h.ProtocolID = be32(src[0:4])
	h.StructureSize = le.Uint16(src[4:6])
	h.CreditCharge = le.Uint16(src[6:8])
	h.Status = le.Uint32(src[8:12])
	h.Command = le.Uint16(src[12:14])
	h.CreditsReqResp = le.Uint16(src[14:16])
	h.Flags = le.Uint32(src[16:20])
	h.NextCommand = le.Uint32(src[20:24])
	h.MessageID = le.Uint64(src[24:32])
	h.Reserved = le.Uint32(src[32:36])
	h.TreeID = le.Uint32(src[36:40])
	h.SessionID = le.Uint64(src[40:48])
	copy(h.Signature[:], src[48:64])
	return nil
}

// Message is a full request or response: header plus an already-encoded
// command body. It is the unit smb/mux dispatches and correlates.
type Message struct {
	Header Header
	Body   []byte // command-specific payload, excluding the 64-byte header
}

func (m *Message) Encode() []byte {
	buf := make([]byte, SMB2HeaderLen+len(m.Body))
	m.Header.Encode(buf)
	copy(buf[SMB2HeaderLen:], m.Body)
	return buf
}

func DecodeMessage(buf []byte) (*Message, error) {
	var h Header
	if err := h.Decode(buf); err != nil {
		return nil, err
	}
	return &Message{Header: h, Body: buf[SMB2HeaderLen:]}, nil
}

type shortBufferError string

func (e shortBufferError) Error() string { return "encoder: short buffer decoding " + string(e) }

func errShort(what string) error { return shortBufferError(what) }
