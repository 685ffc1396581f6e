package encoder

import "encoding/binary"

// Session setup flags/session flags, MS-SMB2 2.2.5/2.2.6.
const (
	SessionFlagBinding uint8 = 0x01

	SessionFlagIsGuest     uint16 = 0x0001
	SessionFlagIsNull      uint16 = 0x0002
	SessionFlagEncryptData uint16 = 0x0004
)

// SessionSetupRequest is the SMB2 SESSION_SETUP request body.
type SessionSetupRequest struct {
	Flags        uint8
	SecurityMode uint8
	Capabilities uint32
	Channel      uint32
	SecurityBuffer []byte
	PreviousSessionID uint64
}

func (r *SessionSetupRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	secOff := SMB2HeaderLen + 24
	head := make([]byte, 24)
	le.PutUint16(head[0:2], 25)
	head[2] = r.Flags
	head[3] = r.SecurityMode
	le.PutUint32(head[4:8], r.Capabilities)
	le.PutUint32(head[8:12], r.Channel)
	le.PutUint16(head[12:14], uint16(secOff))
	le.PutUint16(head[14:16], uint16(len(r.SecurityBuffer)))
	le.PutUint64(head[16:24], r.PreviousSessionID)
	return append(head, r.SecurityBuffer...), nil
}

func (r *SessionSetupRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 24 {
		return errShort("session setup request")
	}
	le := binary.LittleEndian
	r.Flags = buf[2]
	r.SecurityMode = buf[3]
	r.Capabilities = le.Uint32(buf[4:8])
	r.Channel = le.Uint32(buf[8:12])
	secOff := int(le.Uint16(buf[12:14]))
	secLen := int(le.Uint16(buf[14:16]))
	r.PreviousSessionID = le.Uint64(buf[16:24])
	rel := secOff - SMB2HeaderLen
	if rel >= 0 && rel+secLen <= len(buf) {
		r.SecurityBuffer = append([]byte(nil), buf[rel:rel+secLen]...)
	}
	return nil
}

// SessionSetupResponse is the SMB2 SESSION_SETUP response body.
type SessionSetupResponse struct {
	SessionFlags   uint16
	SecurityBuffer []byte
}

func (r *SessionSetupResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	secOff := SMB2HeaderLen + 8
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	le.PutUint16(head[2:4], r.SessionFlags)
	le.PutUint16(head[4:6], uint16(secOff))
	le.PutUint16(head[6:8], uint16(len(r.SecurityBuffer)))
	return append(head, r.SecurityBuffer...), nil
}

func (r *SessionSetupResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("session setup response")
	}
	le := binary.LittleEndian
	r.SessionFlags = le.Uint16(buf[2:4])
	secOff := int(le.Uint16(buf[4:6]))
	secLen := int(le.Uint16(buf[6:8]))
	rel := secOff - SMB2HeaderLen
	if rel >= 0 && rel+secLen <= len(buf) {
		r.SecurityBuffer = append([]byte(nil), buf[rel:rel+secLen]...)
	}
	return nil
}

// LogoffRequest/Response are both the fixed 4-byte "structure size +
// reserved" body.
type LogoffRequest struct{}

func (r *LogoffRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}

func (r *LogoffRequest) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }

type LogoffResponse struct{}

func (r *LogoffResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x04, 0x00, 0x00, 0x00}, nil
}

func (r *LogoffResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }
