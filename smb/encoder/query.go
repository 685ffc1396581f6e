package encoder

import "encoding/binary"

// Info types, MS-SMB2 2.2.37.
const (
	InfoFile       uint8 = 0x01
	InfoFilesystem uint8 = 0x02
	InfoSecurity   uint8 = 0x03
	InfoQuota      uint8 = 0x04
)

// QueryDirectoryRequest/Response, MS-SMB2 2.2.33/2.2.34.
type QueryDirectoryRequest struct {
	FileInformationClass uint8
	Flags                uint8
	FileIndex            uint32
	FileID               FileID
	OutputBufferLength   uint32
	FileName             []byte // UTF-16LE search pattern
}

func (r *QueryDirectoryRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	nameOff := SMB2HeaderLen + 32
	head := make([]byte, 32)
	le.PutUint16(head[0:2], 33)
	head[2] = r.FileInformationClass
	head[3] = r.Flags
	le.PutUint32(head[4:8], r.FileIndex)
	r.FileID.Encode(head[8:24])
	le.PutUint16(head[24:26], uint16(nameOff))
	le.PutUint16(head[26:28], uint16(len(r.FileName)))
	le.PutUint32(head[28:32], r.OutputBufferLength)
	return append(head, r.FileName...), nil
}

func (r *QueryDirectoryRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 32 {
		return errShort("query directory request")
	}
	le := binary.LittleEndian
	r.FileInformationClass = buf[2]
	r.Flags = buf[3]
	r.FileIndex = le.Uint32(buf[4:8])
	r.FileID = decodeFileID(buf[8:24])
	nameOff := int(le.Uint16(buf[24:26]))
	nameLen := int(le.Uint16(buf[26:28]))
	r.OutputBufferLength = le.Uint32(buf[28:32])
	if rel := nameOff - SMB2HeaderLen; rel >= 0 && rel+nameLen <= len(buf) {
		r.FileName = append([]byte(nil), buf[rel:rel+nameLen]...)
	}
	return nil
}

type QueryDirectoryResponse struct {
	Data []byte // concatenated FILE_*_INFORMATION entries, opaque to the core
}

func (r *QueryDirectoryResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	le.PutUint16(head[2:4], uint16(SMB2HeaderLen+8))
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	return append(head, r.Data...), nil
}

func (r *QueryDirectoryResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("query directory response")
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

// QueryInfoRequest/Response, MS-SMB2 2.2.37/2.2.38.
type QueryInfoRequest struct {
	InfoType             uint8
	FileInformationClass uint8
	OutputBufferLength   uint32
	AdditionalInformation uint32
	Flags                uint32
	FileID               FileID
	InputBuffer          []byte
}

func (r *QueryInfoRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	inputOff := SMB2HeaderLen + 40
	head := make([]byte, 40)
	le.PutUint16(head[0:2], 41)
	head[2] = r.InfoType
	head[3] = r.FileInformationClass
	le.PutUint32(head[4:8], r.OutputBufferLength)
	le.PutUint16(head[8:10], uint16(inputOff))
	le.PutUint32(head[12:16], uint32(len(r.InputBuffer)))
	le.PutUint32(head[16:20], r.AdditionalInformation)
	le.PutUint32(head[20:24], r.Flags)
	r.FileID.Encode(head[24:40])
	return append(head, r.InputBuffer...), nil
}

func (r *QueryInfoRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 40 {
		return errShort("query info request")
	}
	le := binary.LittleEndian
	r.InfoType = buf[2]
	r.FileInformationClass = buf[3]
	r.OutputBufferLength = le.Uint32(buf[4:8])
	inOff := int(le.Uint16(buf[8:10]))
	inLen := int(le.Uint32(buf[12:16]))
	r.AdditionalInformation = le.Uint32(buf[16:20])
	r.Flags = le.Uint32(buf[20:24])
	r.FileID = decodeFileID(buf[24:40])
	if rel := inOff - SMB2HeaderLen; inLen > 0 && rel >= 0 && rel+inLen <= len(buf) {
		r.InputBuffer = append([]byte(nil), buf[rel:rel+inLen]...)
	}
	return nil
}

type QueryInfoResponse struct {
	Data []byte
}

func (r *QueryInfoResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	head := make([]byte, 8)
	le.PutUint16(head[0:2], 9)
	le.PutUint16(head[2:4], uint16(SMB2HeaderLen+8))
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	return append(head, r.Data...), nil
}

func (r *QueryInfoResponse) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 8 {
		return errShort("query info response")
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

// SetInfoRequest/Response, MS-SMB2 2.2.39/2.2.40.
type SetInfoRequest struct {
	InfoType             uint8
	FileInformationClass uint8
	AdditionalInformation uint32
	FileID               FileID
	Data                 []byte
}

func (r *SetInfoRequest) MarshalBinary(meta *Metadata) ([]byte, error) {
	le := binary.LittleEndian
	dataOff := SMB2HeaderLen + 32
	head := make([]byte, 32)
	le.PutUint16(head[0:2], 33)
	head[2] = r.InfoType
	head[3] = r.FileInformationClass
	le.PutUint32(head[4:8], uint32(len(r.Data)))
	le.PutUint16(head[8:10], uint16(dataOff))
	le.PutUint32(head[12:16], r.AdditionalInformation)
	r.FileID.Encode(head[16:32])
	return append(head, r.Data...), nil
}

func (r *SetInfoRequest) UnmarshalBinary(buf []byte, meta *Metadata) error {
	if len(buf) < 32 {
		return errShort("set info request")
	}
	le := binary.LittleEndian
	r.InfoType = buf[2]
	r.FileInformationClass = buf[3]
	dataLen := int(le.Uint32(buf[4:8]))
	dataOff := int(le.Uint16(buf[8:10]))
	r.AdditionalInformation = le.Uint32(buf[12:16])
	r.FileID = decodeFileID(buf[16:32])
	if rel := dataOff - SMB2HeaderLen; rel >= 0 && rel+dataLen <= len(buf) {
		r.Data = append([]byte(nil), buf[rel:rel+dataLen]...)
	}
	return nil
}

type SetInfoResponse struct{}

func (r *SetInfoResponse) MarshalBinary(meta *Metadata) ([]byte, error) {
	return []byte{0x02, 0x00, 0x00, 0x00}, nil
}
func (r *SetInfoResponse) UnmarshalBinary(buf []byte, meta *Metadata) error { return nil }
