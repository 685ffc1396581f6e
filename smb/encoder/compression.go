package encoder

import "encoding/binary"

// Compression algorithm IDs, MS-SMB2 2.2.3.1.3.
const (
	CompressNone      uint16 = 0x0000
	CompressLZNT1     uint16 = 0x0001
	CompressLZ77      uint16 = 0x0002
	CompressLZ77Huff  uint16 = 0x0003
	CompressPatternV1 uint16 = 0x0004 // RLE pattern scan, used only in chained form
)

const CompressionChainedFlag uint16 = 0x0001

// CompressionTransformHeader is the unchained 16-byte
// COMPRESSION_TRANSFORM_HEADER, used when the whole payload is compressed
// with a single algorithm.
type CompressionTransformHeader struct {
	OriginalSize uint32
	Algorithm    uint16
	Offset       uint32 // bytes of the payload left uncompressed, from the start
}

func (h *CompressionTransformHeader) Encode() []byte {
	buf := make([]byte, 16)
	be := binary.BigEndian
	le := binary.LittleEndian
	be.PutUint32(buf[0:4], CompressionProtoID)
	le.PutUint32(buf[4:8], h.OriginalSize)
	le.PutUint16(buf[8:10], h.Algorithm)
	// bytes 10:12 reserved/flags = 0 (unchained)
	le.PutUint32(buf[12:16], h.Offset)
	return buf
}

func DecodeCompressionTransformHeader(buf []byte) (*CompressionTransformHeader, error) {
	if len(buf) < 16 {
		return nil, errShort("compression transform header")
	}
	le := binary.LittleEndian
	return &CompressionTransformHeader{
		OriginalSize: le.Uint32(buf[4:8]),
		Algorithm:    le.Uint16(buf[8:10]),
		Offset:       le.Uint32(buf[12:16]),
	}, nil
}

// CompressionPayloadHeader is one 8-byte entry in a chained compressed
// payload (MS-SMB2 2.2.42.2), preceding each compressed (or, for the
// original-payload chunk, raw) segment.
type CompressionPayloadHeader struct {
	Algorithm uint16
	Length    uint32
}

func (h *CompressionPayloadHeader) Encode() []byte {
	buf := make([]byte, 8)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], h.Algorithm)
	le.PutUint32(buf[4:8], h.Length)
	return buf
}

func DecodeCompressionPayloadHeader(buf []byte) (*CompressionPayloadHeader, error) {
	if len(buf) < 8 {
		return nil, errShort("compression payload header")
	}
	le := binary.LittleEndian
	return &CompressionPayloadHeader{
		Algorithm: le.Uint16(buf[0:2]),
		Length:    le.Uint32(buf[4:8]),
	}, nil
}

// ChainedCompressionHeader is the 24-byte header used when multiple
// compression transforms are chained (MS-SMB2 2.2.42.1, variant 2).
type ChainedCompressionHeader struct {
	OriginalSize uint32
	CompressionPayloadHeader
}

func (h *ChainedCompressionHeader) Encode() []byte {
	buf := make([]byte, 24)
	be := binary.BigEndian
	le := binary.LittleEndian
	be.PutUint32(buf[0:4], CompressionProtoID)
	le.PutUint32(buf[4:8], h.OriginalSize)
	le.PutUint16(buf[10:12], CompressionChainedFlag)
	copy(buf[16:24], h.CompressionPayloadHeader.Encode())
	return buf
}

func DecodeChainedCompressionHeader(buf []byte) (*ChainedCompressionHeader, error) {
	if len(buf) < 24 {
		return nil, errShort("chained compression header")
	}
	le := binary.LittleEndian
	ph, err := DecodeCompressionPayloadHeader(buf[16:24])
	if err != nil {
		return nil, err
	}
	return &ChainedCompressionHeader{
		OriginalSize:             le.Uint32(buf[4:8]),
		CompressionPayloadHeader: *ph,
	}, nil
}
