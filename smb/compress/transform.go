package compress

import (
	"errors"

	"github.com/ericblavier/go-smb3/smb/encoder"
)

// MinCompressibleSize is the opportunistic-compression threshold: messages
// smaller than this are sent uncompressed regardless of negotiated
// algorithms, since the transform header overhead would outweigh any
// savings (MS-SMB2 3.1.4.4, client compression policy is implementation
// defined; this mirrors the common conservative default).
const MinCompressibleSize = 512

// Compressor applies the negotiated compression algorithm to outgoing
// message bodies and reverses it on receipt. A zero-value Compressor with
// Algorithm == encoder.CompressNone passes every message through
// unmodified.
type Compressor struct {
	Algorithm uint16
}

// ShouldCompress applies the opportunistic-compression size policy.
func (c Compressor) ShouldCompress(body []byte) bool {
	return c.Algorithm != encoder.CompressNone && len(body) >= MinCompressibleSize
}

// Compress wraps body in a flat COMPRESSION_TRANSFORM_HEADER if it is
// worth compressing, returning the original body unchanged (with ok=false)
// otherwise.
func (c Compressor) Compress(body []byte) (wire []byte, ok bool, err error) {
	if !c.ShouldCompress(body) {
		return body, false, nil
	}

	var compressed []byte
	switch c.Algorithm {
	case encoder.CompressLZ77, encoder.CompressLZ77Huff, encoder.CompressLZNT1:
		// LZNT1 and LZ77(+Huffman) are substituted with LZ4 block
		// compression (see DESIGN.md) — no pack library implements either
		// real Windows compression algorithm, and the transform header
		// doesn't distinguish "which LZ4-family coder" from a correctness
		// standpoint as long as encode/decode agree.
		compressed, err = CompressLZ4(body)
	default:
		return body, false, errors.New("compress: unsupported algorithm for flat transform")
	}
	if err != nil {
		// incompressible payload: not an error condition for the caller,
		// just send it uncompressed.
		return body, false, nil
	}
	if len(compressed) >= len(body) {
		return body, false, nil
	}

	th := &encoder.CompressionTransformHeader{
		OriginalSize: uint32(len(body)),
		Algorithm:    c.Algorithm,
		Offset:       0,
	}
	return append(th.Encode(), compressed...), true, nil
}

// Decompress reverses Compress given a buffer that ViewHeader/IsCompressed
// identified as carrying a COMPRESSION_TRANSFORM_HEADER. It handles both
// the flat (16-byte) and chained (24-byte) forms.
func Decompress(buf []byte) ([]byte, error) {
	if len(buf) < 16 {
		return nil, errors.New("compress: buffer too short for a compression header")
	}
	flags := uint16(buf[10]) | uint16(buf[11])<<8
	if flags&encoder.CompressionChainedFlag != 0 {
		return decompressChained(buf)
	}
	th, err := encoder.DecodeCompressionTransformHeader(buf)
	if err != nil {
		return nil, err
	}
	payload := buf[16:]
	plain := payload[:th.Offset]
	toExpand := payload[th.Offset:]

	var expanded []byte
	switch th.Algorithm {
	case encoder.CompressNone:
		expanded = toExpand
	default:
		expanded, err = DecompressLZ4(toExpand, int(th.OriginalSize)-int(th.Offset))
		if err != nil {
			return nil, err
		}
	}
	return append(append([]byte(nil), plain...), expanded...), nil
}

// decompressChained walks a 24-byte ChainedCompressionHeader followed by
// one or more 8-byte CompressionPayloadHeader-prefixed segments, the last
// of which is always uncompressed (MS-SMB2 3.1.4.4.2).
func decompressChained(buf []byte) ([]byte, error) {
	ch, err := encoder.DecodeChainedCompressionHeader(buf)
	if err != nil {
		return nil, err
	}
	off := 24
	out := make([]byte, 0, ch.OriginalSize)
	for off < len(buf) {
		ph, err := encoder.DecodeCompressionPayloadHeader(buf[off : off+8])
		if err != nil {
			return nil, err
		}
		off += 8
		if off+int(ph.Length) > len(buf) {
			return nil, errors.New("compress: chained segment overruns buffer")
		}
		segment := buf[off : off+int(ph.Length)]
		off += int(ph.Length)

		switch ph.Algorithm {
		case encoder.CompressNone:
			out = append(out, segment...)
		case encoder.CompressPatternV1:
			expanded, err := DecodePatternPayload(segment)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		default:
			remaining := int(ch.OriginalSize) - len(out)
			expanded, err := DecompressLZ4(segment, remaining)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
	}
	return out, nil
}
