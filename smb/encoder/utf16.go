package encoder

import "unicode/utf16"

// EncodeUTF16LE encodes s as SMB2's wire string form: UTF-16LE, no BOM,
// no terminator (paths and names carry an explicit length field instead).
func EncodeUTF16LE(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, len(u)*2)
	for i, r := range u {
		out[i*2] = byte(r)
		out[i*2+1] = byte(r >> 8)
	}
	return out
}

// DecodeUTF16LE reverses EncodeUTF16LE.
func DecodeUTF16LE(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	return string(utf16.Decode(u))
}
