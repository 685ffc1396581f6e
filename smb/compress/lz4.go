package compress

import (
	"errors"

	"github.com/pierrec/lz4/v4"
)

// CompressLZ4 compresses src as a single LZ4 block (no frame container —
// SMB2 carries the uncompressed size separately in the transform header,
// so the LZ4 frame format's own bookkeeping would be redundant).
func CompressLZ4(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible input: CompressBlock reports 0 rather than
		// growing the output: the caller falls back to sending it raw.
		return nil, errors.New("compress: lz4 block did not shrink the input")
	}
	return dst[:n], nil
}

// DecompressLZ4 expands an LZ4 block compressed by CompressLZ4 back to
// its known original size.
func DecompressLZ4(src []byte, originalSize int) ([]byte, error) {
	dst := make([]byte, originalSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
