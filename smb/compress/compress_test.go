package compress

import (
	"bytes"
	"testing"

	"github.com/ericblavier/go-smb3/smb/encoder"
)

func TestPatternRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x41}, 64)
	pattern, count, ok := ScanPattern(data)
	if !ok {
		t.Fatal("ScanPattern did not find the run")
	}
	if pattern != 0x41 || count != 64 {
		t.Fatalf("pattern=%x count=%d, want 0x41/64", pattern, count)
	}

	payload := EncodePatternPayload(pattern, uint32(count))
	expanded, err := DecodePatternPayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(expanded, data) {
		t.Fatalf("expanded run mismatch")
	}
}

func TestScanPatternRejectsShortRuns(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 10)
	if _, _, ok := ScanPattern(data); ok {
		t.Fatal("ScanPattern accepted a run shorter than the minimum")
	}
}

func TestCompressorFlatRoundTrip(t *testing.T) {
	c := Compressor{Algorithm: encoder.CompressLZ77}
	body := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 40)

	wire, ok, err := c.Compress(body)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !ok {
		t.Fatal("expected a highly repetitive payload to compress")
	}

	got, err := Decompress(wire)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(body))
	}
}

func TestCompressorSkipsSmallPayloads(t *testing.T) {
	c := Compressor{Algorithm: encoder.CompressLZ77}
	body := []byte("too small to bother")
	_, ok, err := c.Compress(body)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if ok {
		t.Fatal("expected small payload to skip compression")
	}
}

func TestCompressorNoneAlgorithmNeverCompresses(t *testing.T) {
	c := Compressor{Algorithm: encoder.CompressNone}
	body := bytes.Repeat([]byte{0x01}, 4096)
	if c.ShouldCompress(body) {
		t.Fatal("CompressNone should never trigger compression")
	}
}
