package crypto

import (
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"testing"
)

// TestCCMRoundTrip checks the hand-rolled CCM core with SMB2's own
// parameters (11-byte nonce, 16-byte tag) by a seal/open round trip with a
// fixed key/nonce/associated data, plus tamper detection. It compares no
// published ciphertext, since the SMB2 parameter set (L=4, M=16) is not
// one of RFC 3610's published vectors.
func TestCCMRoundTrip(t *testing.T) {
	key, _ := hex.DecodeString("404142434445464748494a4b4c4d4e4f")
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	c, err := newCCM(block, 11, 16)
	if err != nil {
		t.Fatal(err)
	}
	nonce := bytes.Repeat([]byte{0x01}, 11)
	aad := []byte("associated-data-aad-header")
	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad past one block")

	sealed := c.Seal(nil, nonce, plaintext, aad)
	if len(sealed) != len(plaintext)+16 {
		t.Fatalf("sealed length = %d, want %d", len(sealed), len(plaintext)+16)
	}

	opened, err := c.Open(nil, nonce, sealed, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q", opened)
	}

	// Tampering with either ciphertext or AAD must be detected.
	tampered := append([]byte(nil), sealed...)
	tampered[0] ^= 0xff
	if _, err := c.Open(nil, nonce, tampered, aad); err == nil {
		t.Fatal("Open accepted a tampered ciphertext")
	}
	if _, err := c.Open(nil, nonce, sealed, append(aad, 0)); err == nil {
		t.Fatal("Open accepted mismatched AAD")
	}
}

func TestEncryptDecryptMessageGCM(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	message := append(make([]byte, 64), []byte("session setup payload")...)

	wire, err := EncryptMessage(CipherAES128GCM, key, 0x1122334455667788, message)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := DecryptMessage(CipherAES128GCM, key, wire)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(plain, message) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEncryptDecryptMessageCCM(t *testing.T) {
	key := bytes.Repeat([]byte{0x24}, 16)
	message := append(make([]byte, 64), []byte("create request payload")...)

	wire, err := EncryptMessage(CipherAES128CCM, key, 7, message)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := DecryptMessage(CipherAES128CCM, key, wire)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(plain, message) {
		t.Fatalf("round trip mismatch")
	}

	// Wrong key must fail authentication, not silently decrypt garbage.
	wrongKey := bytes.Repeat([]byte{0x25}, 16)
	if _, err := DecryptMessage(CipherAES128CCM, wrongKey, wire); err == nil {
		t.Fatal("decrypt succeeded with the wrong key")
	}
}

func makeHeader(messageID uint64) []byte {
	buf := make([]byte, 64)
	copy(buf[0:4], []byte{0xfe, 'S', 'M', 'B'})
	// bytes 24:32 are MessageId, little-endian
	for i := 0; i < 8; i++ {
		buf[24+i] = byte(messageID >> (8 * i))
	}
	return buf
}

func TestHMACSignerRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	s := NewHMACSigner(key)
	msg := makeHeader(1)
	SignMessage(s, msg)
	if !s.Verify(msg) {
		t.Fatal("HMAC signer failed to verify its own signature")
	}
	msg[0] ^= 1
	if s.Verify(msg) {
		t.Fatal("HMAC signer verified a tampered message")
	}
}

func TestCMACSignerRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 16)
	s := NewCMACSigner(key)
	if s == nil {
		t.Fatal("NewCMACSigner returned nil")
	}
	msg := makeHeader(2)
	SignMessage(s, msg)
	if !s.Verify(msg) {
		t.Fatal("CMAC signer failed to verify its own signature")
	}
	msg[63] ^= 1
	if s.Verify(msg) {
		t.Fatal("CMAC signer verified a tampered message")
	}
}

func TestCMACSubkeyDerivation(t *testing.T) {
	// RFC 4493 §4 test vector: AES-128 key all-zero subkeys.
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	s := NewCMACSigner(key)
	if s == nil {
		t.Fatal("NewCMACSigner returned nil")
	}
	wantK1, _ := hex.DecodeString("fbeed618357133667c85e08f7236a8de")
	wantK2, _ := hex.DecodeString("f7ddac306ae266ccf90bc11ee46d513b")
	if !bytes.Equal(s.k1[:], wantK1) {
		t.Fatalf("K1 = %x, want %x", s.k1, wantK1)
	}
	if !bytes.Equal(s.k2[:], wantK2) {
		t.Fatalf("K2 = %x, want %x", s.k2, wantK2)
	}
}

func TestGMACSignerRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 16)
	s := NewGMACSigner(key)
	if s == nil {
		t.Fatal("NewGMACSigner returned nil")
	}
	msg := makeHeader(3)
	SignMessage(s, msg)
	if !s.Verify(msg) {
		t.Fatal("GMAC signer failed to verify its own signature")
	}
}

func TestDeriveKeyDialect311UsesPreauthHash(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x55}, 16)
	var hash [64]byte
	copy(hash[:], bytes.Repeat([]byte{0x66}, 64))

	keysA := DeriveSessionKeys(sessionKey, Dialect311, 128, hash)
	hash[0] ^= 1
	keysB := DeriveSessionKeys(sessionKey, Dialect311, 128, hash)

	if bytes.Equal(keysA.Signing, keysB.Signing) {
		t.Fatal("changing the preauth hash did not change the derived signing key")
	}
}

func TestDeriveKeyDialect300IsHashIndependent(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x77}, 16)
	var h1, h2 [64]byte
	h2[0] = 1

	keysA := DeriveSessionKeys(sessionKey, Dialect300, 128, h1)
	keysB := DeriveSessionKeys(sessionKey, Dialect300, 128, h2)
	if !bytes.Equal(keysA.Signing, keysB.Signing) {
		t.Fatal("3.0 key derivation should not depend on the preauth hash")
	}
}

func TestPreauthHashIsOrderSensitive(t *testing.T) {
	var a, b PreauthHash
	a.Update([]byte("negotiate"))
	a.Update([]byte("session-setup-1"))

	b.Update([]byte("session-setup-1"))
	b.Update([]byte("negotiate"))

	if a.Value() == b.Value() {
		t.Fatal("preauth hash should be sensitive to message order")
	}
}
