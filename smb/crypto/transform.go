package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"github.com/ericblavier/go-smb3/smb/encoder"
)

// Cipher IDs, MS-SMB2 2.2.3.1.2.
const (
	CipherAES128CCM uint16 = 0x0001
	CipherAES128GCM uint16 = 0x0002
	CipherAES256CCM uint16 = 0x0003
	CipherAES256GCM uint16 = 0x0004
)

const (
	ccmNonceLen = 11
	gcmNonceLen = 12
	tagLen      = 16
)

// KeyBitsForCipher returns the session key length a cipher requires.
func KeyBitsForCipher(cipherID uint16) uint32 {
	switch cipherID {
	case CipherAES256CCM, CipherAES256GCM:
		return 256
	default:
		return 128
	}
}

func sealAEAD(cipherID uint16, key, nonce, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	switch cipherID {
	case CipherAES128CCM, CipherAES256CCM:
		c, err := newCCM(block, ccmNonceLen, tagLen)
		if err != nil {
			return nil, err
		}
		return c.Seal(nil, nonce[:ccmNonceLen], plaintext, aad), nil
	case CipherAES128GCM, CipherAES256GCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return aead.Seal(nil, nonce[:gcmNonceLen], plaintext, aad), nil
	default:
		return nil, errors.New("crypto: unsupported cipher id")
	}
}

func openAEAD(cipherID uint16, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	switch cipherID {
	case CipherAES128CCM, CipherAES256CCM:
		c, err := newCCM(block, ccmNonceLen, tagLen)
		if err != nil {
			return nil, err
		}
		return c.Open(nil, nonce[:ccmNonceLen], ciphertext, aad)
	case CipherAES128GCM, CipherAES256GCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return aead.Open(nil, nonce[:gcmNonceLen], ciphertext, aad)
	default:
		return nil, errors.New("crypto: unsupported cipher id")
	}
}

// EncryptMessage wraps a plain SMB2 message (header + body, already
// encoded) in a TRANSFORM_HEADER using the given cipher and per-direction
// encryption key (MS-SMB2 3.1.4.3). The nonce is drawn from crypto/rand.
func EncryptMessage(cipherID uint16, key []byte, sessionID uint64, message []byte) ([]byte, error) {
	var nonce [16]byte
	n := ccmNonceLen
	if cipherID == CipherAES128GCM || cipherID == CipherAES256GCM {
		n = gcmNonceLen
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:n]); err != nil {
		return nil, err
	}

	th := &encoder.TransformHeader{
		Nonce:        nonce,
		OriginalSize: uint32(len(message)),
		Flags:        encoder.TransformFlagEncrypted,
		SessionID:    sessionID,
	}
	aad := th.AAD()

	sealed, err := sealAEAD(cipherID, key, nonce[:], message, aad)
	if err != nil {
		return nil, err
	}
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]
	copy(th.Signature[:], tag)

	out := th.Encode()
	return append(out, ciphertext...), nil
}

// DecryptMessage reverses EncryptMessage given the full wire buffer
// (transform header followed by ciphertext) and the per-direction
// decryption key.
func DecryptMessage(cipherID uint16, key []byte, buf []byte) ([]byte, error) {
	th, err := encoder.DecodeTransformHeader(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < encoder.TransformHeaderLen {
		return nil, errors.New("crypto: transform message too short")
	}
	ciphertext := buf[encoder.TransformHeaderLen:]
	sealed := append(append([]byte(nil), ciphertext...), th.Signature[:]...)

	n := ccmNonceLen
	if cipherID == CipherAES128GCM || cipherID == CipherAES256GCM {
		n = gcmNonceLen
	}
	plaintext, err := openAEAD(cipherID, key, th.Nonce[:n], sealed, th.AAD())
	if err != nil {
		return nil, err
	}
	if uint32(len(plaintext)) != th.OriginalSize {
		return nil, errors.New("crypto: decrypted length mismatch")
	}
	return plaintext, nil
}
