// Package crypto implements the key derivation, signing, and AEAD
// transforms that SMB 3.x sessions need once NEGOTIATE/SESSION_SETUP have
// produced a session key: SP800-108 counter-mode key derivation, the three
// SMB2 signing algorithms, AES-CCM/AES-GCM message transforms, and the
// running SHA-512 preauth integrity hash.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// KeyPurpose identifies which of the four session keys is being derived.
type KeyPurpose uint8

const (
	PurposeSigning KeyPurpose = iota
	PurposeEncryption
	PurposeDecryption
	PurposeApplication
)

// Dialect mirrors the wire dialect revisions relevant to key derivation;
// kept local to avoid an import cycle with smb/encoder's larger constant
// set (only the 3.0/3.1.1 split matters here).
type Dialect uint16

const (
	Dialect300 Dialect = 0x0300
	Dialect302 Dialect = 0x0302
	Dialect311 Dialect = 0x0311
)

// DeriveKey implements SP800-108 counter-mode KDF with an HMAC-SHA256 PRF
// (MS-SMB2 3.1.4.2). SMB3 always needs a single PRF output (256 bits), so
// the counter is fixed at 1 and the result is truncated to keyLenBits.
func DeriveKey(ki, label, context []byte, keyLenBits uint32) []byte {
	h := hmac.New(sha256.New, ki)

	var counter [4]byte
	binary.BigEndian.PutUint32(counter[:], 1)
	h.Write(counter[:])
	h.Write(label)
	h.Write([]byte{0x00})
	h.Write(context)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], keyLenBits)
	h.Write(length[:])

	sum := h.Sum(nil)
	return sum[:keyLenBits/8]
}

// Label/context constants, MS-SMB2 3.1.4.2. Each label byte string
// includes its null terminator.
var (
	label30Signing    = []byte("SMB2AESCMAC\x00")
	label30Encryption = []byte("SMB2AESCCM\x00")
	label30Decryption = []byte("SMB2AESCCM\x00")
	label30App        = []byte("SMB2APP\x00")

	ctx30Signing    = []byte("SmbSign\x00")
	ctx30Encryption = []byte("ServerIn \x00")
	ctx30Decryption = []byte("ServerOut\x00")
	ctx30App        = []byte("SmbRpc\x00")

	label311Signing    = []byte("SMBSigningKey\x00")
	label311Encryption = []byte("SMBC2SCipherKey\x00")
	label311Decryption = []byte("SMBS2CCipherKey\x00")
	label311App        = []byte("SMBAppKey\x00")
)

// LabelAndContext returns the label/context pair for a key purpose under a
// given dialect. For 3.1.1 the context is always the running preauth
// integrity hash; for 3.0/3.0.2 it's a fixed string.
func LabelAndContext(purpose KeyPurpose, dialect Dialect, preauthHash [64]byte) (label, context []byte) {
	if dialect == Dialect311 {
		ctx := append([]byte(nil), preauthHash[:]...)
		switch purpose {
		case PurposeSigning:
			return label311Signing, ctx
		case PurposeEncryption:
			return label311Encryption, ctx
		case PurposeDecryption:
			return label311Decryption, ctx
		case PurposeApplication:
			return label311App, ctx
		}
	}
	switch purpose {
	case PurposeSigning:
		return label30Signing, ctx30Signing
	case PurposeEncryption:
		return label30Encryption, ctx30Encryption
	case PurposeDecryption:
		return label30Decryption, ctx30Decryption
	case PurposeApplication:
		return label30App, ctx30App
	}
	return nil, nil
}

// SessionKeys holds every key derived from the session key once a dialect
// and cipher are known. DeriveSessionKeys fills all four keys whether or
// not a cipher was negotiated; smb/session derives them only for dialect
// 3.0 and later, so below that every field stays nil.
type SessionKeys struct {
	Dialect    Dialect
	KeyBits    uint32 // 128 or 256, per negotiated cipher
	Signing    []byte
	Encryption []byte
	Decryption []byte
	Application []byte
}

// DeriveSessionKeys derives all four keys from the session key in one call.
// preauthHash is only consulted for dialect 3.1.1.
func DeriveSessionKeys(sessionKey []byte, dialect Dialect, keyBits uint32, preauthHash [64]byte) SessionKeys {
	derive := func(p KeyPurpose) []byte {
		label, ctx := LabelAndContext(p, dialect, preauthHash)
		return DeriveKey(sessionKey, label, ctx, keyBits)
	}
	return SessionKeys{
		Dialect:     dialect,
		KeyBits:     keyBits,
		Signing:     derive(PurposeSigning),
		Encryption:  derive(PurposeEncryption),
		Decryption:  derive(PurposeDecryption),
		Application: derive(PurposeApplication),
	}
}
