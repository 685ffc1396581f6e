package crypto

import "crypto/sha512"

// PreauthHash is the running SHA-512 digest over every NEGOTIATE and
// SESSION_SETUP message exchanged before the session key is available
// (MS-SMB2 3.1.4.2, preauth integrity). It starts all-zero and is folded
// forward one message at a time; dialects below 3.1.1 never use it.
type PreauthHash struct {
	value [64]byte
}

// Update folds one message's bytes into the running hash:
// H_new = SHA-512(H_old || message).
func (p *PreauthHash) Update(message []byte) {
	h := sha512.New()
	h.Write(p.value[:])
	h.Write(message)
	copy(p.value[:], h.Sum(nil))
}

// Value returns the current digest.
func (p *PreauthHash) Value() [64]byte {
	return p.value
}

// PreauthHashFrom rebuilds a PreauthHash from a previously captured
// digest (negotiate.Result.PreauthHash), so a session can be seeded from
// the connection's post-NEGOTIATE hash instead of restarting at zero.
func PreauthHashFrom(value [64]byte) PreauthHash {
	return PreauthHash{value: value}
}

// Reset returns the hash to its initial all-zero state, e.g. when
// restarting a negotiate after a dialect mismatch.
func (p *PreauthHash) Reset() {
	p.value = [64]byte{}
}
