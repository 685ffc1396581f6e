package mux

import (
	"context"
	"errors"
)

var (
	ErrEngineClosed       = errors.New("mux: engine closed")
	ErrCancelled          = errors.New("mux: request cancelled")
	ErrNotFound           = errors.New("mux: no outstanding request for that id")
	ErrSignatureMismatch  = errors.New("mux: response signature verification failed")
)

// Engine multiplexes SMB2 requests over one transport.Transport. A caller
// hands it a fully-encoded message minus MessageId/CreditCharge/Credits
// (the engine fills those in so it can keep the sequence window and
// credit accounting consistent across concurrent callers); it returns the
// matching response body once received.
type Engine interface {
	// Send assigns a MessageId (or range, for compound requests) and
	// credit charge to msg, transmits it, and blocks for its response.
	// creditsNeeded is the charge this request consumes; how many
	// credits to request back is decided by the engine's credit pool.
	Send(ctx context.Context, msg []byte, creditsNeeded uint16) ([]byte, error)

	// Cancel sends a CANCEL for the given outstanding MessageId.
	Cancel(ctx context.Context, messageID uint64) error

	// Close tears down the engine and fails every outstanding request.
	Close() error

	// SetSigner installs (or, with nil, removes) the signer used to sign
	// outgoing messages once a session key is available. Messages sent
	// before a session is established (NEGOTIATE, the first
	// SESSION_SETUP) are never signed.
	SetSigner(signer Signer)

	// SetSealer installs (or, with nil, removes) the transform-header
	// encryptor. While a sealer is installed, every Send is encrypted.
	// A sealed message is never also signed: the AEAD tag already
	// authenticates it (MS-SMB2 3.1.4.3), so a non-nil sealer takes
	// priority over a signer for every Send call.
	SetSealer(sealer Sealer)

	// SetCompressor installs (or, with nil, removes) the opportunistic
	// compressor applied to outgoing messages after signing but before
	// sealing (MS-SMB2 3.1.4.4: sign or leave plain, then compress, then
	// encrypt last so the transform header's AAD covers the compressed
	// bytes).
	SetCompressor(compressor Compressor)
}

// Signer abstracts message signing so the engine doesn't need to import
// smb/crypto directly (avoiding a dependency a single-threaded, unsigned
// debug engine might not want).
type Signer interface {
	Sign(message []byte) [16]byte
	Verify(message []byte) bool
}

// Sealer abstracts the SMB3 TRANSFORM_HEADER encrypt/decrypt transform for
// the same reason Signer does: the engine only needs to wrap and unwrap
// whole messages, not know how the keys behind that were derived.
type Sealer interface {
	Seal(message []byte) ([]byte, error)
	Unseal(wire []byte) ([]byte, error)
}

// Compressor abstracts the SMB3 opportunistic compression transform for
// the same reason Signer/Sealer do. TryCompress reports ok=false when it
// decided not to compress (too small, not worth it), in which case the
// engine sends message unmodified.
type Compressor interface {
	TryCompress(message []byte) (wire []byte, ok bool, err error)
	Decompress(wire []byte) ([]byte, error)
}

// NewEngine builds this build's Engine implementation. The default build
// (engine_concurrent.go) is the goroutine+channel engine, which satisfies
// both the "Cooperative" and "Parallel blocking" execution models from the
// spec — Go's own goroutine scheduler already differentiates those by
// GOMAXPROCS (see SPEC_FULL.md). Building with the go-smb3-singlethread
// tag instead swaps in engine_single.go's call-and-block engine for the
// third model.
