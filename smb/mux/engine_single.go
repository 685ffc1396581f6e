//go:build go-smb3-singlethread

package mux

import (
	"context"
	"sync"

	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/transport"
)

// singleThreadEngine implements the third execution model from the spec:
// no sender/receiver goroutines at all. Send blocks the calling goroutine
// for the full write-then-read round trip, and only one request can be in
// flight at a time — callers serialize themselves via mu. This trades
// away pipelining for a deterministic, single-goroutine call stack, which
// is what that model is for (e.g. embedding in an environment that
// disallows extra goroutines).
type singleThreadEngine struct {
	mu      sync.Mutex
	t       transport.Transport
	credits *CreditPool
	seq        uint64
	signer     Signer
	sealer     Sealer
	compressor Compressor
	closed     bool
}

func newSingleThreadEngine(t transport.Transport, initialCredits int) *singleThreadEngine {
	return &singleThreadEngine{t: t, credits: NewCreditPool(initialCredits)}
}

// NewEngine builds the single-threaded call-and-block engine.
func NewEngine(t transport.Transport, initialCredits int) Engine {
	return newSingleThreadEngine(t, initialCredits)
}

func (e *singleThreadEngine) SetSigner(signer Signer) {
	e.mu.Lock()
	e.signer = signer
	e.mu.Unlock()
}

func (e *singleThreadEngine) SetSealer(sealer Sealer) {
	e.mu.Lock()
	e.sealer = sealer
	e.mu.Unlock()
}

func (e *singleThreadEngine) SetCompressor(compressor Compressor) {
	e.mu.Lock()
	e.compressor = compressor
	e.mu.Unlock()
}

func (e *singleThreadEngine) Send(ctx context.Context, msg []byte, creditsNeeded uint16) ([]byte, error) {
	if err := e.credits.Reserve(ctx, creditsNeeded); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	msgID := e.seq
	e.seq += uint64(creditsNeeded)

	encoder.SetMessageID(msg, msgID)
	encoder.SetCredits(msg, creditsNeeded, e.credits.RequestAmount())
	if e.sealer == nil && e.signer != nil {
		encoder.ZeroSignature(msg)
		sig := e.signer.Sign(msg)
		encoder.SetSigned(msg, sig[:])
	}
	if e.compressor != nil {
		if compressed, ok, err := e.compressor.TryCompress(msg); err != nil {
			return nil, err
		} else if ok {
			msg = compressed
		}
	}
	if e.sealer != nil {
		sealed, err := e.sealer.Seal(msg)
		if err != nil {
			return nil, err
		}
		msg = sealed
	}

	if err := e.t.WriteMessage(msg); err != nil {
		return nil, err
	}

	// Unlike the concurrent engine, Send here holds mu for the whole
	// round trip and blocks directly in ReadMessage — there's no
	// receiver goroutine to race a CANCEL write against, so ctx
	// cancellation can't interrupt an in-flight read (the call only
	// returns once the transport itself errors or answers). Cancel is
	// still reachable from a second goroutine, but since it also takes
	// mu it can only run once this Send call has already returned.
	for {
		resp, err := e.t.ReadMessage()
		if err != nil {
			return nil, err
		}
		if encoder.IsTransformed(resp) {
			if e.sealer == nil {
				continue
			}
			plain, err := e.sealer.Unseal(resp)
			if err != nil {
				continue
			}
			resp = plain
		}
		if encoder.IsCompressed(resp) {
			if e.compressor == nil {
				continue
			}
			plain, err := e.compressor.Decompress(resp)
			if err != nil {
				continue
			}
			resp = plain
		}
		view, ok := encoder.ViewHeader(resp)
		if !ok {
			continue
		}
		e.credits.Grant(view.Credits)
		if view.MessageID != msgID {
			continue // out-of-order traffic the single-threaded model doesn't pipeline
		}
		if view.Status == uint32(encoder.StatusPending) {
			continue // interim response, keep waiting for the final one
		}
		return resp, nil
	}
}

func (e *singleThreadEngine) Cancel(ctx context.Context, messageID uint64) error {
	var cancel encoder.CancelRequest
	body, err := cancel.MarshalBinary(nil)
	if err != nil {
		return err
	}
	buf := make([]byte, encoder.SMB2HeaderLen+len(body))
	h := encoder.Header{Command: encoder.CmdCancel, MessageID: messageID}
	h.Encode(buf)
	copy(buf[encoder.SMB2HeaderLen:], body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return e.t.WriteMessage(buf)
}

func (e *singleThreadEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.credits.Close(ErrEngineClosed)
	return e.t.Close()
}
