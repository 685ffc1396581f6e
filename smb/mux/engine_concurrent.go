//go:build !go-smb3-singlethread

package mux

import (
	"context"
	"sync"

	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/smb/transport"
)

// NewEngine builds the default goroutine+channel engine.
func NewEngine(t transport.Transport, initialCredits int) Engine {
	return newConcurrentEngine(t, initialCredits)
}

// concurrentEngine is the default Engine: one sender goroutine, one
// receiver goroutine, and a MessageId-keyed outstanding table, grounded on
// the conn/runSender/runReceiver pattern used by real SMB2 client
// implementations for exactly this concern (see DESIGN.md).
type concurrentEngine struct {
	t       transport.Transport
	credits *CreditPool

	seqMu  sync.Mutex
	seqNext uint64

	outstanding *outstandingTable

	write chan writeJob
	done  chan struct{}
	doneOnce sync.Once

	closeErr error
	closeMu  sync.Mutex

	signerMu sync.RWMutex
	signer   Signer

	sealerMu sync.RWMutex
	sealer   Sealer

	compressorMu sync.RWMutex
	compressor   Compressor
}

func (e *concurrentEngine) SetSigner(signer Signer) {
	e.signerMu.Lock()
	e.signer = signer
	e.signerMu.Unlock()
}

func (e *concurrentEngine) currentSigner() Signer {
	e.signerMu.RLock()
	defer e.signerMu.RUnlock()
	return e.signer
}

func (e *concurrentEngine) SetSealer(sealer Sealer) {
	e.sealerMu.Lock()
	e.sealer = sealer
	e.sealerMu.Unlock()
}

func (e *concurrentEngine) currentSealer() Sealer {
	e.sealerMu.RLock()
	defer e.sealerMu.RUnlock()
	return e.sealer
}

func (e *concurrentEngine) SetCompressor(compressor Compressor) {
	e.compressorMu.Lock()
	e.compressor = compressor
	e.compressorMu.Unlock()
}

func (e *concurrentEngine) currentCompressor() Compressor {
	e.compressorMu.RLock()
	defer e.compressorMu.RUnlock()
	return e.compressor
}

// writeJob is one transport write request, carrying its own result
// channel so two concurrent Send/Cancel callers never race over a
// shared write-result channel and misattribute each other's errors.
type writeJob struct {
	msg    []byte
	result chan error
}

func newConcurrentEngine(t transport.Transport, initialCredits int) *concurrentEngine {
	e := &concurrentEngine{
		t:           t,
		credits:     NewCreditPool(initialCredits),
		seqNext:     0,
		outstanding: newOutstandingTable(),
		write:       make(chan writeJob),
		done:        make(chan struct{}),
	}
	go e.runSender()
	go e.runReceiver()
	return e
}

func (e *concurrentEngine) nextMessageID(count uint64) uint64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	id := e.seqNext
	e.seqNext += count
	return id
}

func (e *concurrentEngine) Send(ctx context.Context, msg []byte, creditsNeeded uint16) ([]byte, error) {
	if err := e.credits.Reserve(ctx, creditsNeeded); err != nil {
		return nil, err
	}

	msgID := e.nextMessageID(uint64(creditsNeeded))
	encoder.SetMessageID(msg, msgID)
	encoder.SetCredits(msg, creditsNeeded, e.credits.RequestAmount())

	sealer := e.currentSealer()
	if sealer == nil {
		if signer := e.currentSigner(); signer != nil {
			encoder.ZeroSignature(msg)
			sig := signer.Sign(msg)
			encoder.SetSigned(msg, sig[:])
		}
	}
	if compressor := e.currentCompressor(); compressor != nil {
		if compressed, ok, err := compressor.TryCompress(msg); err != nil {
			return nil, err
		} else if ok {
			msg = compressed
		}
	}
	if sealer != nil {
		sealed, err := sealer.Seal(msg)
		if err != nil {
			return nil, err
		}
		msg = sealed
	}

	req := &pendingRequest{
		messageID: msgID,
		recv:      make(chan []byte, 1),
		err:       make(chan error, 1),
	}
	e.outstanding.add(req)

	job := writeJob{msg: msg, result: make(chan error, 1)}
	select {
	case e.write <- job:
	case <-ctx.Done():
		e.outstanding.popByMessageID(msgID)
		return nil, ctx.Err()
	case <-e.done:
		e.outstanding.popByMessageID(msgID)
		return nil, ErrEngineClosed
	}

	select {
	case werr := <-job.result:
		if werr != nil {
			e.outstanding.popByMessageID(msgID)
			return nil, werr
		}
	case <-e.done:
		return nil, ErrEngineClosed
	}

	select {
	case body := <-req.recv:
		return body, nil
	case err := <-req.err:
		return nil, err
	case <-ctx.Done():
		e.outstanding.popByMessageID(msgID)
		// The caller is no longer waiting, but the server still is: tell
		// it to stop (MS-SMB2 3.2.4.24), best-effort and detached from
		// ctx since ctx is already done.
		go e.Cancel(context.Background(), msgID)
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineClosed
	}
}

func (e *concurrentEngine) Cancel(ctx context.Context, messageID uint64) error {
	var cancel encoder.CancelRequest
	body, err := cancel.MarshalBinary(nil)
	if err != nil {
		return err
	}
	buf := make([]byte, encoder.SMB2HeaderLen+len(body))
	h := encoder.Header{Command: encoder.CmdCancel, MessageID: messageID}
	h.Encode(buf)
	copy(buf[encoder.SMB2HeaderLen:], body)

	job := writeJob{msg: buf, result: make(chan error, 1)}
	select {
	case e.write <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}
	select {
	case werr := <-job.result:
		return werr
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *concurrentEngine) Close() error {
	return e.teardown(ErrEngineClosed)
}

// teardown stops the engine for good: every outstanding and future Send
// fails with err, and the transport is closed. It's the single path both
// a caller-initiated Close and an internally detected fatal condition
// (a transport read error, or a signature verification failure) go
// through, so both leave the engine in the same dead state.
func (e *concurrentEngine) teardown(err error) error {
	e.doneOnce.Do(func() { close(e.done) })
	e.credits.Close(err)
	e.outstanding.shutdown(err)
	e.closeMu.Lock()
	if e.closeErr == nil {
		e.closeErr = err
	}
	e.closeMu.Unlock()
	return e.t.Close()
}

func (e *concurrentEngine) runSender() {
	for {
		select {
		case <-e.done:
			return
		case job := <-e.write:
			err := e.t.WriteMessage(job.msg)
			select {
			case job.result <- err:
			case <-e.done:
				return
			}
		}
	}
}

func (e *concurrentEngine) runReceiver() {
	for {
		buf, err := e.t.ReadMessage()
		if err != nil {
			e.teardown(err)
			return
		}
		if fatal := e.dispatch(buf); fatal {
			return
		}
	}
}

// dispatch decodes and routes one inbound message, returning true if it
// found a fatal protocol violation and already tore the engine down
// (MS-SMB2 3.2.5.1.3: a signature mismatch is not a droppable event).
func (e *concurrentEngine) dispatch(buf []byte) (fatal bool) {
	sealed := encoder.IsTransformed(buf)
	if sealed {
		sealer := e.currentSealer()
		if sealer == nil {
			return false // no key to decrypt with; drop
		}
		plain, err := sealer.Unseal(buf)
		if err != nil {
			return false
		}
		buf = plain
	}
	if encoder.IsCompressed(buf) {
		compressor := e.currentCompressor()
		if compressor == nil {
			return false // no coder installed to expand this; drop
		}
		plain, err := compressor.Decompress(buf)
		if err != nil {
			return false
		}
		buf = plain
	}

	view, ok := encoder.ViewHeader(buf)
	if !ok {
		return false
	}

	// An encrypted message is already authenticated by its AEAD tag and
	// an interim STATUS_PENDING response is never signed, so signature
	// verification only applies to a plain, final response.
	interim := view.Status == uint32(encoder.StatusPending) && view.Flags&encoder.FlagAsyncCommand != 0
	if !sealed && !interim && view.Flags&encoder.FlagSigned != 0 {
		if signer := e.currentSigner(); signer != nil && !signer.Verify(buf) {
			e.teardown(ErrSignatureMismatch)
			return true
		}
	}

	e.credits.Grant(view.Credits)

	if interim {
		e.outstanding.bindAsync(view.MessageID, view.AsyncID)
		return false // interim response: the caller keeps waiting
	}

	var req *pendingRequest
	if view.Flags&encoder.FlagAsyncCommand != 0 {
		req, ok = e.outstanding.popByAsyncID(view.AsyncID)
	} else {
		req, ok = e.outstanding.popByMessageID(view.MessageID)
	}
	if !ok {
		return false // unsolicited or already-cancelled response
	}
	req.recv <- buf
	return false
}
