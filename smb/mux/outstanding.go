package mux

import "sync"

// pendingRequest is one in-flight request awaiting its final response.
// recv is buffered 1 so the receiver goroutine never blocks delivering it,
// matching the "buffered channel as a wakeable slot" idiom used throughout
// this package.
type pendingRequest struct {
	messageID uint64
	asyncID   uint64
	hasAsync  bool
	recv      chan []byte
	err       chan error
}

// outstandingTable is the MessageId-keyed registry the receive loop
// consults to route a response to the goroutine that sent the matching
// request.
type outstandingTable struct {
	mu       sync.Mutex
	byMsgID  map[uint64]*pendingRequest
	byAsyncID map[uint64]*pendingRequest
}

func newOutstandingTable() *outstandingTable {
	return &outstandingTable{
		byMsgID:   make(map[uint64]*pendingRequest),
		byAsyncID: make(map[uint64]*pendingRequest),
	}
}

func (t *outstandingTable) add(req *pendingRequest) {
	t.mu.Lock()
	t.byMsgID[req.messageID] = req
	t.mu.Unlock()
}

// bindAsync records the AsyncId an interim (STATUS_PENDING) response
// assigned to this request, so a later async final response — which
// carries the AsyncId instead of the MessageId in the routing-relevant
// sense — can still be found.
func (t *outstandingTable) bindAsync(messageID, asyncID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byMsgID[messageID]
	if !ok {
		return
	}
	req.asyncID = asyncID
	req.hasAsync = true
	t.byAsyncID[asyncID] = req
}

func (t *outstandingTable) popByMessageID(messageID uint64) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byMsgID[messageID]
	if !ok {
		return nil, false
	}
	delete(t.byMsgID, messageID)
	if req.hasAsync {
		delete(t.byAsyncID, req.asyncID)
	}
	return req, true
}

func (t *outstandingTable) popByAsyncID(asyncID uint64) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byAsyncID[asyncID]
	if !ok {
		return nil, false
	}
	delete(t.byAsyncID, asyncID)
	delete(t.byMsgID, req.messageID)
	return req, true
}

// peekByMessageID looks up a request without removing it from the table.
// STATUS_PENDING handling binds the AsyncId through bindAsync instead.
func (t *outstandingTable) peekByMessageID(messageID uint64) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byMsgID[messageID]
	return req, ok
}

// shutdown fails every outstanding request with err, used when the
// receive loop exits (transport error, connection close).
func (t *outstandingTable) shutdown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, req := range t.byMsgID {
		req.err <- err
		delete(t.byMsgID, id)
	}
	for id := range t.byAsyncID {
		delete(t.byAsyncID, id)
	}
}
