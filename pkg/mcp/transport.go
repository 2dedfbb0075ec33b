package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// Transport binds one session ID to its protocol session. It is the
// mcp.Connection the session reads client frames from and writes replies and
// server→client messages to; the router only talks to transports.
type Transport struct {
	id        domain.SessionID
	createdAt time.Time
	logger    *slog.Logger

	// ctx is cancelled on Close. The protocol session is connected with it, so
	// closing aborts in-flight handlers.
	ctx    context.Context
	cancel context.CancelFunc

	incoming chan jsonrpc.Message

	mu            sync.Mutex // guards closed, pending and sends on notifications
	closed        bool
	pending       map[jsonrpc.ID]chan *jsonrpc.Response
	notifications chan []byte
	onClose       func(domain.SessionID)
	closeOnce     sync.Once

	state       atomic.Value // domain.SessionState
	initialized atomic.Bool
	streaming   atomic.Bool
	handled     atomic.Int64
	dropped     atomic.Int64
}

var (
	_ mcp.Transport  = (*Transport)(nil)
	_ mcp.Connection = (*Transport)(nil)
)

// NewTransport creates a transport in the INITIALIZING state. It carries no
// protocol session until Bind.
func NewTransport(logger *slog.Logger, id domain.SessionID, buffer int) *Transport {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:            id,
		createdAt:     time.Now(),
		logger:        logger.With("session_id", string(id)),
		ctx:           ctx,
		cancel:        cancel,
		incoming:      make(chan jsonrpc.Message),
		pending:       make(map[jsonrpc.ID]chan *jsonrpc.Response),
		notifications: make(chan []byte, buffer),
	}
	t.state.Store(domain.SessionInitializing)
	return t
}

// Bind connects server to this transport. Each transport serves exactly one
// protocol session.
func (t *Transport) Bind(server *mcp.Server) error {
	ss, err := server.Connect(t.ctx, t, nil)
	if err != nil {
		return err
	}
	t.logger.Debug("protocol session bound", "session", ss.ID())
	return nil
}

func (t *Transport) ID() domain.SessionID { return t.id }

func (t *Transport) CreatedAt() time.Time { return t.createdAt }

func (t *Transport) State() domain.SessionState { return t.state.Load().(domain.SessionState) }

// Handled returns the number of frames this transport has processed.
func (t *Transport) Handled() int64 { return t.handled.Load() }

// Session returns the metadata view of the transport.
func (t *Transport) Session() domain.Session {
	return domain.Session{ID: t.id, State: t.State(), CreatedAt: t.createdAt}
}

// Initialized reports whether the client confirmed the handshake with
// notifications/initialized.
func (t *Transport) Initialized() bool { return t.initialized.Load() }

// OnClose registers the callback run once when the transport closes.
func (t *Transport) OnClose(fn func(domain.SessionID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *Transport) activate() {
	t.state.CompareAndSwap(domain.SessionInitializing, domain.SessionActive)
}

// Done is closed when the transport closes.
func (t *Transport) Done() <-chan struct{} { return t.ctx.Done() }

// HandleRequest feeds one client→server frame to the protocol session and
// waits for its reply. The wait ends when ctx ends or the transport closes.
// A nil response means the frame needed none (a notification or a reply to a
// server call).
func (t *Transport) HandleRequest(ctx context.Context, payload []byte) (*jsonrpc.Response, error) {
	if t.isClosed() {
		return nil, domain.ErrSessionClosed
	}
	t.handled.Add(1)

	msg, rpcErr := decodeFrame(payload)
	if rpcErr != nil {
		return &jsonrpc.Response{Error: rpcErr}, nil
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok || !req.IsCall() {
		return nil, t.deliver(ctx, msg)
	}

	reply := make(chan *jsonrpc.Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if _, dup := t.pending[req.ID]; dup {
		t.mu.Unlock()
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "Invalid Request: request id already in flight",
		}}, nil
	}
	t.pending[req.ID] = reply
	t.mu.Unlock()

	if err := t.deliver(ctx, req); err != nil {
		t.forget(req.ID)
		return nil, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		t.forget(req.ID)
		t.cancelCall(req.ID, ctx.Err())
		return nil, ctx.Err()
	case <-t.ctx.Done():
		return nil, domain.ErrSessionClosed
	}
}

// Notifications is the server→client stream of encoded messages. It is
// closed by Close.
func (t *Transport) Notifications() <-chan []byte {
	return t.notifications
}

// Connect implements mcp.Transport: the transport is its own connection.
func (t *Transport) Connect(context.Context) (mcp.Connection, error) {
	return t, nil
}

// Read implements mcp.Connection. It returns io.EOF once the transport closes.
func (t *Transport) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-t.incoming:
		if req, ok := msg.(*jsonrpc.Request); ok && req.Method == methodInitialized {
			t.initialized.Store(true)
		}
		return msg, nil
	case <-t.ctx.Done():
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements mcp.Connection. Replies go back to the waiting
// HandleRequest; everything else is queued for the notification stream.
func (t *Transport) Write(_ context.Context, msg jsonrpc.Message) error {
	if resp, ok := msg.(*jsonrpc.Response); ok {
		t.mu.Lock()
		reply, waiting := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if waiting {
			reply <- resp
		}
		return nil
	}

	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	t.push(data)
	return nil
}

// SessionID implements mcp.Connection.
func (t *Transport) SessionID() string { return string(t.id) }

// push queues data for the client without blocking. It reports false when
// the transport is closed or the buffer is full.
func (t *Transport) push(data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case t.notifications <- data:
		return true
	default:
		t.dropped.Add(1)
		t.logger.Warn("notification buffer full, dropping", "bytes", len(data))
		return false
	}
}

// Close cancels in-flight work, closes the notification channel and runs the
// close callback. Only the first call has an effect.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.cancel()
		close(t.notifications)
		clear(t.pending)
		onClose := t.onClose
		t.mu.Unlock()

		t.state.Store(domain.SessionClosed)
		t.logger.Info("session closed", "handled", t.handled.Load(), "dropped_notifications", t.dropped.Load())
		if onClose != nil {
			onClose(t.id)
		}
	})
	return nil
}

func (t *Transport) deliver(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case t.incoming <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return domain.ErrSessionClosed
	}
}

func (t *Transport) forget(id jsonrpc.ID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// cancelCall tells the session the client stopped waiting for id.
func (t *Transport) cancelCall(id jsonrpc.ID, cause error) {
	params, err := json.Marshal(&mcp.CancelledParams{RequestID: id.Raw(), Reason: cause.Error()})
	if err != nil {
		return
	}
	go func() {
		_ = t.deliver(t.ctx, &jsonrpc.Request{Method: methodCancelled, Params: params})
	}()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// claimStream marks the single server→client stream as taken.
func (t *Transport) claimStream() error {
	if !t.streaming.CompareAndSwap(false, true) {
		return errStreamTaken
	}
	return nil
}

func (t *Transport) releaseStream() { t.streaming.Store(false) }

var errStreamTaken = errors.New("a stream is already open for this session")

// decodeFrame parses one POST body or WebSocket text frame. Batches are not
// accepted.
func decodeFrame(payload []byte) (jsonrpc.Message, *jsonrpc.Error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '[' {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "Invalid Request: batch requests are not supported"}
	}
	msg, err := jsonrpc.DecodeMessage(payload)
	if err != nil {
		if !json.Valid(payload) {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeParseError, Message: "Parse error"}
		}
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "Invalid Request: " + err.Error()}
	}
	return msg, nil
}

// isInitializeRequest reports whether body is an initialize call.
func isInitializeRequest(body []byte) bool {
	msg, rpcErr := decodeFrame(body)
	if rpcErr != nil {
		return false
	}
	req, ok := msg.(*jsonrpc.Request)
	return ok && req.IsCall() && req.Method == methodInitialize
}
