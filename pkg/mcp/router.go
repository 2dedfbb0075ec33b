package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

const maxRequestBytes = 4 << 20

// ServerFactory builds the protocol server of a new session.
type ServerFactory func() *mcp.Server

// SessionRouter multiplexes sessions over one HTTP endpoint.
//
//	POST   without Mcp-Session-Id + initialize → new session
//	POST   with a known ID                     → routed to its transport
//	GET    with a known ID                     → notification stream (SSE or WebSocket)
//	DELETE with a known ID                     → session closed
//
// Unknown or closed IDs get 404; missing IDs outside initialize get 400.
// After Shutdown no session is registered again.
type SessionRouter struct {
	logger    *slog.Logger
	newServer ServerFactory
	buffer    int
	keepAlive time.Duration
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	sessions map[domain.SessionID]*Transport
	shutdown bool
}

// RouterOption configures a SessionRouter.
type RouterOption func(*SessionRouter)

// WithNotificationBuffer sets the per-session notification buffer.
func WithNotificationBuffer(n int) RouterOption {
	return func(r *SessionRouter) { r.buffer = n }
}

// WithKeepAlive sets the SSE comment / WebSocket ping interval.
func WithKeepAlive(d time.Duration) RouterOption {
	return func(r *SessionRouter) { r.keepAlive = d }
}

// WithCheckOrigin overrides the WebSocket origin check.
func WithCheckOrigin(fn func(*http.Request) bool) RouterOption {
	return func(r *SessionRouter) { r.upgrader.CheckOrigin = fn }
}

func NewSessionRouter(logger *slog.Logger, newServer ServerFactory, opts ...RouterOption) *SessionRouter {
	r := &SessionRouter{
		logger:    logger,
		newServer: newServer,
		buffer:    64,
		keepAlive: 25 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[domain.SessionID]*Transport),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SessionRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handle(w, req)
}

// Handle routes one HTTP request according to the session lifecycle.
func (r *SessionRouter) Handle(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.handlePost(w, req)
	case http.MethodGet:
		r.handleGet(w, req)
	case http.MethodDelete:
		r.handleDelete(w, req)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeRPCError(w, http.StatusMethodNotAllowed, CodeBadSession, "Method not allowed")
	}
}

func (r *SessionRouter) handlePost(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBytes))
	if err != nil {
		writeRPCError(w, http.StatusRequestEntityTooLarge, jsonrpc.CodeInvalidRequest, "request body too large")
		return
	}

	sid := req.Header.Get(HeaderSessionID)
	if sid == "" {
		if !isInitializeRequest(body) {
			writeRPCError(w, http.StatusBadRequest, CodeBadSession, "Bad Request: No valid session ID provided")
			return
		}
		r.initialize(w, req, body)
		return
	}

	t, ok := r.Lookup(domain.SessionID(sid))
	if !ok {
		writeSessionNotFound(w)
		return
	}

	resp, err := t.HandleRequest(req.Context(), body)
	switch {
	case errors.Is(err, domain.ErrSessionClosed):
		writeSessionNotFound(w)
	case err != nil:
		r.logger.Debug("request abandoned", "session_id", sid, "error", err)
		writeRPCError(w, http.StatusServiceUnavailable, jsonrpc.CodeInternalError, "request cancelled")
	case resp == nil:
		w.WriteHeader(http.StatusAccepted)
	default:
		writeResponse(w, http.StatusOK, resp)
	}
}

// initialize creates a transport and registers it only once it has answered
// initialize successfully.
func (r *SessionRouter) initialize(w http.ResponseWriter, req *http.Request, body []byte) {
	id := domain.SessionID(uuid.NewString())
	t := NewTransport(r.logger, id, r.buffer)
	if err := t.Bind(r.newServer()); err != nil {
		_ = t.Close()
		r.logger.Error("session bind failed", "error", err)
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, "session initialization failed")
		return
	}

	resp, err := t.HandleRequest(req.Context(), body)
	if err != nil || resp == nil || resp.Error != nil {
		_ = t.Close()
		if resp != nil && resp.Error != nil {
			writeResponse(w, http.StatusBadRequest, resp)
			return
		}
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, "session initialization failed")
		return
	}

	t.OnClose(r.remove)
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		_ = t.Close()
		writeRPCError(w, http.StatusServiceUnavailable, CodeBadSession, "Server shutting down")
		return
	}
	r.sessions[id] = t
	r.mu.Unlock()
	t.activate()

	r.logger.Info("session created", "session_id", string(id), "remote", req.RemoteAddr)
	w.Header().Set(HeaderSessionID, string(id))
	writeResponse(w, http.StatusOK, resp)
}

func (r *SessionRouter) handleGet(w http.ResponseWriter, req *http.Request) {
	t, ok := r.requireSession(w, req)
	if !ok {
		return
	}
	if err := t.claimStream(); err != nil {
		writeRPCError(w, http.StatusConflict, CodeBadSession, err.Error())
		return
	}
	defer t.releaseStream()

	if websocket.IsWebSocketUpgrade(req) {
		r.serveWebSocket(w, req, t)
		return
	}
	r.serveSSE(w, req, t)
}

func (r *SessionRouter) handleDelete(w http.ResponseWriter, req *http.Request) {
	t, ok := r.requireSession(w, req)
	if !ok {
		return
	}
	_ = t.Close()
	w.WriteHeader(http.StatusOK)
}

func (r *SessionRouter) requireSession(w http.ResponseWriter, req *http.Request) (*Transport, bool) {
	sid := req.Header.Get(HeaderSessionID)
	if sid == "" {
		writeRPCError(w, http.StatusBadRequest, CodeBadSession, "Bad Request: No valid session ID provided")
		return nil, false
	}
	t, ok := r.Lookup(domain.SessionID(sid))
	if !ok {
		writeSessionNotFound(w)
		return nil, false
	}
	return t, true
}

// Lookup returns the live transport for id.
func (r *SessionRouter) Lookup(id domain.SessionID) (*Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.sessions[id]
	return t, ok
}

// Sessions lists active sessions, oldest first.
func (r *SessionRouter) Sessions() []domain.Session {
	r.mu.Lock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, t := range r.sessions {
		out = append(out, t.Session())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown closes every session and refuses new ones.
func (r *SessionRouter) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	transports := make([]*Transport, 0, len(r.sessions))
	for _, t := range r.sessions {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
	r.logger.Info("session router shut down", "sessions_closed", len(transports))
}

func (r *SessionRouter) remove(id domain.SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// errorFrame is an error reply to a frame whose id is unknown. JSON-RPC
// requires the id member to be present as null.
type errorFrame struct {
	JSONRPC string         `json:"jsonrpc"`
	Error   *jsonrpc.Error `json:"error"`
	ID      any            `json:"id"`
}

func writeResponse(w http.ResponseWriter, status int, resp *jsonrpc.Response) {
	if !resp.ID.IsValid() && resp.Error != nil {
		var wire *jsonrpc.Error
		if !errors.As(resp.Error, &wire) {
			wire = &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: resp.Error.Error()}
		}
		writeJSON(w, status, errorFrame{JSONRPC: "2.0", Error: wire})
		return
	}

	data, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeRPCError(w http.ResponseWriter, status int, code int64, message string) {
	writeJSON(w, status, errorFrame{JSONRPC: "2.0", Error: &jsonrpc.Error{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSessionNotFound(w http.ResponseWriter) {
	writeRPCError(w, http.StatusNotFound, CodeSessionNotFound, "Session not found")
}
