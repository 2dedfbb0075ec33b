package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// serveSSE pushes the session's notifications as server-sent events until the
// client disconnects or the session closes.
func (r *SessionRouter) serveSSE(w http.ResponseWriter, req *http.Request, t *Transport) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(HeaderSessionID, string(t.ID()))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case data, ok := <-t.Notifications():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// wsStream carries requests, responses and notifications over one WebSocket.
// gorilla connections allow one concurrent writer, so writes are serialised.
type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsStream) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsStream) writeMessage(msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *wsStream) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// serveWebSocket upgrades the GET stream to a bidirectional WebSocket. Text
// frames from the client are handled like POST bodies; responses and
// notifications share the socket.
func (r *SessionRouter) serveWebSocket(w http.ResponseWriter, req *http.Request, t *Transport) {
	header := http.Header{}
	header.Set(HeaderSessionID, string(t.ID()))
	conn, err := r.upgrader.Upgrade(w, req, header)
	if err != nil {
		// Upgrade has already written the HTTP error.
		t.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	stream := &wsStream{conn: conn}
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(r.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := stream.ping(); err != nil {
					return
				}
			case data, ok := <-t.Notifications():
				if !ok {
					_ = conn.Close()
					return
				}
				if err := stream.write(data); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !t.isClosed() {
				t.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp, err := t.HandleRequest(req.Context(), payload)
		if errors.Is(err, domain.ErrSessionClosed) {
			_ = stream.writeMessage(&jsonrpc.Response{Error: &jsonrpc.Error{Code: CodeSessionNotFound, Message: "Session not found"}})
			return
		}
		if err != nil || resp == nil {
			continue
		}
		if err := stream.writeMessage(resp); err != nil {
			return
		}
	}
}
