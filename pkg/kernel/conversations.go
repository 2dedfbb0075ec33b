package kernel

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
	domain.LoopResult
}

type conversationDetail struct {
	domain.Conversation
	History []domain.Message `json:"history"`
}

// handleListConversations lists live conversations, most recently used first.
// GET /v1/conversations
func (s *Server) handleListConversations(w http.ResponseWriter, _ *http.Request) {
	convs := s.conversations.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

// handleCreateConversation starts a conversation. A body with a message also
// runs the first turn.
// POST /v1/conversations
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conv := s.conversations.Create()
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusCreated, conv)
		return
	}
	s.submit(w, r, conv.ID, req.Message, http.StatusCreated)
}

// handleGetConversation returns a conversation with its full history.
// GET /v1/conversations/{id}
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, history, err := s.conversations.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conversationDetail{Conversation: conv, History: history})
}

// handleDeleteConversation drops a conversation and ends its event streams.
// DELETE /v1/conversations/{id}
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.conversations.Delete(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage runs one user turn through the reasoning loop.
// POST /v1/conversations/{id}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	s.submit(w, r, id, req.Message, http.StatusOK)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, id domain.ConversationID, message string, status int) {
	result, err := s.conversations.Submit(r.Context(), id, message)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("submit failed", "conversation_id", string(id), "error", err)
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, status, sendMessageResponse{ConversationID: id, LoopResult: *result})
}

// decodeBody reads an optional JSON body.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
