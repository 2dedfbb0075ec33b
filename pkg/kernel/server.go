package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
	"github.com/abhishekraut01/Gen-AI/internal/core/services"
)

const maxBodyBytes = 1 << 20

// Server exposes conversations and the tool registry over HTTP and mounts the
// session router for remote tool clients.
type Server struct {
	logger        *slog.Logger
	conversations *services.ConversationManager
	eventBus      *services.EventBus
	tools         *domain.ToolRegistry
	version       string
	startedAt     time.Time

	mcpPath    string
	mcpHandler http.Handler
	sessions   interface{ Sessions() []domain.Session }
}

func NewServer(
	logger *slog.Logger,
	conversations *services.ConversationManager,
	eventBus *services.EventBus,
	tools *domain.ToolRegistry,
	version string,
) *Server {
	return &Server{
		logger:        logger,
		conversations: conversations,
		eventBus:      eventBus,
		tools:         tools,
		version:       version,
		startedAt:     time.Now(),
	}
}

// MountSessions serves h under path. When h reports its sessions they are
// included in the health report.
func (s *Server) MountSessions(path string, h http.Handler) {
	s.mcpPath = path
	s.mcpHandler = h
	if reporter, ok := h.(interface{ Sessions() []domain.Session }); ok {
		s.sessions = reporter
	}
}

// Handler returns the HTTP routes of the kernel.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)

	mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	mux.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /v1/conversations/{id}/events", s.handleConversationSSE)

	if s.mcpHandler != nil {
		mux.Handle(s.mcpPath, s.mcpHandler)
	}
	return mux
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Uptime   string `json:"uptime"`
	Tools    int    `json:"tools"`
	Sessions int    `json:"sessions"`
}

// handleHealth reports liveness.
// GET /v1/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
		Tools:   len(s.tools.ListTools()),
	}
	if s.sessions != nil {
		resp.Sessions = len(s.sessions.Sessions())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTools lists the registered tools with their input schemas.
// GET /v1/tools
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.tools.Describe()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tools,
		"count": len(tools),
	})
}

// pathID binds the {id} segment of the route. Malformed IDs are rejected
// before any lookup.
func pathID(r *http.Request) (domain.ConversationID, error) {
	var id domain.ConversationID
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	return id, err
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps reasoning loop failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrModelTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrMalformedStep), errors.Is(err, domain.ErrModelCall):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrMaxSteps):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
