package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// ErrNotInitialized is returned by session calls made before Initialize.
var ErrNotInitialized = errors.New("mcp client not initialized")

// Client holds one streamable HTTP session with a remote tool server.
type Client struct {
	endpoint string
	client   *mcp.Client
	http     *http.Client
	logger   *slog.Logger

	mu      sync.RWMutex
	session *mcp.ClientSession
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger of the underlying protocol client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the router mounted at endpoint.
func NewClient(endpoint string, info Implementation, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = mcp.NewClient(&info, &mcp.ClientOptions{Logger: c.logger})
	return c
}

// SessionID returns the ID assigned by the server, empty before Initialize.
func (c *Client) SessionID() string {
	s, err := c.current()
	if err != nil {
		return ""
	}
	return s.ID()
}

// Initialize opens a session. The handshake, including
// notifications/initialized, completes before it returns.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	session, err := c.client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:             c.endpoint,
		HTTPClient:           c.http,
		MaxRetries:           -1,
		DisableStandaloneSSE: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", wrapErr(err))
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session.InitializeResult(), nil
}

// ListTools returns every tool of the server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	s, err := c.current()
	if err != nil {
		return nil, err
	}
	var tools []*mcp.Tool
	for tool, err := range s.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", wrapErr(err))
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// CallTool invokes a tool. Tool-level failures come back as a result with
// IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	s, err := c.current()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := s.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, wrapErr(err))
	}
	return res, nil
}

// Ping checks that the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return wrapErr(s.Ping(ctx, nil))
}

// Close ends the session. Closing an uninitialized client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil && !errors.Is(err, mcp.ErrSessionMissing) {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (c *Client) current() (*mcp.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, ErrNotInitialized
	}
	return c.session, nil
}

// wrapErr maps a lost server session onto the domain error.
func wrapErr(err error) error {
	if err != nil && errors.Is(err, mcp.ErrSessionMissing) {
		return fmt.Errorf("%w: %w", domain.ErrSessionNotFound, err)
	}
	return err
}
