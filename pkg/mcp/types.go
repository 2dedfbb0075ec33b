package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// HeaderSessionID carries the session identifier on every request after initialize.
const HeaderSessionID = "Mcp-Session-Id"

// Session-level error codes returned by the router before a frame reaches a
// protocol session.
const (
	CodeBadSession      = -32000
	CodeSessionNotFound = -32001
)

const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodCancelled   = "notifications/cancelled"
)

// Implementation names a protocol client or server.
type Implementation = mcp.Implementation

// Server is the protocol server of one session.
type Server = mcp.Server
