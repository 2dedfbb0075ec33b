package mcp

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

func newTestTransport(t *testing.T, buffer int) *Transport {
	t.Helper()
	tr := NewTransport(testLogger(), domain.SessionID("sess-1"), buffer)
	require.NoError(t, tr.Bind(newTestServer(t)))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// handshake runs initialize and notifications/initialized on tr.
func handshake(t *testing.T, tr *Transport) {
	t.Helper()
	resp, err := tr.HandleRequest(t.Context(), frame(t, 1, methodInitialize, initializeParams()))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NoError(t, resp.Error)

	resp, err = tr.HandleRequest(t.Context(), frame(t, 0, methodInitialized, map[string]any{}))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestTransport_Lifecycle(t *testing.T) {
	tr := newTestTransport(t, 4)
	assert.Equal(t, domain.SessionInitializing, tr.State())
	assert.Equal(t, "sess-1", tr.SessionID())

	tr.activate()
	assert.Equal(t, domain.SessionActive, tr.State())

	var calls atomic.Int32
	tr.OnClose(func(id domain.SessionID) {
		assert.Equal(t, domain.SessionID("sess-1"), id)
		calls.Add(1)
	})

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.SessionClosed, tr.State())

	_, open := <-tr.Notifications()
	assert.False(t, open)

	select {
	case <-tr.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestTransport_HandleRequest(t *testing.T) {
	tr := newTestTransport(t, 4)
	handshake(t, tr)
	require.Eventually(t, tr.Initialized, time.Second, 5*time.Millisecond)

	resp, err := tr.HandleRequest(t.Context(), frame(t, 2, "ping", nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Error)

	resp, err = tr.HandleRequest(t.Context(), []byte(`{broken`))
	require.NoError(t, err)
	require.NotNil(t, resp)
	var wire *jsonrpc.Error
	require.ErrorAs(t, resp.Error, &wire)
	assert.Equal(t, int64(jsonrpc.CodeParseError), wire.Code)
	assert.False(t, resp.ID.IsValid())

	resp, err = tr.HandleRequest(t.Context(), frame(t, 3, "resources/templates/unknown", nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Error(t, resp.Error)
	assert.Contains(t, resp.Error.Error(), "unsupported")

	assert.Equal(t, int64(5), tr.Handled())
}

func TestTransport_RejectsCallsBeforeInitialize(t *testing.T) {
	tr := newTestTransport(t, 4)

	resp, err := tr.HandleRequest(t.Context(), frame(t, 1, "tools/list", nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Error(t, resp.Error)
}

func TestTransport_ClosedRejectsRequests(t *testing.T) {
	tr := newTestTransport(t, 4)
	require.NoError(t, tr.Close())

	_, err := tr.HandleRequest(t.Context(), frame(t, 1, "ping", nil))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.False(t, tr.push([]byte(`{}`)))
}

func TestTransport_CloseAbortsInFlight(t *testing.T) {
	tr := newTestTransport(t, 4)
	handshake(t, tr)

	done := make(chan error, 1)
	go func() {
		_, err := tr.HandleRequest(t.Context(), frame(t, 9, "tools/call", map[string]any{"name": "block", "arguments": map[string]any{}}))
		done <- err
	}()

	require.Eventually(t, func() bool { return tr.Handled() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was not cancelled")
	}
}

func TestTransport_AbandonedCallIsCancelled(t *testing.T) {
	tr := newTestTransport(t, 4)
	handshake(t, tr)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.HandleRequest(ctx, frame(t, 9, "tools/call", map[string]any{"name": "block", "arguments": map[string]any{}}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The session keeps serving after the abandoned call.
	resp, err := tr.HandleRequest(t.Context(), frame(t, 10, "ping", nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Error)
}

func TestTransport_PushDropsWhenFull(t *testing.T) {
	tr := NewTransport(testLogger(), domain.SessionID("sess-2"), 1)
	t.Cleanup(func() { _ = tr.Close() })

	assert.True(t, tr.push([]byte(`{"n":1}`)))
	assert.False(t, tr.push([]byte(`{"n":2}`)))

	got := <-tr.Notifications()
	assert.JSONEq(t, `{"n":1}`, string(got))
}

func TestTransport_WriteRoutesMessages(t *testing.T) {
	tr := NewTransport(testLogger(), domain.SessionID("sess-3"), 2)
	t.Cleanup(func() { _ = tr.Close() })

	// A response nobody waits for is dropped.
	id, err := jsonrpc.MakeID(float64(42))
	require.NoError(t, err)
	require.NoError(t, tr.Write(t.Context(), &jsonrpc.Response{ID: id, Result: json.RawMessage(`{}`)}))
	assert.Empty(t, tr.Notifications())

	require.NoError(t, tr.Write(t.Context(), &jsonrpc.Request{Method: "notifications/message", Params: json.RawMessage(`{"level":"info"}`)}))
	got := <-tr.Notifications()
	assert.Contains(t, string(got), `"method":"notifications/message"`)
}

func TestTransport_SingleStream(t *testing.T) {
	tr := newTestTransport(t, 1)
	require.NoError(t, tr.claimStream())
	assert.ErrorIs(t, tr.claimStream(), errStreamTaken)
	tr.releaseStream()
	assert.NoError(t, tr.claimStream())
}
