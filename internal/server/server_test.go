package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emomate/emomate/internal/bus"
	"github.com/emomate/emomate/internal/chat"
	"github.com/emomate/emomate/internal/emotion"
	"github.com/emomate/emomate/internal/live2d"
	"github.com/emomate/emomate/internal/llm"
	"github.com/emomate/emomate/internal/session"
	"github.com/emomate/emomate/internal/status"
)

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, messages []llm.ChatMessage, _ int) (string, error) {
	return "收到：" + messages[len(messages)-1].Content, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *live2d.Bridge) {
	t.Helper()

	logger := zerolog.Nop()
	transport := live2d.NewWSTransport(logger)
	bridge := live2d.NewBridge(transport, live2d.DefaultConfig(), logger)
	transport.SetHandlers(nil, bridge.TransportError, bridge.HandleRaw)

	statuses := status.NewStore()
	coordinator := session.NewCoordinator(session.Options{
		Events:    bus.NewEventBus(),
		Emotions:  emotion.NewStore(),
		History:   chat.NewHistory(20),
		Completer: echoCompleter{},
		Statuses:  statuses,
	}, logger)

	s := New(Config{Addr: ":0"}, bridge, transport, coordinator, statuses, nil, logger)
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return s, ts, bridge
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connecting", body["bridge"])
}

func TestStateEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var state stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "connecting", state.Bridge)
	assert.False(t, state.Status.Generating)
}

func TestMessageEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/message", "application/json",
		strings.NewReader(`{"text":"你好"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "收到：你好～", body.Reply)
}

func TestMessageEndpoint_RejectsEmptyText(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/message", "application/json",
		strings.NewReader(`{"text":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRendererSocket_StartsLoadCycle(t *testing.T) {
	_, ts, bridge := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return bridge.LoadAttempts() == 1 && bridge.State() == live2d.StateConnecting
	}, time.Second, 10*time.Millisecond)
}
