package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, OriginChecker("localhost", 8080, []string{"http://trusted.example"}))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?page=index"
	return websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
}

func readMessage(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker("localhost", 8080, []string{"http://trusted.example"})

	tests := []struct {
		name           string
		origin         string
		host           string
		expectedResult bool
	}{
		{
			name:           "valid localhost origin",
			origin:         "http://localhost:8080",
			expectedResult: true,
		},
		{
			name:           "valid 127.0.0.1 origin",
			origin:         "http://127.0.0.1:8080",
			expectedResult: true,
		},
		{
			name:           "valid https origin",
			origin:         "https://localhost:8080",
			expectedResult: true,
		},
		{
			name:           "explicitly allowed origin",
			origin:         "http://trusted.example",
			expectedResult: true,
		},
		{
			name:           "same host as the request",
			origin:         "http://127.0.0.1:40123",
			host:           "127.0.0.1:40123",
			expectedResult: true,
		},
		{
			name:           "wrong port",
			origin:         "http://localhost:3000",
			expectedResult: false,
		},
		{
			name:           "invalid external origin",
			origin:         "http://malicious.com",
			expectedResult: false,
		},
		{
			name:           "invalid scheme - javascript",
			origin:         "javascript:alert(1)",
			expectedResult: false,
		},
		{
			name:           "invalid scheme - file",
			origin:         "file:///etc/passwd",
			expectedResult: false,
		},
		{
			name:           "empty origin",
			origin:         "",
			expectedResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expectedResult, check(req))
		})
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, srv := setupTestHub(t)

	first, _, err := dial(t, srv, srv.URL)
	require.NoError(t, err)
	defer first.Close(websocket.StatusNormalClosure, "")
	second, _, err := dial(t, srv, srv.URL)
	require.NoError(t, err)
	defer second.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(UpdateMessage{Type: MessageReload, Page: "index"})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageReload, msg.Type)
		assert.Equal(t, "index", msg.Page)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub, srv := setupTestHub(t)

	_, resp, err := dial(t, srv, "http://malicious.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Count())
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv := setupTestHub(t)

	conn, _, err := dial(t, srv, srv.URL)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, func(*http.Request) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dial(t, srv, "http://anywhere.example")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	require.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(UpdateMessage{Type: MessageReload})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
}
