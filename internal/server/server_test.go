package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/shroot/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	s := setupTestServer(t, cfg)
	assert.Nil(t, s.watcher)
	assert.NotNil(t, s.Hub())

	cfg.Development.HotReload = true
	s = setupTestServer(t, cfg)
	require.NotNil(t, s.watcher)
	t.Cleanup(func() { _ = s.watcher.Stop() })
}

func TestServer_HandleFileChange(t *testing.T) {
	cfg := testConfig(t)
	path := writePage(t, cfg, "index", indexPage)
	s := setupTestServer(t, cfg)

	_, err := s.store.Get(context.Background(), "index")
	require.NoError(t, err)
	require.Equal(t, []string{"index"}, s.store.Live())

	err = s.handleFileChange([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: path},
		{Type: watcher.EventTypeCreated, Path: path + ".bak"},
	})
	require.NoError(t, err)
	assert.Empty(t, s.store.Live())

	select {
	case data := <-s.hub.broadcast:
		var msg UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageReload, msg.Type)
		assert.Equal(t, "index", msg.Page)
	default:
		t.Fatal("expected a reload message")
	}

	select {
	case <-s.hub.broadcast:
		t.Fatal("excluded files must not trigger a reload")
	default:
	}
}

func TestServer_MiddlewareOptions(t *testing.T) {
	s := setupTestServer(t, testConfig(t))

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"allowed origin", "http://localhost:8080", "http://localhost:8080"},
		{"foreign origin", "http://malicious.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/pages/index/fragments", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
		})
	}
}

func TestServer_ServeReloadsOnChange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Development.HotReload = true
	path := writePage(t, cfg, "index", indexPage)
	s := setupTestServer(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/pages/index")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "data-shroot-reload")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr+"/ws?page=index", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://" + addr}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`<html><body><p>changed</p></body></html>`), 0o644))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageReload, msg.Type)
	assert.Equal(t, "index", msg.Page)

	resp, err = http.Get("http://" + addr + "/pages/index")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "<p>changed</p>")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ShutdownIsIdempotent(t *testing.T) {
	s := setupTestServer(t, testConfig(t))
	ctx := context.Background()
	assert.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, s.Shutdown(ctx))
}
