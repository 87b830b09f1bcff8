package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/hanpama/graphserve/internal/config"
	eventbus "github.com/hanpama/graphserve/internal/eventbus"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })
	return &out, &errOut
}

func TestRunWithoutCommand(t *testing.T) {
	_, errOut := captureOutput(t)
	assert.EqualError(t, run(nil), "missing command")
	assert.Contains(t, errOut.String(), "USAGE:")

	assert.EqualError(t, run([]string{"launch"}), `unknown command "launch"`)
}

func TestHelp(t *testing.T) {
	out, _ := captureOutput(t)
	require.NoError(t, run([]string{"help"}))
	assert.Contains(t, out.String(), "print-schema")

	out.Reset()
	require.NoError(t, run([]string{"help", "serve"}))
	assert.Contains(t, out.String(), "-graphql.max-batch-size")

	assert.Error(t, run([]string{"help", "nothing"}))
}

func TestPrintSchema(t *testing.T) {
	out, _ := captureOutput(t)
	require.NoError(t, run([]string{"print-schema"}))
	assert.Contains(t, out.String(), "helloWorld(name: String): String!")
	assert.NotContains(t, out.String(), "__Schema")

	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, run([]string{"print-schema", "-out", path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(data))
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, errOut := captureOutput(t)
	err := run([]string{"serve", "-log.format", "xml"})
	assert.ErrorContains(t, err, "log.format")

	err = run([]string{"serve", "-server.timeout", "soon"})
	assert.Error(t, err)
	assert.Contains(t, errOut.String(), "serve FLAGS:")
}

func TestHeaderFlag(t *testing.T) {
	h := headerFlag{}
	require.NoError(t, h.Set("Authorization: Bearer x"))
	require.NoError(t, h.Set("X-Tenant:acme"))
	assert.Equal(t, "Bearer x", http.Header(h).Get("Authorization"))
	assert.Equal(t, "acme", http.Header(h).Get("X-Tenant"))
	assert.Error(t, h.Set("no colon"))
	assert.Error(t, h.Set(": empty name"))
}

func TestApp(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	cfg := config.Default()
	handler, cleanup, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	req := httptest.NewRequest(http.MethodPost, "/graphql",
		strings.NewReader(`[{"query":"{ helloWorld }"},{"query":"{ enumQuery }"}]`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"data":{"helloWorld":"Hello, World!"}},{"data":{"enumQuery":"ONE"}}]`, w.Body.String())

	mw := httptest.NewRecorder()
	handler.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, mw.Code)
	body := mw.Body.String()
	assert.Contains(t, body, `graphserve_graphql_operations_total{operation_type="query",outcome="ok",transport="http"} 2`)
	assert.Contains(t, body, "graphserve_graphql_batch_size_count 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestAppWithoutMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	handler, cleanup, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppCleanupClosesSubscriptions(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	handler, cleanup, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d := websocket.Dialer{Subprotocols: []string{"graphql-transport-ws"}}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/graphql", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "connection_init"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "connection_ack", msg.Type)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":      "c",
		"type":    "subscribe",
		"payload": map[string]any{"query": "subscription { counter(upTo: 1000) }"},
	}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "next", msg.Type)

	require.NotPanics(t, cleanup)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
			return
		}
	}
}
