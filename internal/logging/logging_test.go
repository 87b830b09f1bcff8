package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	events "github.com/hanpama/graphserve/internal/events"
	reqid "github.com/hanpama/graphserve/internal/reqid"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", "json", &buf)
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	log, err = New("debug", "console", &buf)
	require.NoError(t, err)
	log.Debug().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))

	_, err = New("loud", "json", &buf)
	assert.Error(t, err)
	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
}

func TestSubscribeLogsEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)
	t.Cleanup(Subscribe(log))

	ctx := reqid.WithID(context.Background(), "rid-1")
	eventbus.Publish(ctx, events.GraphQLFinish{
		OperationName: "Hello",
		OperationType: "query",
		Transport:     events.TransportHTTP,
		Index:         2,
		Errors:        []error{errors.New("boom")},
	})
	eventbus.Publish(ctx, events.HTTPFinish{
		Request:    httptest.NewRequest("POST", "/graphql", nil),
		Status:     200,
		Shape:      "batch",
		Operations: 3,
		Duration:   time.Millisecond,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var op map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &op))
	assert.Equal(t, "graphql.operation", op["message"])
	assert.Equal(t, "rid-1", op["request_id"])
	assert.Equal(t, "Hello", op["operation_name"])
	assert.Equal(t, float64(2), op["batch_index"])
	assert.Equal(t, "boom", op["first_error"])

	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &req))
	assert.Equal(t, "http.request", req["message"])
	assert.Equal(t, float64(200), req["status"])
	assert.Equal(t, "batch", req["shape"])
	assert.Equal(t, float64(3), req["operations"])
}
