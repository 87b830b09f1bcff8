// Package logging builds the process logger and turns request events into
// log lines.
package logging

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	events "github.com/hanpama/graphserve/internal/events"
	reqid "github.com/hanpama/graphserve/internal/reqid"
)

// New returns a logger writing to w. format is "json" or "console".
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want json or console", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Subscribe logs HTTP requests, GraphQL operations and WebSocket
// connections published on the global event bus.
func Subscribe(log zerolog.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			ev := log.Info()
			if e.Status >= 500 {
				ev = log.Error()
			} else if e.Status >= 400 {
				ev = log.Warn()
			}
			ev = withRequestID(ctx, ev).
				Str("method", e.Request.Method).
				Str("path", e.Request.URL.Path).
				Int("status", e.Status)
			if e.Shape != "" {
				ev = ev.Str("shape", e.Shape).Int("operations", e.Operations)
			}
			ev.
				Dur("duration", e.Duration).
				Msg("http.request")
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			ev := log.Debug()
			if len(e.Errors) > 0 {
				ev = log.Info()
			}
			ev = withRequestID(ctx, ev).
				Str("operation_name", e.OperationName).
				Str("operation_type", e.OperationType).
				Str("transport", string(e.Transport)).
				Int("error_count", len(e.Errors)).
				Dur("duration", e.Duration)
			if e.Index >= 0 {
				ev = ev.Int("batch_index", e.Index)
			}
			if len(e.Errors) > 0 {
				ev = ev.Str("first_error", e.Errors[0].Error())
			}
			ev.Msg("graphql.operation")
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLBatch) {
			withRequestID(ctx, log.Debug()).Int("size", e.Size).Msg("graphql.batch")
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.WSDisconnect) {
			withRequestID(ctx, log.Info()).
				Int("close_code", e.CloseCode).
				Dur("duration", e.Duration).
				Msg("ws.connection")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func withRequestID(ctx context.Context, ev *zerolog.Event) *zerolog.Event {
	if rid, ok := reqid.FromContext(ctx); ok {
		return ev.Str("request_id", rid)
	}
	return ev
}
