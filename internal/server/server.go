package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/metadata"

	envelope "github.com/hanpama/graphserve/internal/envelope"
	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	events "github.com/hanpama/graphserve/internal/events"
	executor "github.com/hanpama/graphserve/internal/executor"
	introspection "github.com/hanpama/graphserve/internal/introspection"
	language "github.com/hanpama/graphserve/internal/language"
	reqid "github.com/hanpama/graphserve/internal/reqid"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses single and batched requests, runs the executor, and writes one
// result or an array of results in request order.
type Handler struct {
	exec    *executor.Executor
	queries *language.QueryCache
	opt     Options

	// base is cancelled by Shutdown and ends every WebSocket connection.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout. Subscriptions are not limited.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// MaxBatchSize limits the number of operations in a batch. 0 means unlimited.
	MaxBatchSize int

	// BatchConcurrency bounds how many operations of a query-only batch run
	// at once. 0 means no bound.
	BatchConcurrency int

	// QueryCacheSize is the number of validated documents kept. 0 disables the cache.
	QueryCacheSize int

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Introspection adds __schema and __type to the query root.
	Introspection bool

	// InitTimeout bounds the wait for connection_init on WebSocket connections.
	InitTimeout time.Duration

	// KeepAlive is the interval of server pings on WebSocket connections.
	// 0 disables them.
	KeepAlive time.Duration
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMaxBatchSize(n int) Option      { return func(o *Options) { o.MaxBatchSize = n } }
func WithBatchConcurrency(n int) Option  { return func(o *Options) { o.BatchConcurrency = n } }
func WithQueryCache(size int) Option     { return func(o *Options) { o.QueryCacheSize = size } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option      { return func(o *Options) { o.GraphiQL = enable } }
func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }

// WithWebSocket sets the connection_init timeout and the keepalive interval.
func WithWebSocket(initTimeout, keepAlive time.Duration) Option {
	return func(o *Options) {
		o.InitTimeout = initTimeout
		o.KeepAlive = keepAlive
	}
}

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	op := Options{
		Timeout:        10 * time.Second,
		GraphiQL:       true,
		Introspection:  true,
		QueryCacheSize: 1000,
		InitTimeout:    10 * time.Second,
		KeepAlive:      15 * time.Second,
	}
	for _, f := range opts {
		f(&op)
	}
	if op.Introspection {
		w := introspection.Wrap(runtime, sch)
		runtime, sch = w.Runtime, w.Schema
	}
	queries, err := language.NewQueryCache(sch.AST(), op.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	base, cancel := context.WithCancel(context.Background())
	return &Handler{
		exec:    executor.NewExecutor(runtime, sch),
		queries: queries,
		opt:     op,
		base:    base,
		cancel:  cancel,
	}, nil
}

// Shutdown closes open WebSocket connections and waits for them to end.
// http.Server.Shutdown does not track hijacked connections, so call this
// after it and before releasing the runtime. New upgrades are refused.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a WebSocket session. It reports false once Shutdown has
// started.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions.Add(1)
	return true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.FromRequest(r.Context(), r)
	w.Header().Set(reqid.Header, rid)

	if websocket.IsWebSocketUpgrade(r) {
		h.serveWS(w, r.WithContext(ctx))
		return
	}

	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	status := http.StatusOK
	var shape string
	var operations int
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			Request:    r,
			Status:     status,
			Shape:      shape,
			Operations: operations,
			Duration:   time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResult(language.Errorf("method not allowed")), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	ctx = h.outgoingMetadata(ctx, r, rid)

	reqs, perr := ParseRequest(r, h.opt.MaxBodyBytes)
	if perr != nil {
		status = http.StatusBadRequest
		if perr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResult(perr), h.opt.Pretty)
		return
	}
	if reqs.Kind() == envelope.KindBatch {
		n := reqs.Len()
		if h.opt.MaxBatchSize > 0 && n > h.opt.MaxBatchSize {
			status = http.StatusBadRequest
			writeJSON(w, status, errorResult(language.Errorf("batch of %d operations exceeds the limit of %d", n, h.opt.MaxBatchSize)), h.opt.Pretty)
			return
		}
		eventbus.Publish(ctx, events.GraphQLBatch{Size: n})
	}

	res := h.Execute(ctx, reqs)
	shape, operations = res.Kind().String(), res.Len()
	if r.Method == http.MethodGet && envelope.Match(res, isMethodNotAllowed, func([]*Response) bool { return false }) {
		status = http.StatusMethodNotAllowed
	}
	writeEnvelope(w, status, res, h.opt.Pretty)
}

// outgoingMetadata maps the configured headers and the request id into gRPC
// metadata for resolvers that call gRPC services.
func (h *Handler) outgoingMetadata(ctx context.Context, r *http.Request, rid string) context.Context {
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md["graphql-request-id"] = []string{rid}
	return metadata.NewOutgoingContext(ctx, md)
}

// Execute runs every operation of reqs and returns results of the same
// shape: one result for a single request, one result per operation, in
// request order, for a batch.
func (h *Handler) Execute(ctx context.Context, reqs envelope.Envelope[Request]) envelope.Envelope[*Response] {
	return envelope.Match(reqs,
		func(req Request) envelope.Envelope[*Response] {
			return envelope.Single(h.executeOne(ctx, h.prepare(req), events.TransportHTTP, -1))
		},
		func(batch []Request) envelope.Envelope[*Response] {
			return envelope.Batch(h.executeBatch(ctx, batch))
		},
	)
}

// executeBatch runs query-only batches concurrently and batches that contain
// a mutation one operation at a time.
func (h *Handler) executeBatch(ctx context.Context, batch []Request) []*Response {
	ops := make([]operation, len(batch))
	sequential := false
	for i, req := range batch {
		ops[i] = h.prepare(req)
		if ops[i].opType == language.Mutation {
			sequential = true
		}
	}

	results := make([]*Response, len(batch))
	var g errgroup.Group
	switch {
	case sequential:
		g.SetLimit(1)
	case h.opt.BatchConcurrency > 0:
		g.SetLimit(h.opt.BatchConcurrency)
	}
	for i, op := range ops {
		g.Go(func() error {
			results[i] = h.executeOne(ctx, op, events.TransportHTTP, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// operation is a request with its document loaded and validated.
type operation struct {
	req    Request
	doc    *language.QueryDocument
	opType language.Operation
	err    *Response
}

func (h *Handler) prepare(req Request) operation {
	op := operation{req: req}
	if req.Query == "" {
		op.err = errorResult(language.Errorf("missing 'query'"))
		return op
	}
	doc, errs := h.queries.Load(req.Query)
	if len(errs) > 0 {
		op.err = &Response{Errors: fromLanguageErrors(errs)}
		return op
	}
	op.doc = doc

	def := doc.Operations.ForName(req.OperationName)
	if def == nil && req.OperationName == "" && len(doc.Operations) == 1 {
		def = doc.Operations[0]
	}
	if def != nil {
		op.opType = def.Operation
	}
	return op
}

func (h *Handler) executeOne(ctx context.Context, op operation, transport events.Transport, index int) *Response {
	if op.err != nil {
		return op.err
	}
	switch {
	case op.opType == language.Mutation && op.req.readOnly:
		return &Response{Errors: []executor.GraphQLError{{
			Message:    "mutations are not allowed over GET",
			Extensions: map[string]any{"code": codeMethodNotAllowed},
		}}}
	case op.opType == language.Subscription:
		return errorResult(language.Errorf("subscriptions require a WebSocket connection"))
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query:         op.req.Query,
		OperationName: op.req.OperationName,
		OperationType: string(op.opType),
		Transport:     transport,
		Index:         index,
	})
	result := h.exec.ExecuteRequest(ctx, op.doc, op.req.OperationName, op.req.Variables, nil)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         op.req.Query,
		OperationName: op.req.OperationName,
		OperationType: string(op.opType),
		Transport:     transport,
		Index:         index,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return result
}

// ------------------ Response formatting ------------------

const codeMethodNotAllowed = "METHOD_NOT_ALLOWED"

func isMethodNotAllowed(res *Response) bool {
	for _, e := range res.Errors {
		if e.Extensions["code"] == codeMethodNotAllowed {
			return true
		}
	}
	return false
}

func errorResult(err *language.Error) *Response {
	return &Response{Errors: fromLanguageErrors(language.ErrorList{err})}
}

func fromLanguageErrors(errs language.ErrorList) []executor.GraphQLError {
	out := make([]executor.GraphQLError, len(errs))
	for i, e := range errs {
		out[i] = executor.GraphQLError{Message: e.Message, Locations: e.Locations, Extensions: e.Extensions}
	}
	return out
}

func writeEnvelope(w http.ResponseWriter, status int, res envelope.Envelope[*Response], pretty bool) {
	body := envelope.Match(res,
		func(r *Response) any { return r },
		func(rs []*Response) any { return rs },
	)
	writeJSON(w, status, body, pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
