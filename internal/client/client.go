// Package client is a small GraphQL-over-HTTP client. It sends single and
// batched operations and decodes the response envelope, checking that the
// server answered with the same shape it was sent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	envelope "github.com/hanpama/graphserve/internal/envelope"
)

var (
	// ErrShapeMismatch means the server returned a batch for a single
	// request or an object for a batch.
	ErrShapeMismatch = errors.New("client: response shape does not match request")
	// ErrBatchLength means a batch response has a different number of
	// results than operations sent.
	ErrBatchLength = errors.New("client: batch response length mismatch")
	// ErrNullResponse means the body, or an element of a batch body, was
	// JSON null instead of a response object.
	ErrNullResponse = errors.New("client: null response")
)

// Request is one GraphQL operation.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL error as returned by the server.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string { return e.Message }

// Response is the result of one operation. Data is kept raw so callers can
// decode it into their own types.
type Response struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     []Error         `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// Decode unmarshals Data into v. A null or missing data decodes to nothing.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// StatusError is returned when the server replies with a non-2xx status and
// a body that is not a GraphQL response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
//
// Defaults:
// - ConnectTimeout: 10s
// - ReadTimeout:    60s (idle time allowed between reads)
// - WriteTimeout:   60s (idle time allowed between writes)
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Header         http.Header
	HTTPClient     *http.Client
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
		Header:         http.Header{},
	}
}

func WithConnectTimeout(d time.Duration) Option { return func(o *Options) { o.ConnectTimeout = d } }
func WithReadTimeout(d time.Duration) Option    { return func(o *Options) { o.ReadTimeout = d } }
func WithWriteTimeout(d time.Duration) Option   { return func(o *Options) { o.WriteTimeout = d } }
func WithHeader(key, value string) Option       { return func(o *Options) { o.Header.Add(key, value) } }

// WithHTTPClient replaces the client built from the timeout options.
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.HTTPClient = c } }

// Client sends GraphQL requests to one endpoint.
type Client struct {
	url    string
	header http.Header
	http   *http.Client
}

func New(url string, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: newTransport(o)}
	}
	return &Client{url: url, header: o.Header, http: hc}
}

// Do sends a single operation. A batch response is an ErrShapeMismatch.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	env, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return envelope.Match(env,
		func(r *Response) *Response { return r },
		func([]*Response) *Response { return nil },
	), shapeError(env, envelope.KindSingle)
}

// DoBatch sends the operations as one JSON array and returns the results
// in the same order.
func (c *Client) DoBatch(ctx context.Context, reqs []Request) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, errors.New("client: empty batch")
	}
	env, err := c.send(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if err := shapeError(env, envelope.KindBatch); err != nil {
		return nil, err
	}
	results := envelope.Match(env,
		func(*Response) []*Response { return nil },
		func(rs []*Response) []*Response { return rs },
	)
	if len(results) != len(reqs) {
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrBatchLength, len(reqs), len(results))
	}
	return results, nil
}

func shapeError(env envelope.Envelope[*Response], want envelope.Kind) error {
	if env.Kind() != want {
		return fmt.Errorf("%w: want %s, got %s", ErrShapeMismatch, want, env.Kind())
	}
	return nil
}

func (c *Client) send(ctx context.Context, payload any) (envelope.Envelope[*Response], error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	env, decodeErr := envelope.Decode[*Response](data)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch {
	case decodeErr == nil && !hasNull(env):
		// request errors come back with 4xx and a normal GraphQL body
		return env, nil
	case !ok:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	case decodeErr == nil:
		return nil, ErrNullResponse
	default:
		return nil, fmt.Errorf("client: decode response: %w", decodeErr)
	}
}

func hasNull(env envelope.Envelope[*Response]) bool {
	return envelope.Match(env,
		func(r *Response) bool { return r == nil },
		func(rs []*Response) bool { return slices.Contains(rs, nil) })
}

func newTransport(o *Options) *http.Transport {
	dialer := &net.Dialer{Timeout: o.ConnectTimeout}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &timeoutConn{Conn: conn, read: o.ReadTimeout, write: o.WriteTimeout}, nil
	}
	return t
}

// timeoutConn pushes the deadline forward before every read and write, so
// the timeouts bound idle time rather than the whole exchange.
type timeoutConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
