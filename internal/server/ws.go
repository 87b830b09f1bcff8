package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	events "github.com/hanpama/graphserve/internal/events"
	executor "github.com/hanpama/graphserve/internal/executor"
	language "github.com/hanpama/graphserve/internal/language"
	reqid "github.com/hanpama/graphserve/internal/reqid"
)

// graphql-transport-ws message types and close codes.
const (
	wsProtocol = "graphql-transport-ws"

	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"

	closeInvalidMessage      = 4400
	closeUnauthorized        = 4401
	closeSubprotocol         = 4406
	closeInitTimeout         = 4408
	closeSubscriberExists    = 4409
	closeTooManyInitRequests = 4429
)

const wsWriteWait = 10 * time.Second

var errConnClosed = errors.New("websocket: connection closed")

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsClose struct {
	code   int
	reason string
}

type wsOutbound struct {
	msg   wsMessage
	close *wsClose
}

// wsOperation is one running subscribe request. The pointer identifies the
// entry so a finished operation never removes a newer one with the same id.
type wsOperation struct {
	cancel context.CancelFunc
}

type wsConn struct {
	h    *Handler
	conn *websocket.Conn
	rid  string

	out         chan wsOutbound
	initDone    chan struct{}
	initialized bool // reader goroutine only
	closeCode   atomic.Int32
	group       *errgroup.Group

	mu  sync.Mutex
	ops map[string]*wsOperation
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.sessions.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(h.base, cancel)()
	rid, ok := reqid.FromContext(ctx)
	if !ok {
		ctx, rid = reqid.FromRequest(ctx, r)
	}
	upgrader := websocket.Upgrader{
		Subprotocols: []string{wsProtocol},
		CheckOrigin:  h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, http.Header{reqid.Header: {rid}})
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	if conn.Subprotocol() != wsProtocol {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeSubprotocol, "Subprotocol not acceptable"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}

	ctx = h.outgoingMetadata(ctx, r, rid)
	r = r.WithContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.WSConnect{Request: r})

	c := &wsConn{
		h:        h,
		conn:     conn,
		rid:      rid,
		out:      make(chan wsOutbound, 16),
		initDone: make(chan struct{}),
		ops:      make(map[string]*wsOperation),
	}
	c.run(ctx)

	eventbus.Publish(ctx, events.WSDisconnect{
		Request:   r,
		CloseCode: int(c.closeCode.Load()),
		Duration:  time.Since(start),
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := h.opt.CORS.AllowedOrigins
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// run blocks until the connection ends. The reader, the writer, the
// keepalive loop and every operation run in one errgroup; the first of them
// to fail cancels the others.
func (c *wsConn) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	c.group = g
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return c.keepAlive(gctx) })
	_ = g.Wait()
}

func (c *wsConn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return errConnClosed
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.close(ctx, closeInvalidMessage, "Invalid message received")
			return nil
		}

		switch msg.Type {
		case msgConnectionInit:
			if c.initialized {
				c.close(ctx, closeTooManyInitRequests, "Too many initialisation requests")
				return nil
			}
			c.initialized = true
			close(c.initDone)
			c.send(ctx, wsMessage{Type: msgConnectionAck})

		case msgPing:
			c.send(ctx, wsMessage{Type: msgPong, Payload: msg.Payload})

		case msgPong:

		case msgSubscribe:
			if !c.initialized {
				c.close(ctx, closeUnauthorized, "Unauthorized")
				return nil
			}
			var req Request
			if msg.ID == "" || json.Unmarshal(msg.Payload, &req) != nil || req.Query == "" {
				c.close(ctx, closeInvalidMessage, "Invalid message received")
				return nil
			}
			opCtx, cancel := context.WithCancel(ctx)
			op := &wsOperation{cancel: cancel}
			c.mu.Lock()
			_, exists := c.ops[msg.ID]
			if !exists {
				c.ops[msg.ID] = op
			}
			c.mu.Unlock()
			if exists {
				cancel()
				c.close(ctx, closeSubscriberExists, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
				return nil
			}
			id := msg.ID
			c.group.Go(func() error {
				defer c.finish(id, op)
				c.runOperation(opCtx, id, req)
				return nil
			})

		case msgComplete:
			c.mu.Lock()
			op := c.ops[msg.ID]
			delete(c.ops, msg.ID)
			c.mu.Unlock()
			if op != nil {
				op.cancel()
			}

		default:
			c.close(ctx, closeInvalidMessage, "Invalid message received")
			return nil
		}
	}
}

func (c *wsConn) writeLoop(ctx context.Context) error {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return ctx.Err()
		case o := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if o.close != nil {
				c.closeCode.Store(int32(o.close.code))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(o.close.code, o.close.reason))
				return errConnClosed
			}
			if err := c.conn.WriteJSON(o.msg); err != nil {
				return err
			}
		}
	}
}

// keepAlive enforces the connection_init timeout and then pings the client
// at the configured interval.
func (c *wsConn) keepAlive(ctx context.Context) error {
	if c.h.opt.InitTimeout > 0 {
		timer := time.NewTimer(c.h.opt.InitTimeout)
		defer timer.Stop()
		select {
		case <-c.initDone:
		case <-timer.C:
			c.close(ctx, closeInitTimeout, "Connection initialisation timeout")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	if c.h.opt.KeepAlive <= 0 {
		return nil
	}
	ticker := time.NewTicker(c.h.opt.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.send(ctx, wsMessage{Type: msgPing}) {
				return nil
			}
		}
	}
}

func (c *wsConn) runOperation(ctx context.Context, id string, req Request) {
	ctx = reqid.WithID(ctx, c.rid+"/"+id)
	op := c.h.prepare(req)
	if op.err != nil {
		c.sendPayload(ctx, id, msgError, op.err.Errors)
		return
	}

	if op.opType != language.Subscription {
		if c.h.opt.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.h.opt.Timeout)
			defer cancel()
		}
		res := c.h.executeOne(ctx, op, events.TransportWebSocket, -1)
		if c.sendPayload(ctx, id, msgNext, res) {
			c.send(ctx, wsMessage{ID: id, Type: msgComplete})
		}
		return
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: string(op.opType),
		Transport:     events.TransportWebSocket,
		Index:         -1,
	})
	var errs []error
	defer func() {
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: string(op.opType),
			Transport:     events.TransportWebSocket,
			Index:         -1,
			Errors:        errs,
			Duration:      time.Since(start),
		})
	}()

	results, err := c.h.exec.Subscribe(ctx, op.doc, req.OperationName, req.Variables)
	if err != nil {
		errs = append(errs, err)
		c.sendPayload(ctx, id, msgError, []executor.GraphQLError{asGraphQLError(err)})
		return
	}
	for res := range results {
		for _, e := range res.Errors {
			errs = append(errs, e)
		}
		if !c.sendPayload(ctx, id, msgNext, res) {
			return
		}
	}
	if ctx.Err() == nil {
		c.send(ctx, wsMessage{ID: id, Type: msgComplete})
	}
}

func (c *wsConn) finish(id string, op *wsOperation) {
	op.cancel()
	c.mu.Lock()
	if c.ops[id] == op {
		delete(c.ops, id)
	}
	c.mu.Unlock()
}

func (c *wsConn) send(ctx context.Context, msg wsMessage) bool {
	select {
	case c.out <- wsOutbound{msg: msg}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *wsConn) sendPayload(ctx context.Context, id, typ string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal([]executor.GraphQLError{{Message: err.Error()}})
		typ = msgError
	}
	return c.send(ctx, wsMessage{ID: id, Type: typ, Payload: data})
}

func (c *wsConn) close(ctx context.Context, code int, reason string) {
	select {
	case c.out <- wsOutbound{close: &wsClose{code: code, reason: reason}}:
	case <-ctx.Done():
	}
}

func asGraphQLError(err error) executor.GraphQLError {
	var ge executor.GraphQLError
	if errors.As(err, &ge) {
		return ge
	}
	return executor.GraphQLError{Message: err.Error()}
}
