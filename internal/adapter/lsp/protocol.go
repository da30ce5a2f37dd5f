package lsp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// sender is the write half the handler needs from a transport.
type sender interface {
	Send(data []byte) error
}

// NotificationFunc handles a server notification.
type NotificationFunc func(params json.RawMessage)

// RequestFunc handles a server-to-client request and produces its result.
type RequestFunc func(params json.RawMessage) (any, error)

// Handler multiplexes JSON-RPC 2.0 over a transport. Outgoing requests get
// monotonically increasing ids and are correlated with responses by id alone;
// responses may arrive in any order. Callers block, the read path never does.
type Handler struct {
	conn   sender
	logger *slog.Logger

	nextID  atomic.Int64
	pending map[int64]chan *Message
	pendMu  sync.Mutex

	notif  map[string]NotificationFunc
	reqs   map[string]RequestFunc
	regMu  sync.RWMutex
	closed atomic.Bool
}

// NewHandler creates a handler writing through conn. Feed incoming payloads
// to HandlePayload (typically as the transport's payload callback).
func NewHandler(conn sender, logger *slog.Logger) *Handler {
	return &Handler{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan *Message),
		notif:   make(map[string]NotificationFunc),
		reqs:    make(map[string]RequestFunc),
	}
}

// OnNotification registers fn for a server notification method. Must be
// called before the transport starts delivering payloads.
func (h *Handler) OnNotification(method string, fn NotificationFunc) {
	h.regMu.Lock()
	defer h.regMu.Unlock()
	h.notif[method] = fn
}

// OnRequest registers fn for a server-to-client request method.
func (h *Handler) OnRequest(method string, fn RequestFunc) {
	h.regMu.Lock()
	defer h.regMu.Unlock()
	h.reqs[method] = fn
}

// Call sends a request and blocks until the response arrives, ctx expires,
// or the handler closes. A deadline expiry surfaces as a timeout error;
// retries are the caller's policy, never done here.
func (h *Handler) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if h.closed.Load() {
		return nil, lspDomain.NewError(lspDomain.KindTransport, "connection closed")
	}

	id := h.nextID.Add(1)
	ch := make(chan *Message, 1)

	h.pendMu.Lock()
	h.pending[id] = ch
	h.pendMu.Unlock()

	defer func() {
		h.pendMu.Lock()
		delete(h.pending, id)
		h.pendMu.Unlock()
	}()

	data, err := marshalRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := h.conn.Send(data); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, lspDomain.NewError(lspDomain.KindTransport, "process terminated while %s pending", method)
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, lspDomain.WrapError(lspDomain.KindTimeout, ctx.Err(), "%s timed out", method)
		}
		return nil, ctx.Err()
	}
}

// Notify sends a notification; no response is expected.
func (h *Handler) Notify(method string, params any) error {
	data, err := marshalNotification(method, params)
	if err != nil {
		return err
	}
	return h.conn.Send(data)
}

// HandlePayload parses one raw payload and dispatches it. Malformed payloads
// and responses with no pending request are dropped; the stream continues.
func (h *Handler) HandlePayload(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("dropping malformed message", "error", err)
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		h.dispatchResponse(&msg)
	case msg.ID != nil:
		h.dispatchRequest(&msg)
	default:
		h.dispatchNotification(&msg)
	}
}

// Close fails all pending calls with a transport error and rejects future
// ones. Safe to call more than once.
func (h *Handler) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.pendMu.Lock()
	for id, ch := range h.pending {
		ch <- nil
		delete(h.pending, id)
	}
	h.pendMu.Unlock()
}

func (h *Handler) dispatchResponse(msg *Message) {
	h.pendMu.Lock()
	ch, ok := h.pending[*msg.ID]
	if ok {
		delete(h.pending, *msg.ID)
	}
	h.pendMu.Unlock()
	if !ok {
		h.logger.Debug("response with no pending request", "id", *msg.ID)
		return
	}
	ch <- msg
}

func (h *Handler) dispatchRequest(msg *Message) {
	h.regMu.RLock()
	fn, ok := h.reqs[msg.Method]
	h.regMu.RUnlock()

	var data []byte
	var err error
	if !ok {
		data, err = marshalResponse(*msg.ID, nil, &ResponseError{
			Code:    codeMethodNotFound,
			Message: "method not found: " + msg.Method,
		})
	} else {
		result, hErr := fn(msg.Params)
		if hErr != nil {
			data, err = marshalResponse(*msg.ID, nil, &ResponseError{
				Code:    codeInternalError,
				Message: hErr.Error(),
			})
		} else {
			data, err = marshalResponse(*msg.ID, result, nil)
		}
	}
	if err != nil {
		h.logger.Warn("marshal response failed", "method", msg.Method, "error", err)
		return
	}
	if err := h.conn.Send(data); err != nil {
		h.logger.Warn("send response failed", "method", msg.Method, "error", err)
	}
}

func (h *Handler) dispatchNotification(msg *Message) {
	h.regMu.RLock()
	fn, ok := h.notif[msg.Method]
	h.regMu.RUnlock()
	if !ok {
		h.logger.Debug("notification ignored", "method", msg.Method)
		return
	}
	fn(msg.Params)
}
