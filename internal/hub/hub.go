package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/store"
)

// Options configures hub dependencies.
type Options struct {
	Metrics  *hubMetrics
	Registry *registry.Registry
}

// Hub is the live-connection coordinator. It owns call state, dispatches
// inbound frames by kind, and fans outbound events out to live connections.
//
// Locking discipline: h.mu guards calls and the identity index only, and is
// never held across a Gateway call. Any in-memory mutation that follows a
// store round trip re-reads its precondition under the lock before applying.
type Hub struct {
	log     *zap.Logger
	store   store.Gateway
	reg     *registry.Registry
	metrics *hubMetrics
	notify  *notifier

	mu         sync.Mutex
	calls      map[uuid.UUID]*call
	callByUser map[uuid.UUID]uuid.UUID
}

// New wires a coordinator around the given durable store.
func New(log *zap.Logger, gw store.Gateway, opts Options) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	h := &Hub{
		log:        log,
		store:      gw,
		reg:        reg,
		metrics:    opts.Metrics,
		calls:      make(map[uuid.UUID]*call),
		callByUser: make(map[uuid.UUID]uuid.UUID),
	}
	h.notify = &notifier{log: log, store: gw, reg: reg, metrics: opts.Metrics}
	return h
}

// Registry exposes the connection registry for the transport layer.
func (h *Hub) Registry() *registry.Registry {
	return h.reg
}

// Attach registers an authenticated connection. The first connection for an
// identity flips presence to online: persisted, then broadcast exactly once.
func (h *Hub) Attach(ctx context.Context, c *Conn) {
	first := h.reg.Register(c)
	h.metrics.incConnection()
	if first {
		if err := h.store.UpdateUserStatus(ctx, c.UserID(), store.StatusOnline); err != nil {
			h.log.Warn("persist presence", zap.Error(err), zap.Stringer("user_id", c.UserID()))
		}
		h.reg.Broadcast(event.MustNew(event.KindPresenceChanged, event.PresenceChanged{
			UserID: c.UserID(),
			Status: store.StatusOnline,
		}))
	}
	h.log.Info("connection attached",
		zap.String("session_id", c.SessionID()),
		zap.Stringer("user_id", c.UserID()),
	)
}

// Detach tears a connection down: every call it is bound to is left first so
// no call keeps a stale participant, then presence is recomputed.
func (h *Hub) Detach(ctx context.Context, c *Conn) {
	c.cancel()
	h.dropFromCalls(c)

	last := h.reg.Unregister(c)
	h.metrics.decConnection()
	if last {
		if err := h.store.UpdateUserStatus(ctx, c.UserID(), store.StatusOffline); err != nil {
			h.log.Warn("persist presence", zap.Error(err), zap.Stringer("user_id", c.UserID()))
		}
		h.reg.Broadcast(event.MustNew(event.KindPresenceChanged, event.PresenceChanged{
			UserID: c.UserID(),
			Status: store.StatusOffline,
		}))
	}
	h.log.Info("connection detached",
		zap.String("session_id", c.SessionID()),
		zap.Stringer("user_id", c.UserID()),
	)
}

// Dispatch handles one inbound frame from an attached connection. Operation
// errors are reported back on the same connection; only fatal ones propagate
// to the caller and end the stream.
func (h *Hub) Dispatch(ctx context.Context, c *Conn, f event.Frame) error {
	start := time.Now()
	err := h.route(ctx, c, f)
	h.metrics.observeLatency(string(f.Kind), time.Since(start))
	if err == nil {
		return nil
	}

	var oe *opError
	if errors.As(err, &oe) {
		h.metrics.recordError(oe.code)
		_ = c.Deliver(event.MustNew(event.KindError, event.Error{Code: oe.code, Message: oe.msg}))
		if oe.fatal {
			return err
		}
		h.log.Debug("frame rejected",
			zap.String("kind", string(f.Kind)),
			zap.String("code", oe.code),
			zap.String("session_id", c.SessionID()),
		)
		return nil
	}
	return err
}

func (h *Hub) route(ctx context.Context, c *Conn, f event.Frame) error {
	switch f.Kind {
	case event.KindSendMessage:
		var p event.SendMessage
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleSendMessage(ctx, c, p)
	case event.KindEditMessage:
		var p event.EditMessage
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleEditMessage(ctx, c, p)
	case event.KindDeleteMessage:
		var p event.DeleteMessage
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleDeleteMessage(ctx, c, p)
	case event.KindAddReaction:
		var p event.ReactionChange
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleReaction(ctx, c, p, true)
	case event.KindRemoveReaction:
		var p event.ReactionChange
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleReaction(ctx, c, p, false)
	case event.KindInitiateCall:
		var p event.InitiateCall
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleInitiateCall(ctx, c, p)
	case event.KindAcceptCall:
		var p event.AcceptCall
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleAcceptCall(c, p)
	case event.KindRejectCall:
		var p event.RejectCall
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleRejectCall(c, p)
	case event.KindRelaySignal:
		var p event.RelaySignal
		if err := f.Decode(&p); err != nil {
			return errInvalid(err.Error())
		}
		return h.handleRelaySignal(c, p)
	case event.KindEndCall:
		return h.handleEndCall(c)
	case event.KindFetchNotifications:
		return h.handleFetchNotifications(ctx, c)
	case event.KindMarkNotificationsRead:
		var p event.MarkNotificationsRead
		if len(f.Body) > 0 {
			if err := f.Decode(&p); err != nil {
				return errInvalid(err.Error())
			}
		}
		return h.handleMarkNotificationsRead(ctx, c, p)
	case event.KindClearNotifications:
		return h.handleClearNotifications(ctx, c)
	case event.KindConnect:
		return &opError{code: CodeInvalidFrame, msg: "connect already completed", fatal: true}
	default:
		return errInvalid("unsupported frame kind")
	}
}

// deliverTo fans a frame out to every live connection of one user.
func (h *Hub) deliverTo(user uuid.UUID, f event.Frame) {
	for _, conn := range h.reg.Lookup(user) {
		_ = conn.Deliver(f)
	}
}
