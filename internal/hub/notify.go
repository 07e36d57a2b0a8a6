package hub

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/store"
)

var _ registry.Connection = (*Conn)(nil)

// notifier produces durable notifications plus best-effort live pushes. A
// failed push never rolls the durable append back.
type notifier struct {
	log     *zap.Logger
	store   store.Gateway
	reg     *registry.Registry
	metrics *hubMetrics
}

func (n *notifier) create(ctx context.Context, recipient, origin uuid.UUID, kind, payload string) {
	record := store.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		OriginID:    origin,
		Kind:        kind,
		Payload:     payload,
	}
	if err := n.store.CreateNotification(ctx, &record); err != nil {
		n.log.Warn("persist notification",
			zap.Error(err),
			zap.Stringer("recipient", recipient),
			zap.String("kind", kind),
		)
		return
	}
	n.metrics.recordNotification(kind)

	frame := event.MustNew(event.KindNewNotification, wireNotification(record))
	for _, conn := range n.reg.Lookup(recipient) {
		_ = conn.Deliver(frame)
	}
}

func (h *Hub) handleFetchNotifications(ctx context.Context, c *Conn) error {
	items, err := h.store.UnreadNotifications(ctx, c.UserID())
	if err != nil {
		return errPersistence(err)
	}
	list := event.NotificationList{
		Items:  make([]event.Notification, 0, len(items)),
		Unread: len(items),
	}
	for _, n := range items {
		list.Items = append(list.Items, wireNotification(n))
	}
	return c.Deliver(event.MustNew(event.KindNotificationList, list))
}

func (h *Hub) handleMarkNotificationsRead(ctx context.Context, c *Conn, p event.MarkNotificationsRead) error {
	if err := h.store.MarkNotificationsRead(ctx, c.UserID(), p.Origin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return errPersistence(err)
	}
	return nil
}

func (h *Hub) handleClearNotifications(ctx context.Context, c *Conn) error {
	if err := h.store.DeleteNotifications(ctx, c.UserID()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return errPersistence(err)
	}
	return nil
}

func wireNotification(n store.Notification) event.Notification {
	return event.Notification{
		ID:        n.ID,
		Origin:    n.OriginID,
		Kind:      n.Kind,
		Payload:   n.Payload,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
