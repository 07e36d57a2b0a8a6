package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the addressed row does not exist. Callers
// treat it as benign; everything else is a persistence failure.
var ErrNotFound = errors.New("record not found")

// Gateway is the durable store consumed by the coordinator. Implementations
// must be safe for concurrent use; every call is a suspension point for the
// coordinator, so no in-memory coordinator state may be touched by them.
type Gateway interface {
	// UserByToken resolves an auth token to its account.
	UserByToken(ctx context.Context, token string) (User, error)
	UserByID(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUserStatus(ctx context.Context, id uuid.UUID, status string) error

	CreateMessage(ctx context.Context, m *Message) error
	MessageByID(ctx context.Context, id uuid.UUID) (Message, error)
	// EditMessage replaces the content, stamps the edit, and preserves the
	// pre-edit content in Original on the first edit only.
	EditMessage(ctx context.Context, id uuid.UUID, content string, at time.Time) (Message, error)
	// DeleteMessage removes the message together with its reactions and any
	// linked attachment record.
	DeleteMessage(ctx context.Context, id uuid.UUID) error

	// AddReaction is idempotent: an existing (message, user, emoji) triple
	// is left untouched.
	AddReaction(ctx context.Context, r Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	ReactionsFor(ctx context.Context, messageID uuid.UUID) ([]Reaction, error)

	CreateNotification(ctx context.Context, n *Notification) error
	UnreadNotifications(ctx context.Context, recipient uuid.UUID) ([]Notification, error)
	// MarkNotificationsRead flags the recipient's unread rows; a non-nil
	// origin narrows the bulk update to that sender.
	MarkNotificationsRead(ctx context.Context, recipient uuid.UUID, origin *uuid.UUID) error
	DeleteNotifications(ctx context.Context, recipient uuid.UUID) error
}
