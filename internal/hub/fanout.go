package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

// handleSendMessage persists the message first, then delivers it live to the
// recipient when present, or falls back to a durable notification. The
// author's own connections always get the created event so every device of a
// multi-device sender stays in sync.
func (h *Hub) handleSendMessage(ctx context.Context, c *Conn, p event.SendMessage) error {
	if p.Recipient == uuid.Nil {
		return errInvalid("recipient is required")
	}

	msg := store.Message{
		ID:        uuid.New(),
		AuthorID:  c.UserID(),
		TargetID:  p.Recipient,
		Content:   p.Content,
		ReplyToID: p.ReplyTo,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateMessage(ctx, &msg); err != nil {
		return errPersistence(err)
	}

	frame := event.MustNew(event.KindMessageCreated, h.wireMessage(ctx, msg))
	if h.reg.Online(p.Recipient) {
		h.deliverTo(p.Recipient, frame)
		h.metrics.recordMessage("send", "live")
	} else {
		h.notify.create(ctx, p.Recipient, c.UserID(), store.NotifyMessage, p.Content)
		h.metrics.recordMessage("send", "stored")
	}
	h.deliverTo(c.UserID(), frame)
	return nil
}

// handleEditMessage updates content, preserving the pre-edit text on the
// first edit only, and fans message-updated out to both parties.
func (h *Hub) handleEditMessage(ctx context.Context, c *Conn, p event.EditMessage) error {
	msg, err := h.authoredMessage(ctx, c, p.MessageID)
	if err != nil {
		return err
	}

	updated, err := h.store.EditMessage(ctx, p.MessageID, p.Content, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("message no longer exists")
		}
		return errPersistence(err)
	}

	frame := event.MustNew(event.KindMessageUpdated, h.wireMessage(ctx, updated))
	h.deliverTo(msg.TargetID, frame)
	h.deliverTo(c.UserID(), frame)
	h.metrics.recordMessage("edit", "live")
	return nil
}

// handleDeleteMessage removes the message with its reactions and attachment
// records, then fans message-deleted out to both parties.
func (h *Hub) handleDeleteMessage(ctx context.Context, c *Conn, p event.DeleteMessage) error {
	msg, err := h.authoredMessage(ctx, c, p.MessageID)
	if err != nil {
		return err
	}

	if err := h.store.DeleteMessage(ctx, p.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Removed concurrently; nothing left to announce.
			h.log.Debug("delete raced with another delete", zap.Stringer("message_id", p.MessageID))
			return nil
		}
		return errPersistence(err)
	}

	frame := event.MustNew(event.KindMessageDeleted, event.MessageDeleted{MessageID: p.MessageID})
	h.deliverTo(msg.TargetID, frame)
	h.deliverTo(c.UserID(), frame)
	h.metrics.recordMessage("delete", "live")
	return nil
}

// handleReaction adds or removes one (message, user, emoji) triple, both
// idempotently, then broadcasts the recomputed aggregate. The broadcast goes
// to every live connection; clients filter by message id.
func (h *Hub) handleReaction(ctx context.Context, c *Conn, p event.ReactionChange, add bool) error {
	if p.Emoji == "" {
		return errInvalid("emoji is required")
	}
	if _, err := h.store.MessageByID(ctx, p.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("message no longer exists")
		}
		return errPersistence(err)
	}

	var err error
	if add {
		err = h.store.AddReaction(ctx, store.Reaction{
			MessageID: p.MessageID,
			UserID:    c.UserID(),
			Emoji:     p.Emoji,
			CreatedAt: time.Now(),
		})
	} else {
		err = h.store.RemoveReaction(ctx, p.MessageID, c.UserID(), p.Emoji)
	}
	if err != nil {
		return errPersistence(err)
	}

	reactions, err := h.store.ReactionsFor(ctx, p.MessageID)
	if err != nil {
		return errPersistence(err)
	}
	h.reg.Broadcast(event.MustNew(event.KindReactionsUpdated, event.ReactionsUpdated{
		MessageID: p.MessageID,
		Reactions: aggregateReactions(reactions),
	}))
	return nil
}

// authoredMessage loads a message and enforces that the acting connection's
// identity wrote it.
func (h *Hub) authoredMessage(ctx context.Context, c *Conn, id uuid.UUID) (store.Message, error) {
	msg, err := h.store.MessageByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Message{}, errNotFound("message not found")
		}
		return store.Message{}, errPersistence(err)
	}
	if msg.AuthorID != c.UserID() {
		return store.Message{}, errNotAuthor("message belongs to another user")
	}
	return msg, nil
}

// wireMessage converts a stored message to its wire view, resolving a reply
// target that no longer exists to "unavailable" rather than an error.
func (h *Hub) wireMessage(ctx context.Context, m store.Message) event.Message {
	out := event.Message{
		ID:        m.ID,
		Author:    m.AuthorID,
		Recipient: m.TargetID,
		Content:   m.Content,
		ReplyTo:   m.ReplyToID,
		Edited:    m.Edited,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
	if m.ReplyToID != nil {
		if _, err := h.store.MessageByID(ctx, *m.ReplyToID); errors.Is(err, store.ErrNotFound) {
			out.ReplyUnavailable = true
		}
	}
	return out
}

// aggregateReactions groups reaction rows per emoji, counting and collecting
// reactors in first-seen order.
func aggregateReactions(rows []store.Reaction) []event.ReactionCount {
	order := make([]string, 0, 4)
	byEmoji := make(map[string]*event.ReactionCount, 4)
	for _, r := range rows {
		rc, ok := byEmoji[r.Emoji]
		if !ok {
			order = append(order, r.Emoji)
			rc = &event.ReactionCount{Emoji: r.Emoji}
			byEmoji[r.Emoji] = rc
		}
		rc.Count++
		rc.Users = append(rc.Users, r.UserID)
	}
	out := make([]event.ReactionCount, 0, len(order))
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	return out
}
