package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Connect is the first inbound frame on every stream; the token identifies an
// established session, it is never minted here.
type Connect struct {
	Token string `json:"token"`
}

type SendMessage struct {
	Recipient uuid.UUID  `json:"recipient"`
	Content   string     `json:"content"`
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty"`
}

type EditMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type DeleteMessage struct {
	MessageID uuid.UUID `json:"message_id"`
}

type ReactionChange struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type InitiateCall struct {
	Callee uuid.UUID `json:"callee"`
	Media  string    `json:"media"`
}

type AcceptCall struct {
	Caller uuid.UUID `json:"caller"`
}

type RejectCall struct {
	Caller uuid.UUID `json:"caller"`
}

// RelaySignal carries an opaque session description or network candidate.
// The payload is never interpreted server-side.
type RelaySignal struct {
	Target  uuid.UUID       `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

type MarkNotificationsRead struct {
	Origin *uuid.UUID `json:"origin,omitempty"`
}

type ConnectAck struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
}

type PresenceChanged struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
}

// Message is the wire view of a direct message. ReplyUnavailable is set when
// the reply target no longer exists.
type Message struct {
	ID               uuid.UUID  `json:"id"`
	Author           uuid.UUID  `json:"author"`
	Recipient        uuid.UUID  `json:"recipient"`
	Content          string     `json:"content"`
	ReplyTo          *uuid.UUID `json:"reply_to,omitempty"`
	ReplyUnavailable bool       `json:"reply_unavailable,omitempty"`
	Edited           bool       `json:"edited,omitempty"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type MessageDeleted struct {
	MessageID uuid.UUID `json:"message_id"`
}

// ReactionCount is one emoji's aggregate on a message.
type ReactionCount struct {
	Emoji string      `json:"emoji"`
	Count int         `json:"count"`
	Users []uuid.UUID `json:"users"`
}

type ReactionsUpdated struct {
	MessageID uuid.UUID       `json:"message_id"`
	Reactions []ReactionCount `json:"reactions"`
}

type IncomingCall struct {
	CallID uuid.UUID `json:"call_id"`
	Caller uuid.UUID `json:"caller"`
	Media  string    `json:"media"`
}

type CallAccepted struct {
	CallID uuid.UUID `json:"call_id"`
	Peer   uuid.UUID `json:"peer"`
}

type CallRejected struct {
	CallID uuid.UUID `json:"call_id"`
}

// CallJoined carries the updated participant set after a join-in-progress.
type CallJoined struct {
	CallID       uuid.UUID   `json:"call_id"`
	Joined       uuid.UUID   `json:"joined"`
	Participants []uuid.UUID `json:"participants"`
}

type CallEnded struct {
	CallID uuid.UUID `json:"call_id"`
	Peer   uuid.UUID `json:"peer"`
}

type UserLeftCall struct {
	CallID uuid.UUID `json:"call_id"`
	Peer   uuid.UUID `json:"peer"`
}

type SignalRelayed struct {
	From    uuid.UUID       `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type Notification struct {
	ID        uuid.UUID `json:"id"`
	Origin    uuid.UUID `json:"origin"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationList struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
