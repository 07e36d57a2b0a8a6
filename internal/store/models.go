package store

import (
	"time"

	"github.com/google/uuid"
)

// Presence values persisted on the user row.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Notification kinds.
const (
	NotifyMessage       = "message"
	NotifyMissedCall    = "missed-call"
	NotifyFriendRequest = "friend-request"
)

// User is a registered account.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username string    `gorm:"uniqueIndex;not null" json:"username"`
	Avatar   string    `json:"avatar"`
	Status   string    `gorm:"default:offline" json:"status"`
}

// Session binds an issued auth token to a user. Token issuance happens
// elsewhere; this table is read-only for the coordinator.
type Session struct {
	Token     string    `gorm:"primaryKey" json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a direct message. Original is written once, on the first edit,
// and preserves the pre-edit content forever after.
type Message struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AuthorID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"author_id"`
	TargetID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"target_id"`
	Content   string     `json:"content"`
	Original  *string    `json:"original,omitempty"`
	Edited    bool       `json:"edited"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	ReplyToID *uuid.UUID `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Reaction rows are unique per (message, user, emoji).
type Reaction struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Emoji     string    `gorm:"primaryKey" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is the durable record of an uploaded file tied to a message.
// The upload path owns creation; the coordinator only cascades deletion.
type Attachment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;index;not null" json:"message_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
}

// Notification is the durable record of an event a user did not receive live.
type Notification struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID `gorm:"type:uuid;index;not null" json:"recipient_id"`
	OriginID    uuid.UUID `gorm:"type:uuid;index;not null" json:"origin_id"`
	Kind        string    `gorm:"not null" json:"kind"`
	Payload     string    `json:"payload"`
	Read        bool      `gorm:"default:false" json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
