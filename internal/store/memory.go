package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is a map-backed Gateway used in tests and by the hub's own
// test helpers. Behavior mirrors GormGateway.
type MemoryGateway struct {
	mu            sync.Mutex
	users         map[uuid.UUID]User
	sessions      map[string]uuid.UUID
	messages      map[uuid.UUID]Message
	reactions     map[Reaction]time.Time
	attachments   map[uuid.UUID][]Attachment
	notifications map[uuid.UUID]Notification

	// FailNext makes the next mutating call fail, for persistence-outage tests.
	FailNext error
}

// NewMemory builds an empty in-memory gateway.
func NewMemory() *MemoryGateway {
	return &MemoryGateway{
		users:         make(map[uuid.UUID]User),
		sessions:      make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID]Message),
		reactions:     make(map[Reaction]time.Time),
		attachments:   make(map[uuid.UUID][]Attachment),
		notifications: make(map[uuid.UUID]Notification),
	}
}

// SeedUser registers a user with a session token, for test setup.
func (m *MemoryGateway) SeedUser(u User, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if token != "" {
		m.sessions[token] = u.ID
	}
}

// SeedAttachment links an attachment record to a message, for test setup.
func (m *MemoryGateway) SeedAttachment(a Attachment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.MessageID] = append(m.attachments[a.MessageID], a)
}

// AttachmentsFor reports remaining attachment records for a message.
func (m *MemoryGateway) AttachmentsFor(messageID uuid.UUID) []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attachment(nil), m.attachments[messageID]...)
}

func (m *MemoryGateway) failure() error {
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	return nil
}

func (m *MemoryGateway) UserByToken(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[token]
	if !ok {
		return User{}, ErrNotFound
	}
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryGateway) UserByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryGateway) UpdateUserStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Status = status
	m.users[id] = user
	return nil
}

func (m *MemoryGateway) CreateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages[msg.ID] = *msg
	return nil
}

func (m *MemoryGateway) MessageByID(_ context.Context, id uuid.UUID) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

func (m *MemoryGateway) EditMessage(_ context.Context, id uuid.UUID, content string, at time.Time) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return Message{}, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.Original == nil {
		original := msg.Content
		msg.Original = &original
	}
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &at
	m.messages[id] = msg
	return msg, nil
}

func (m *MemoryGateway) DeleteMessage(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if _, ok := m.messages[id]; !ok {
		return ErrNotFound
	}
	delete(m.messages, id)
	for r := range m.reactions {
		if r.MessageID == id {
			delete(m.reactions, r)
		}
	}
	delete(m.attachments, id)
	return nil
}

func (m *MemoryGateway) AddReaction(_ context.Context, r Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	key := Reaction{MessageID: r.MessageID, UserID: r.UserID, Emoji: r.Emoji}
	if _, exists := m.reactions[key]; exists {
		return nil
	}
	at := r.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	m.reactions[key] = at
	return nil
}

func (m *MemoryGateway) RemoveReaction(_ context.Context, messageID, userID uuid.UUID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	delete(m.reactions, Reaction{MessageID: messageID, UserID: userID, Emoji: emoji})
	return nil
}

func (m *MemoryGateway) ReactionsFor(_ context.Context, messageID uuid.UUID) ([]Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reaction
	for r, at := range m.reactions {
		if r.MessageID == messageID {
			r.CreatedAt = at
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryGateway) CreateNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications[n.ID] = *n
	return nil
}

func (m *MemoryGateway) UnreadNotifications(_ context.Context, recipient uuid.UUID) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipient && !n.Read {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryGateway) MarkNotificationsRead(_ context.Context, recipient uuid.UUID, origin *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	for id, n := range m.notifications {
		if n.RecipientID != recipient {
			continue
		}
		if origin != nil && n.OriginID != *origin {
			continue
		}
		n.Read = true
		m.notifications[id] = n
	}
	return nil
}

func (m *MemoryGateway) DeleteNotifications(_ context.Context, recipient uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(); err != nil {
		return err
	}
	for id, n := range m.notifications {
		if n.RecipientID == recipient {
			delete(m.notifications, id)
		}
	}
	return nil
}
