package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormGateway implements Gateway on a gorm-managed database.
type GormGateway struct {
	db *gorm.DB
}

// Open connects to the SQLite database at path and migrates the schema.
func Open(path string) (*GormGateway, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	g := &GormGateway{db: db}
	if err := g.migrate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GormGateway) migrate() error {
	if err := g.db.AutoMigrate(&User{}, &Session{}, &Message{}, &Reaction{}, &Attachment{}, &Notification{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (g *GormGateway) UserByToken(ctx context.Context, token string) (User, error) {
	var session Session
	if err := g.db.WithContext(ctx).First(&session, "token = ?", token).Error; err != nil {
		return User{}, translate(err)
	}
	return g.UserByID(ctx, session.UserID)
}

func (g *GormGateway) UserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	if err := g.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return User{}, translate(err)
	}
	return user, nil
}

func (g *GormGateway) UpdateUserStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := g.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormGateway) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return translate(g.db.WithContext(ctx).Create(m).Error)
}

func (g *GormGateway) MessageByID(ctx context.Context, id uuid.UUID) (Message, error) {
	var m Message
	if err := g.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return Message{}, translate(err)
	}
	return m, nil
}

func (g *GormGateway) EditMessage(ctx context.Context, id uuid.UUID, content string, at time.Time) (Message, error) {
	var m Message
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		if m.Original == nil {
			original := m.Content
			m.Original = &original
		}
		m.Content = content
		m.Edited = true
		m.EditedAt = &at
		return tx.Save(&m).Error
	})
	if err != nil {
		return Message{}, translate(err)
	}
	return m, nil
}

func (g *GormGateway) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return translate(g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Message{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Delete(&Reaction{}, "message_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Attachment{}, "message_id = ?", id).Error
	}))
}

func (g *GormGateway) AddReaction(ctx context.Context, r Reaction) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return translate(g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&r).Error)
}

func (g *GormGateway) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	return translate(g.db.WithContext(ctx).
		Delete(&Reaction{}, "message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).Error)
}

func (g *GormGateway) ReactionsFor(ctx context.Context, messageID uuid.UUID) ([]Reaction, error) {
	var reactions []Reaction
	err := g.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, translate(err)
}

func (g *GormGateway) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return translate(g.db.WithContext(ctx).Create(n).Error)
}

func (g *GormGateway) UnreadNotifications(ctx context.Context, recipient uuid.UUID) ([]Notification, error) {
	var notifications []Notification
	err := g.db.WithContext(ctx).
		Where("recipient_id = ? AND read = ?", recipient, false).
		Order("created_at ASC").
		Find(&notifications).Error
	return notifications, translate(err)
}

func (g *GormGateway) MarkNotificationsRead(ctx context.Context, recipient uuid.UUID, origin *uuid.UUID) error {
	q := g.db.WithContext(ctx).Model(&Notification{}).Where("recipient_id = ?", recipient)
	if origin != nil {
		q = q.Where("origin_id = ?", *origin)
	}
	return translate(q.Update("read", true).Error)
}

func (g *GormGateway) DeleteNotifications(ctx context.Context, recipient uuid.UUID) error {
	return translate(g.db.WithContext(ctx).Delete(&Notification{}, "recipient_id = ?", recipient).Error)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
