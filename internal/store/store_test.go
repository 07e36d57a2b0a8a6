package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayFixtures runs the behavior suite against both Gateway
// implementations so the in-memory one cannot drift from the real schema.
func gatewayFixtures(t *testing.T) map[string]Gateway {
	t.Helper()
	gg, err := Open(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	return map[string]Gateway{
		"memory": NewMemory(),
		"gorm":   gg,
	}
}

func seedUser(t *testing.T, gw Gateway, u User, token string) {
	t.Helper()
	switch g := gw.(type) {
	case *MemoryGateway:
		g.SeedUser(u, token)
	case *GormGateway:
		require.NoError(t, g.db.Create(&u).Error)
		if token != "" {
			require.NoError(t, g.db.Create(&Session{Token: token, UserID: u.ID}).Error)
		}
	default:
		t.Fatalf("unknown gateway type %T", gw)
	}
}

func seedAttachment(t *testing.T, gw Gateway, a Attachment) {
	t.Helper()
	switch g := gw.(type) {
	case *MemoryGateway:
		g.SeedAttachment(a)
	case *GormGateway:
		require.NoError(t, g.db.Create(&a).Error)
	default:
		t.Fatalf("unknown gateway type %T", gw)
	}
}

func attachmentCount(t *testing.T, gw Gateway, messageID uuid.UUID) int {
	t.Helper()
	switch g := gw.(type) {
	case *MemoryGateway:
		return len(g.AttachmentsFor(messageID))
	case *GormGateway:
		var n int64
		require.NoError(t, g.db.Model(&Attachment{}).Where("message_id = ?", messageID).Count(&n).Error)
		return int(n)
	default:
		t.Fatalf("unknown gateway type %T", gw)
		return 0
	}
}

func TestUserByToken(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := User{ID: uuid.New(), Username: "alice"}
			seedUser(t, gw, user, "tok-alice")

			got, err := gw.UserByToken(ctx, "tok-alice")
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
			assert.Equal(t, "alice", got.Username)

			_, err = gw.UserByToken(ctx, "tok-unknown")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateUserStatus(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := User{ID: uuid.New(), Username: "bob", Status: StatusOffline}
			seedUser(t, gw, user, "")

			require.NoError(t, gw.UpdateUserStatus(ctx, user.ID, StatusOnline))
			got, err := gw.UserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusOnline, got.Status)

			assert.ErrorIs(t, gw.UpdateUserStatus(ctx, uuid.New(), StatusOnline), ErrNotFound)
		})
	}
}

func TestEditMessagePreservesOriginalOnce(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := Message{AuthorID: uuid.New(), TargetID: uuid.New(), Content: "first"}
			require.NoError(t, gw.CreateMessage(ctx, &msg))
			require.NotEqual(t, uuid.Nil, msg.ID)

			edited, err := gw.EditMessage(ctx, msg.ID, "second", time.Now())
			require.NoError(t, err)
			require.NotNil(t, edited.Original)
			assert.Equal(t, "first", *edited.Original)
			assert.Equal(t, "second", edited.Content)
			assert.True(t, edited.Edited)
			require.NotNil(t, edited.EditedAt)

			edited, err = gw.EditMessage(ctx, msg.ID, "third", time.Now())
			require.NoError(t, err)
			require.NotNil(t, edited.Original)
			assert.Equal(t, "first", *edited.Original, "second edit must not overwrite the original")
			assert.Equal(t, "third", edited.Content)

			_, err = gw.EditMessage(ctx, uuid.New(), "nope", time.Now())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteMessageCascades(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := Message{AuthorID: uuid.New(), TargetID: uuid.New(), Content: "bye"}
			require.NoError(t, gw.CreateMessage(ctx, &msg))
			require.NoError(t, gw.AddReaction(ctx, Reaction{MessageID: msg.ID, UserID: uuid.New(), Emoji: "👍"}))
			require.NoError(t, gw.AddReaction(ctx, Reaction{MessageID: msg.ID, UserID: uuid.New(), Emoji: "🔥"}))
			seedAttachment(t, gw, Attachment{ID: uuid.New(), MessageID: msg.ID, Name: "pic.png"})

			require.NoError(t, gw.DeleteMessage(ctx, msg.ID))

			_, err := gw.MessageByID(ctx, msg.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			reactions, err := gw.ReactionsFor(ctx, msg.ID)
			require.NoError(t, err)
			assert.Empty(t, reactions)
			assert.Zero(t, attachmentCount(t, gw, msg.ID))

			assert.ErrorIs(t, gw.DeleteMessage(ctx, msg.ID), ErrNotFound)
		})
	}
}

func TestAddReactionIdempotent(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := Message{AuthorID: uuid.New(), TargetID: uuid.New(), Content: "react to me"}
			require.NoError(t, gw.CreateMessage(ctx, &msg))

			user := uuid.New()
			r := Reaction{MessageID: msg.ID, UserID: user, Emoji: "👍"}
			require.NoError(t, gw.AddReaction(ctx, r))
			require.NoError(t, gw.AddReaction(ctx, r))

			reactions, err := gw.ReactionsFor(ctx, msg.ID)
			require.NoError(t, err)
			require.Len(t, reactions, 1, "duplicate triple must count once")

			require.NoError(t, gw.RemoveReaction(ctx, msg.ID, user, "👍"))
			reactions, err = gw.ReactionsFor(ctx, msg.ID)
			require.NoError(t, err)
			assert.Empty(t, reactions)

			assert.NoError(t, gw.RemoveReaction(ctx, msg.ID, user, "👍"), "removing an absent reaction is benign")
		})
	}
}

func TestNotificationLifecycle(t *testing.T) {
	for name, gw := range gatewayFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recipient := uuid.New()
			originA := uuid.New()
			originB := uuid.New()

			base := time.Now().Add(-time.Minute)
			for i, origin := range []uuid.UUID{originA, originA, originB} {
				n := Notification{
					RecipientID: recipient,
					OriginID:    origin,
					Kind:        NotifyMessage,
					Payload:     "hello",
					CreatedAt:   base.Add(time.Duration(i) * time.Second),
				}
				require.NoError(t, gw.CreateNotification(ctx, &n))
			}

			unread, err := gw.UnreadNotifications(ctx, recipient)
			require.NoError(t, err)
			require.Len(t, unread, 3)
			assert.Equal(t, originA, unread[0].OriginID, "oldest first")

			require.NoError(t, gw.MarkNotificationsRead(ctx, recipient, &originA))
			unread, err = gw.UnreadNotifications(ctx, recipient)
			require.NoError(t, err)
			require.Len(t, unread, 1)
			assert.Equal(t, originB, unread[0].OriginID)

			require.NoError(t, gw.MarkNotificationsRead(ctx, recipient, nil))
			unread, err = gw.UnreadNotifications(ctx, recipient)
			require.NoError(t, err)
			assert.Empty(t, unread)

			require.NoError(t, gw.DeleteNotifications(ctx, recipient))
		})
	}
}
