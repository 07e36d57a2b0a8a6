package hub

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

func TestOfflineMessageFetchedOnReconnect(t *testing.T) {
	h, gw := newTestHub(t)
	alice := attachUser(t, h, gw, "alice")
	bobUser := store.User{ID: uuid.New(), Username: "bob"}
	gw.SeedUser(bobUser, "tok-bob")

	sendAndCapture(t, h, alice, bobUser.ID, "missed me")

	bob := connFor(t, bobUser)
	h.Attach(context.Background(), bob)
	drain(bob)

	dispatch(t, h, bob, event.KindFetchNotifications, nil)
	list := decodeBody[event.NotificationList](t, waitFor(t, bob, event.KindNotificationList))
	if list.Unread != 1 || len(list.Items) != 1 {
		t.Fatalf("expected one unread notification, got %+v", list)
	}
	n := list.Items[0]
	if n.Origin != alice.UserID() || n.Kind != store.NotifyMessage || n.Payload != "missed me" {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestMarkNotificationsReadByOrigin(t *testing.T) {
	h, gw := newTestHub(t)
	alice := attachUser(t, h, gw, "alice")
	carol := attachUser(t, h, gw, "carol")
	bobUser := store.User{ID: uuid.New(), Username: "bob"}
	gw.SeedUser(bobUser, "tok-bob")

	sendAndCapture(t, h, alice, bobUser.ID, "from alice")
	sendAndCapture(t, h, carol, bobUser.ID, "from carol")

	bob := connFor(t, bobUser)
	h.Attach(context.Background(), bob)
	drain(bob)

	aliceID := alice.UserID()
	dispatch(t, h, bob, event.KindMarkNotificationsRead, event.MarkNotificationsRead{Origin: &aliceID})
	dispatch(t, h, bob, event.KindFetchNotifications, nil)
	list := decodeBody[event.NotificationList](t, waitFor(t, bob, event.KindNotificationList))
	if list.Unread != 1 || list.Items[0].Origin != carol.UserID() {
		t.Fatalf("expected only carol's notification unread, got %+v", list)
	}

	dispatch(t, h, bob, event.KindMarkNotificationsRead, nil)
	dispatch(t, h, bob, event.KindFetchNotifications, nil)
	list = decodeBody[event.NotificationList](t, waitFor(t, bob, event.KindNotificationList))
	if list.Unread != 0 {
		t.Fatalf("expected everything read, got %+v", list)
	}
}

func TestClearNotifications(t *testing.T) {
	h, gw := newTestHub(t)
	alice := attachUser(t, h, gw, "alice")
	bobUser := store.User{ID: uuid.New(), Username: "bob"}
	gw.SeedUser(bobUser, "tok-bob")

	sendAndCapture(t, h, alice, bobUser.ID, "gone soon")

	bob := connFor(t, bobUser)
	h.Attach(context.Background(), bob)
	drain(bob)

	dispatch(t, h, bob, event.KindClearNotifications, nil)
	dispatch(t, h, bob, event.KindFetchNotifications, nil)
	list := decodeBody[event.NotificationList](t, waitFor(t, bob, event.KindNotificationList))
	if list.Unread != 0 || len(list.Items) != 0 {
		t.Fatalf("expected empty list after clear, got %+v", list)
	}
}

func TestNotifierPushesToLiveRecipient(t *testing.T) {
	h, gw := newTestHub(t)
	bob := attachUser(t, h, gw, "bob")
	drain(bob)
	origin := uuid.New()

	h.notify.create(context.Background(), bob.UserID(), origin, store.NotifyFriendRequest, "alice wants to connect")

	n := decodeBody[event.Notification](t, waitFor(t, bob, event.KindNewNotification))
	if n.Origin != origin || n.Kind != store.NotifyFriendRequest {
		t.Fatalf("unexpected live notification: %+v", n)
	}

	unread, err := gw.UnreadNotifications(context.Background(), bob.UserID())
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("live push must still persist the record, got %d", len(unread))
	}
}
