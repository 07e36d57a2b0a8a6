package hub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

const frameWait = 2 * time.Second

func newTestHub(t *testing.T) (*Hub, *store.MemoryGateway) {
	t.Helper()
	gw := store.NewMemory()
	return New(zaptest.NewLogger(t), gw, Options{}), gw
}

// connFor builds a connection without a websocket; tests read outbound frames
// straight off the send buffer.
func connFor(t *testing.T, user store.User) *Conn {
	t.Helper()
	id, err := generateSessionID()
	if err != nil {
		t.Fatalf("session id: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     id,
		user:   user,
		sendCh: make(chan event.Frame, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	t.Cleanup(cancel)
	return c
}

func attachUser(t *testing.T, h *Hub, gw *store.MemoryGateway, username string) *Conn {
	t.Helper()
	user := store.User{ID: uuid.New(), Username: username, Status: store.StatusOffline}
	gw.SeedUser(user, "tok-"+username)
	c := connFor(t, user)
	h.Attach(context.Background(), c)
	return c
}

// attachDevice adds another connection for an already attached identity.
func attachDevice(t *testing.T, h *Hub, c *Conn) *Conn {
	t.Helper()
	dev := connFor(t, c.user)
	h.Attach(context.Background(), dev)
	return dev
}

func dispatch(t *testing.T, h *Hub, c *Conn, kind event.Kind, body any) {
	t.Helper()
	if err := h.Dispatch(context.Background(), c, event.MustNew(kind, body)); err != nil {
		t.Fatalf("dispatch %s: %v", kind, err)
	}
}

// waitFor reads outbound frames until one of the wanted kind arrives,
// skipping presence and other interleaved traffic.
func waitFor(t *testing.T, c *Conn, kind event.Kind) event.Frame {
	t.Helper()
	deadline := time.After(frameWait)
	for {
		select {
		case f := <-c.sendCh:
			if f.Kind == kind {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", kind)
			return event.Frame{}
		}
	}
}

// drain discards everything currently queued on the connection.
func drain(c *Conn) {
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}

// expectNone asserts that no frame of the given kind is currently queued.
func expectNone(t *testing.T, c *Conn, kind event.Kind) {
	t.Helper()
	for {
		select {
		case f := <-c.sendCh:
			if f.Kind == kind {
				t.Fatalf("unexpected %s frame", kind)
			}
		default:
			return
		}
	}
}

func decodeBody[T any](t *testing.T, f event.Frame) T {
	t.Helper()
	var out T
	if err := f.Decode(&out); err != nil {
		t.Fatalf("decode %s body: %v", f.Kind, err)
	}
	return out
}

func expectError(t *testing.T, c *Conn, code string) event.Error {
	t.Helper()
	e := decodeBody[event.Error](t, waitFor(t, c, event.KindError))
	if e.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, e.Code, e.Message)
	}
	return e
}

func TestAttachDetachPresence(t *testing.T) {
	h, gw := newTestHub(t)
	ctx := context.Background()

	alice := attachUser(t, h, gw, "alice")
	drain(alice) // own online broadcast
	bob := attachUser(t, h, gw, "bob")

	// Bob's arrival is broadcast to Alice.
	p := decodeBody[event.PresenceChanged](t, waitFor(t, alice, event.KindPresenceChanged))
	if p.UserID != bob.UserID() || p.Status != store.StatusOnline {
		t.Fatalf("expected bob online broadcast, got %+v", p)
	}

	user, err := gw.UserByID(ctx, bob.UserID())
	if err != nil {
		t.Fatalf("load bob: %v", err)
	}
	if user.Status != store.StatusOnline {
		t.Fatalf("expected persisted status online, got %s", user.Status)
	}

	// A second device is not a presence transition.
	bobPhone := attachDevice(t, h, bob)
	expectNone(t, alice, event.KindPresenceChanged)

	// Dropping one of two devices keeps bob online.
	h.Detach(ctx, bobPhone)
	expectNone(t, alice, event.KindPresenceChanged)

	h.Detach(ctx, bob)
	p = decodeBody[event.PresenceChanged](t, waitFor(t, alice, event.KindPresenceChanged))
	if p.UserID != bob.UserID() || p.Status != store.StatusOffline {
		t.Fatalf("expected bob offline broadcast, got %+v", p)
	}
	user, err = gw.UserByID(ctx, bob.UserID())
	if err != nil {
		t.Fatalf("load bob: %v", err)
	}
	if user.Status != store.StatusOffline {
		t.Fatalf("expected persisted status offline, got %s", user.Status)
	}
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	h, gw := newTestHub(t)
	alice := attachUser(t, h, gw, "alice")

	if err := h.Dispatch(context.Background(), alice, event.Frame{Kind: "mystery"}); err != nil {
		t.Fatalf("unknown kinds must not be fatal: %v", err)
	}
	expectError(t, alice, CodeInvalidFrame)
}

func TestDispatchSecondConnectIsFatal(t *testing.T) {
	h, gw := newTestHub(t)
	alice := attachUser(t, h, gw, "alice")

	err := h.Dispatch(context.Background(), alice, event.MustNew(event.KindConnect, event.Connect{Token: "tok-alice"}))
	if err == nil {
		t.Fatal("expected fatal error for repeated connect")
	}
	expectError(t, alice, CodeInvalidFrame)
}

func TestDeliverBackpressureCancelsConnection(t *testing.T) {
	user := store.User{ID: uuid.New(), Username: "slow"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Conn{
		id:     "slow-session",
		user:   user,
		sendCh: make(chan event.Frame, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := c.Deliver(event.MustNew(event.KindPresenceChanged, event.PresenceChanged{})); err != nil {
		t.Fatalf("first deliver should queue: %v", err)
	}
	err := c.Deliver(event.MustNew(event.KindPresenceChanged, event.PresenceChanged{}))
	if err == nil {
		t.Fatal("expected backpressure error on full buffer")
	}
	select {
	case <-c.ctx.Done():
	default:
		t.Fatal("expected connection canceled after backpressure")
	}
}
