package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

type callState int

const (
	callRinging callState = iota
	callAccepted
)

// call is the ephemeral signaling aggregate. participants and conns are
// index-aligned for the call's whole lifetime: removing one always removes
// the other. A call keeps one id from initiate through end.
type call struct {
	id           uuid.UUID
	initiator    uuid.UUID
	media        string
	state        callState
	participants []uuid.UUID
	conns        []*Conn
}

func newCall(initiator uuid.UUID, media string) *call {
	return &call{
		id:        uuid.New(),
		initiator: initiator,
		media:     media,
		state:     callRinging,
	}
}

func (c *call) add(user uuid.UUID, conn *Conn) {
	c.participants = append(c.participants, user)
	c.conns = append(c.conns, conn)
}

func (c *call) indexOf(user uuid.UUID) int {
	for i, p := range c.participants {
		if p == user {
			return i
		}
	}
	return -1
}

// bind replaces the connection for a participant, e.g. when a different
// device of the same user accepts the ring.
func (c *call) bind(user uuid.UUID, conn *Conn) {
	if i := c.indexOf(user); i >= 0 {
		c.conns[i] = conn
	}
}

func (c *call) removeAt(i int) {
	c.participants = append(c.participants[:i], c.participants[i+1:]...)
	c.conns = append(c.conns[:i], c.conns[i+1:]...)
}

func (c *call) snapshotParticipants() []uuid.UUID {
	return append([]uuid.UUID(nil), c.participants...)
}

func (c *call) snapshotConns() []*Conn {
	return append([]*Conn(nil), c.conns...)
}

// handleInitiateCall drives the ring entry points: missed-call fallback for
// an offline callee, join-in-progress when the callee is already in an
// accepted call, and a fresh ringing call otherwise.
//
// Only accepted calls occupy the identity index, so two users ringing each
// other simultaneously produce two independent ringing calls; that race is
// deliberately not merged. The 30s ring timeout is owned by the caller's
// client, which cancels by sending reject-call; the coordinator schedules no
// timers.
func (h *Hub) handleInitiateCall(ctx context.Context, c *Conn, p event.InitiateCall) error {
	if p.Callee == uuid.Nil || p.Callee == c.UserID() {
		return errInvalid("callee must be another user")
	}

	h.mu.Lock()
	if _, busy := h.callByUser[c.UserID()]; busy {
		h.mu.Unlock()
		return errInvalid("already in a call")
	}
	h.mu.Unlock()

	calleeConn, online := h.reg.FindByIdentity(p.Callee)
	if !online {
		// Terminal: durable record for the callee, async verdict to the
		// caller. No call object exists at any point.
		h.notify.create(ctx, p.Callee, c.UserID(), store.NotifyMissedCall, p.Media)
		_ = c.Deliver(event.MustNew(event.KindCallRejected, event.CallRejected{}))
		h.metrics.recordCallOutcome("missed")
		return nil
	}

	h.mu.Lock()
	// The presence lookup and the missed-call write above are suspension
	// points; re-check the caller is still free before mutating call state.
	if _, busy := h.callByUser[c.UserID()]; busy {
		h.mu.Unlock()
		return errInvalid("already in a call")
	}

	if existingID, ok := h.callByUser[p.Callee]; ok {
		existing, live := h.calls[existingID]
		if live {
			existing.add(c.UserID(), c)
			h.callByUser[c.UserID()] = existing.id
			participants := existing.snapshotParticipants()
			conns := existing.snapshotConns()
			h.mu.Unlock()

			// Join-in-progress: everyone sees the updated participant set,
			// nobody gets rung again.
			joined := event.MustNew(event.KindCallJoined, event.CallJoined{
				CallID:       existing.id,
				Joined:       c.UserID(),
				Participants: participants,
			})
			for _, conn := range conns {
				_ = conn.Deliver(joined)
			}
			h.metrics.recordCallOutcome("joined")
			return nil
		}
		delete(h.callByUser, p.Callee)
	}

	cl := newCall(c.UserID(), p.Media)
	cl.add(c.UserID(), c)
	cl.add(p.Callee, calleeConn.(*Conn))
	h.calls[cl.id] = cl
	h.mu.Unlock()

	h.metrics.incCall()
	// Ring every callee device; accept re-binds the call to whichever one
	// answers.
	h.deliverTo(p.Callee, event.MustNew(event.KindIncomingCall, event.IncomingCall{
		CallID: cl.id,
		Caller: c.UserID(),
		Media:  p.Media,
	}))
	h.log.Info("call ringing",
		zap.Stringer("call_id", cl.id),
		zap.Stringer("caller", c.UserID()),
		zap.Stringer("callee", p.Callee),
	)
	return nil
}

// handleAcceptCall moves the accepter's ringing call to accepted, indexes
// both parties, and tells both sides to establish the peer media path. The
// accepting device becomes the call's bound connection for that identity.
func (h *Hub) handleAcceptCall(c *Conn, p event.AcceptCall) error {
	h.mu.Lock()
	cl, ok := h.ringingCallLocked(c.UserID(), p.Caller)
	if !ok {
		h.mu.Unlock()
		return errNotFound("no ringing call from that caller")
	}
	if h.busyLocked(c.UserID()) || h.busyLocked(p.Caller) {
		// One side joined another call while this one was ringing; the
		// stale ring cannot be answered anymore.
		delete(h.calls, cl.id)
		h.mu.Unlock()
		h.metrics.decCall()
		return errNotFound("call no longer available")
	}
	cl.state = callAccepted
	cl.bind(c.UserID(), c)
	for _, participant := range cl.participants {
		h.callByUser[participant] = cl.id
	}
	callerConn := cl.conns[cl.indexOf(p.Caller)]
	callID := cl.id
	h.mu.Unlock()

	_ = callerConn.Deliver(event.MustNew(event.KindCallAccepted, event.CallAccepted{
		CallID: callID,
		Peer:   c.UserID(),
	}))
	_ = c.Deliver(event.MustNew(event.KindCallAccepted, event.CallAccepted{
		CallID: callID,
		Peer:   p.Caller,
	}))
	h.metrics.recordCallOutcome("accepted")
	return nil
}

// handleRejectCall tears the ringing call down; no call object survives.
// An already-gone call is a benign no-op: the client-side ring timeout sends
// an implicit reject that may race an explicit one. The caller canceling
// their own ring goes through the same path, naming themselves.
func (h *Hub) handleRejectCall(c *Conn, p event.RejectCall) error {
	h.mu.Lock()
	cl, ok := h.ringingCallLocked(c.UserID(), p.Caller)
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.calls, cl.id)
	h.mu.Unlock()

	h.metrics.decCall()
	h.metrics.recordCallOutcome("rejected")
	h.deliverTo(p.Caller, event.MustNew(event.KindCallRejected, event.CallRejected{CallID: cl.id}))
	return nil
}

// handleRelaySignal forwards an opaque payload to the target participant's
// bound connection in the sender's call. Unroutable signals are logged and
// dropped, never surfaced: the target's own disconnect handling informs the
// other side.
func (h *Hub) handleRelaySignal(c *Conn, p event.RelaySignal) error {
	h.mu.Lock()
	target := h.boundPeerLocked(c, p.Target)
	h.mu.Unlock()

	if target == nil {
		h.metrics.recordSignalDrop()
		h.log.Debug("signal target unreachable",
			zap.Stringer("from", c.UserID()),
			zap.Stringer("target", p.Target),
		)
		return nil
	}
	if err := target.Deliver(event.MustNew(event.KindRelaySignal, event.SignalRelayed{
		From:    c.UserID(),
		Payload: p.Payload,
	})); err != nil {
		h.metrics.recordSignalDrop()
		h.log.Debug("signal delivery failed", zap.Error(err), zap.Stringer("target", p.Target))
	}
	return nil
}

// handleEndCall removes the ender from their accepted call and cancels any
// ring their connection is part of.
func (h *Hub) handleEndCall(c *Conn) error {
	h.leaveAccepted(c, false)
	h.sweepRinging(c, false)
	return nil
}

// onDisconnect-equivalent: a dropped connection must never leave a call
// dangling with a stale participant, rung or accepted.
func (h *Hub) dropFromCalls(c *Conn) {
	h.leaveAccepted(c, true)
	h.sweepRinging(c, true)
}

// leaveAccepted removes the connection's participant/connection pair from
// its accepted call. With fewer than two connections left the call is
// deleted and the remainder notified call-ended exactly once; otherwise they
// see user-left-call. An identity in no call is a no-op, which makes a
// second end racing the first safe. When requireBound is set (disconnect
// path), only the device actually bound to the call triggers the departure.
func (h *Hub) leaveAccepted(c *Conn, requireBound bool) {
	h.mu.Lock()
	callID, ok := h.callByUser[c.UserID()]
	if !ok {
		h.mu.Unlock()
		return
	}
	cl, live := h.calls[callID]
	if !live {
		delete(h.callByUser, c.UserID())
		h.mu.Unlock()
		return
	}
	i := cl.indexOf(c.UserID())
	if i < 0 {
		delete(h.callByUser, c.UserID())
		h.mu.Unlock()
		return
	}
	if requireBound && cl.conns[i] != c {
		h.mu.Unlock()
		return
	}

	cl.removeAt(i)
	delete(h.callByUser, c.UserID())

	var frame event.Frame
	deleted := len(cl.conns) < 2
	remaining := cl.snapshotConns()
	if deleted {
		for _, p := range cl.participants {
			delete(h.callByUser, p)
		}
		delete(h.calls, cl.id)
		frame = event.MustNew(event.KindCallEnded, event.CallEnded{CallID: cl.id, Peer: c.UserID()})
	} else {
		frame = event.MustNew(event.KindUserLeftCall, event.UserLeftCall{CallID: cl.id, Peer: c.UserID()})
	}
	h.mu.Unlock()

	for _, conn := range remaining {
		_ = conn.Deliver(frame)
	}
	if deleted {
		h.metrics.decCall()
		h.metrics.recordCallOutcome("ended")
		h.log.Info("call ended", zap.Stringer("call_id", cl.id), zap.Stringer("left", c.UserID()))
	}
}

// sweepRinging cancels every ringing call the connection is part of, on
// either end, informing the opposite party that the call is over.
func (h *Hub) sweepRinging(c *Conn, requireBound bool) {
	type notice struct {
		conn  *Conn
		frame event.Frame
	}
	var notices []notice

	h.mu.Lock()
	for id, cl := range h.calls {
		if cl.state != callRinging {
			continue
		}
		i := cl.indexOf(c.UserID())
		if i < 0 {
			continue
		}
		if requireBound && cl.conns[i] != c {
			continue
		}
		delete(h.calls, id)
		for j, conn := range cl.conns {
			if j == i {
				continue
			}
			if cl.participants[i] == cl.initiator {
				// The caller went away mid-ring; stop ringing the callee.
				notices = append(notices, notice{conn, event.MustNew(event.KindCallEnded,
					event.CallEnded{CallID: id, Peer: c.UserID()})})
			} else {
				// The callee went away mid-ring; the caller hears a reject.
				notices = append(notices, notice{conn, event.MustNew(event.KindCallRejected,
					event.CallRejected{CallID: id})})
			}
		}
	}
	h.mu.Unlock()

	for _, n := range notices {
		_ = n.conn.Deliver(n.frame)
		h.metrics.decCall()
	}
}

// ringingCallLocked finds the callee's ringing call initiated by caller.
// Callers must hold h.mu.
func (h *Hub) ringingCallLocked(callee, caller uuid.UUID) (*call, bool) {
	for _, cl := range h.calls {
		if cl.state == callRinging && cl.initiator == caller && cl.indexOf(callee) >= 0 {
			return cl, true
		}
	}
	return nil, false
}

// busyLocked reports whether the user belongs to an accepted call.
// Callers must hold h.mu.
func (h *Hub) busyLocked(user uuid.UUID) bool {
	_, ok := h.callByUser[user]
	return ok
}

// boundPeerLocked resolves the signal target's bound connection within the
// sender's call, ringing or accepted. Callers must hold h.mu.
func (h *Hub) boundPeerLocked(c *Conn, target uuid.UUID) *Conn {
	for _, cl := range h.calls {
		i := cl.indexOf(c.UserID())
		if i < 0 || cl.conns[i] != c {
			continue
		}
		if j := cl.indexOf(target); j >= 0 {
			return cl.conns[j]
		}
	}
	return nil
}
