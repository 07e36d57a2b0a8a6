package event

import (
	"encoding/json"
	"fmt"
)

// Kind tags a frame on the wire.
type Kind string

// Inbound frame kinds.
const (
	KindConnect               Kind = "connect"
	KindSendMessage           Kind = "send-message"
	KindEditMessage           Kind = "edit-message"
	KindDeleteMessage         Kind = "delete-message"
	KindAddReaction           Kind = "add-reaction"
	KindRemoveReaction        Kind = "remove-reaction"
	KindInitiateCall          Kind = "initiate-call"
	KindAcceptCall            Kind = "accept-call"
	KindRejectCall            Kind = "reject-call"
	KindRelaySignal           Kind = "relay-signal"
	KindEndCall               Kind = "end-call"
	KindFetchNotifications    Kind = "fetch-notifications"
	KindMarkNotificationsRead Kind = "mark-notifications-read"
	KindClearNotifications    Kind = "clear-notifications"
)

// Outbound frame kinds.
const (
	KindConnectAck       Kind = "connect-ack"
	KindPresenceChanged  Kind = "presence-changed"
	KindMessageCreated   Kind = "message-created"
	KindMessageUpdated   Kind = "message-updated"
	KindMessageDeleted   Kind = "message-deleted"
	KindReactionsUpdated Kind = "reactions-updated"
	KindIncomingCall     Kind = "incoming-call"
	KindCallAccepted     Kind = "call-accepted"
	KindCallRejected     Kind = "call-rejected"
	KindCallJoined       Kind = "call-joined"
	KindCallEnded        Kind = "call-ended"
	KindUserLeftCall     Kind = "user-left-call"
	KindNewNotification  Kind = "new-notification"
	KindNotificationList Kind = "notification-list"
	KindError            Kind = "error"
)

// Frame is the wire envelope for every event in both directions. The body is
// kept raw so the dispatcher decodes it only once the kind is known.
type Frame struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// New builds a frame from a kind and a payload value.
func New(kind Kind, body any) (Frame, error) {
	if body == nil {
		return Frame{Kind: kind}, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s body: %w", kind, err)
	}
	return Frame{Kind: kind, Body: raw}, nil
}

// MustNew is New for payloads the caller controls entirely.
func MustNew(kind Kind, body any) Frame {
	f, err := New(kind, body)
	if err != nil {
		panic(err)
	}
	return f
}

// Decode unmarshals the frame body into the given payload struct.
func (f Frame) Decode(into any) error {
	if len(f.Body) == 0 {
		return fmt.Errorf("%s frame has no body", f.Kind)
	}
	if err := json.Unmarshal(f.Body, into); err != nil {
		return fmt.Errorf("decode %s body: %w", f.Kind, err)
	}
	return nil
}
