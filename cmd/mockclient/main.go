// Command mockclient drives a running parleyd node through one scripted
// flow: connect, then either send a direct message or place a call and wait
// for the verdict. Useful for integration smoke tests against a live node.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/event"
)

type clientConfig struct {
	nodeAddr string
	token    string
	role     string
	target   uuid.UUID
	content  string
	media    string
	timeout  time.Duration
}

func main() {
	cfg := parseConfig()
	if err := run(cfg); err != nil {
		log.Fatalf("mock client failed: %v", err)
	}
	log.Printf("mock client role %s completed", cfg.role)
}

func parseConfig() clientConfig {
	var cfg clientConfig
	var target string
	flag.StringVar(&cfg.nodeAddr, "node", "127.0.0.1:8443", "Websocket address for the node")
	flag.StringVar(&cfg.token, "token", "", "Session token to authenticate with")
	flag.StringVar(&cfg.role, "role", "sender", "Flow to run (sender|caller|listener)")
	flag.StringVar(&target, "target", "", "Target user id for the message or call")
	flag.StringVar(&cfg.content, "content", "hello from mockclient", "Message content for the sender flow")
	flag.StringVar(&cfg.media, "media", "audio", "Media kind for the caller flow")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "Overall timeout for the flow")
	flag.Parse()

	switch cfg.role {
	case "sender", "caller", "listener":
	default:
		log.Fatalf("unsupported role %s (expected sender, caller or listener)", cfg.role)
	}
	if cfg.token == "" {
		log.Fatal("a -token is required")
	}
	if cfg.role != "listener" {
		id, err := uuid.Parse(target)
		if err != nil {
			log.Fatalf("invalid -target %q: %v", target, err)
		}
		cfg.target = id
	}
	return cfg
}

func run(cfg clientConfig) error {
	u := url.URL{Scheme: "ws", Host: cfg.nodeAddr, Path: "/ws"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(cfg.timeout))

	if err := send(ws, event.KindConnect, event.Connect{Token: cfg.token}); err != nil {
		return err
	}
	ack, err := expect(ws, event.KindConnectAck)
	if err != nil {
		return err
	}
	var connected event.ConnectAck
	if err := ack.Decode(&connected); err != nil {
		return err
	}
	log.Printf("connected as %s (session %s)", connected.Username, connected.SessionID)

	switch cfg.role {
	case "sender":
		return runSender(ws, cfg)
	case "caller":
		return runCaller(ws, cfg)
	default:
		return runListener(ws)
	}
}

func runSender(ws *websocket.Conn, cfg clientConfig) error {
	if err := send(ws, event.KindSendMessage, event.SendMessage{
		Recipient: cfg.target,
		Content:   cfg.content,
	}); err != nil {
		return err
	}
	frame, err := expect(ws, event.KindMessageCreated)
	if err != nil {
		return err
	}
	var msg event.Message
	if err := frame.Decode(&msg); err != nil {
		return err
	}
	log.Printf("message %s stored for %s", msg.ID, msg.Recipient)
	return nil
}

func runCaller(ws *websocket.Conn, cfg clientConfig) error {
	if err := send(ws, event.KindInitiateCall, event.InitiateCall{
		Callee: cfg.target,
		Media:  cfg.media,
	}); err != nil {
		return err
	}
	for {
		frame, err := recv(ws)
		if err != nil {
			return err
		}
		switch frame.Kind {
		case event.KindCallAccepted:
			var accepted event.CallAccepted
			if err := frame.Decode(&accepted); err != nil {
				return err
			}
			log.Printf("call %s accepted by %s", accepted.CallID, accepted.Peer)
			return send(ws, event.KindEndCall, nil)
		case event.KindCallRejected:
			log.Printf("call rejected or callee offline")
			return nil
		case event.KindCallJoined:
			var joined event.CallJoined
			if err := frame.Decode(&joined); err != nil {
				return err
			}
			log.Printf("joined ongoing call %s with %d participants", joined.CallID, len(joined.Participants))
			return send(ws, event.KindEndCall, nil)
		}
	}
}

// runListener logs every frame until the read deadline expires, answering
// rings as it goes.
func runListener(ws *websocket.Conn) error {
	for {
		frame, err := recv(ws)
		if err != nil {
			return nil
		}
		log.Printf("<- %s %s", frame.Kind, string(frame.Body))
		if frame.Kind == event.KindIncomingCall {
			var ring event.IncomingCall
			if err := frame.Decode(&ring); err != nil {
				return err
			}
			if err := send(ws, event.KindAcceptCall, event.AcceptCall{Caller: ring.Caller}); err != nil {
				return err
			}
		}
	}
}

func send(ws *websocket.Conn, kind event.Kind, body any) error {
	frame, err := event.New(kind, body)
	if err != nil {
		return err
	}
	if err := ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

func recv(ws *websocket.Conn) (event.Frame, error) {
	var frame event.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		return event.Frame{}, fmt.Errorf("recv frame: %w", err)
	}
	return frame, nil
}

func expect(ws *websocket.Conn, kind event.Kind) (event.Frame, error) {
	for {
		frame, err := recv(ws)
		if err != nil {
			return event.Frame{}, err
		}
		if frame.Kind == kind {
			return frame, nil
		}
		if frame.Kind == event.KindError {
			var e event.Error
			_ = frame.Decode(&e)
			return event.Frame{}, fmt.Errorf("node rejected request: %s %s", e.Code, e.Message)
		}
	}
}
