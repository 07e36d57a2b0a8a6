package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

const connectDeadline = 15 * time.Second

// Server hosts the websocket endpoint and the admin HTTP surface around one
// Hub.
type Server struct {
	cfg       config.Config
	log       *zap.Logger
	store     store.Gateway
	hub       *Hub
	httpSrv   *http.Server
	adminHTTP *http.Server
	metrics   *hubMetrics
	upgrader  websocket.Upgrader
	ready     atomic.Bool
}

// NewServer constructs a server with its dependencies.
func NewServer(cfg config.Config, logger *zap.Logger, gw store.Gateway) *Server {
	return &Server{
		cfg:   cfg,
		log:   logger,
		store: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Hub exposes the coordinator, for tests and the admin surface.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start boots the websocket and admin listeners and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, lis)
}

// Serve runs the server on an existing listener and blocks until shutdown.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	s.metrics = newHubMetrics(reg)
	s.hub = New(s.log, s.store, Options{Metrics: s.metrics})
	s.startAdminServer(reg)

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		s.handleSocket(ctx, w, req)
	})

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		s.Shutdown(stopCtx)
	}()

	s.log.Info("server listening", zap.String("address", lis.Addr().String()))
	s.ready.Store(true)
	err := s.httpSrv.Serve(lis)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleSocket runs one connection's lifecycle: upgrade, authenticate on the
// first frame, attach, then dispatch frames until the stream ends.
func (s *Server) handleSocket(ctx context.Context, w http.ResponseWriter, req *http.Request) {
	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(connectDeadline))
	var first event.Frame
	if err := ws.ReadJSON(&first); err != nil {
		return
	}
	if first.Kind != event.KindConnect {
		_ = ws.WriteJSON(event.MustNew(event.KindError, event.Error{
			Code:    CodeInvalidFrame,
			Message: "first frame must be connect",
		}))
		return
	}
	var connect event.Connect
	if err := first.Decode(&connect); err != nil {
		_ = ws.WriteJSON(event.MustNew(event.KindError, event.Error{
			Code:    CodeInvalidFrame,
			Message: err.Error(),
		}))
		return
	}

	user, err := s.store.UserByToken(req.Context(), connect.Token)
	if err != nil {
		// Refused before anything is registered: no state to unwind.
		_ = ws.WriteJSON(event.MustNew(event.KindError, event.Error{
			Code:    CodeAuthFailed,
			Message: "authentication failed",
		}))
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Limits.FrameRate), s.cfg.Limits.FrameBurst)
	conn, err := newConn(ctx, ws, user, s.cfg.Limits.SendBuffer, limiter)
	if err != nil {
		s.log.Warn("session id generation failed", zap.Error(err))
		return
	}

	go conn.writeLoop(s.log)
	s.hub.Attach(ctx, conn)
	defer s.hub.Detach(context.WithoutCancel(ctx), conn)

	if err := conn.Deliver(event.MustNew(event.KindConnectAck, event.ConnectAck{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: conn.SessionID(),
	})); err != nil {
		return
	}

	for {
		var frame event.Frame
		if err := ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("stream recv failed", zap.Error(err), zap.String("session_id", conn.SessionID()))
			}
			return
		}
		if err := limiter.Wait(conn.ctx); err != nil {
			return
		}
		if err := s.hub.Dispatch(req.Context(), conn, frame); err != nil {
			return
		}
	}
}

func (s *Server) startAdminServer(reg *prometheus.Registry) {
	if s.cfg.AdminAddress == "" {
		return
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	s.adminHTTP = &http.Server{
		Addr:              s.cfg.AdminAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	s.log.Info("admin server listening", zap.String("address", s.cfg.AdminAddress))
}

// Shutdown attempts a graceful stop before forcing termination.
func (s *Server) Shutdown(ctx context.Context) {
	s.ready.Store(false)

	if s.adminHTTP != nil {
		if err := s.adminHTTP.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server shutdown", zap.Error(err))
		}
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("server shutdown", zap.Error(err))
		}
	}
}
