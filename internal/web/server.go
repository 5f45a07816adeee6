// Package web serves the play status over HTTP: a JSON snapshot, a
// websocket stream of agent transitions, and browser push alerts when
// the agent becomes ready. It reports on a play; it never renders or
// proxies window content.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/monitor"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
)

var webLog = logging.ForComponent(logging.CompWeb)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string

	// DataDir holds push state: subscriptions and VAPID keys.
	DataDir string

	// Source is the live play this server reports on. Nil means the
	// server runs standalone and /api/status reports no active play.
	Source StatusSource

	// DB backs /api/plays and /api/stats. Nil disables both routes.
	DB *statedb.StateDB

	PushVAPIDPublicKey  string
	PushVAPIDPrivateKey string
	PushSubject         string
	PushPerMinute       int
}

// StatusSource is the slice of a running play the server reads.
// Events may return nil when the source has no live transitions.
type StatusSource interface {
	Status() Status
	Events() <-chan monitor.Event
}

// Server wraps the HTTP server for arcade web mode.
type Server struct {
	cfg        Config
	httpServer *http.Server
	src        StatusSource
	db         *statedb.StateDB
	push       *pushService
	baseCtx    context.Context
	cancelBase context.CancelFunc

	subscribersMu sync.Mutex
	subscribers   map[chan monitor.Event]struct{}
}

// NewServer creates a web server with all routes wired. The event pump
// starts immediately so websocket clients see transitions even when the
// caller drives the handler directly.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8423"
	}

	s := &Server{
		cfg:         cfg,
		src:         cfg.Source,
		db:          cfg.DB,
		subscribers: make(map[chan monitor.Event]struct{}),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	if push, err := newPushService(cfg); err != nil {
		webLog.Warn("push_disabled", slog.String("error", err.Error()))
	} else {
		s.push = push
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/plays", s.handlePlays)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/push/config", s.handlePushConfig)
	mux.HandleFunc("/api/push/subscribe", s.handlePushSubscribe)
	mux.HandleFunc("/api/push/unsubscribe", s.handlePushUnsubscribe)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.pumpEvents()

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	webLog.Info("web_listening", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived websocket handlers to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Live websocket connections may still block graceful shutdown.
	// Force close as a fallback so Ctrl+C exits promptly.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}

	return err
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, live=%t)", s.cfg.ListenAddr, s.src != nil)
}

// pumpEvents fans transitions out to websocket subscribers and hands
// READY edges to the push service. Runs until the source channel closes
// or the server shuts down.
func (s *Server) pumpEvents() {
	if s.src == nil {
		return
	}
	events := s.src.Events()
	if events == nil {
		return
	}
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.notifySubscribers(ev)
			if ev.Status == monitor.StatusReady && s.push != nil {
				go s.push.NotifyReady(s.currentStatus())
			}
		}
	}
}

func (s *Server) subscribeEvents() chan monitor.Event {
	ch := make(chan monitor.Event, 8)
	s.subscribersMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subscribersMu.Unlock()
	return ch
}

func (s *Server) unsubscribeEvents(ch chan monitor.Event) {
	if ch == nil {
		return
	}
	s.subscribersMu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subscribersMu.Unlock()
}

func (s *Server) notifySubscribers(ev monitor.Event) {
	s.subscribersMu.Lock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subscribersMu.Unlock()
}

func (s *Server) currentStatus() Status {
	if s.src == nil {
		return Status{Time: time.Now().UTC()}
	}
	return s.src.Status()
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	queryToken := strings.TrimSpace(r.URL.Query().Get("token"))
	if queryToken != "" && secureEqual(queryToken, s.cfg.Token) {
		return true
	}

	headerToken := bearerToken(r.Header.Get("Authorization"))
	if headerToken != "" && secureEqual(headerToken, s.cfg.Token) {
		return true
	}

	return false
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
