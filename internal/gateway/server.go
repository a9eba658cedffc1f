// Package gateway exposes the HTTP surface: the WhatsApp bridge webhook, a
// health check, and a WebSocket feed of pipeline events.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	Host string
	Port int
}

// Server is the gateway HTTP server.
type Server struct {
	cfg      Config
	hub      *EventHub
	upgrader websocket.Upgrader

	webhookHandler http.HandlerFunc

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg Config, hub *EventHub) *Server {
	s := &Server{cfg: cfg, hub: hub}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Event feed is operator tooling on a private port.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// SetWebhookHandler mounts the WhatsApp bridge webhook. Must be called
// before Start.
func (s *Server) SetWebhookHandler(h http.HandlerFunc) { s.webhookHandler = h }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.webhookHandler != nil {
		mux.HandleFunc("/webhooks/whatsapp", s.webhookHandler)
	}

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	ch := s.hub.subscribe(conn)
	defer s.hub.unsubscribe(conn)

	// Drain reads so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unsubscribe(conn)
				conn.Close()
				return
			}
		}
	}()

	s.hub.run(conn, ch)
}
