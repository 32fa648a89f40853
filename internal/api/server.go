package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/session"
)

// Store is the subset of store.SessionStore the API needs.
type Store interface {
	CreateSession(ctx context.Context, ownerID, label string) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	ListSessions(ctx context.Context, ownerID string) ([]session.Summary, error)
	AppendMessage(ctx context.Context, id, role, content string) (int, error)
	RenameSession(ctx context.Context, id, label string) (bool, error)
}

// Trigger is told about stored messages and deleted sessions.
type Trigger interface {
	OnMessageStored(evt hermes.MessageStoredEvent)
	OnSessionDeleted(evt hermes.SessionDeletedEvent)
}

// Publisher announces label changes.
type Publisher interface {
	Publish(evt notify.Event)
}

type Config struct {
	Port        int
	APIToken    string
	Placeholder string
}

type Server struct {
	router   *chi.Mux
	http     *http.Server
	cfg      Config
	store    Store
	trigger  Trigger
	bus      Publisher
	hub      *notify.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP API. Label events are published on bus; live observers
// are served from hub, which bus is expected to feed.
func NewServer(cfg Config, s Store, trigger Trigger, bus Publisher, hub *notify.Hub, logger *slog.Logger) *Server {
	if cfg.Placeholder == "" {
		cfg.Placeholder = session.DefaultPlaceholder
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	srv := &Server{
		router:  router,
		cfg:     cfg,
		store:   s,
		trigger: trigger,
		bus:     bus,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router.Get("/health", srv.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.APIToken))

		r.Get("/caption/status", srv.status)

		r.Post("/sessions", srv.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", srv.getSession)
			r.Patch("/", srv.renameSession)
			r.Delete("/", srv.deleteSession)
			r.Post("/messages", srv.appendMessage)
		})

		r.Get("/owners/{ownerID}/sessions", srv.listSessions)
		r.Get("/owners/{ownerID}/live", srv.live)
	})

	srv.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "caption",
		"status": "running",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
