// Package api serves the local companion HTTP interface over the same
// session, report, chat and history state the CLI uses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/MikeSquared-Agency/rehearse/internal/auth"
	"github.com/MikeSquared-Agency/rehearse/internal/catalog"
	"github.com/MikeSquared-Agency/rehearse/internal/chat"
	"github.com/MikeSquared-Agency/rehearse/internal/history"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/report"
)

type Gate interface {
	Current(ctx context.Context) (*auth.Session, error)
}

type Reports interface {
	Load(ctx context.Context) (*interview.Session, error)
	View(ctx context.Context) (report.View, error)
}

type Questions interface {
	Load(ctx context.Context, interviewType, positionType string) ([]interview.Question, error)
	Questions() []interview.Question
	AudioURL(q interview.Question) string
}

// Deps are the components the server exposes.
type Deps struct {
	Gate      Gate
	Reports   Reports
	Chat      *chat.Session
	History   *history.Browser
	Questions Questions
	Catalog   *catalog.Catalog
	Logger    logrus.FieldLogger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	http   *http.Server

	seedMu   sync.Mutex
	seededAt string
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/session", s.session)
		r.Get("/questions", s.questions)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/report", s.report)
			r.Get("/chat", s.chatThread)
			r.Post("/chat", s.chatSend)
			r.Get("/history", s.history)
			r.Get("/history/page/{page}", s.historyPage)
			r.Post("/history/retry", s.historyRetry)
			r.Post("/history/reset", s.historyReset)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.deps.Logger.WithField("addr", addr).Info("companion server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests whose bearer token does not match
// token. An empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] != token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireSession gates on an unexpired login and points the caller at the
// entry page otherwise.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Gate.Current(r.Context()); err != nil {
			s.gateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) gateError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrSessionExpired) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    err.Error(),
			"redirect": interview.TargetEntry,
		})
		return
	}
	s.deps.Logger.WithError(err).Error("session check failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Gate.Current(r.Context())
	if err != nil {
		s.gateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"expires_at":    sess.ExpiresAt,
		"user":          sess.User,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
