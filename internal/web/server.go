// Package web serves the inventory over a JSON API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/client"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/service"
	"github.com/vbonduro/homeinv/internal/settings"
)

type Server struct {
	service  *service.InventoryService
	auth     *auth.Authenticator
	sessions *client.Registry
	prefs    *settings.Store
	files    filestore.Files
	router   *chi.Mux
	logger   *slog.Logger
	srv      *http.Server
}

// NewServer wires the routes. files may be nil when uploads are disabled.
func NewServer(
	svc *service.InventoryService,
	authn *auth.Authenticator,
	sessions *client.Registry,
	prefs *settings.Store,
	files filestore.Files,
	logger *slog.Logger,
) *Server {
	s := &Server{
		service:  svc,
		auth:     authn,
		sessions: sessions,
		prefs:    prefs,
		files:    files,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return requestLogger(s.logger, next) })
	r.Use(securityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/auth/signup", s.handleSignUp)
	r.Post("/auth/signin", s.handleSignIn)
	r.Get("/files/*", s.handleGetFile)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)
			r.Post("/", s.handleCreateItem)
			r.Get("/low-stock", s.handleLowStock)
			r.Get("/export.csv", s.handleExportItems)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Patch("/", s.handleUpdateItem)
				r.Delete("/", s.handleArchiveItem)
				r.Post("/quantity", s.handleAdjustQuantity)
				r.Post("/favorite", s.handleToggleFavorite)
				r.Post("/archive", s.handleArchiveItem)
				r.Post("/restore", s.handleRestoreItem)
				r.Put("/locations", s.handleSetItemLocations)
				r.Put("/tags", s.handleSetItemTags)
				r.Post("/photo", s.handleUploadPhoto)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleCategoryTree)
			s.entityRoutes(r, domain.EntityCategory)
		})
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", s.handleLocationTree)
			r.Get("/options", s.handleLocationOptions)
			s.entityRoutes(r, domain.EntityLocation)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags)
			s.entityRoutes(r, domain.EntityTag)
		})
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/{id}/use", s.handleUseTemplate)
			s.entityRoutes(r, domain.EntityTemplate)
		})

		r.Get("/history", s.handleListHistory)
		r.Post("/history/{id}/undo", s.handleUndoChange)

		r.Get("/ledger", s.handleLedgerState)
		r.Post("/ledger/undo", s.handleLedgerUndo)
		r.Post("/ledger/redo", s.handleLedgerRedo)
		r.Post("/ledger/dismiss", s.handleDismissToast)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/read-all", s.handleMarkAllRead)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Delete("/{id}", s.handleDeleteNotification)
		})

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)

		r.Post("/capture", s.handleCapture)
	})
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
