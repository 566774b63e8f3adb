package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leadforge/authcore"
	"github.com/leadforge/authcore/middleware"
	"github.com/leadforge/authcore/realip"
	"github.com/leadforge/authcore/rls"
	"github.com/leadforge/authcore/session"
)

// SessionDirectory lists a user's active sessions under their tenant scope.
// The postgres package provides the RLS-bound implementation.
type SessionDirectory interface {
	ListActiveForUser(ctx context.Context, identity rls.Identity) ([]session.Record, error)
}

// Handler binds the HTTP adapter to the engine.
type Handler struct {
	engine    *authcore.Engine
	directory SessionDirectory
}

// NewHandler constructs the adapter.
func NewHandler(engine *authcore.Engine) *Handler {
	return &Handler{engine: engine}
}

// WithSessionDirectory enables the GET /auth/v1/sessions listing backed by d.
func (h *Handler) WithSessionDirectory(d SessionDirectory) *Handler {
	h.directory = d
	return h
}

// NewRouter registers every auth route. Public endpoints sit directly under
// /auth/v1; session-scoped endpoints go through the guard.
func NewRouter(handler *Handler, resolver *realip.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestContext(resolver))

	r.Get("/healthz", handler.healthz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/login", handler.login)
		r.Post("/password/reset-request", handler.passwordResetRequest)
		r.Post("/password/reset", handler.passwordReset)
		r.Post("/email/verify-request", handler.emailVerifyRequest)
		r.Post("/email/verify", handler.emailVerify)
		r.Post("/mfa/setup", handler.mfaSetupBegin)
		r.Post("/mfa/setup/confirm", handler.mfaSetupConfirm)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(handler.engine))
			r.Get("/session", handler.session)
			r.Post("/logout-all", handler.logoutAll)

			if handler.directory != nil {
				r.Group(func(r chi.Router) {
					r.Use(middleware.TenantContext(handler.engine))
					r.Get("/sessions", handler.listSessions)
				})
			}
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// requestLogger emits one structured access-log line per request. Bodies and
// credentials never appear here; only routing metadata does.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Default().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
