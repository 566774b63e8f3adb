package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/leadforge/authcore"
	"github.com/leadforge/authcore/realip"
	"github.com/leadforge/authcore/rls"
	"github.com/leadforge/authcore/session"
)

// SessionCookie is the cookie carrying the opaque session token.
const SessionCookie = "lf_session"

type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity placed by Guard.
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(session.Identity)
	return identity, ok
}

// RequestContext resolves the client IP through resolver and attaches it,
// together with the user agent, to the request context in the form the
// engine expects. Mount it before any handler that calls the engine.
func RequestContext(resolver *realip.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithClientIP(r.Context(), resolver.Resolve(r.Header))
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Guard rejects requests without a valid session and places the identity in
// the request context. The token is read from the session cookie first, then
// from a bearer Authorization header.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := sessionToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tenantContextKey struct{}

// TenantFromContext returns the tenant identity placed by TenantContext.
func TenantFromContext(ctx context.Context) (rls.Identity, bool) {
	identity, ok := ctx.Value(tenantContextKey{}).(rls.Identity)
	return identity, ok
}

// TenantContext resolves the database tenant identity for the authenticated
// user and places it in the request context, for data layers that bind it
// with the engine's RLS binder. Mount it after Guard.
func TenantContext(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tenant, err := engine.TenantIdentity(r.Context(), identity.UserID)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
