package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"vidtube/internal/lib/api/cookies"
	resp "vidtube/internal/lib/api/response"
	"vidtube/internal/lib/jwt"
	sl "vidtube/internal/lib/logger"

	"github.com/go-chi/render"
)

type contextKey struct{}

var claimsKey contextKey

type Verifier interface {
	VerifyAccess(token string) (jwt.Claims, error)
}

type DenyChecker interface {
	IsAccessTokenDenied(ctx context.Context, jti string) (bool, error)
}

// New returns the authentication gate. It resolves the caller's identity
// from the access token (cookie or Bearer header), rejects denylisted
// tokens, and attaches the claims to the request context.
func New(log *slog.Logger, verifier Verifier, denylist DenyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn"

			log := log.With(slog.String("op", op))

			token := tokenFromRequest(r)
			if token == "" {
				unauthorized(w, r, "authentication required")
				return
			}

			claims, err := verifier.VerifyAccess(token)
			if err != nil {
				log.Info("access token rejected", sl.Err(err))
				unauthorized(w, r, "invalid or expired token")
				return
			}

			denied, err := denylist.IsAccessTokenDenied(r.Context(), claims.ID)
			if err != nil {
				log.Error("denylist lookup failed", sl.Err(err))

				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error(http.StatusServiceUnavailable, "temporarily unavailable"))
				return
			}
			if denied {
				unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the authenticated caller's claims. The second
// result is false only if the handler runs outside the gate, which is a
// wiring bug.
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(jwt.Claims)
	return claims, ok
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(cookies.AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}

	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error(http.StatusUnauthorized, msg))
}
