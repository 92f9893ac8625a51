package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"vidtube/internal/auth"
	"vidtube/internal/lib/api/cookies"
	resp "vidtube/internal/lib/api/response"
	sl "vidtube/internal/lib/logger"
	"vidtube/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Request struct {
	RefreshToken string `json:"refreshToken"`
}

type Response struct {
	resp.Response
}

type SessionRotator interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	sessions SessionRotator,
	cookieOpts cookies.Options,
	accessTTL, refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := tokenFromRequest(r)
		if token == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "refresh token is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := sessions.Refresh(ctx, token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				// Failed refresh forces re-login; stale cookies would only
				// produce more failed refreshes.
				cookies.Clear(w, cookieOpts)

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(http.StatusUnauthorized, "invalid or expired refresh token"))
			case errors.Is(err, context.DeadlineExceeded):
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error(http.StatusServiceUnavailable, "temporarily unavailable"))
			default:
				log.Error("failed to refresh session", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))
			}

			return
		}

		log.Info("session refreshed")

		cookies.Set(w, cookieOpts, pair.AccessToken, pair.RefreshToken, accessTTL, refreshTTL)

		render.JSON(w, r, resp.OK(pair, "tokens refreshed successfully"))
	}
}

// tokenFromRequest prefers the cookie and falls back to the JSON body, so
// both browser and API clients work.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(cookies.RefreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return ""
	}

	return req.RefreshToken
}
