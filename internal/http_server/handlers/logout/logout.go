package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"vidtube/internal/http_server/middleware/authn"
	"vidtube/internal/lib/api/cookies"
	resp "vidtube/internal/lib/api/response"
	sl "vidtube/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type SessionCloser interface {
	Logout(ctx context.Context, userID int64, accessJTI string, accessExpiry time.Time) error
}

// New requires the authn gate upstream: the caller's identity comes from the
// verified access token, never from the request body.
func New(
	log *slog.Logger,
	sessions SessionCloser,
	cookieOpts cookies.Options,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error(http.StatusUnauthorized, "authentication required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var expiry time.Time
		if claims.ExpiresAt != nil {
			expiry = claims.ExpiresAt.Time
		}

		if err := sessions.Logout(ctx, claims.UserID, claims.ID, expiry); err != nil {
			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))

			return
		}

		log.Info("user logged out", slog.Int64("uid", claims.UserID))

		cookies.Clear(w, cookieOpts)

		render.JSON(w, r, resp.OK(nil, "user logged out successfully"))
	}
}
