package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"vidtube/internal/http_server/middleware/authn"
	resp "vidtube/internal/lib/api/response"
	sl "vidtube/internal/lib/logger"
	"vidtube/internal/models"
	"vidtube/internal/user"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Channels interface {
	ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error)
	Subscribe(ctx context.Context, viewerID int64, channelUsername string) error
	Unsubscribe(ctx context.Context, viewerID int64, channelUsername string) error
}

func Profile(log *slog.Logger, channels Channels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.channel.Profile"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		username := chi.URLParam(r, "username")
		if username == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "channel username is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		profile, err := channels.ChannelProfile(ctx, username, claims.UserID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK(profile, "channel fetched successfully"))
	}
}

func Subscribe(log *slog.Logger, channels Channels) http.HandlerFunc {
	return subscription(log, channels, Channels.Subscribe, "subscribed successfully")
}

func Unsubscribe(log *slog.Logger, channels Channels) http.HandlerFunc {
	return subscription(log, channels, Channels.Unsubscribe, "unsubscribed successfully")
}

func subscription(
	log *slog.Logger,
	channels Channels,
	action func(Channels, context.Context, int64, string) error,
	okMsg string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.channel.subscription"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		username := chi.URLParam(r, "username")
		if username == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "channel username is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := action(channels, ctx, claims.UserID, username); err != nil {
			switch {
			case errors.Is(err, user.ErrSelfSubscription):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(http.StatusBadRequest, "cannot subscribe to own channel"))
			case errors.Is(err, user.ErrAlreadySubscribed):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error(http.StatusConflict, "already subscribed"))
			case errors.Is(err, user.ErrNotSubscribed):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error(http.StatusNotFound, "not subscribed"))
			default:
				writeServiceError(w, r, log, err)
			}

			return
		}

		log.Info("subscription changed", slog.Int64("uid", claims.UserID), slog.String("channel", username))

		render.JSON(w, r, resp.OK(nil, okMsg))
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error(http.StatusUnauthorized, "authentication required"))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error(http.StatusNotFound, "channel not found"))
	case errors.Is(err, context.DeadlineExceeded):
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp.Error(http.StatusServiceUnavailable, "temporarily unavailable"))
	default:
		log.Error("request failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))
	}
}
