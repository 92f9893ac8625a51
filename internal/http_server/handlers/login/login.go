package login

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
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
}

type loginResult struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type SessionOpener interface {
	Login(ctx context.Context, identifier, password string) (models.TokenPair, models.PublicUser, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
	cookieOpts cookies.Options,
	accessTTL, refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		identifier := req.Username
		if identifier == "" {
			identifier = req.Email
		}
		if identifier == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "username or email is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, user, err := sessions.Login(ctx, identifier, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(http.StatusUnauthorized, "invalid credentials"))
			case errors.Is(err, context.DeadlineExceeded):
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error(http.StatusServiceUnavailable, "temporarily unavailable"))
			default:
				log.Error("failed to login user", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))
			}

			return
		}

		log.Info("user logged in", slog.Int64("uid", user.ID))

		cookies.Set(w, cookieOpts, pair.AccessToken, pair.RefreshToken, accessTTL, refreshTTL)

		render.JSON(w, r, resp.OK(loginResult{
			User:         user,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}, "user logged in successfully"))
	}
}
