package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"vidtube/internal/http_server/middleware/authn"
	resp "vidtube/internal/lib/api/response"
	sl "vidtube/internal/lib/logger"
	"vidtube/internal/models"
	"vidtube/internal/user"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const maxMultipartMemory = 8 << 20

// Profiles is the slice of the user service these handlers need.
type Profiles interface {
	CurrentUser(ctx context.Context, userID int64) (models.PublicUser, error)
	ChangePassword(ctx context.Context, userID int64, oldPass, newPass string) error
	UpdateAccount(ctx context.Context, userID int64, fullName, email string) (models.PublicUser, error)
	UpdateAvatar(ctx context.Context, userID int64, body io.Reader, contentType string) (models.PublicUser, error)
	UpdateCoverImage(ctx context.Context, userID int64, body io.Reader, contentType string) (models.PublicUser, error)
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type UpdateAccountRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

func Me(log *slog.Logger, profiles Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.Me"

		log := requestLog(log, r, op)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		u, err := profiles.CurrentUser(ctx, claims.UserID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK(u, "current user fetched successfully"))
	}
}

func ChangePassword(log *slog.Logger, validate *validator.Validate, profiles Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.ChangePassword"

		log := requestLog(log, r, op)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		var req ChangePasswordRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := profiles.ChangePassword(ctx, claims.UserID, req.OldPassword, req.NewPassword); err != nil {
			if errors.Is(err, user.ErrWrongPassword) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(http.StatusUnauthorized, "wrong password"))

				return
			}

			writeServiceError(w, r, log, err)
			return
		}

		log.Info("password changed", slog.Int64("uid", claims.UserID))

		render.JSON(w, r, resp.OK(nil, "password changed successfully"))
	}
}

func UpdateAccount(log *slog.Logger, validate *validator.Validate, profiles Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.UpdateAccount"

		log := requestLog(log, r, op)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		var req UpdateAccountRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		u, err := profiles.UpdateAccount(ctx, claims.UserID, req.FullName, req.Email)
		if err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error(http.StatusConflict, "email already taken"))

				return
			}

			writeServiceError(w, r, log, err)
			return
		}

		log.Info("account updated", slog.Int64("uid", claims.UserID))

		render.JSON(w, r, resp.OK(u, "account updated successfully"))
	}
}

func UpdateAvatar(log *slog.Logger, profiles Profiles) http.HandlerFunc {
	return updateImage(log, "avatar", profiles, Profiles.UpdateAvatar)
}

func UpdateCoverImage(log *slog.Logger, profiles Profiles) http.HandlerFunc {
	return updateImage(log, "coverImage", profiles, Profiles.UpdateCoverImage)
}

func updateImage(
	log *slog.Logger,
	field string,
	profiles Profiles,
	update func(Profiles, context.Context, int64, io.Reader, string) (models.PublicUser, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.updateImage"

		log := requestLog(log, r, op)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			log.Error("failed to parse multipart form", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "failed to parse form"))

			return
		}

		file, header, err := r.FormFile(field)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, field+" file is required"))

			return
		}
		defer file.Close()

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		u, err := update(profiles, ctx, claims.UserID, file, contentType(header))
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		log.Info("image updated", slog.Int64("uid", claims.UserID), slog.String("field", field))

		render.JSON(w, r, resp.OK(u, field+" updated successfully"))
	}
}

func requestLog(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error(http.StatusUnauthorized, "authentication required"))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error(http.StatusNotFound, "user not found"))
	case errors.Is(err, context.DeadlineExceeded):
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp.Error(http.StatusServiceUnavailable, "temporarily unavailable"))
	default:
		log.Error("request failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))
	}
}

func contentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
