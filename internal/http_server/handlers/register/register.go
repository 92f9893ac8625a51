package register

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"vidtube/internal/auth"
	resp "vidtube/internal/lib/api/response"
	sl "vidtube/internal/lib/logger"
	"vidtube/internal/media"
	"vidtube/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// 8 MiB of form data kept in memory; larger files spill to disk.
const maxMultipartMemory = 8 << 20

type Request struct {
	Username string `validate:"required,min=3,max=32"`
	Email    string `validate:"required,email"`
	FullName string `validate:"required"`
	Password string `validate:"required,min=8"`
}

type Response struct {
	resp.Response
}

type Registrar interface {
	Register(ctx context.Context, p auth.RegisterParams) (models.PublicUser, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	registrar Registrar,
	uploader media.Uploader,
	publisher Publisher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			log.Error("failed to parse multipart form", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "failed to parse form"))

			return
		}

		req := Request{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			FullName: r.FormValue("fullName"),
			Password: r.FormValue("password"),
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		avatarFile, avatarHeader, err := r.FormFile("avatar")
		if err != nil {
			log.Error("avatar file missing", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, "avatar file is required"))

			return
		}
		defer avatarFile.Close()

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		avatarURL, err := uploader.Upload(ctx, avatarFile, contentType(avatarHeader))
		if err != nil {
			log.Error("failed to upload avatar", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(http.StatusInternalServerError, "failed to upload avatar"))

			return
		}

		var coverURL string
		if coverFile, coverHeader, err := r.FormFile("coverImage"); err == nil {
			defer coverFile.Close()

			coverURL, err = uploader.Upload(ctx, coverFile, contentType(coverHeader))
			if err != nil {
				log.Error("failed to upload cover image", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(http.StatusInternalServerError, "failed to upload cover image"))

				return
			}
		}

		user, err := registrar.Register(ctx, auth.RegisterParams{
			Username:      req.Username,
			Email:         req.Email,
			FullName:      req.FullName,
			Password:      req.Password,
			AvatarURL:     avatarURL,
			CoverImageURL: coverURL,
		})
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error(http.StatusConflict, "username or email already exists"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(http.StatusInternalServerError, "internal error"))

			return
		}

		log.Info("user registered", slog.Int64("uid", user.ID))

		// Welcome event is best-effort: a broker outage must not fail the
		// registration itself.
		if err := publisher.SendMessage(ctx, models.Message{
			Email:    user.Email,
			Username: user.Username,
			Purpose:  "welcome",
		}); err != nil {
			log.Warn("failed to publish welcome event", sl.Err(err))
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp.Created(user, "user created successfully"))
	}
}

func contentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
