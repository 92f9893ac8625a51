package user

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	sl "vidtube/internal/lib/logger"
	"vidtube/internal/lib/password"
	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/storage"
)

var (
	ErrWrongPassword     = errors.New("wrong password")
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already taken")
	ErrSelfSubscription  = errors.New("cannot subscribe to own channel")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
)

type UserStore interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByIdentifier(ctx context.Context, identifier string) (models.User, error)
	UpdateAccount(ctx context.Context, id int64, fullName, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id int64, passHash []byte) error
	UpdateAvatar(ctx context.Context, id int64, url string) (models.User, error)
	UpdateCoverImage(ctx context.Context, id int64, url string) (models.User, error)
}

type SubscriptionStore interface {
	Subscribe(ctx context.Context, subscriberID, channelID int64) error
	Unsubscribe(ctx context.Context, subscriberID, channelID int64) error
	ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error)
}

// Service covers everything about an account besides the session lifecycle:
// profile reads and updates, media changes, and the channel view.
type Service struct {
	log      *slog.Logger
	users    UserStore
	subs     SubscriptionStore
	uploader media.Uploader
}

func New(log *slog.Logger, users UserStore, subs SubscriptionStore, uploader media.Uploader) *Service {
	return &Service{
		log:      log,
		users:    users,
		subs:     subs,
		uploader: uploader,
	}
}

func (s *Service) CurrentUser(ctx context.Context, userID int64) (models.PublicUser, error) {
	const op = "user.CurrentUser"

	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.PublicUser{}, ErrUserNotFound
		}

		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	return u.Public(), nil
}

// ChangePassword verifies the old password before accepting the new one. The
// stored session is left untouched: changing a password does not log the
// user out.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPass, newPass string) error {
	const op = "user.ChangePassword"

	log := s.log.With(slog.String("op", op))

	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !password.Check(oldPass, u.PassHash) {
		log.Info("wrong old password", slog.Int64("uid", userID))
		return ErrWrongPassword
	}

	newHash, err := password.Hash(newPass)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed", slog.Int64("uid", userID))

	return nil
}

func (s *Service) UpdateAccount(ctx context.Context, userID int64, fullName, email string) (models.PublicUser, error) {
	const op = "user.UpdateAccount"

	log := s.log.With(slog.String("op", op))

	u, err := s.users.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserExists):
			return models.PublicUser{}, ErrEmailTaken
		case errors.Is(err, storage.ErrUserNotFound):
			return models.PublicUser{}, ErrUserNotFound
		}

		log.Error("failed to update account", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account updated", slog.Int64("uid", userID))

	return u.Public(), nil
}

func (s *Service) UpdateAvatar(ctx context.Context, userID int64, body io.Reader, contentType string) (models.PublicUser, error) {
	return s.updateImage(ctx, userID, body, contentType, s.users.UpdateAvatar)
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID int64, body io.Reader, contentType string) (models.PublicUser, error) {
	return s.updateImage(ctx, userID, body, contentType, s.users.UpdateCoverImage)
}

func (s *Service) updateImage(
	ctx context.Context,
	userID int64,
	body io.Reader,
	contentType string,
	persist func(ctx context.Context, id int64, url string) (models.User, error),
) (models.PublicUser, error) {
	const op = "user.updateImage"

	log := s.log.With(slog.String("op", op))

	url, err := s.uploader.Upload(ctx, body, contentType)
	if err != nil {
		log.Error("failed to upload media", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	u, err := persist(ctx, userID, url)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.PublicUser{}, ErrUserNotFound
		}

		log.Error("failed to persist media url", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("media updated", slog.Int64("uid", userID))

	return u.Public(), nil
}

func (s *Service) ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error) {
	const op = "user.ChannelProfile"

	p, err := s.subs.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.ChannelProfile{}, ErrUserNotFound
		}

		s.log.With(slog.String("op", op)).Error("failed to load channel profile", sl.Err(err))
		return models.ChannelProfile{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (s *Service) Subscribe(ctx context.Context, viewerID int64, channelUsername string) error {
	const op = "user.Subscribe"

	channel, err := s.users.UserByIdentifier(ctx, channelUsername)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if channel.ID == viewerID {
		return ErrSelfSubscription
	}

	if err := s.subs.Subscribe(ctx, viewerID, channel.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadySubscribed) {
			return ErrAlreadySubscribed
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscribed", slog.Int64("uid", viewerID), slog.Int64("channel", channel.ID))

	return nil
}

func (s *Service) Unsubscribe(ctx context.Context, viewerID int64, channelUsername string) error {
	const op = "user.Unsubscribe"

	channel, err := s.users.UserByIdentifier(ctx, channelUsername)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.subs.Unsubscribe(ctx, viewerID, channel.ID); err != nil {
		if errors.Is(err, storage.ErrNotSubscribed) {
			return ErrNotSubscribed
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("unsubscribed", slog.Int64("uid", viewerID), slog.Int64("channel", channel.ID))

	return nil
}
