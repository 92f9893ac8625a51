package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidtube/internal/lib/jwt"
	sl "vidtube/internal/lib/logger"
	"vidtube/internal/lib/password"
	"vidtube/internal/models"
	"vidtube/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

type UserSaver interface {
	SaveUser(ctx context.Context, u models.User) (int64, error)
}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByIdentifier(ctx context.Context, identifier string) (models.User, error)
}

// SessionStore is the single holder of the refresh-token state. SetSession
// overwrites unconditionally, RotateSession is a compare-and-swap on the old
// hash, ClearSession revokes.
type SessionStore interface {
	SetSession(ctx context.Context, userID int64, tokenHash []byte) error
	RotateSession(ctx context.Context, userID int64, oldHash, newHash []byte) error
	ClearSession(ctx context.Context, userID int64) error
}

// TokenDenier blocks an access token for the remainder of its lifetime.
type TokenDenier interface {
	DenyAccessToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	sessions    SessionStore
	denier      TokenDenier
	tokens      *jwt.Manager
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	sessions SessionStore,
	denier TokenDenier,
	tokens *jwt.Manager,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		sessions:    sessions,
		denier:      denier,
		tokens:      tokens,
	}
}

type RegisterParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

func (a *Auth) Register(ctx context.Context, p RegisterParams) (models.PublicUser, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := password.Hash(p.Password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, models.User{
		Username:      p.Username,
		Email:         p.Email,
		FullName:      p.FullName,
		PassHash:      passHash,
		AvatarURL:     p.AvatarURL,
		CoverImageURL: p.CoverImageURL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("username or email already taken")
			return models.PublicUser{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrProvider.UserByID(ctx, id)
	if err != nil {
		log.Error("failed to load created user", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", id))

	return user.Public(), nil
}

// Login verifies the credentials and opens a session. Storing the new refresh
// token hash overwrites whatever was there before, which implicitly revokes
// any previous session: one live session per user.
func (a *Auth) Login(ctx context.Context, identifier, pass string) (models.TokenPair, models.PublicUser, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.TokenPair{}, models.PublicUser{}, ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	if !password.Check(pass, user.PassHash) {
		log.Info("invalid credentials")
		return models.TokenPair{}, models.PublicUser{}, ErrInvalidCredentials
	}

	pair, err := a.issuePair(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sessions.SetSession(ctx, user.ID, hashToken(pair.RefreshToken)); err != nil {
		log.Error("failed to store session", sl.Err(err))
		return models.TokenPair{}, models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return pair, user.Public(), nil
}

// Refresh rotates the session. A refresh token is honored only if its
// signature verifies, it has not expired, and its hash still equals the
// stored value. The conditional swap in the store guarantees that two
// concurrent refreshes with the same token produce exactly one winner; the
// loser (or a replayed, already-rotated token) fails here. Every failure
// collapses to ErrInvalidCredentials so callers cannot tell expired from
// tampered from reused.
func (a *Auth) Refresh(ctx context.Context, rawRefresh string) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		log.Warn("refresh token rejected", sl.Err(err))
		return models.TokenPair{}, ErrInvalidCredentials
	}

	user, err := a.usrProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		// A store timeout is transient, not a bad token; it must not force
		// the client to re-login.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Error("failed to load user", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Warn("refresh for unknown user", sl.Err(err))
		return models.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := a.issuePair(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	err = a.sessions.RotateSession(ctx, user.ID, hashToken(rawRefresh), hashToken(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrSessionMismatch) {
			log.Warn("refresh token expired or reused", slog.Int64("uid", user.ID))
			return models.TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to rotate session", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session refreshed", slog.Int64("uid", user.ID))

	return pair, nil
}

// Logout revokes the session by clearing the stored refresh token and puts
// the presented access token on the denylist until it would have expired
// anyway.
func (a *Auth) Logout(ctx context.Context, userID int64, accessJTI string, accessExpiry time.Time) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if err := a.sessions.ClearSession(ctx, userID); err != nil {
		log.Error("failed to clear session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if accessJTI != "" {
		if err := a.denier.DenyAccessToken(ctx, accessJTI, time.Until(accessExpiry)); err != nil {
			// Denylist failure is not fatal: the session itself is revoked.
			log.Warn("failed to deny access token", sl.Err(err))
		}
	}

	log.Info("user logged out", slog.Int64("uid", userID))

	return nil
}

func (a *Auth) issuePair(user models.User) (models.TokenPair, error) {
	accessToken, err := a.tokens.NewAccessToken(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	refreshToken, err := a.tokens.NewRefreshToken(user.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// hashToken is the deterministic digest stored server-side. Equality of
// hashes stands in for equality of token values, which keeps the conditional
// swap in the store a plain column comparison.
func hashToken(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}
