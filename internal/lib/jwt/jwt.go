package jwt

import (
	"errors"
	"fmt"
	"time"

	"vidtube/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")
)

type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Config carries the signing material and lifetimes for both token classes.
// Access and refresh secrets are independent so that leaking one does not
// allow forging the other.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Manager struct {
	cfg Config
	now func() time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, now: time.Now}
}

// NewAccessToken mints a short-lived token identifying the user for a single
// request. It is never stored server-side.
func (m *Manager) NewAccessToken(user models.User) (string, error) {
	const op = "jwt.NewAccessToken"

	now := m.now()

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(m.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// NewRefreshToken mints a long-lived token used solely to rotate the session.
// The jti claim makes two consecutive issues for the same user distinct even
// within one clock tick, which is what makes rotation observable.
func (m *Manager) NewRefreshToken(userID int64) (string, error) {
	const op = "jwt.NewRefreshToken"

	now := m.now()

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(m.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (m *Manager) VerifyAccess(tokenStr string) (Claims, error) {
	return m.verify(tokenStr, m.cfg.AccessSecret)
}

func (m *Manager) VerifyRefresh(tokenStr string) (Claims, error) {
	return m.verify(tokenStr, m.cfg.RefreshSecret)
}

// verify checks signature and expiry. Expired tokens are reported as
// ErrTokenExpired; every other failure collapses to ErrTokenInvalid so the
// caller cannot distinguish a bad signature from a malformed token.
func (m *Manager) verify(tokenStr, secret string) (Claims, error) {
	claims := Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}
