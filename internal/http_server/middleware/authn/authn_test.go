package authn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidtube/internal/lib/api/cookies"
	"vidtube/internal/lib/jwt"
	"vidtube/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDenylist struct {
	denied map[string]bool
	err    error
}

func (s *stubDenylist) IsAccessTokenDenied(_ context.Context, jti string) (bool, error) {
	return s.denied[jti], s.err
}

func testGate(t *testing.T, denylist *stubDenylist) (func(http.Handler) http.Handler, *jwt.Manager) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwt.NewManager(jwt.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    240 * time.Hour,
	})

	return New(log, tokens, denylist), tokens
}

func echoClaims(t *testing.T, got *jwt.Claims) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		*got = claims
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthn_CookieToken(t *testing.T) {
	gate, tokens := testGate(t, &stubDenylist{})

	token, err := tokens.NewAccessToken(models.User{ID: 9, Username: "alice"})
	require.NoError(t, err)

	var got jwt.Claims
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: cookies.AccessTokenCookie, Value: token})

	rr := httptest.NewRecorder()
	gate(echoClaims(t, &got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(9), got.UserID)
}

func TestAuthn_BearerToken(t *testing.T) {
	gate, tokens := testGate(t, &stubDenylist{})

	token, err := tokens.NewAccessToken(models.User{ID: 9})
	require.NoError(t, err)

	var got jwt.Claims
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	gate(echoClaims(t, &got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(9), got.UserID)
}

func TestAuthn_MissingToken(t *testing.T) {
	gate, _ := testGate(t, &stubDenylist{})

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rr := httptest.NewRecorder()

	gate(failIfCalled(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthn_RefreshTokenRejected(t *testing.T) {
	// A refresh token must not pass the access gate: different secret.
	gate, tokens := testGate(t, &stubDenylist{})

	token, err := tokens.NewRefreshToken(9)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	gate(failIfCalled(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthn_DeniedToken(t *testing.T) {
	denylist := &stubDenylist{denied: map[string]bool{}}
	gate, tokens := testGate(t, denylist)

	token, err := tokens.NewAccessToken(models.User{ID: 9})
	require.NoError(t, err)

	claims, err := tokens.VerifyAccess(token)
	require.NoError(t, err)
	denylist.denied[claims.ID] = true

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	gate(failIfCalled(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func failIfCalled(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run behind a failed gate")
	})
}
