package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vidtube/internal/lib/jwt"
	"vidtube/internal/models"
	"vidtube/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for the postgres repo. RotateSession is
// a mutex-guarded compare-and-swap, the same semantics the conditional UPDATE
// gives the real store.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]models.User
	sessions map[int64][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		users:    make(map[int64]models.User),
		sessions: make(map[int64][]byte),
	}
}

func (f *fakeStore) SaveUser(_ context.Context, u models.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Username == strings.ToLower(u.Username) || existing.Email == u.Email {
			return 0, storage.ErrUserExists
		}
	}

	u.ID = f.nextID
	u.Username = strings.ToLower(u.Username)
	u.CreatedAt = time.Now()
	f.users[u.ID] = u
	f.nextID++

	return u.ID, nil
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (f *fakeStore) UserByIdentifier(_ context.Context, identifier string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == strings.ToLower(identifier) || u.Email == identifier {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeStore) SetSession(_ context.Context, userID int64, tokenHash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[userID]; !ok {
		return storage.ErrUserNotFound
	}

	f.sessions[userID] = tokenHash

	return nil
}

func (f *fakeStore) RotateSession(_ context.Context, userID int64, oldHash, newHash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !bytes.Equal(f.sessions[userID], oldHash) {
		return storage.ErrSessionMismatch
	}

	f.sessions[userID] = newHash

	return nil
}

func (f *fakeStore) ClearSession(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[userID]; !ok {
		return storage.ErrUserNotFound
	}

	f.sessions[userID] = nil

	return nil
}

func (f *fakeStore) storedSession(userID int64) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessions[userID]
}

type fakeDenier struct {
	mu     sync.Mutex
	denied []string
}

func (f *fakeDenier) DenyAccessToken(_ context.Context, jti string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.denied = append(f.denied, jti)

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokens() *jwt.Manager {
	return jwt.NewManager(jwt.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    10 * 24 * time.Hour,
	})
}

func newTestAuth(store *fakeStore, denier *fakeDenier, tokens *jwt.Manager) *Auth {
	return New(discardLogger(), store, store, store, denier, tokens)
}

func registerAlice(t *testing.T, a *Auth) models.PublicUser {
	t.Helper()

	u, err := a.Register(context.Background(), RegisterParams{
		Username:  "alice",
		Email:     "alice@x.com",
		FullName:  "Alice Example",
		Password:  "pw123secret",
		AvatarURL: "https://media.example/avatar.png",
	})
	require.NoError(t, err)

	return u
}

func TestRegisterThenLogin(t *testing.T) {
	store := newFakeStore()
	tokens := testTokens()
	a := newTestAuth(store, &fakeDenier{}, tokens)

	registered := registerAlice(t, a)
	assert.Equal(t, "alice", registered.Username)

	for _, identifier := range []string{"alice", "alice@x.com"} {
		pair, user, err := a.Login(context.Background(), identifier, "pw123secret")
		require.NoError(t, err, "login with %q", identifier)

		assert.Equal(t, registered.ID, user.ID)
		assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

		accessClaims, err := tokens.VerifyAccess(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, accessClaims.UserID)

		refreshClaims, err := tokens.VerifyRefresh(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, refreshClaims.UserID)
	}
}

func TestRegister_DuplicateFails(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	registerAlice(t, a)

	_, err := a.Register(context.Background(), RegisterParams{
		Username: "alice",
		Email:    "other@x.com",
		FullName: "Other",
		Password: "pw123secret",
	})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLogin_WrongPasswordDoesNotTouchSession(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeDenier{}, testTokens())

	registered := registerAlice(t, a)

	// Establish a session, then fail a login and check it survived intact.
	_, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	before := store.storedSession(registered.ID)
	require.NotEmpty(t, before)

	_, _, err = a.Login(context.Background(), "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, before, store.storedSession(registered.ID))
}

func TestLogin_UnknownUser(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	_, _, err := a.Login(context.Background(), "nobody", "pw123secret")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin_OverwritesPreviousSession(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	registerAlice(t, a)

	first, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	_, _, err = a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	// The first session was implicitly revoked by the second login.
	_, err = a.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	registerAlice(t, a)

	t1, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	t2, err := a.Refresh(context.Background(), t1.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, t1.RefreshToken, t2.RefreshToken)
	assert.NotEqual(t, t1.AccessToken, t2.AccessToken)

	// Replaying the superseded token must fail even though it has not
	// expired.
	_, err = a.Refresh(context.Background(), t1.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The rotated token still works.
	_, err = a.Refresh(context.Background(), t2.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	store := newFakeStore()
	expired := jwt.NewManager(jwt.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    -time.Minute,
	})
	a := newTestAuth(store, &fakeDenier{}, expired)

	registerAlice(t, a)

	pair, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	_, err = a.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_GarbageToken(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	_, err := a.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// timingOutProvider simulates a stalled store: every user lookup fails with a
// wrapped deadline error.
type timingOutProvider struct {
	*fakeStore
}

func (p *timingOutProvider) UserByID(context.Context, int64) (models.User, error) {
	return models.User{}, fmt.Errorf("query users: %w", context.DeadlineExceeded)
}

func TestRefresh_StoreTimeoutIsNotInvalidCredentials(t *testing.T) {
	store := newFakeStore()
	tokens := testTokens()
	a := newTestAuth(store, &fakeDenier{}, tokens)

	registerAlice(t, a)

	pair, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	stalled := New(discardLogger(), store, &timingOutProvider{store}, store, &fakeDenier{}, tokens)

	_, err = stalled.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials,
		"a transient store failure must not look like a bad token")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The session survived: the same token works once the store recovers.
	_, err = a.Refresh(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	a := newTestAuth(newFakeStore(), &fakeDenier{}, testTokens())

	registerAlice(t, a)

	pair, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	const workers = 8

	var (
		wg        sync.WaitGroup
		successes sync.Map
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := a.Refresh(context.Background(), pair.RefreshToken); err == nil {
				successes.Store(n, true)
			}
		}(i)
	}

	wg.Wait()

	var won int
	successes.Range(func(_, _ any) bool {
		won++
		return true
	})

	assert.Equal(t, 1, won, "exactly one concurrent refresh may succeed")
}

func TestLogout_RevokesSessionAndDeniesAccessToken(t *testing.T) {
	store := newFakeStore()
	denier := &fakeDenier{}
	tokens := testTokens()
	a := newTestAuth(store, denier, tokens)

	registered := registerAlice(t, a)

	pair, _, err := a.Login(context.Background(), "alice", "pw123secret")
	require.NoError(t, err)

	claims, err := tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	err = a.Logout(context.Background(), registered.ID, claims.ID, claims.ExpiresAt.Time)
	require.NoError(t, err)

	assert.Equal(t, []string{claims.ID}, denier.denied)

	// The pre-logout refresh token is gone for good.
	_, err = a.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
