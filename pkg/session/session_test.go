package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/repository/repotest"
	"github.com/example/giftshop/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	db := repotest.NewDB(t)
	repotest.SeedAdmin(t, db, "asha", "s3cret", 100, 4)
	m, err := session.NewManager(config.SessionConfig{
		Key:        "0123456789abcdef0123456789abcdef",
		CookieName: "admin_auth",
		MaxAge:     3600,
	}, repository.NewAccountRepository(db), zap.NewNop())
	require.NoError(t, err)
	return m
}

func withCookies(cookies []*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/wallet", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestManager_LoginResolveLogout(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	id, err := m.Login(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/login", nil), "asha", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "asha", id.Username)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "admin_auth", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	resolved, err := m.Resolve(withCookies(cookies))
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	out := httptest.NewRecorder()
	require.NoError(t, m.Logout(out, withCookies(cookies)))
	expired := out.Result().Cookies()
	require.NotEmpty(t, expired)
	assert.Less(t, expired[0].MaxAge, 0)
}

func TestManager_RejectsBadCredentials(t *testing.T) {
	m := newManager(t)
	for _, tc := range []struct{ user, pass string }{
		{"asha", "wrong"},
		{"nobody", "s3cret"},
		{"", ""},
	} {
		rec := httptest.NewRecorder()
		_, err := m.Login(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/login", nil), tc.user, tc.pass)
		assert.ErrorIs(t, err, session.ErrInvalidCredentials)
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestManager_ResolveWithoutCookie(t *testing.T) {
	m := newManager(t)
	_, err := m.Resolve(withCookies(nil))
	assert.ErrorIs(t, err, session.ErrUnauthenticated)

	forged := []*http.Cookie{{Name: "admin_auth", Value: "admin"}}
	_, err = m.Resolve(withCookies(forged))
	assert.ErrorIs(t, err, session.ErrUnauthenticated, "an unsigned marker is not trusted")
}

func TestNewManager_RequiresKey(t *testing.T) {
	_, err := session.NewManager(config.SessionConfig{CookieName: "admin_auth"}, nil, zap.NewNop())
	assert.ErrorIs(t, err, session.ErrMissingSessionKey)
}

func TestIdentityContext(t *testing.T) {
	_, ok := session.FromContext(context.Background())
	assert.False(t, ok)

	ctx := session.WithIdentity(context.Background(), session.Identity{Username: "asha"})
	id, ok := session.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "asha", id.Username)
}

func TestHashPassword(t *testing.T) {
	hash, err := session.HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", hash)

	_, err = session.HashPassword("")
	assert.Error(t, err)
}
