// Package session authenticates back-office admins and carries their
// identity in a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthenticated    = errors.New("not signed in")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingSessionKey  = errors.New("session key is required")
	errMalformedIdentity  = errors.New("malformed session identity")
)

// dummyHash keeps unknown-username logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("giftshop-timing-guard"), bcrypt.DefaultCost)

const usernameKey = "username"

// Identity is the authenticated admin behind a request. It is resolved once
// and passed explicitly to every back-office operation.
type Identity struct {
	Username string
}

func (i Identity) IsZero() bool {
	return i.Username == ""
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && !id.IsZero()
}

type Manager struct {
	store    *sessions.CookieStore
	name     string
	accounts *repository.AccountRepository
	logger   *zap.Logger
}

func NewManager(cfg config.SessionConfig, accounts *repository.AccountRepository, logger *zap.Logger) (*Manager, error) {
	if cfg.Key == "" {
		return nil, ErrMissingSessionKey
	}
	store := sessions.NewCookieStore([]byte(cfg.Key))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store, name: cfg.CookieName, accounts: accounts, logger: logger}, nil
}

// Authenticate checks a username and password against the stored bcrypt hash.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*models.AdminAccount, error) {
	username = strings.TrimSpace(username)
	account, err := m.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Login authenticates and, on success, writes the session cookie.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, r *http.Request, username, password string) (Identity, error) {
	account, err := m.Authenticate(ctx, username, password)
	if err != nil {
		m.logger.Info("Admin login rejected", zap.String("username", username), zap.Error(err))
		return Identity{}, err
	}

	sess, _ := m.store.Get(r, m.name)
	sess.Values[usernameKey] = account.Username
	if err := sess.Save(r, w); err != nil {
		return Identity{}, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("Admin signed in", zap.String("username", account.Username))
	return Identity{Username: account.Username}, nil
}

// Resolve reads the identity from the request cookie.
func (m *Manager) Resolve(r *http.Request) (Identity, error) {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	raw, ok := sess.Values[usernameKey]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	username, ok := raw.(string)
	if !ok || username == "" {
		m.logger.Warn("Ignoring session", zap.Error(errMalformedIdentity))
		return Identity{}, ErrUnauthenticated
	}
	return Identity{Username: username}, nil
}

func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	delete(sess.Values, usernameKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// HashPassword returns the bcrypt hash stored for an admin password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
