// Package session holds the bearer token and cached user for one client.
//
// A Session is passed explicitly to every component that talks to the API.
// Components only read it; Set, Hydrate, Verify and Logout are the sole
// transitions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/storage"
)

var (
	// ErrNoSession is returned by write operations that require a token.
	ErrNoSession = errors.New("unauthorized")
	// ErrInvalidTarget is returned when an operation names no target id.
	ErrInvalidTarget = errors.New("invalid target id")
)

// Storage is the persisted key/value backing for a session.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Getter is the slice of the API client used to confirm a token.
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

type Session struct {
	mu    sync.RWMutex
	token string
	user  *models.User
	store Storage
	log   *slog.Logger
	now   func() time.Time
}

// New returns an empty session. store may be nil for an in-memory session.
func New(store Storage, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{store: store, log: log, now: time.Now}
}

// Token implements client.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// User returns a copy of the cached user, or nil.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UID returns the cached user's id, or "".
func (s *Session) UID() string {
	if u := s.User(); u != nil {
		return u.UID
	}
	return ""
}

// Set installs a token and user, persisting both when storage is present.
func (s *Session) Set(ctx context.Context, token string, user *models.User) error {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Set(ctx, storage.KeyToken, token); err != nil {
		return err
	}
	if user == nil {
		return s.store.Remove(ctx, storage.KeyUser)
	}
	return s.persistUser(ctx, user)
}

// Hydrate loads the session from storage. Presence of an unexpired token is
// enough to be logged in; Verify confirms it with the server.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Remove(ctx, storage.KeyLegacyThreads); err != nil {
		return err
	}
	token, _, err := s.store.Get(ctx, storage.KeyToken)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token != "" && Expired(token, s.now()) {
		s.log.Info("stored token expired; clearing session")
		return s.Logout(ctx)
	}

	var user *models.User
	raw, ok, err := s.store.Get(ctx, storage.KeyUser)
	if err != nil {
		return err
	}
	if ok {
		var u models.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.log.Warn("discarding unreadable cached user", "err", err)
			if err := s.store.Remove(ctx, storage.KeyUser); err != nil {
				return err
			}
		} else {
			user = &u
		}
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	return nil
}

// Verify confirms the token via /auth/me. A rejected token clears the
// session and storage.
func (s *Session) Verify(ctx context.Context, api Getter) error {
	if !s.LoggedIn() {
		return nil
	}
	var me models.User
	if err := api.Get(ctx, "/api/auth/me", &me); err != nil {
		if client.StatusCode(err) == 0 {
			return client.Describe(err, "Unauthorized")
		}
		s.log.Info("token rejected; clearing session", "err", err)
		if lerr := s.Logout(ctx); lerr != nil {
			return lerr
		}
		return ErrNoSession
	}
	return s.setUser(ctx, &me)
}

// RefreshMe reloads the cached user. Failures leave the session untouched.
func (s *Session) RefreshMe(ctx context.Context, api Getter) error {
	if !s.LoggedIn() {
		return nil
	}
	var me models.User
	if err := api.Get(ctx, "/api/auth/me", &me); err != nil {
		return client.Describe(err, "Unauthorized")
	}
	return s.setUser(ctx, &me)
}

// Logout clears the in-memory session and every persisted key.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Remove(ctx, storage.KeyToken, storage.KeyUser, storage.KeyLegacyThreads)
}

func (s *Session) setUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.persistUser(ctx, u)
}

func (s *Session) persistUser(ctx context.Context, u *models.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, storage.KeyUser, string(b))
}

// Expired reports whether token is a JWT whose exp claim is before now.
// Opaque tokens and JWTs without exp never expire client-side.
func Expired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(now)
}
