// Package auth handles account registration, login and cookie sessions.
// Passwords are stored as bcrypt hashes. Sessions are random tokens held
// in an in-memory LRU with a TTL, so a restart logs everyone out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tesoro/internal/cache"
	"tesoro/internal/core"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionCookie is the cookie carrying the session token.
	SessionCookie = "tesoro_session"

	maxSessions = 1000
)

var ErrEmptyPassword = errors.New("empty password")

// UserStore is the slice of the repository auth needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (core.User, error)
	GetUser(ctx context.Context, username string) (core.User, error)
}

// Session is one logged-in browser.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	CreatedAt time.Time
}

type Service struct {
	users    UserStore
	sessions *cache.LRUCache[Session]
	ttl      time.Duration
}

func NewService(users UserStore, ttl time.Duration) *Service {
	return &Service{
		users:    users,
		sessions: cache.NewLRUCache[Session](maxSessions, ttl),
		ttl:      ttl,
	}
}

// Sessions exposes the session cache for cleanup registration.
func (s *Service) Sessions() *cache.LRUCache[Session] {
	return s.sessions
}

// SignUp registers a new account and logs it in. The username is
// canonicalized, so "alice" and "Alice" are the same account.
func (s *Service) SignUp(ctx context.Context, username, password, confirm string) (Session, error) {
	username = core.CanonicalName(username)
	if username == "" {
		return Session{}, core.ErrEmptyUsername
	}
	if strings.TrimSpace(password) == "" {
		return Session{}, ErrEmptyPassword
	}
	if password != confirm {
		return Session{}, core.ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return Session{}, err
	}
	return s.startSession(user), nil
}

// LogIn verifies the password and opens a session. A counterparty
// account without a password behaves like an unknown user, so login
// errors never reveal whether the name exists.
func (s *Service) LogIn(ctx context.Context, username, password string) (Session, error) {
	username = core.CanonicalName(username)
	if username == "" {
		return Session{}, core.ErrEmptyUsername
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if !user.CanLogIn() {
		return Session{}, core.ErrUnknownUser
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, core.ErrWrongPassword
	}
	return s.startSession(user), nil
}

// LogOut drops the session. Unknown tokens are a no-op.
func (s *Service) LogOut(token string) {
	s.sessions.Delete(token)
}

// Lookup resolves a session token. The second return is false for
// missing or expired sessions.
func (s *Service) Lookup(token string) (Session, bool) {
	return s.sessions.Get(token)
}

// TTL is the session lifetime, used for cookie max-age.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) startSession(user core.User) Session {
	session := Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: time.Now(),
	}
	s.sessions.Set(session.Token, session)
	return session
}
