package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"tesoro/internal/core"
)

type fakeStore struct {
	users  map[string]core.User
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]core.User)}
}

func (f *fakeStore) CreateUser(_ context.Context, username, passwordHash string) (core.User, error) {
	if existing, ok := f.users[username]; ok {
		if existing.PasswordHash != "" {
			return core.User{}, core.ErrUserExists
		}
		existing.PasswordHash = passwordHash
		f.users[username] = existing
		return existing, nil
	}
	f.nextID++
	u := core.User{ID: f.nextID, Username: username, PasswordHash: passwordHash}
	f.users[username] = u
	return u, nil
}

func (f *fakeStore) GetUser(_ context.Context, username string) (core.User, error) {
	u, ok := f.users[username]
	if !ok {
		return core.User{}, core.ErrUnknownUser
	}
	return u, nil
}

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		confirm  string
		wantErr  error
	}{
		{"empty username", "  ", "secret", "secret", core.ErrEmptyUsername},
		{"empty password", "alice", "", "", ErrEmptyPassword},
		{"mismatch", "alice", "secret", "other", core.ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newFakeStore(), time.Hour)
			_, err := svc.SignUp(context.Background(), tt.username, tt.password, tt.confirm)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SignUp() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignUpAndLogIn(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, time.Hour)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "alice", "secret", "secret")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if session.Username != "Alice" {
		t.Errorf("session username = %q, want canonical %q", session.Username, "Alice")
	}
	if session.Token == "" {
		t.Error("session token is empty")
	}
	if store.users["Alice"].PasswordHash == "secret" {
		t.Error("password stored in plain text")
	}

	if _, err := svc.SignUp(ctx, "Alice", "again", "again"); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("duplicate SignUp() error = %v, want ErrUserExists", err)
	}

	got, err := svc.LogIn(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("LogIn() error = %v", err)
	}
	if got.UserID != session.UserID {
		t.Errorf("LogIn() user id = %d, want %d", got.UserID, session.UserID)
	}

	if _, err := svc.LogIn(ctx, "alice", "wrong"); !errors.Is(err, core.ErrWrongPassword) {
		t.Errorf("wrong password error = %v, want ErrWrongPassword", err)
	}
	if _, err := svc.LogIn(ctx, "nobody", "secret"); !errors.Is(err, core.ErrUnknownUser) {
		t.Errorf("unknown user error = %v, want ErrUnknownUser", err)
	}
}

func TestLogInCounterpartyRejected(t *testing.T) {
	store := newFakeStore()
	// counterparty created by someone's loan, no password
	store.users["Bob"] = core.User{ID: 7, Username: "Bob"}

	svc := NewService(store, time.Hour)
	if _, err := svc.LogIn(context.Background(), "bob", "anything"); !errors.Is(err, core.ErrUnknownUser) {
		t.Errorf("counterparty LogIn() error = %v, want ErrUnknownUser", err)
	}
}

func TestSignUpClaimsCounterparty(t *testing.T) {
	store := newFakeStore()
	store.users["Bob"] = core.User{ID: 7, Username: "Bob"}

	svc := NewService(store, time.Hour)
	session, err := svc.SignUp(context.Background(), "bob", "secret", "secret")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if session.UserID != 7 {
		t.Errorf("claimed user id = %d, want 7", session.UserID)
	}
	if _, err := svc.LogIn(context.Background(), "bob", "secret"); err != nil {
		t.Errorf("LogIn() after claim error = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := NewService(newFakeStore(), time.Hour)
	session, err := svc.SignUp(context.Background(), "alice", "secret", "secret")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if _, ok := svc.Lookup(session.Token); !ok {
		t.Fatal("Lookup() did not find fresh session")
	}

	svc.LogOut(session.Token)
	if _, ok := svc.Lookup(session.Token); ok {
		t.Error("Lookup() found session after logout")
	}

	// unknown token is a miss, not an error
	if _, ok := svc.Lookup("nope"); ok {
		t.Error("Lookup() found unknown token")
	}
}

func TestSessionExpiry(t *testing.T) {
	svc := NewService(newFakeStore(), 10*time.Millisecond)
	session, err := svc.SignUp(context.Background(), "alice", "secret", "secret")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := svc.Lookup(session.Token); ok {
		t.Error("Lookup() found expired session")
	}
}
