package lockstep

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterCreatesIdentity(t *testing.T) {
	store := newFakeUserStore()
	engine, _, done := newTestEngine(t, testConfig(), store)
	defer done()

	identity, err := engine.Register(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if identity.UserID == "" || identity.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	stored := store.get(t, identity.UserID)
	if stored.PasswordHash == "" || stored.PasswordHash == "correct horse battery" {
		t.Fatal("expected stored hash, not plaintext")
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id PHC hash, got %q", stored.PasswordHash)
	}
	if stored.TOTPEnabled || stored.TOTPSecret != "" {
		t.Fatal("expected new identity without TOTP state")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig(), newFakeUserStore())
	defer done()

	if _, err := engine.Register(context.Background(), "alice", "password-one"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	_, err := engine.Register(context.Background(), "alice", "password-two")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRegisterRejectsBadUsername(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig(), newFakeUserStore())
	defer done()

	if _, err := engine.Register(context.Background(), "", "long enough password"); err == nil {
		t.Fatal("expected error for empty username")
	}
	if _, err := engine.Register(context.Background(), "   ", "long enough password"); err == nil {
		t.Fatal("expected error for whitespace username")
	}
}

func TestRegisterAcceptsShortPassword(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig(), newFakeUserStore())
	defer done()

	// The only registration constraint is username availability; no password
	// policy is imposed.
	if _, err := engine.Register(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("register with short password failed: %v", err)
	}

	result, err := engine.Login(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.SessionID == "" {
		t.Fatal("expected session id")
	}

	if _, err := engine.Login(context.Background(), "alice", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong short password, got %v", err)
	}
}

func TestRegisterDistinctHashesForSamePassword(t *testing.T) {
	store := newFakeUserStore()
	engine, _, done := newTestEngine(t, testConfig(), store)
	defer done()

	a, err := engine.Register(context.Background(), "alice", "shared password")
	if err != nil {
		t.Fatalf("Register alice failed: %v", err)
	}
	b, err := engine.Register(context.Background(), "bob", "shared password")
	if err != nil {
		t.Fatalf("Register bob failed: %v", err)
	}

	if store.get(t, a.UserID).PasswordHash == store.get(t, b.UserID).PasswordHash {
		t.Fatal("expected per-user salted hashes to differ")
	}
}

func TestRegisterStoreUnavailable(t *testing.T) {
	store := newFakeUserStore()
	engine, _, done := newTestEngine(t, testConfig(), store)
	defer done()

	store.failReads = true
	_, err := engine.Register(context.Background(), "alice", "long enough password")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
