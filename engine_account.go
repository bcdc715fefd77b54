package lockstep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Register creates a new identity from a username and plaintext password.
// The password is argon2id-hashed before storage and the plaintext is never
// logged. Returns [ErrAccountExists] when the username is taken.
func (e *Engine) Register(ctx context.Context, username, plaintext string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if _, err := e.users.GetByUsername(ctx, username); err == nil {
		return Identity{}, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		e.log.Error(ctx, "register: user lookup failed", "username", username)
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return Identity{}, err
	}
	plaintext = ""

	created, err := e.users.Create(ctx, Identity{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		// Two concurrent registrations can both pass the lookup; the store's
		// uniqueness constraint decides the winner.
		if errors.Is(err, ErrAccountExists) {
			return Identity{}, ErrAccountExists
		}
		e.log.Error(ctx, "register: create failed", "username", username)
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.log.Info(ctx, "account registered", "user_id", created.UserID, "username", created.Username)

	return created, nil
}
