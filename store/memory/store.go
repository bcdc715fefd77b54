// Package memory provides an in-process UserStore for tests and
// single-node deployments that do not need durable credentials.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lockstep-auth/lockstep"
)

// Store keeps identities in maps guarded by a single RWMutex. Writes replace
// whole records, so readers never observe a partial update.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]lockstep.Identity
	byUsername map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:       make(map[string]lockstep.Identity),
		byUsername: make(map[string]string),
	}
}

var _ lockstep.UserStore = (*Store)(nil)

func (s *Store) GetByUsername(_ context.Context, username string) (lockstep.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return lockstep.Identity{}, lockstep.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *Store) GetByID(_ context.Context, userID string) (lockstep.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[userID]
	if !ok {
		return lockstep.Identity{}, lockstep.ErrUserNotFound
	}
	return identity, nil
}

func (s *Store) Create(_ context.Context, identity lockstep.Identity) (lockstep.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[identity.Username]; ok {
		return lockstep.Identity{}, lockstep.ErrAccountExists
	}

	if identity.UserID == "" {
		identity.UserID = uuid.NewString()
	}

	s.byID[identity.UserID] = identity
	s.byUsername[identity.Username] = identity.UserID

	return identity, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[userID]
	if !ok {
		return lockstep.ErrUserNotFound
	}

	identity.PasswordHash = newHash
	s.byID[userID] = identity
	return nil
}

func (s *Store) SetTOTP(_ context.Context, userID, secret string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[userID]
	if !ok {
		return lockstep.ErrUserNotFound
	}

	identity.TOTPSecret = secret
	identity.TOTPEnabled = enabled
	if secret == "" {
		identity.TOTPLastCounter = 0
	}
	s.byID[userID] = identity
	return nil
}

func (s *Store) UpdateTOTPCounter(_ context.Context, userID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[userID]
	if !ok {
		return lockstep.ErrUserNotFound
	}

	identity.TOTPLastCounter = counter
	s.byID[userID] = identity
	return nil
}
