// Package internal holds identifier generation helpers shared by the engine
// and session store.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// SessionID is a 128-bit random identifier. Session IDs are never derived
// from identity data; forgery resistance comes from entropy plus the
// server-side store lookup.
type SessionID [16]byte

// NewSessionID returns a cryptographically random session ID.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

// String renders the ID as compact unpadded base64url.
func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes a string produced by [SessionID.String].
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}
