package session

import "encoding/json"

// Session is the server-side record behind an opaque session ID. Its
// existence proves password-stage authentication only; MFAVerified flips
// once the second factor has been confirmed for this session.
type Session struct {
	SessionID   string `json:"-"`
	UserID      string `json:"uid"`
	Username    string `json:"usr"`
	MFAVerified bool   `json:"mfa"`
	CreatedAt   int64  `json:"cat"`
	ExpiresAt   int64  `json:"exp"`
}

// Encode serializes a session for storage.
func Encode(sess *Session) ([]byte, error) {
	return json.Marshal(sess)
}

// Decode restores a session from its stored form. SessionID is not part of
// the payload; callers set it from the key they looked up.
func Decode(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
