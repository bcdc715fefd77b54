package lockstep

import (
	"context"
	"time"
)

// Identity is the full credential record for a registered user. The TOTP
// secret is non-empty only while enrollment is pending or the factor is
// active; TOTPEnabled flips on the first successful verification, never at
// secret generation time.
type Identity struct {
	UserID       string
	Username     string
	PasswordHash string

	// TOTPSecret is the base32-encoded shared secret, without padding.
	TOTPSecret string
	// TOTPEnabled reports whether the second factor has been confirmed.
	TOTPEnabled bool
	// TOTPLastCounter is the last accepted time-step counter, used for
	// replay protection when enabled.
	TOTPLastCounter int64

	CreatedAt time.Time
}

// MFAPending reports whether a setup secret exists that has not yet been
// confirmed by a successful verification.
func (i Identity) MFAPending() bool {
	return i.TOTPSecret != "" && !i.TOTPEnabled
}

// UserStore is the persistence collaborator callers must implement to
// integrate lockstep with their user database. Implementations must keep
// per-identity writes atomic: a SetTOTP racing a concurrent read must never
// expose a partially written record.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (Identity, error)
	GetByID(ctx context.Context, userID string) (Identity, error)
	Create(ctx context.Context, identity Identity) (Identity, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetTOTP writes secret and enabled flag in one atomic update. It covers
	// begin-setup (secret, false), activation (secret, true), and reset
	// ("", false).
	SetTOTP(ctx context.Context, userID, secret string, enabled bool) error

	// UpdateTOTPCounter records the last accepted time-step counter.
	UpdateTOTPCounter(ctx context.Context, userID string, counter int64) error
}

// LoginResult is returned by [Engine.Login]. MFAActive tells the client to
// branch to code verification; MFAPending means a setup was started but
// never confirmed.
type LoginResult struct {
	SessionID  string
	Username   string
	MFAActive  bool
	MFAPending bool
}

// AuthStatus is returned by [Engine.Status] for an established session.
type AuthStatus struct {
	Username    string
	MFAActive   bool
	MFAVerified bool
}

// TOTPSetup holds the base32 secret and otpauth:// provisioning URI returned
// by [Engine.BeginTOTPSetup]. The URI is the input to any QR rendering
// collaborator; the engine itself never renders images.
type TOTPSetup struct {
	Secret string
	URI    string
}

// VerifyResult is returned by [Engine.VerifyTOTP] on success. The access
// token proves full password-plus-TOTP authentication until it expires.
type VerifyResult struct {
	AccessToken string
	ExpiresAt   time.Time
}
