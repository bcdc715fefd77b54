package lockstep

import "errors"

var (
	// ErrUnauthorized is returned when an operation requires a valid session
	// and none is bound to the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when password verification fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when no identity exists for a username or ID.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned when registering a username that is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrLoginRateLimited is returned when the login attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTOTPNotConfigured is returned when a TOTP operation runs against an
	// identity with no stored secret.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPInvalid is returned when a submitted TOTP code does not match any
	// step in the verification window.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPRequired is returned when a TOTP code is required but empty.
	ErrTOTPRequired = errors.New("totp code required")
	// ErrTOTPUnavailable is returned when the TOTP backend cannot be reached.
	ErrTOTPUnavailable = errors.New("totp backend unavailable")
	// ErrSessionNotFound is returned when a session ID resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCreationFailed is returned when a session cannot be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSigningUnavailable is returned when the access-token signing key is
	// missing or token signing fails.
	ErrSigningUnavailable = errors.New("token signing unavailable")
	// ErrTokenInvalid is returned when an access token fails validation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrStoreUnavailable is returned when the credential store is unreachable
	// or a write fails. It is logged and surfaced generically at the boundary.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
