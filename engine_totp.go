package lockstep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BeginTOTPSetup generates a fresh shared secret for the session's user and
// stores it in a pending state. The factor is NOT active yet: activation
// happens on the first successful [Engine.VerifyTOTP]. Re-running setup
// replaces any previous secret and returns the factor to pending, so an
// active factor must be re-confirmed after a new setup.
//
// The returned URI is otpauth:// provisioning data for authenticator apps;
// rendering it as a QR code is the caller's concern.
func (e *Engine) BeginTOTPSetup(ctx context.Context, sessionID string) (*TOTPSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sess, err := e.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.users.SetTOTP(ctx, user.UserID, secret, false); err != nil {
		e.log.Error(ctx, "totp setup: secret store failed", "user_id", user.UserID)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.log.Info(ctx, "totp setup started", "user_id", user.UserID)

	return &TOTPSetup{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, user.Username),
	}, nil
}

// VerifyTOTP checks a submitted code against the user's stored secret. On
// the first success it activates the factor; on every success it marks the
// session MFA-verified and issues a signed access token. The code is checked
// against the current time step and the configured skew on each side.
func (e *Engine) VerifyTOTP(ctx context.Context, sessionID, code string) (*VerifyResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sess, err := e.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if code == "" {
		return nil, ErrTOTPRequired
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if user.TOTPSecret == "" {
		return nil, ErrTOTPNotConfigured
	}

	now := time.Now()
	ok, counter, err := e.totp.VerifyCode(user.TOTPSecret, code, now)
	if err != nil {
		e.log.Error(ctx, "totp verify: code evaluation failed", "user_id", user.UserID)
		return nil, ErrTOTPInvalid
	}
	if !ok {
		e.log.Warn(ctx, "totp verify failed", "user_id", user.UserID)
		return nil, ErrTOTPInvalid
	}

	if e.config.TOTP.EnforceReplayProtection && user.TOTPEnabled && counter <= user.TOTPLastCounter {
		e.log.Warn(ctx, "totp code replayed", "user_id", user.UserID)
		return nil, ErrTOTPInvalid
	}

	if !user.TOTPEnabled {
		// First successful verification confirms enrollment.
		if err := e.users.SetTOTP(ctx, user.UserID, user.TOTPSecret, true); err != nil {
			e.log.Error(ctx, "totp verify: activation failed", "user_id", user.UserID)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.log.Info(ctx, "totp activated", "user_id", user.UserID)
	}

	sess.MFAVerified = true
	if err := e.sessions.Update(ctx, sess); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	token, expiresAt, err := e.tokens.Issue(user.Username, now)
	if err != nil {
		e.log.Error(ctx, "totp verify: token issue failed", "user_id", user.UserID)
		return nil, errors.Join(ErrSigningUnavailable, err)
	}

	if e.config.TOTP.EnforceReplayProtection {
		// Recorded only once the whole ceremony has succeeded, so an earlier
		// failure does not burn the code for the rest of its time step.
		if err := e.users.UpdateTOTPCounter(ctx, user.UserID, counter); err != nil {
			return nil, ErrTOTPUnavailable
		}
	}

	e.log.Info(ctx, "totp verified", "user_id", user.UserID)

	return &VerifyResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// ResetTOTP clears the user's secret and active flag in one atomic write.
// Resetting an identity with no configured factor is a no-op. The session
// survives but loses its MFA-verified mark.
func (e *Engine) ResetTOTP(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sess, err := e.resolveSession(ctx, sessionID)
	if err != nil {
		return err
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.users.SetTOTP(ctx, user.UserID, "", false); err != nil {
		e.log.Error(ctx, "totp reset failed", "user_id", user.UserID)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if sess.MFAVerified {
		sess.MFAVerified = false
		if err := e.sessions.Update(ctx, sess); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}

	e.log.Info(ctx, "totp reset", "user_id", user.UserID)
	return nil
}
