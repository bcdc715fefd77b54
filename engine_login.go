package lockstep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockstep-auth/lockstep/internal"
	"github.com/lockstep-auth/lockstep/internal/rate"
	"github.com/lockstep-auth/lockstep/session"
)

// Login verifies the password factor and establishes a server-side session.
// The session proves password-stage authentication only; no access token is
// issued here. All credential failures collapse to [ErrInvalidCredentials]
// so a caller cannot distinguish an unknown username from a wrong password.
func (e *Engine) Login(ctx context.Context, username, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.log.Warn(ctx, "login throttled", "username", username)
				return nil, ErrLoginRateLimited
			}
			return nil, err
		}
	}

	if username == "" || plaintext == "" {
		return nil, e.failLogin(ctx, username, ip, "empty credentials")
	}

	user, err := e.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, username, ip, "unknown user")
		}
		e.log.Error(ctx, "login: user lookup failed", "username", username)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		// An unparseable stored hash is data corruption, not a bad password;
		// it must not feed the throttle counters.
		e.log.Error(ctx, "login: stored hash unreadable", "user_id", user.UserID)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, e.failLogin(ctx, username, ip, "password mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user, plaintext)
	}
	plaintext = ""

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sid.String(),
		UserID:      user.UserID,
		Username:    user.Username,
		MFAVerified: false,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.config.Session.Lifetime).Unix(),
	}

	if err := e.sessions.Save(ctx, sess, e.config.Session.Lifetime); err != nil {
		e.log.Error(ctx, "login: session save failed", "user_id", user.UserID)
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	if e.limiter != nil {
		// Counter reset is best-effort and must not undo a successful login.
		if err := e.limiter.ResetLogin(ctx, username, ip); err != nil {
			e.log.Warn(ctx, "login: limiter reset failed", "username", username)
		}
	}

	e.log.Info(ctx, "login succeeded", "user_id", user.UserID, "username", user.Username)

	return &LoginResult{
		SessionID:  sess.SessionID,
		Username:   user.Username,
		MFAActive:  user.TOTPEnabled,
		MFAPending: user.MFAPending(),
	}, nil
}

// failLogin records a failed attempt against the throttle counters and
// returns the caller-facing error. Rate-limit exhaustion takes precedence
// over the credential failure it was about to report.
func (e *Engine) failLogin(ctx context.Context, username, ip, reason string) error {
	if e.limiter != nil {
		if err := e.limiter.IncrementLogin(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.log.Warn(ctx, "login throttled", "username", username)
				return ErrLoginRateLimited
			}
			return err
		}
	}
	e.log.Warn(ctx, "login failed", "username", username, "reason", reason)
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user Identity, plaintext string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.log.Warn(ctx, "password hash upgrade generation failed", "user_id", user.UserID)
		return
	}
	// Rehash persistence is best-effort and must not block login.
	if err := e.users.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
		e.log.Warn(ctx, "password hash upgrade update failed", "user_id", user.UserID)
	}
}

// Status reports the authentication state bound to a session: the username,
// whether the TOTP factor is active for the account, and whether this
// session has passed TOTP verification.
func (e *Engine) Status(ctx context.Context, sessionID string) (*AuthStatus, error) {
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
			// Account deleted out from under a live session.
			_ = e.sessions.Delete(ctx, sess.SessionID, sess.UserID)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &AuthStatus{
		Username:    user.Username,
		MFAActive:   user.TOTPEnabled,
		MFAVerified: sess.MFAVerified,
	}, nil
}

// Logout destroys a session. Logging out an unknown or already-destroyed
// session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	if err := e.sessions.Delete(ctx, sess.SessionID, sess.UserID); err != nil {
		return err
	}

	e.log.Info(ctx, "logout", "user_id", sess.UserID)
	return nil
}

// LogoutAll destroys every session for a user, for credential-compromise
// response and post-password-change invalidation.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrUserNotFound
	}

	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}

	e.log.Info(ctx, "logout all", "user_id", userID)
	return nil
}

// resolveSession maps a raw session ID to its live record. Absent or expired
// sessions surface as ErrUnauthorized; backend failures pass through wrapped
// so callers can distinguish them.
func (e *Engine) resolveSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	return sess, nil
}
