package lockstep

import (
	"context"
	"time"

	"github.com/lockstep-auth/lockstep/internal/rate"
	"github.com/lockstep-auth/lockstep/jwt"
	"github.com/lockstep-auth/lockstep/logging"
	"github.com/lockstep-auth/lockstep/password"
	"github.com/lockstep-auth/lockstep/session"
)

// Engine is the authentication engine. Construct it with [New]; the zero
// value is not usable. Engine instances are immutable after Build and safe
// for concurrent use.
type Engine struct {
	config   Config
	users    UserStore
	sessions *session.Store
	limiter  *rate.Limiter
	hasher   *password.Argon2
	totp     *totpManager
	tokens   *jwt.Manager
	log      logging.Logger
}

// Config returns a copy of the engine's effective configuration with the
// signing key redacted.
func (e *Engine) Config() Config {
	cfg := cloneConfig(e.config)
	cfg.JWT.SigningKey = nil
	return cfg
}

// Ping reports whether the session backend is reachable.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.sessions == nil || e.hasher == nil ||
		e.totp == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}
