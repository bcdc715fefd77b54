package lockstep

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/lockstep-auth/lockstep/internal/rate"
	"github.com/lockstep-auth/lockstep/jwt"
	"github.com/lockstep-auth/lockstep/logging"
	"github.com/lockstep-auth/lockstep/password"
	"github.com/lockstep-auth/lockstep/session"
)

// Builder assembles an [Engine] from its dependencies. A builder is used
// once; Build fails on reuse.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	users  UserStore
	logger logging.Logger

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The config is cloned, so
// later mutation of cfg by the caller does not affect the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for sessions and login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential persistence collaborator.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithLogger sets the structured logger. Without one the engine is silent.
func (b *Builder) WithLogger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and dependencies and returns a ready
// [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Nop{}
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		totp:     newTOTPManager(cfg.TOTP),
		log:      logger,
	}

	if cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Cooldown:         cfg.Security.LoginCooldownDuration,
		})
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	jm, err := jwt.NewManager(jwt.Config{
		SigningKey: cloneBytes(cfg.JWT.SigningKey),
		AccessTTL:  cfg.JWT.AccessTTL,
		Issuer:     cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	b.built = true

	return engine, nil
}
