package lockstep

import (
	"errors"
	"strings"
	"time"
)

// Config is the full engine configuration tree. Instances are intended to be
// configured during initialization and then treated as immutable.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	TOTP     TOTPConfig
	Password PasswordConfig
	Security SecurityConfig
}

// JWTConfig controls access-token issuance. SigningKey is process-wide
// secret configuration and must never be derived from request data.
type JWTConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
}

// SessionConfig controls the Redis-backed session store.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// TOTPConfig controls second-factor code generation and verification.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string // SHA1 (default), SHA256, SHA512
	Skew      int    // accepted steps on each side of now

	// EnforceReplayProtection rejects a code at or below the last accepted
	// time-step counter. Off by default: it makes verification a mutating
	// operation, which some callers cannot accept.
	EnforceReplayProtection bool
}

// PasswordConfig holds argon2id cost parameters, in the same units as
// golang.org/x/crypto/argon2 (Memory in KiB).
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// SecurityConfig holds login throttling knobs.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: time.Hour,
			Issuer:    "lockstep",
		},
		Session: SessionConfig{
			RedisPrefix: "ls",
			Lifetime:    12 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:                  "lockstep",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: false,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
	}
}

// DefaultConfig returns the recommended baseline configuration. Callers must
// still supply JWT.SigningKey before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency. Build calls it;
// it is exported so hosts can fail fast at startup.
func (c *Config) Validate() error {
	if len(c.JWT.SigningKey) == 0 {
		return errors.New("JWT SigningKey is required")
	}
	if len(c.JWT.SigningKey) < 32 {
		return errors.New("JWT SigningKey must be >= 256 bits")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}

	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// empty treated as SHA1
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0 when login throttle is enabled")
		}
	}

	return nil
}
