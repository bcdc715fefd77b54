// Command lockstepd serves the lockstep authentication API over HTTP,
// backed by SQLite for credentials and Redis for sessions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	lockstep "github.com/lockstep-auth/lockstep"
	"github.com/lockstep-auth/lockstep/httpapi"
	"github.com/lockstep-auth/lockstep/logging"
	"github.com/lockstep-auth/lockstep/store/sqlite"
)

type config struct {
	Addr            string        `env:"LOCKSTEP_ADDR" envDefault:":8080"`
	SigningKey      string        `env:"LOCKSTEP_SIGNING_KEY,required,unset"`
	RedisAddr       string        `env:"LOCKSTEP_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"LOCKSTEP_REDIS_PASSWORD,unset"`
	DBPath          string        `env:"LOCKSTEP_DB_PATH" envDefault:"lockstep.db"`
	Issuer          string        `env:"LOCKSTEP_ISSUER" envDefault:"lockstep"`
	AccessTTL       time.Duration `env:"LOCKSTEP_ACCESS_TTL" envDefault:"1h"`
	SessionLifetime time.Duration `env:"LOCKSTEP_SESSION_LIFETIME" envDefault:"12h"`
	CookieSecure    bool          `env:"LOCKSTEP_COOKIE_SECURE" envDefault:"true"`
}

func main() {
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	logger := logging.NewSlogLogger(slogger)

	if err := run(logger); err != nil {
		slogger.Error("lockstepd exiting", "err", err.Error())
		os.Exit(1)
	}
}

func run(logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if len(cfg.SigningKey) < 32 {
		return errors.New("LOCKSTEP_SIGNING_KEY must be at least 32 bytes")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return errors.Join(errors.New("redis unreachable"), err)
	}

	users, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer users.Close()

	engineCfg := lockstep.DefaultConfig()
	engineCfg.JWT.SigningKey = []byte(cfg.SigningKey)
	engineCfg.JWT.AccessTTL = cfg.AccessTTL
	engineCfg.JWT.Issuer = cfg.Issuer
	engineCfg.TOTP.Issuer = cfg.Issuer
	engineCfg.Session.Lifetime = cfg.SessionLifetime
	// The server owns its user store, so the mutating replay check is safe
	// to enforce here.
	engineCfg.TOTP.EnforceReplayProtection = true

	engine, err := lockstep.New().
		WithConfig(engineCfg).
		WithRedis(redisClient).
		WithUserStore(users).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	api := httpapi.NewServer(engine, logger)
	api.CookieSecure = cfg.CookieSecure

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "lockstepd listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
