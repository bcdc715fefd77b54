package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	lockstep "github.com/lockstep-auth/lockstep"
	"github.com/lockstep-auth/lockstep/store/memory"
)

func newGuardFixture(t *testing.T) (*lockstep.Engine, *miniredis.Miniredis, string) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := lockstep.DefaultConfig()
	cfg.JWT.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := lockstep.New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithUserStore(memory.NewStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Register(ctx, "alice", "correct horse battery"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	login, err := engine.Login(ctx, "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	return engine, mr, login.SessionID
}

func TestRequireSessionGuard(t *testing.T) {
	engine, mr, sessionID := newGuardFixture(t)

	var sawUsername string
	guarded := RequireSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := StatusFromContext(r.Context()); ok {
			sawUsername = status.Username
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged cookie, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionID})
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with live session, got %d", rec.Code)
	}
	if sawUsername != "alice" {
		t.Fatalf("expected status for alice, got %q", sawUsername)
	}

	// A dead session backend is a 500, not a 401: the caller's session may
	// well still be valid.
	mr.Close()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionID})
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 with backend down, got %d", rec.Code)
	}
}
