package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lockstep-auth/lockstep"
)

func TestCreateAndLookup(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, lockstep.Identity{Username: "alice", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.UserID == "" {
		t.Fatal("expected generated user id")
	}

	byName, err := store.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	byID, err := store.GetByID(ctx, created.UserID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byName != byID {
		t.Fatalf("lookup mismatch: %+v != %+v", byName, byID)
	}
}

func TestCreateDuplicate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, lockstep.Identity{Username: "alice"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, lockstep.Identity{Username: "alice"}); !errors.Is(err, lockstep.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.GetByUsername(ctx, "nobody"); !errors.Is(err, lockstep.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, "u404"); !errors.Is(err, lockstep.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, "u404", "h"); !errors.Is(err, lockstep.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := store.SetTOTP(ctx, "u404", "s", false); !errors.Is(err, lockstep.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSetTOTPLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, lockstep.Identity{Username: "alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetTOTP(ctx, created.UserID, "SECRET", false); err != nil {
		t.Fatalf("SetTOTP pending failed: %v", err)
	}
	u, _ := store.GetByID(ctx, created.UserID)
	if u.TOTPSecret != "SECRET" || u.TOTPEnabled || !u.MFAPending() {
		t.Fatalf("unexpected pending state: %+v", u)
	}

	if err := store.SetTOTP(ctx, created.UserID, "SECRET", true); err != nil {
		t.Fatalf("SetTOTP enable failed: %v", err)
	}
	if err := store.UpdateTOTPCounter(ctx, created.UserID, 42); err != nil {
		t.Fatalf("UpdateTOTPCounter failed: %v", err)
	}
	u, _ = store.GetByID(ctx, created.UserID)
	if !u.TOTPEnabled || u.TOTPLastCounter != 42 {
		t.Fatalf("unexpected active state: %+v", u)
	}

	if err := store.SetTOTP(ctx, created.UserID, "", false); err != nil {
		t.Fatalf("SetTOTP clear failed: %v", err)
	}
	u, _ = store.GetByID(ctx, created.UserID)
	if u.TOTPSecret != "" || u.TOTPEnabled || u.TOTPLastCounter != 0 {
		t.Fatalf("expected cleared state, got %+v", u)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, lockstep.Identity{Username: "alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			_ = store.UpdateTOTPCounter(ctx, created.UserID, n)
		}(int64(i))
		go func() {
			defer wg.Done()
			_, _ = store.GetByID(ctx, created.UserID)
		}()
	}
	wg.Wait()
}
