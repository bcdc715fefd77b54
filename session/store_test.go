package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "ls"), mr
}

func testSession(id, userID string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		SessionID: id,
		UserID:    userID,
		Username:  "alice",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", time.Hour)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SessionID != "sid-1" || got.UserID != "u1" || got.Username != "alice" || got.MFAVerified {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestGetExpiredSession(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1", "u1", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after expiry, got %v", err)
	}
}

func TestUpdatePreservesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", time.Hour)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess.MFAVerified = true
	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.MFAVerified {
		t.Fatal("expected updated MFAVerified flag")
	}

	if ttl := mr.TTL("ls:sid-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected TTL to survive update, got %v", ttl)
	}
}

func TestUpdateMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Update(context.Background(), testSession("absent", "u1", time.Hour))
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1", "u1", time.Hour), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, "sid-1", "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "sid-1", "u1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "never-existed", "u1"); err != nil {
		t.Fatalf("Delete of unknown session failed: %v", err)
	}

	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		if err := store.Save(ctx, testSession(sid, "u1", time.Hour), time.Hour); err != nil {
			t.Fatalf("Save %s failed: %v", sid, err)
		}
	}
	if err := store.Save(ctx, testSession("other", "u2", time.Hour), time.Hour); err != nil {
		t.Fatalf("Save other failed: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		if _, err := store.Get(ctx, sid); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s to be deleted, got %v", sid, err)
		}
	}

	// Another user's session is untouched.
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("expected other user's session to survive: %v", err)
	}

	// No sessions at all is fine.
	if err := store.DeleteAllForUser(ctx, "u3"); err != nil {
		t.Fatalf("DeleteAllForUser for unknown user failed: %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSession("sid-1", "u1", time.Hour), time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Save, got %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Get, got %v", err)
	}
	if err := store.Delete(ctx, "sid-1", "u1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Delete, got %v", err)
	}
}

func TestSessionCodecRoundTrip(t *testing.T) {
	sess := &Session{
		SessionID:   "sid-1",
		UserID:      "u1",
		Username:    "alice",
		MFAVerified: true,
		CreatedAt:   100,
		ExpiresAt:   200,
	}

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// SessionID travels in the key, not the payload.
	if decoded.SessionID != "" {
		t.Fatalf("expected empty SessionID in payload, got %q", decoded.SessionID)
	}
	decoded.SessionID = sess.SessionID
	if *decoded != *sess {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, sess)
	}

	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestDeleteAllForUserEmptyIndex(t *testing.T) {
	store, _ := newTestStore(t)

	// An index key with no members left behind by expiry.
	if err := store.DeleteAllForUser(context.Background(), "ghost"); err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}
}
