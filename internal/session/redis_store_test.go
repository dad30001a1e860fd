package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url://"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "user-123", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	user, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "user-123" || user.Role != "parent" {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expired", "user-456", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := store.LookupRefreshSession(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "token-1", "user-1", expiresAt); err != nil {
		t.Fatalf("save token-1: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "token-2", "user-2", expiresAt); err != nil {
		t.Fatalf("save token-2: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
	user, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil || user.ID != "user-2" {
		t.Fatalf("token-2 should survive, got %+v %v", user, err)
	}
	if err := store.RevokeRefreshSession(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking an unknown token should not fail: %v", err)
	}
}

func sampleVerification() Verification {
	return Verification{
		ID:       "stage-1",
		UserID:   "user-1",
		FormData: []byte(`{"school_name":"Oak"}`),
		PDF:      []byte("%PDF-1.4 fake"),
		Email: EmailPreview{
			To:             "parent@example.com",
			Subject:        "Your Private School Affidavit",
			HTML:           "<p>hello</p>",
			AttachmentName: "PSA_Oak.pdf",
		},
		CreatedAt: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStagingRoundTripAndTTL(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.StageVerification(ctx, sampleVerification(), 0); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if ttl := s.TTL("psa-verify:stage-1"); ttl != StagingTTL {
		t.Fatalf("expected default ttl %s, got %s", StagingTTL, ttl)
	}

	got, err := store.LoadVerification(ctx, "stage-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.PDF) != "%PDF-1.4 fake" || got.Email.AttachmentName != "PSA_Oak.pdf" || string(got.FormData) != `{"school_name":"Oak"}` {
		t.Fatalf("unexpected staged payload %+v", got)
	}

	s.FastForward(StagingTTL + time.Second)
	if _, err := store.LoadVerification(ctx, "stage-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected staged payload to expire, got %v", err)
	}
}

func TestRedisStagingDelete(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	if err := store.StageVerification(ctx, sampleVerification(), time.Minute); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := store.DeleteVerification(ctx, "stage-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.LoadVerification(ctx, "stage-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStagingExpires(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	staging := NewMemoryStaging()
	staging.now = func() time.Time { return now }
	ctx := context.Background()

	if err := staging.StageVerification(ctx, sampleVerification(), time.Minute); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := staging.LoadVerification(ctx, "stage-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := staging.LoadVerification(ctx, "stage-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
