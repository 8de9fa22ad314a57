package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

const createScope = "POST /translations"

func TestGetIdempotency_EmptyKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	rec, err := GetIdempotency(context.Background(), db, createScope, "   ", time.Now().UTC())
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:        "expired",
		Scope:     createScope,
		Key:       "k1",
		Status:    201,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if rec, err := GetIdempotency(context.Background(), db, createScope, "k1", now); rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, createScope, "missing", now); rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotency_RoundTrip_Duplicate_Purge(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, createScope, "k1", 42, 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, createScope, "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.TranslationKeyID != 42 || got.Status != 201 {
		t.Fatalf("unexpected stored record %+v", got)
	}

	if _, err := CreateIdempotency(ctx, db, createScope, "k1", 43, 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged record, got n=%d err=%v", n, err)
	}
}

func TestFindByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "app.title", map[string]string{"en": "App"}, "web")

	got, err := FindByID(ctx, db, k.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Key != "app.title" || len(got.Translations) != 1 || len(got.Tags) != 1 {
		t.Fatalf("unexpected key %+v", got)
	}
	if _, err := FindByID(ctx, db, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
