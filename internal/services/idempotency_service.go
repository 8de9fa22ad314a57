// Package services – IdempotencyService
//
// This file implements IdempotencyService, which remembers the outcome of a
// create request under its Idempotency-Key so a retried request replays the
// stored translation key instead of creating a second one. Records expire
// after the configured TTL.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/repo"
)

// IdempotencyService remembers which translation key a create request
// produced so a retry with the same Idempotency-Key can be replayed.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
}

// NewIdempotencyService returns a service keeping records for ttl
// (24h when ttl <= 0).
func NewIdempotencyService(db *gorm.DB, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, TTL: ttl}
}

// Lookup returns the key recorded for (scope, key), or ErrNotFound when
// nothing live is recorded or the recorded key was deleted since.
func (s *IdempotencyService) Lookup(ctx context.Context, scope, key string) (*domain.TranslationKey, int, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, scope, key, time.Now().UTC())
	if err != nil {
		return nil, 0, err
	}
	k, err := repo.FindByID(ctx, s.DB, rec.TranslationKeyID)
	if err != nil {
		return nil, 0, err
	}
	return k, rec.Status, nil
}

// Remember records that (scope, key) produced k with status. A concurrent
// retry that already recorded the pair is not an error.
func (s *IdempotencyService) Remember(ctx context.Context, scope, key string, k *domain.TranslationKey, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, scope, key, k.ID, status, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Exists reports whether a live record exists for (scope, key).
func (s *IdempotencyService) Exists(ctx context.Context, scope, key string) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, scope, key, time.Now().UTC())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
