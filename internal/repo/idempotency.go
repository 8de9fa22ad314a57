package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (scope, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the non-expired record for (scope, key) or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreFailure("get idempotency", err)
	}
	return &rec, nil
}

// CreateIdempotency records that (scope, key) produced translationKeyID with
// status. It returns ErrDuplicate when the pair is already recorded.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key string, translationKeyID uint, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:               uuid.NewString(),
		Scope:            scope,
		Key:              key,
		TranslationKeyID: translationKeyID,
		Status:           status,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, domain.StoreFailure("create idempotency", err)
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records that expired before now and
// returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	if res.Error != nil {
		return 0, domain.StoreFailure("purge idempotency", res.Error)
	}
	return res.RowsAffected, nil
}

// FindByID returns the key with id and its relations.
func FindByID(ctx context.Context, db *gorm.DB, id uint) (*domain.TranslationKey, error) {
	var k domain.TranslationKey
	err := db.WithContext(ctx).Select("key").Where("id = ?", id).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreFailure("find translation key by id", err)
	}
	return FindByKeyWithRelations(ctx, db, k.Key)
}
