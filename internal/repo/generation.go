// Generation counters shared through the database.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// GenerationCounters stores named counters in the cache_generations table.
// It satisfies exportcache.Counters.
type GenerationCounters struct{ DB *gorm.DB }

// Counter returns the value of name, 0 when it was never incremented.
func (g GenerationCounters) Counter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := g.DB.WithContext(ctx).Model(&domain.CacheGeneration{}).
		Select("value").Where("name = ?", name).Scan(&v).Error
	if err != nil {
		return 0, domain.StoreFailure("read generation", err)
	}
	return v, nil
}

// Increment adds delta to name with a single upsert and returns the new
// value.
func (g GenerationCounters) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	var v int64
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := domain.CacheGeneration{Name: name, Value: delta, UpdatedAt: now}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("cache_generations.value + ?", delta),
				"updated_at": now,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Model(&domain.CacheGeneration{}).Select("value").Where("name = ?", name).Scan(&v).Error
	})
	if err != nil {
		return 0, domain.StoreFailure("bump generation", err)
	}
	return v, nil
}
