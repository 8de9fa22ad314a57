package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// KeysStats returns the number of translation keys and the greatest
// updated_at among them, or a nil time when there are none. The HTTP layer
// derives weak ETags for search responses from it.
//
// Every mutation bumps the key's updated_at (create, update, a bulk load
// adding translations or tags to existing keys) or the count (delete), so
// the pair changes whenever a search result could.
func KeysStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.TranslationKey{})
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, domain.StoreFailure("count keys", err)
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY instead of MAX(): SQLite returns MAX() of a datetime as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.TranslationKey{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, domain.StoreFailure("latest key update", err)
	}
	return count, &row.UpdatedAt, nil
}
