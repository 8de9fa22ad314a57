package repo

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// seedKey creates key with translations and tags through the repository.
func seedKey(t *testing.T, db *gorm.DB, key string, tr map[string]string, tags ...string) *domain.TranslationKey {
	t.Helper()
	ctx := context.Background()
	k, err := CreateTranslationKey(ctx, db, key)
	if err != nil {
		t.Fatalf("CreateTranslationKey(%q): %v", key, err)
	}
	for loc, content := range tr {
		if err := UpsertTranslation(ctx, db, k.ID, loc, content); err != nil {
			t.Fatalf("UpsertTranslation: %v", err)
		}
	}
	if err := SyncTags(ctx, db, k.ID, tags); err != nil {
		t.Fatalf("SyncTags: %v", err)
	}
	return k
}

func TestCreateTranslationKey_Conflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateTranslationKey(ctx, db, "home.title"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := CreateTranslationKey(ctx, db, "home.title")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindByKey_AndRelations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedKey(t, db, "homepage.hero.title", map[string]string{"fr": "Bienvenue", "en": "Welcome"}, "Web", " mobile ")

	k, err := FindByKey(ctx, db, "homepage.hero.title")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if len(k.Translations) != 0 || len(k.Tags) != 0 {
		t.Fatalf("FindByKey must not load relations: %+v", k)
	}

	full, err := FindByKeyWithRelations(ctx, db, "homepage.hero.title")
	if err != nil {
		t.Fatalf("FindByKeyWithRelations: %v", err)
	}
	if len(full.Translations) != 2 || full.Translations[0].Locale != "en" || full.Translations[1].Locale != "fr" {
		t.Fatalf("translations not ordered by locale: %+v", full.Translations)
	}
	if got := full.TagNames(); !reflect.DeepEqual(got, []string{"mobile", "web"}) {
		t.Fatalf("unexpected tags %v", got)
	}

	if _, err := FindByKey(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := FindByKeyWithRelations(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertTranslation_ReplacesContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "k", map[string]string{"en": "one"})

	if err := UpsertTranslation(ctx, db, k.ID, "en", "two"); err != nil {
		t.Fatalf("UpsertTranslation: %v", err)
	}
	var rows []domain.Translation
	db.Where("translation_key_id = ?", k.ID).Find(&rows)
	if len(rows) != 1 || rows[0].Content != "two" {
		t.Fatalf("expected a single updated row, got %+v", rows)
	}
}

func TestSyncTags_AddsRemovesAndKeepsOrphans(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "k", nil, "web", "mobile")

	if err := SyncTags(ctx, db, k.ID, []string{"MOBILE", "desktop", "desktop "}); err != nil {
		t.Fatalf("SyncTags: %v", err)
	}
	full, _ := FindByKeyWithRelations(ctx, db, "k")
	if got := full.TagNames(); !reflect.DeepEqual(got, []string{"desktop", "mobile"}) {
		t.Fatalf("unexpected tags after sync: %v", got)
	}

	// The detached tag stays in storage.
	var cnt int64
	db.Model(&domain.Tag{}).Where("name = ?", "web").Count(&cnt)
	if cnt != 1 {
		t.Fatalf("expected orphan tag to remain, got %d", cnt)
	}

	if err := SyncTags(ctx, db, k.ID, nil); err != nil {
		t.Fatalf("SyncTags(empty): %v", err)
	}
	db.Model(&domain.KeyTag{}).Where("translation_key_id = ?", k.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected all associations removed, got %d", cnt)
	}
}

func TestTouchTranslationKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "k", nil)

	id, err := TouchTranslationKey(ctx, db, "k")
	if err != nil || id != k.ID {
		t.Fatalf("expected id %d, got %d err=%v", k.ID, id, err)
	}
	if _, err := TouchTranslationKey(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteByKey_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "gone", map[string]string{"en": "x", "fr": "y"}, "web")
	other := seedKey(t, db, "kept", map[string]string{"en": "z"}, "web")

	ok, err := DeleteByKey(ctx, db, "gone")
	if err != nil || !ok {
		t.Fatalf("expected delete true, got %v err=%v", ok, err)
	}
	var cnt int64
	db.Model(&domain.Translation{}).Where("translation_key_id = ?", k.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("translations left behind: %d", cnt)
	}
	db.Model(&domain.KeyTag{}).Where("translation_key_id = ?", k.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("associations left behind: %d", cnt)
	}
	db.Model(&domain.KeyTag{}).Where("translation_key_id = ?", other.ID).Count(&cnt)
	if cnt != 1 {
		t.Fatalf("other key lost its association: %d", cnt)
	}

	ok, err = DeleteByKey(ctx, db, "gone")
	if err != nil || ok {
		t.Fatalf("expected delete false on missing key, got %v err=%v", ok, err)
	}
}

func TestGetExportRows_FiltersDedupesAndOrders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedKey(t, db, "b.key", map[string]string{"en": "B", "fr": "Bf"}, "web", "mobile")
	seedKey(t, db, "a.key", map[string]string{"en": "A"}, "web")
	seedKey(t, db, "c.key", map[string]string{"en": "C"}, "desktop")
	seedKey(t, db, "d.key", map[string]string{"fr": "Df"}, "web")

	rows, err := GetExportRows(ctx, db, "en", nil)
	if err != nil {
		t.Fatalf("GetExportRows: %v", err)
	}
	want := []domain.ExportRow{{Key: "a.key", Content: "A"}, {Key: "b.key", Content: "B"}, {Key: "c.key", Content: "C"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unfiltered rows = %+v; want %+v", rows, want)
	}

	// b.key matches both tags and must appear once.
	rows, err = GetExportRows(ctx, db, "en", []string{"mobile", "web"})
	if err != nil {
		t.Fatalf("GetExportRows(tags): %v", err)
	}
	want = []domain.ExportRow{{Key: "a.key", Content: "A"}, {Key: "b.key", Content: "B"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("tag rows = %+v; want %+v", rows, want)
	}

	rows, err = GetExportRows(ctx, db, "de", nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows for unknown locale, got %+v err=%v", rows, err)
	}
}
