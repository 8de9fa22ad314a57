package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-translation-backend/internal/bulk"
	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/exportcache"
	"github.com/tbourn/go-translation-backend/internal/repo"
)

func runSeed(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_PRETTY", "false")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeed_MigrateThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")

	_, err := runSeed(t, "migrate", "--dsn", path)
	require.NoError(t, err)

	out, err := runSeed(t, "load", "--dsn", path,
		"--keys", "5", "--chunk", "2", "--locales", " EN,fr,en ", "--tags", "web", "--seed", "7", "-q")
	require.NoError(t, err)

	var rep bulk.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	require.Equal(t, 5, rep.Attempted)
	require.Equal(t, 3, rep.Chunks)
	require.EqualValues(t, 5, rep.KeysInserted)
	require.EqualValues(t, 10, rep.TranslationsInserted)

	db, err := repo.OpenSQLite(path)
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	k, err := repo.FindByKeyWithRelations(context.Background(), db, bulk.KeyName(5))
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"en": bulk.Content("en", bulk.KeyName(5)),
		"fr": bulk.Content("fr", bulk.KeyName(5)),
	}, k.TranslationMap())
	require.Equal(t, []string{"web"}, k.TagNames())
}

func TestSeed_LoadRerunIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")
	_, err := runSeed(t, "migrate", "--dsn", path)
	require.NoError(t, err)

	_, err = runSeed(t, "load", "--dsn", path, "--keys", "3", "--chunk", "10", "-q")
	require.NoError(t, err)

	out, err := runSeed(t, "load", "--dsn", path, "--keys", "3", "--chunk", "10")
	require.NoError(t, err)
	require.Contains(t, out, "chunk 1/1 keys 1-3 committed")

	var rep bulk.Report
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &rep))
	require.Zero(t, rep.KeysInserted)
	require.Zero(t, rep.TranslationsInserted)
}

func TestSeed_LoadRejectsBadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")

	_, err := runSeed(t, "load", "--dsn", path, "--keys", "0")
	require.True(t, errors.Is(err, domain.ErrConfiguration), "err = %v", err)

	_, err = runSeed(t, "load", "--dsn", path, "--tags", " , ")
	require.True(t, errors.Is(err, domain.ErrConfiguration), "err = %v", err)

	_, err = runSeed(t, "load", "--dsn", path, "--keys", "2", "-q")
	require.True(t, errors.Is(err, domain.ErrConfiguration), "missing tables: err = %v", err)
}

func TestSeed_LoadBumpsSharedGenerationWithMemoryCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.db")
	_, err := runSeed(t, "migrate", "--dsn", path)
	require.NoError(t, err)

	_, err = runSeed(t, "load", "--dsn", path, "--keys", "5", "--chunk", "2", "-q")
	require.NoError(t, err)

	db, err := repo.OpenSQLite(path)
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	// A server on the memory backend reads this counter before serving any
	// cached export.
	gen, err := repo.GenerationCounters{DB: db}.Counter(context.Background(), exportcache.DefaultPrefix+":generation")
	require.NoError(t, err)
	require.EqualValues(t, 3, gen)
}
