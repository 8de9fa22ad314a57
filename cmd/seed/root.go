package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/bulk"
	"github.com/tbourn/go-translation-backend/internal/config"
	"github.com/tbourn/go-translation-backend/internal/exportcache"
	"github.com/tbourn/go-translation-backend/internal/normalize"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/sysutil"
)

type rootFlags struct {
	driver string
	dsn    string
}

type loadFlags struct {
	keys    int
	chunk   int
	locales string
	tags    string
	seed    int64
	quiet   bool
}

func newRootCmd() *cobra.Command {
	var (
		cfg config.Config
		rf  rootFlags
	)

	root := &cobra.Command{
		Use:           "seed",
		Short:         "Manage the translation store and bulk-load synthetic keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			sysutil.SetLogLevel(cfg.LogLevel)
			sysutil.ConfigureLogger(cmd.ErrOrStderr(), cfg.LogPretty, "seed")
			if rf.driver != "" {
				cfg.DB.Driver = strings.ToLower(rf.driver)
			}
			if rf.dsn != "" {
				if cfg.DB.Driver == repo.DriverPostgres {
					cfg.DB.URL = rf.dsn
				} else {
					cfg.DB.Path = rf.dsn
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&rf.driver, "driver", "", "store driver: sqlite or postgres (default $DB_DRIVER)")
	root.PersistentFlags().StringVar(&rf.dsn, "dsn", "", "SQLite path or Postgres URL (default $DB_PATH / $DATABASE_URL)")

	root.AddCommand(newMigrateCmd(&cfg), newLoadCmd(&cfg))
	return root
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, closeDB, err := openStore(*cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DB.Driver).Msg("schema migrated")
			return nil
		},
	}
}

func newLoadCmd(cfg *config.Config) *cobra.Command {
	var lf loadFlags

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Insert synthetic translation keys in chunks",
		Long: `load inserts --keys translation keys named translation.key.NNNNNN in
chunks of --chunk, each committed on its own. Rows that already exist are
skipped, so an interrupted load can simply be run again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bc := bulk.Config{
				KeyCount:  cfg.Seed.Keys,
				ChunkSize: cfg.Seed.Chunk,
				Locales:   cfg.Seed.Locales,
				Tags:      cfg.Seed.Tags,
			}
			flags := cmd.Flags()
			if flags.Changed("keys") {
				bc.KeyCount = lf.keys
			}
			if flags.Changed("chunk") {
				bc.ChunkSize = lf.chunk
			}
			if flags.Changed("locales") {
				bc.Locales = normalize.CSV(lf.locales)
			}
			if flags.Changed("tags") {
				bc.Tags = normalize.CSV(lf.tags)
			}
			if err := bc.Validate(); err != nil {
				return err
			}

			db, closeDB, err := openStore(*cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			loader := bulk.NewLoader(db, nil)
			loader.Logger = log.Logger
			if flags.Changed("seed") {
				loader.Sample = bulk.NewSampler(&lf.seed)
			}
			store, err := exportcache.NewStore(cfg.Cache, repo.GenerationCounters{DB: db})
			if err != nil {
				return err
			}
			defer store.Close()
			loader.Cache = exportcache.New(store, repo.ExportSource{DB: db}, exportcache.WithTTL(cfg.Cache.ExportTTL))
			if !lf.quiet {
				out := cmd.OutOrStdout()
				loader.OnProgress = func(p bulk.Progress) {
					fmt.Fprintf(out, "chunk %d/%d keys %d-%d committed\n", p.Chunk, p.Chunks, p.Start, p.End)
				}
			}

			rep, err := loader.Load(cmd.Context(), bc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}

	f := cmd.Flags()
	f.IntVar(&lf.keys, "keys", bulk.DefaultKeyCount, "number of keys (default $SEED_KEYS)")
	f.IntVar(&lf.chunk, "chunk", bulk.DefaultChunkSize, "keys per transaction (default $SEED_CHUNK)")
	f.StringVar(&lf.locales, "locales", strings.Join(bulk.DefaultLocales, ","), "comma-separated locales (default $SEED_LOCALES)")
	f.StringVar(&lf.tags, "tags", strings.Join(bulk.DefaultTags, ","), "comma-separated tags (default $SEED_TAGS)")
	f.Int64Var(&lf.seed, "seed", 0, "random seed for reproducible tag assignment")
	f.BoolVarP(&lf.quiet, "quiet", "q", false, "suppress per-chunk progress lines")
	return cmd
}

// openStore opens the configured store and returns a closer for it.
func openStore(cfg config.Config) (*gorm.DB, func(), error) {
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Msg("close store")
			}
		}
	}
	return db, closeDB, nil
}
