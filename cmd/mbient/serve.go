package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/voyagen/mbient/internal/blog"
	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/collection"
	"github.com/voyagen/mbient/internal/fetcher"
	"github.com/voyagen/mbient/internal/scheduler"
	"github.com/voyagen/mbient/internal/server"
	"github.com/voyagen/mbient/internal/service"
	"github.com/voyagen/mbient/internal/store"
)

const persistTimeout = 30 * time.Second

func newServeCommand(cc *commandContext) *cobra.Command {
	var initialURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cc, initialURL)
		},
	}
	cmd.Flags().StringVar(&initialURL, "playlist", "", "Playlist URL to load at startup")
	return cmd
}

func runServe(ctx context.Context, cc *commandContext, initialURL string) error {
	cfg, log := cc.cfg, cc.log

	coll := collection.New(cfg.DataDir, cfg.StreamServerHost)
	ingestor := service.NewPlaylistIngestor(
		fetcher.NewHTTPFetcher(cfg.UserAgent, cfg.Timeout),
		fetcher.Parser{FallbackHost: cfg.FallbackHost},
		service.WithLogger(log),
	)

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	if cfg.RedisURL != "" {
		var err error
		rds, err = cache.New(cfg.RedisURL, "mbient")
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		log.Logf("redis connected (caching and refresh queue enabled)")
	} else {
		log.Logf("redis disabled (REDIS_URL not set)")
	}

	// Persist snapshots if DATABASE_URL is configured.
	var appStore store.Store
	if cfg.DatabaseURL != "" {
		if err := store.RunMigrations(cfg.DatabaseURL, "file://"+migrationsDir()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pg.Close()

		appStore = pg
		if rds != nil {
			cached := store.NewCachedStore(pg, rds, log)
			if err := cached.Purge(ctx); err != nil {
				log.Warnf("cache purge: %v", err)
			}
			appStore = cached
		}
		unsubscribe := ingestor.Subscribe(service.PersistSnapshots(appStore, coll.NameFor, persistTimeout, log))
		defer unsubscribe()
		log.Logf("postgres connected (snapshot persistence enabled)")
	} else {
		log.Logf("persistence disabled (DATABASE_URL not set)")
	}

	if rds != nil {
		go service.RunRefreshWorker(ctx, rds, ingestor, log)
	}

	if cfg.RefreshCron != "" {
		sched, err := scheduler.New(cfg.RefreshCron, ingestor, rds, cfg.Timeout, log)
		if err != nil {
			return err
		}
		sched.Start(ctx)
	}

	var blogClient *blog.Client
	if cfg.BlogEnabled() {
		blogClient = blog.NewClient(cfg.BlogAPIURL, cfg.BlogAccountID, cfg.BlogSiteID)
	}

	if initialURL != "" {
		go func() {
			if err := ingestor.Load(ctx, initialURL); err != nil && !errors.Is(err, service.ErrSuperseded) {
				log.Warnf("initial playlist: %v", err)
			}
		}()
	}

	srv := server.New(cfg, server.Deps{
		Ingestor:   ingestor,
		Collection: coll,
		Store:      appStore,
		Redis:      rds,
		Blog:       blogClient,
		Log:        log,
	})
	return srv.ListenAndServe(ctx)
}

// migrationsDir looks for ./migrations, then for migrations next to the executable.
func migrationsDir() string {
	dir, err := filepath.Abs("migrations")
	if err != nil {
		dir = "migrations"
	}
	if _, err := os.Stat(dir); err != nil {
		if exe, e := os.Executable(); e == nil {
			dir = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	return dir
}
