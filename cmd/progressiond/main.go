// Package main provides the progression daemon: it loads archetypes and Lua
// hooks, restores persisted characters, and drives regeneration ticks until
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/progression/internal/config"
	"github.com/cory-johannsen/progression/internal/game/character"
	"github.com/cory-johannsen/progression/internal/gameserver"
	"github.com/cory-johannsen/progression/internal/observability"
	"github.com/cory-johannsen/progression/internal/scripting"
	"github.com/cory-johannsen/progression/internal/server"
	"github.com/cory-johannsen/progression/internal/storage/postgres"
	"github.com/cory-johannsen/progression/internal/storage/redis"
)

// spawnFlags collects repeated -spawn name[:archetype] values.
type spawnFlags []string

func (s *spawnFlags) String() string     { return strings.Join(*s, ",") }
func (s *spawnFlags) Set(v string) error { *s = append(*s, v); return nil }

// idLister is implemented by stores that can enumerate persisted characters.
type idLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// bulkLoader is implemented by stores that can fetch every persisted
// character in one call.
type bulkLoader interface {
	LoadAll(ctx context.Context) ([]character.Record, error)
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	preload := flag.Bool("preload", true, "load every persisted character at startup")
	var spawns spawnFlags
	flag.Var(&spawns, "spawn", "spawn a character as name[:archetype]; repeatable")
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting progression daemon",
		zap.String("storage", cfg.Storage.Backend),
		zap.Duration("tick_interval", cfg.Simulation.TickInterval),
	)

	archStart := time.Now()
	archetypes, err := character.LoadArchetypes(cfg.Content.ArchetypesDir)
	if err != nil {
		logger.Fatal("loading archetypes", zap.Error(err))
	}
	logger.Info("archetypes loaded",
		zap.Int("count", len(archetypes)),
		zap.Duration("elapsed", time.Since(archStart)),
	)

	lifecycle := server.NewLifecycle(logger, 0)

	store, err := openStore(ctx, cfg, logger, lifecycle)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}

	scripts := scripting.NewManager(logger, cfg.Scripting.InstructionLimit)
	defer scripts.Close()
	if err := gameserver.LoadScripts(scripts, cfg.Scripting.GlobalDir, archetypes); err != nil {
		logger.Fatal("loading scripts", zap.Error(err))
	}

	roster, err := gameserver.NewRoster(gameserver.RosterConfig{
		Archetypes:       archetypes,
		DefaultArchetype: cfg.Content.DefaultArchetype,
		Store:            store,
		Scripts:          scripts,
		Autosave:         cfg.Simulation.Autosave,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal("creating roster", zap.Error(err))
	}
	roster.Subscribe(observability.EventLogger(logger))

	if *preload {
		if err := preloadRoster(ctx, roster, store, logger); err != nil {
			logger.Fatal("preloading characters", zap.Error(err))
		}
	}

	for _, s := range spawns {
		name, arch, _ := strings.Cut(s, ":")
		if _, err := roster.Spawn(ctx, name, arch); err != nil {
			logger.Fatal("spawning character", zap.String("spawn", s), zap.Error(err))
		}
	}

	ticks := gameserver.NewTickManager(cfg.Simulation.TickInterval)
	ticks.Register("roster", func(elapsed time.Duration) {
		roster.Tick(ctx, elapsed)
	})

	lifecycle.Add("ticker", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			ticks.Run(ctx)
			return nil
		},
	})

	lifecycle.Add("autosave", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			if cfg.Simulation.SaveInterval > 0 {
				roster.RunAutosave(ctx, cfg.Simulation.SaveInterval)
				return nil
			}
			<-ctx.Done()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			if err := roster.SaveAll(ctx); err != nil {
				return fmt.Errorf("final save: %w", err)
			}
			logger.Info("roster flushed", zap.Int("characters", roster.Len()))
			return nil
		},
	})

	logger.Info("progression daemon ready",
		zap.Int("characters", roster.Len()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStore connects the configured backend and registers a lifecycle
// service that keeps it healthy and closes it on shutdown. The store service
// is added first so it stops last.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, lifecycle *server.Lifecycle) (gameserver.Store, error) {
	connStart := time.Now()
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(connStart)),
		)
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
							continue
						}
						st := pool.Stats()
						logger.Debug("database pool",
							zap.Int32("acquired", st.Acquired),
							zap.Int32("idle", st.Idle),
							zap.Int32("total", st.Total),
						)
					}
				}
			},
			StopFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		return postgres.NewCharacterRepository(pool.DB()), nil

	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("redis connected",
			zap.String("prefix", cfg.Redis.KeyPrefix),
			zap.Duration("elapsed", time.Since(connStart)),
		)
		lifecycle.Add("redis", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
			StopFn: func(context.Context) error {
				return client.Close()
			},
		})
		return redis.NewStore(client, cfg.Redis.KeyPrefix, nil), nil

	default:
		logger.Warn("using in-memory store; characters will not survive restart")
		return gameserver.NewMemoryStore(), nil
	}
}

// preloadRoster makes every persisted character live, fetching them in bulk
// when the store supports it. Characters whose archetype is no longer loaded
// are skipped with a warning. Stores that cannot enumerate are left alone.
func preloadRoster(ctx context.Context, roster *gameserver.Roster, store gameserver.Store, logger *zap.Logger) error {
	loadStart := time.Now()
	var (
		recs []character.Record
		err  error
	)
	switch st := store.(type) {
	case bulkLoader:
		recs, err = st.LoadAll(ctx)
	case idLister:
		recs, err = loadListed(ctx, st, store)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	loaded := 0
	for _, rec := range recs {
		if _, err := roster.Restore(rec); err != nil {
			if errors.Is(err, gameserver.ErrUnknownArchetype) {
				logger.Warn("skipping character", zap.String("character", rec.ID), zap.Error(err))
				continue
			}
			return err
		}
		loaded++
	}
	logger.Info("characters loaded",
		zap.Int("count", loaded),
		zap.Duration("elapsed", time.Since(loadStart)),
	)
	return nil
}

func loadListed(ctx context.Context, lister idLister, store gameserver.Store) ([]character.Record, error) {
	ids, err := lister.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]character.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
