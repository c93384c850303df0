// Package main is the entry point for the reference-find CLI application.
// reference-find resolves the reference build of a CI build from the build
// graph and the Git history, outputting only the reference build id for
// consumption by external systems.
package main

import (
	"context"
	"os"
	"time"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/reference-find/cmd"
	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/git"
	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/graph"
	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/httpapi"
	logadapter "github.com/MyCarrier-DevOps/reference-find/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/output"
	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/store"
	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
	"github.com/MyCarrier-DevOps/reference-find/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/reference-find/internal/usecases"
)

const connectTimeout = 15 * time.Second

func main() {
	// Create a single shared logger instance for the application
	zapLog := logger.NewZapLoggerFromConfig()
	adapter := logadapter.NewZapAdapter(zapLog).WithFields(map[string]any{
		"component": "reference-find",
	})

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return toAppConfig(cfg), nil
		},

		GraphLoaderFactory: func(cfg *cmd.AppConfig, _ cmd.Logger) (domain.GraphLoader, error) {
			if cfg.GraphFile != "" {
				return graph.NewFileLoader(cfg.GraphFile), nil
			}

			conn, err := openClickHouse(cfg.Database)
			if err != nil {
				return nil, err
			}
			return store.NewClickHouseGraphLoader(conn, cfg.Database, store.RetryOptions{
				Attempts: cfg.RetryAttempts,
				Delay:    cfg.RetryDelay,
				MaxDelay: cfg.RetryMaxDelay,
			}, adapter).WithCacheTTL(cfg.GraphTTL), nil
		},

		MatcherFactory: func(path string, depth int, _ cmd.Logger) (cmd.CommitMatcher, error) {
			matcher, err := git.NewGoGitCommitMatcher(path, depth, adapter)
			if err != nil {
				return nil, err
			}
			return matcher, nil
		},

		StoreFactory: func(cfg *cmd.AppConfig, _ cmd.Logger) (domain.ReferenceStore, error) {
			switch cfg.Store {
			case config.StoreClickHouse:
				conn, err := openClickHouse(cfg.Database)
				if err != nil {
					return nil, err
				}
				refStore := store.NewClickHouseReferenceStore(conn, cfg.Database)
				ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
				defer cancel()
				if err := refStore.Migrate(ctx); err != nil {
					_ = refStore.Close()
					return nil, err
				}
				return refStore, nil
			case config.StoreRedis:
				ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
				defer cancel()
				refStore, err := store.NewRedisReferenceStore(ctx, cfg.RedisURL, cfg.ReferenceTTL)
				if err != nil {
					return nil, err
				}
				return refStore, nil
			default:
				return nil, nil
			}
		},

		ServiceFactory: func(
			loader domain.GraphLoader,
			matcher domain.CommitMatcher,
			refStore domain.ReferenceStore,
			_ cmd.Logger,
		) cmd.ReferenceService {
			opts := []usecases.ServiceOption{
				usecases.WithTrailMirror(logadapter.NewTrailMirror(adapter)),
			}
			if refStore != nil {
				opts = append(opts, usecases.WithReferenceStore(refStore))
			}
			return usecases.NewReferenceService(loader, matcher, adapter, opts...)
		},

		ServerFactory: func(svc cmd.ReferenceService, cfg domain.Configuration, _ cmd.Logger) cmd.Server {
			return httpapi.NewServer(svc, cfg, adapter)
		},

		OutputWriterFactory: func(asJSON bool) domain.OutputWriter {
			if asJSON {
				return output.NewWriter().JSON()
			}
			return output.NewWriter()
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}

func toAppConfig(cfg *config.Config) *cmd.AppConfig {
	return &cmd.AppConfig{
		Reference:     cfg.Reference,
		Database:      cfg.Database,
		Store:         cfg.Store,
		GraphFile:     cfg.GraphFile,
		RepoPath:      cfg.RepoPath,
		Depth:         cfg.Depth,
		ListenAddr:    cfg.ListenAddr,
		RedisURL:      cfg.RedisURL,
		ReferenceTTL:  cfg.ReferenceTTL,
		GraphTTL:      cfg.GraphTTL,
		RetryAttempts: cfg.Retry.Attempts,
		RetryDelay:    cfg.Retry.Delay,
		RetryMaxDelay: cfg.Retry.MaxDelay,
		LogLevel:      cfg.LogLevel,
		LogAppName:    cfg.LogAppName,
	}
}

// openClickHouse loads the ClickHouse settings from the environment and opens a
// session. database takes precedence over the configured database when set.
func openClickHouse(database string) (store.Conn, error) {
	chConfig, err := config.LoadClickHouse()
	if err != nil {
		return nil, err
	}
	if database != "" {
		chConfig.ChDatabase = database
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return store.OpenClickHouse(ctx, chConfig)
}
