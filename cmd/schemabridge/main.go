// Command schemabridge serves the connection and mapping admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/schemabridge/internal/config"
	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/database/engines"
	"github.com/koustreak/schemabridge/internal/filestore/minio"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/mapping"
	"github.com/koustreak/schemabridge/internal/metrics"
	"github.com/koustreak/schemabridge/internal/server"
	"github.com/koustreak/schemabridge/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (optional)")
	envFile := flag.String("env", ".env", "dotenv file loaded before env overrides")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalf("schemabridge: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := connection.Open(ctx, cfg.Store.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry := engines.NewRegistry(engines.Config{
		Options: cfg.DatabaseOptions(),
		Oracle:  cfg.Oracle,
		Log:     log,
	})

	resolver := mapping.NewResolver(store,
		mapping.WithTTL(cfg.Mapping.CacheTTL),
		mapping.WithResolverLogger(log),
		mapping.WithResolverMetrics(m),
	)

	editorOpts := []mapping.EditorOption{mapping.WithEditorLogger(log), mapping.WithEditorMetrics(m)}
	var snapshots server.SnapshotReader
	if cfg.Snapshots.Enabled {
		driver, err := minio.New(ctx, &cfg.Snapshots.Store)
		if err != nil {
			return fmt.Errorf("snapshot store: %w", err)
		}
		defer driver.Close()

		archive := snapshot.New(driver, cfg.Snapshots.Store.Bucket, log)
		if err := archive.Init(ctx); err != nil {
			return fmt.Errorf("snapshot bucket: %w", err)
		}
		editorOpts = append(editorOpts, mapping.WithArchiver(archive))
		snapshots = archive
	}

	editor := mapping.NewEditor(store, resolver, editorOpts...)
	prober := mapping.NewProber(store, registry,
		mapping.WithParallelism(cfg.Probe.Parallelism),
		mapping.WithProberLogger(log),
		mapping.WithProberMetrics(m),
	)

	srv := server.New(server.Deps{
		Connections: store,
		Resolver:    resolver,
		Editor:      editor,
		Prober:      prober,
		Snapshots:   snapshots,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		Log:         log,
	})
	return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout)
}
