package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/rulematch/internal/core/api"
	"github.com/solatis/rulematch/internal/core/db"
	"github.com/solatis/rulematch/internal/core/rulefile"
	"github.com/solatis/rulematch/internal/core/server"
	"github.com/solatis/rulematch/internal/core/store"
	"github.com/solatis/rulematch/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC match API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("rules-file", "", "YAML rule file to sync into the store and watch")
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
	_ = v.BindPFlag("match_api.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("match_api.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("match_api.rules_file", serveCmd.Flags().Lookup("rules-file"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	migrate, _ := cmd.Flags().GetBool("migrate")
	if migrate {
		if err := db.MigrateUp(ctx, database, logger); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	} else if err := requireMigrated(ctx, database); err != nil {
		return err
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	ruleStore, err := store.NewRuleStore(queries, logger)
	if err != nil {
		return fmt.Errorf("failed to create rule store: %w", err)
	}

	if cfg.RulesFile != "" {
		stopWatch, err := syncRuleFile(ctx, cfg.RulesFile, ruleStore)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	engine := rules.NewEngine(
		rules.WithWorkers(cfg.Workers),
		rules.WithQueueDepth(cfg.QueueDepth),
		rules.WithLogger(logger),
	)

	service, err := api.NewMatchAPIService(ruleStore, engine, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting rulematch match API",
		"version", Version,
		"addr", cfg.Address(),
		"database", cfg.RedactedDatabaseURL(),
		"workers", cfg.Workers,
	)

	errChan := make(chan error, 2)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	var metricsServer *server.MetricsServer
	if cfg.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddr, logger)
		go func() {
			errChan <- metricsServer.Start()
		}()
	}

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'rulematch migrate' first or pass --migrate", s.ID)
		}
	}
	return nil
}

// syncRuleFile upserts every rule in path into the store, then keeps the
// store in step with edits to the file. Rules removed from the file are
// left in the store.
func syncRuleFile(ctx context.Context, path string, ruleStore *store.RuleStore) (func(), error) {
	loader, err := rulefile.NewLoader(path, logger)
	if err != nil {
		return nil, err
	}

	upsert := func(loaded []*rules.ValidatedRule) {
		for _, vr := range loaded {
			if _, err := ruleStore.Upsert(ctx, vr.Rule()); err != nil {
				logger.Error("rule sync failed", "path", path, "rule_id", vr.ID, "error", err)
			}
		}
		logger.Info("rules synced", "path", path, "rules", len(loaded))
	}
	upsert(loader.Rules())
	loader.OnChange(upsert)

	stop, err := loader.Watch()
	if err != nil {
		return nil, err
	}
	return stop, nil
}
