package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ashita-ai/beacon"
	"github.com/ashita-ai/beacon/internal/config"
	"github.com/ashita-ai/beacon/internal/engine"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/storage"
	"github.com/ashita-ai/beacon/migrations"
)

// Exit codes.
const (
	exitNotFound = 2
	exitFailure  = 1
)

func serveCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API and MCP server",
		Action: serveAction(logger),
	}
}

func serveAction(logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		app, err := beacon.New(beacon.WithLogger(logger), beacon.WithVersion(version))
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		if err := app.Run(ctx); err != nil {
			return cli.Exit(fmt.Sprintf("server: %v", err), exitFailure)
		}
		return nil
	}
}

func migrateCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply store migrations and exit",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.DriverSQLite {
				// OpenStore migrates SQLite on open.
				store, err := beacon.OpenStore(c.Context, cfg, logger)
				if err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
				_ = store.Close()
				logger.Info("migrations applied", "store", cfg.StoreDriver)
				return nil
			}
			store, err := storage.New(cfg.DatabaseURL, cfg.DBMaxConns, logger)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			defer func() { _ = store.Close() }()
			if err := store.RunMigrations(c.Context, migrations.Postgres()); err != nil {
				return cli.Exit(fmt.Sprintf("migrations: %v", err), exitFailure)
			}
			logger.Info("migrations applied", "store", cfg.StoreDriver)
			return nil
		},
	}
}

func contractCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "contract",
		Usage: "Validate the execution engine contract once and print the result",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v := contract.New(engine.New(cfg.EngineURL, cfg.EngineTimeout), cfg.ContractTimeout, logger)
			return printJSON(c, v.Validate(c.Context))
		},
	}
}

func latestRunCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "latest-run",
		Usage: "Print a campaign's reconciled latest run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "campaign",
				Usage:    "campaign id",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := beacon.OpenStore(c.Context, cfg, logger)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			defer func() { _ = store.Close() }()

			campaignID := c.String("campaign")
			latest, err := runs.New(store, store, store, logger).LatestRun(c.Context, campaignID)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			if latest.Kind == runs.KindCampaignNotFound {
				return cli.Exit("campaign not found: "+campaignID, exitNotFound)
			}
			return printJSON(c, overview.LatestRunResponse(latest))
		},
	}
}

func loadConfig() (config.Config, error) {
	// .env is optional; production won't have one.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, cli.Exit(err.Error(), exitFailure)
	}
	return cfg, nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
