package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/macta/internal/analysis"
	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/simulation"
	"github.com/rendis/macta/internal/store"
)

// newApp builds the macta command tree.
func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "macta",
		Usage:                 "Document and simulate BPMN business processes",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "settings", Usage: "settings file", Value: settingsPath()},
			&cli.StringFlag{Name: "db-path", Usage: "database path (default: ~/.macta/macta.db)"},
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn, error"},
			&cli.StringFlag{Name: "log-format", Usage: "log format: text, json"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			importCommand(),
			documentCommand(),
			lintCommand(),
			diagramCommand(),
			simulateCommand(),
			eventsCommand(),
			vacuumCommand(),
		},
	}
}

// runtime is the wiring shared by commands that touch the store.
type runtime struct {
	cfg     Config
	logger  *slog.Logger
	store   *store.LibSQLStore
	service *analysis.Service
	pool    *simulation.Pool
}

// resolveConfig loads and validates the layered configuration.
func resolveConfig(cmd *cli.Command) (Config, error) {
	cfg, err := loadConfig(cmd.String("settings"))
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, cmd)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger logs to stderr so command output on stdout stays clean.
func newLogger(cfg Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// openRuntime opens the store, migrates it and builds the analysis service.
func openRuntime(ctx context.Context, cmd *cli.Command) (*runtime, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	pool := simulation.NewPool(cfg.PoolSize)
	svc, err := analysis.NewService(st, logger, analysis.WithPool(pool))
	if err != nil {
		pool.Close()
		st.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, store: st, service: svc, pool: pool}, nil
}

func (rt *runtime) Close() {
	rt.pool.Close()
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("failed to close store", slog.String("error", err.Error()))
	}
}

// offlineService builds a service over a throwaway store for commands that
// work on files only.
func offlineService(ctx context.Context, cmd *cli.Command) (*analysis.Service, func(), error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	dir, err := os.MkdirTemp("", "macta-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "scratch.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	pool := simulation.NewPool(cfg.PoolSize)
	cleanup := func() {
		pool.Close()
		st.Close()
		os.RemoveAll(dir)
	}
	if err := st.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	svc, err := analysis.NewService(st, newLogger(cfg), analysis.WithPool(pool))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// readInput reads a file argument, or stdin when the argument is "-".
func readInput(cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", fmt.Errorf("%s: file argument required", cmd.Name)
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.Root().Reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
