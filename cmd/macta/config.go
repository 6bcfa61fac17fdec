package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

// Config holds all macta configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr" validate:"required"`
	DBPath     string `json:"db_path" validate:"required"`
	LogLevel   string `json:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat  string `json:"log_format" validate:"oneof=text json"`
	PoolSize   int    `json:"pool_size" validate:"min=1,max=256"`
	Scheduler  bool   `json:"scheduler"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(mactaDir(), "macta.db"),
		LogLevel:   "info",
		LogFormat:  "text",
		PoolSize:   4,
		Scheduler:  true,
	}
}

func mactaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".macta"
	}
	return filepath.Join(home, ".macta")
}

func settingsPath() string {
	return filepath.Join(mactaDir(), "settings.json")
}

// loadConfig layers defaults, the settings file and MACTA_* env vars.
// A missing settings file is not an error; a malformed one is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("MACTA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MACTA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MACTA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MACTA_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("MACTA_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MACTA_POOL_SIZE: %w", err)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv("MACTA_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}
	return cfg, nil
}

// applyFlags applies explicitly set global flags on top of cfg.
func applyFlags(cfg *Config, cmd *cli.Command) {
	if cmd.IsSet("db-path") {
		cfg.DBPath = cmd.String("db-path")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("listen-addr") {
		cfg.ListenAddr = cmd.String("listen-addr")
	}
	if cmd.IsSet("pool-size") {
		cfg.PoolSize = int(cmd.Int("pool-size"))
	}
	if cmd.IsSet("no-scheduler") && cmd.Bool("no-scheduler") {
		cfg.Scheduler = false
	}
}

// validateConfig reports every invalid field.
func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Errorf("config %s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
		return errors.Join(msgs...)
	}
	return nil
}
