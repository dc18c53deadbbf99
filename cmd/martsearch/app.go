package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/app"
	"github.com/kailas-cloud/martsearch/internal/config"
	logpkg "github.com/kailas-cloud/martsearch/internal/logger"
	"github.com/kailas-cloud/martsearch/internal/metrics"
	"github.com/kailas-cloud/martsearch/internal/version"
)

// instance is the wired application plus the logger every subcommand reports through.
type instance struct {
	*app.App
	logger *zap.Logger
}

// bootstrap loads configuration from --config or config/<env>.yaml and wires the app.
func bootstrap(ctx context.Context, c *cli.Command) (*instance, error) {
	env := c.String("env")

	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting martsearch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("index_url", cfg.Index.URL),
	)

	metrics.Register()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &instance{App: a, logger: logger}, nil
}

// Close releases the app and flushes the logger.
func (a *instance) Close() {
	a.App.Close()
	_ = a.logger.Sync()
}
