package cli

import (
	"fmt"

	"github.com/fajrul/kontext/internal/config"
	"github.com/fajrul/kontext/internal/logger"
	"github.com/fajrul/kontext/pkg/engine"
)

// buildEngine loads configuration, applies flag overrides, and constructs a
// fully wired engine. Callers own the returned Close.
func buildEngine(workspace string) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if workspace != "" {
		cfg.WorkspacePath = workspace
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Config: cfg,
		Logger: lg.GetZerolog(),
	})
	if err != nil {
		lg.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		eng.Close()
		lg.Close()
	}
	return eng, cfg, cleanup, nil
}
