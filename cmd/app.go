package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/config"
	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/markdown"
	"github.com/conneroisu/quire/internal/pipeline"
)

// loadConfig reads the configuration and builds the logger it describes.
func loadConfig(v *viper.Viper, logOutput io.Writer) (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg, logOutput)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

// newLogger builds the console logger and, when log.file is set, tees
// every record into that file as JSON. The file stays open until exit.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	console := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	})
	if cfg.Log.File == "" {
		return console, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	return logging.NewMultiLogger(console, logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: "json",
		Output: f,
	})), nil
}

// pipelineOptions maps configuration onto one ingestion run.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Root: content.ContentRoot{
			Path:   cfg.Content.Path,
			Ignore: cfg.Content.Ignore,
		},
		Extensions:    cfg.Content.Extensions,
		IncludeDrafts: cfg.Content.Drafts,
		Render:        markdown.Options{HighlightStyle: cfg.Render.HighlightStyle},
		Feed: index.FeedOptions{
			BaseURL:  cfg.Server.BaseURL,
			MaxItems: cfg.Feed.MaxItems,
		},
		Search:  cfg.Search.Enabled,
		Workers: cfg.Content.Workers,
	}
}
