package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/journal"
	"github.com/conneroisu/quire/internal/pipeline"
	"github.com/conneroisu/quire/internal/reload"
	"github.com/conneroisu/quire/internal/server"
	"github.com/conneroisu/quire/internal/watcher"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the site with live reload",
	Long: `Build the content directory, serve it over HTTP and rebuild whenever
files change. Browsers with a page open reload automatically.

Examples:
  quire serve                       # serve ./content on localhost:8080
  quire serve --content ~/blog -p 3000
  quire serve --drafts              # include draft posts`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addFlags(serveCmd, contentFlags, serverFlags)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(viper.GetViper(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Watch.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := reload.Options{
		RescanInterval:         cfg.Watch.RescanInterval,
		DegradedRescanInterval: cfg.Watch.DegradedRescanInterval,
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		opts.Journal = j
	}

	var fw *watcher.FileWatcher
	if cfg.Watch.Enabled {
		fw, err = watcher.NewFileWatcher(cfg.Content.Path, cfg.Watch.Debounce, cfg.Content.Ignore, logger)
		if err != nil {
			return err
		}
		fw.AddFilter(watcher.ExtensionFilter(cfg.Content.Extensions...))
		opts.Watch = fw
	}

	fs := afero.NewOsFs()
	coord := reload.NewCoordinator(pipeline.New(fs, pipelineOptions(cfg), logger), opts, logger)

	if fw != nil {
		fw.AddHandler(coord.OnChange)
		// Watch before the first build so edits made during it are not lost.
		if err := fw.Start(ctx); err != nil {
			return err
		}
		defer fw.Stop()
	}

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	srv, err := server.New(cfg, coord, fs, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", cfg.Content.Path, cfg.Server.BaseURL)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	<-coord.Done()

	return nil
}
