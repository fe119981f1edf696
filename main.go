package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"covidforecast/config"
	"covidforecast/datasource"
	"covidforecast/db"
	"covidforecast/forecast"
	"covidforecast/logger"
)

const trainingSetCacheSize = 32

func main() {
	// Until the config names a level and file, log to stderr at info.
	if err := logger.Init(logger.Options{}); err != nil {
		os.Exit(1)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.L().Errorw("forecast failed", "error", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:           "covidforecast",
		Short:         "Train the configured models on COVID-19 data and print their forecasts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loader, err := datasource.NewLoader(trainingSetCacheSize)
			if err != nil {
				return err
			}
			if watch {
				return watchConfig(ctx, configPath, loader)
			}
			return runOnce(ctx, configPath, loader)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the JSON or YAML config file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run every time the config file is written")
	return cmd
}

// runOnce loads the config and runs every enabled model.
func runOnce(ctx context.Context, path string, loader *datasource.Loader) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Options()); err != nil {
		return err
	}

	opts := []forecast.Option{forecast.WithLoader(loader)}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, forecast.WithRecorder(store))
		logger.L().Infow("run history enabled", "path", cfg.Database.Path)
	}

	runner, err := forecast.NewRunner(cfg, opts...)
	if err != nil {
		return err
	}
	return runner.Run(ctx, cfg)
}

// watchConfig runs once, then again on every write to the config file until
// ctx is cancelled. Failed runs are logged and the watch continues.
func watchConfig(ctx context.Context, path string, loader *datasource.Loader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file on save, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	if err := runOnce(ctx, path, loader); err != nil {
		logger.L().Errorw("forecast run failed", "error", err)
	}
	logger.L().Infow("watching config", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.L().Infow("config changed, re-running", "path", path, "op", event.Op.String())
			if err := runOnce(ctx, path, loader); err != nil {
				logger.L().Errorw("forecast run failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.L().Warnw("config watcher error", "error", err)
		}
	}
}
