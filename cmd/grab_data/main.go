package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"covidforecast/config"
	"covidforecast/datasource"
	"covidforecast/logger"
)

func main() {
	if err := logger.Init(logger.Options{}); err != nil {
		os.Exit(1)
	}
	if err := newGrabCmd().ExecuteContext(context.Background()); err != nil {
		logger.L().Errorw("grab failed", "error", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func newGrabCmd() *cobra.Command {
	var (
		configPath string
		sources    []string
	)

	cmd := &cobra.Command{
		Use:           "grab_data",
		Short:         "Download the COVID-19 datasets without training any model",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return grab(ctx, cmd.OutOrStdout(), configPath, sources)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional config file for datasets_dir and source overrides")
	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "sources to grab (cases, deaths); all when empty")
	return cmd
}

// grab fetches the selected sources, or every registered one.
func grab(ctx context.Context, out io.Writer, configPath string, names []string) error {
	cfg := &config.Config{DatasetsDir: datasource.DefaultDir}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Init(loaded.Log.Options()); err != nil {
			return err
		}
		cfg = loaded
	}

	overrides, err := cfg.GrabberOptions()
	if err != nil {
		return err
	}
	registry := datasource.NewDefaultRegistry(datasource.Options{Dir: cfg.DatasetsDir}, overrides)

	selected := registry.Sources()
	if len(names) > 0 {
		selected = selected[:0]
		for _, name := range names {
			source, err := datasource.ParseSource(name)
			if err != nil {
				return err
			}
			selected = append(selected, source)
		}
	}

	for _, source := range selected {
		grabber, err := registry.Grabber(source)
		if err != nil {
			return err
		}
		if err := grabber.GrabData(ctx); err != nil {
			return fmt.Errorf("grab %s: %w", grabber.Name(), err)
		}
		fmt.Fprintf(out, "%s saved to %s\n", source, filepath.Join(cfg.DatasetsDir, grabber.DatasetFileName("")))
	}
	return nil
}
