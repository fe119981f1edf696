package forecast

import (
	"context"
	"fmt"

	"covidforecast/config"
	"covidforecast/logger"
)

// Run executes every enabled model entry in order. Each entry is validated
// just before it runs; the first invalid or failing entry aborts the
// remaining ones.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) error {
	var ran, skipped int
	for i, mc := range cfg.Models {
		if !mc.IsEnabled() {
			logger.L().Infow("model disabled, skipping", "index", i, "model", mc.ModelName)
			skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cfg.ValidateModel(i); err != nil {
			return err
		}
		if err := r.RunModel(ctx, mc); err != nil {
			return fmt.Errorf("model %q: %w", mc.ModelName, err)
		}
		ran++
	}
	logger.L().Infow("forecast run finished", "models", ran, "skipped", skipped)
	return nil
}
