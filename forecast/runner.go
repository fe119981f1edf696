// Package forecast grabs training sets, trains the configured models and
// reports their forecasts.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"covidforecast/config"
	"covidforecast/datasource"
	"covidforecast/db"
	"covidforecast/logger"
	"covidforecast/ml"
)

// ErrMissingDatasetDate is returned when offline data is requested without
// naming the dataset date to read.
var ErrMissingDatasetDate = errors.New("invalid offline dataset date received, update the 'offline_dataset_date' configuration in the config file and try again")

const trainingSetCacheSize = 16

// Recorder stores the outcome of a model run.
type Recorder interface {
	SaveForecast(ctx context.Context, rec db.ForecastRecord) error
}

// Report is what PrintStats produced for one model.
type Report struct {
	FirstDay int
	Forecast []int
	InSample []int
	Formula  string
	PlotPath string
}

// Runner executes model entries against a datasets directory.
type Runner struct {
	registry    *datasource.Registry
	loader      *datasource.Loader
	datasetsDir string
	plotter     Plotter
	recorder    Recorder
	out         io.Writer
	now         func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithOutput redirects the forecast text, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithPlotter replaces the PNG plotter.
func WithPlotter(p Plotter) Option {
	return func(r *Runner) { r.plotter = p }
}

// WithRecorder stores every run through rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithRegistry replaces the grabbers built from the config sources.
func WithRegistry(reg *datasource.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithLoader shares a training-set cache between runners.
func WithLoader(l *datasource.Loader) Option {
	return func(r *Runner) { r.loader = l }
}

// NewRunner builds a runner from the directories and sources in cfg.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	overrides, err := cfg.GrabberOptions()
	if err != nil {
		return nil, err
	}
	loader, err := datasource.NewLoader(trainingSetCacheSize)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		registry:    datasource.NewDefaultRegistry(datasource.Options{Dir: cfg.DatasetsDir}, overrides),
		loader:      loader,
		datasetsDir: cfg.DatasetsDir,
		plotter:     NewPNGPlotter(cfg.PlotsDir, cfg.PlotWindow()),
		out:         os.Stdout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GrabTrainingSet resolves the grabber for source and reads its dataset.
// Online, the data is fetched first and the latest file is read; offline,
// the file of offlineDate is read and an empty date is an error.
func (r *Runner) GrabTrainingSet(ctx context.Context, source datasource.Source, grabFromServer bool, offlineDate string) (*datasource.TrainingSet, error) {
	grabber, err := r.registry.Grabber(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	datasetDate := ""
	if grabFromServer {
		if err := grabber.GrabData(ctx); err != nil {
			return nil, fmt.Errorf("grab %s data: %w", grabber.Name(), err)
		}
	} else {
		if offlineDate == "" {
			return nil, ErrMissingDatasetDate
		}
		datasetDate = offlineDate
	}

	path := filepath.Join(r.datasetsDir, grabber.DatasetFileName(datasetDate))
	return r.loader.Load(path)
}

// PrintForecast predicts limit consecutive days starting at beginningDay
// and writes them numbered from 1.
func PrintForecast(w io.Writer, name string, model ml.Model, beginningDay, limit int) ([]int, error) {
	days := make([]float64, limit)
	for i := range days {
		days[i] = float64(beginningDay + i)
	}
	predictions, err := model.Predict(days)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", name, err)
	}

	fmt.Fprintf(w, "The forecast for %s in the following %d days is:\n", name, limit)
	for i, p := range predictions {
		fmt.Fprintf(w, "Day %d: %d\n", i+1, p)
	}
	return predictions, nil
}

// PrintStats writes the forecast following the training set, the fitted
// function when the model can describe itself, and plots the fit.
func (r *Runner) PrintStats(name string, ts *datasource.TrainingSet, model ml.Model, daysToPredict int) (*Report, error) {
	inSample, err := model.Predict(ts.Days)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", name, err)
	}

	report := &Report{FirstDay: ts.Len(), InSample: inSample}
	report.Forecast, err = PrintForecast(r.out, name, model, ts.Len(), daysToPredict)
	if err != nil {
		return nil, err
	}

	if d, ok := model.(ml.Describer); ok {
		formula, err := d.Describe()
		if err != nil {
			return nil, err
		}
		report.Formula = formula
		fmt.Fprintf(r.out, "The %s model function is: f(X) = %s\n", name, formula)
	}

	if r.plotter != nil {
		report.PlotPath, err = r.plotter.Plot(name, ts.Days, ts.Counts, inSample)
		if err != nil {
			return nil, fmt.Errorf("plot %s: %w", name, err)
		}
	}
	fmt.Fprintln(r.out)
	return report, nil
}

// RunModel grabs the training set of one entry, trains its model and
// reports it.
func (r *Runner) RunModel(ctx context.Context, mc config.ModelConfig) error {
	source, err := mc.Source()
	if err != nil {
		return err
	}

	ts, err := r.GrabTrainingSet(ctx, source, mc.GrabDataFromServer, mc.OfflineDatasetDate)
	if err != nil {
		return err
	}
	logger.L().Debugw("training set loaded", "model", mc.ModelName, "source", source.String(), "rows", ts.Len())

	started := r.now()
	model, err := ml.GetModel(mc.ModelName, ts.Days, ts.Counts, mc.Model)
	if err != nil {
		return err
	}
	logger.L().Infow("model trained",
		"model", mc.ModelName,
		"type", string(mc.Model.Type),
		"rows", ts.Len(),
		"elapsed", r.now().Sub(started).String(),
	)

	report, err := r.PrintStats(mc.ModelName, ts, model, mc.DaysToPredict)
	if err != nil {
		return err
	}

	if r.recorder == nil {
		return nil
	}
	rec := db.ForecastRecord{
		ModelName:   mc.ModelName,
		ModelType:   string(mc.Model.Type),
		Source:      source.String(),
		DataPoints:  ts.Len(),
		FirstDay:    report.FirstDay,
		Predictions: report.Forecast,
		Formula:     report.Formula,
		PlotPath:    report.PlotPath,
		RunAt:       r.now(),
	}
	if err := r.recorder.SaveForecast(ctx, rec); err != nil {
		return fmt.Errorf("record %s: %w", mc.ModelName, err)
	}
	return nil
}
