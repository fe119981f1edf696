package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store keeps the run history of the forecaster: one training_log row per
// trained model and one forecasts row per predicted day.
type Store struct {
	db *sql.DB
}

// ForecastRecord is the outcome of one model run.
type ForecastRecord struct {
	ModelName  string
	ModelType  string
	Source     string
	DataPoints int
	// FirstDay is the day index of Predictions[0].
	FirstDay    int
	Predictions []int
	Formula     string
	PlotPath    string
	RunAt       time.Time
}

var errNotOpen = errors.New("database not initialized")

// Open creates or opens the sqlite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(100),
        model_type VARCHAR(20),
        source VARCHAR(20),
        data_points INTEGER,
        formula TEXT,
        plot_path TEXT,
        trained_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS forecasts (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(100),
        day INTEGER,
        predicted INTEGER,
        run_at DATETIME,
        UNIQUE(model_name, day, run_at)
    );
    CREATE INDEX IF NOT EXISTS idx_forecasts_model ON forecasts(model_name, run_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: database}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveForecast stores the training log row and every predicted day in one
// transaction.
func (s *Store) SaveForecast(ctx context.Context, rec ForecastRecord) error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	if rec.ModelName == "" {
		return errors.New("model name required")
	}
	if rec.RunAt.IsZero() {
		rec.RunAt = time.Now()
	}
	runAt := rec.RunAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO training_log (model_name, model_type, source, data_points, formula, plot_path, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ModelName, rec.ModelType, rec.Source, rec.DataPoints, rec.Formula, rec.PlotPath, runAt)
	if err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO forecasts (model_name, day, predicted, run_at)
        VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, predicted := range rec.Predictions {
		if _, err := stmt.ExecContext(ctx, rec.ModelName, rec.FirstDay+i, predicted, runAt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LatestForecast returns the most recent run stored for a model, or
// sql.ErrNoRows when there is none.
func (s *Store) LatestForecast(ctx context.Context, modelName string) (*ForecastRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}

	rec := ForecastRecord{ModelName: modelName}
	var formula, plotPath sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT model_type, source, data_points, formula, plot_path, trained_at
        FROM training_log
        WHERE model_name = ?
        ORDER BY trained_at DESC, id DESC
        LIMIT 1`, modelName).Scan(&rec.ModelType, &rec.Source, &rec.DataPoints, &formula, &plotPath, &rec.RunAt)
	if err != nil {
		return nil, err
	}
	rec.Formula = formula.String
	rec.PlotPath = plotPath.String

	rows, err := s.db.QueryContext(ctx, `
        SELECT day, predicted
        FROM forecasts
        WHERE model_name = ? AND run_at = ?
        ORDER BY day ASC`, modelName, rec.RunAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	first := true
	for rows.Next() {
		var day, predicted int
		if err := rows.Scan(&day, &predicted); err != nil {
			return nil, err
		}
		if first {
			rec.FirstDay = day
			first = false
		}
		rec.Predictions = append(rec.Predictions, predicted)
	}
	return &rec, rows.Err()
}

// TrainingLog is one row of the training_log table.
type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	ModelType  string    `json:"model_type"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

// LoadTrainingLog lists every training run, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, model_type, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.ModelType, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
