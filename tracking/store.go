// Package tracking keeps a registry of training runs in an embedded SQLite database
// so that runs of a sweep can be listed and compared after the fact.
package tracking

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/mltemplate/metrics"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// timeLayout is fixed width so that start times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Metric names accepted by Best.
var Metrics = []string{"accuracy", "recall", "precision", "f1", "roc_auc", "log_loss", "error_rate"}

// lowerIsBetter lists the metrics Best minimizes.
var lowerIsBetter = map[string]bool{"log_loss": true, "error_rate": true}

// scoreColumns were added after the first release; migrate adds them to older
// registries.
var scoreColumns = []string{"roc_auc", "log_loss", "error_rate"}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL,
	model_type    TEXT NOT NULL,
	params        TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	train_samples INTEGER NOT NULL,
	val_samples   INTEGER NOT NULL,
	accuracy      REAL NOT NULL,
	recall        REAL NOT NULL,
	precision     REAL NOT NULL,
	f1            REAL NOT NULL,
	roc_auc       REAL NOT NULL DEFAULT 0,
	log_loss      REAL NOT NULL DEFAULT 0,
	error_rate    REAL NOT NULL DEFAULT 0,
	artifact_path TEXT NOT NULL,
	config_path   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// Run is one recorded training run.
type Run struct {
	ID           string                    `json:"id"`
	StartedAt    time.Time                 `json:"started_at"`
	Duration     time.Duration             `json:"duration"`
	ModelType    string                    `json:"model_type"`
	Params       map[string]interface{}    `json:"params"`
	Dataset      string                    `json:"dataset"`
	TrainSamples int                       `json:"train_samples"`
	ValSamples   int                       `json:"val_samples"`
	Report       metrics.Report            `json:"metrics"`
	Scores       metrics.ProbabilityScores `json:"scores"`
	ArtifactPath string                    `json:"artifact_path"`
	ConfigPath   string                    `json:"config_path"`
}

// Store is a run registry backed by database/sql.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating when absent) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.NewMissingConfigError("tracking.dsn", "a database path is required")
	}
	logger := log.GetLoggerWithName("tracking")
	logger.Debug("Opening run registry", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapIO(err, "open run registry")
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.WrapIO(err, "migrate run registry")
	}
	for _, col := range scoreColumns {
		var n int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = ?", col).Scan(&n)
		if err != nil {
			return errors.WrapIO(err, "inspect run registry")
		}
		if n > 0 {
			continue
		}
		// col is one of the fixed names above
		if _, err := db.ExecContext(ctx, "ALTER TABLE runs ADD COLUMN "+col+" REAL NOT NULL DEFAULT 0"); err != nil {
			return errors.WrapIO(err, "migrate run registry")
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores r, assigning an id and start time when they are empty, and returns
// the stored run.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.StartedAt = r.StartedAt.UTC()
	params, err := json.Marshal(r.Params)
	if err != nil {
		return Run{}, errors.Wrap(err, "encode run params")
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, started_at, duration_ms, model_type, params, dataset, train_samples,
	val_samples, accuracy, recall, precision, f1, roc_auc, log_loss, error_rate,
	artifact_path, config_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.Format(timeLayout), r.Duration.Milliseconds(), r.ModelType, string(params),
		r.Dataset, r.TrainSamples, r.ValSamples,
		r.Report.Accuracy, r.Report.Recall, r.Report.Precision, r.Report.F1,
		r.Scores.ROCAUC, r.Scores.LogLoss, r.Scores.ErrorRate,
		r.ArtifactPath, r.ConfigPath,
	)
	if err != nil {
		return Run{}, errors.WrapIO(err, "insert run")
	}
	s.logger.Info("Run recorded",
		log.RunIDKey, r.ID,
		log.ModelNameKey, r.ModelType,
		log.AccuracyKey, r.Report.Accuracy,
		log.F1Key, r.Report.F1,
	)
	return r, nil
}

const selectRuns = `
SELECT id, started_at, duration_ms, model_type, params, dataset, train_samples, val_samples,
	accuracy, recall, precision, f1, roc_auc, log_loss, error_rate, artifact_path, config_path
FROM runs`

// List returns the most recent runs first. limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapIO(err, "list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO(err, "list runs")
	}
	return out, nil
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.NewNotFoundError("run", id)
	}
	return r, err
}

// Best returns the run with the best value of metric: the lowest for log_loss and
// error_rate, the highest otherwise. Ties go to the earliest run.
func (s *Store) Best(ctx context.Context, metric string) (Run, error) {
	valid := false
	for _, m := range Metrics {
		if m == metric {
			valid = true
		}
	}
	if !valid {
		return Run{}, errors.NewConfigError("metric", metric, Metrics)
	}
	order := " DESC"
	if lowerIsBetter[metric] {
		order = " ASC"
	}
	// metric is one of the fixed column names above
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+" ORDER BY "+metric+order+", started_at ASC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.NewNotFoundError("run", "best by "+metric)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		startedAt  string
		durationMs int64
		params     string
	)
	err := row.Scan(&r.ID, &startedAt, &durationMs, &r.ModelType, &params, &r.Dataset,
		&r.TrainSamples, &r.ValSamples,
		&r.Report.Accuracy, &r.Report.Recall, &r.Report.Precision, &r.Report.F1,
		&r.Scores.ROCAUC, &r.Scores.LogLoss, &r.Scores.ErrorRate,
		&r.ArtifactPath, &r.ConfigPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, errors.WrapIO(err, "scan run")
	}
	if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, errors.Wrap(err, "parse run start time")
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, errors.Wrap(err, "decode run params")
	}
	return r, nil
}
