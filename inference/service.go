package inference

import (
	"sync/atomic"
	"time"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/pipeline"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/validation"
)

// resources are published once by Start and never written again.
type resources struct {
	pipeline *pipeline.Pipeline
	schema   *validation.TabularSchema
	stats    *validation.Stats
}

// Service owns the startup state machine and the prediction path.
type Service struct {
	cfg    Config
	state  atomic.Int32
	res    atomic.Pointer[resources]
	logger log.Logger

	// onOutlier is called when a request fails the soft outlier check.
	onOutlier func()
}

// NewService returns an uninitialized service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, logger: log.GetLoggerWithName("inference")}
}

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// Healthy reports whether Start succeeded.
func (s *Service) Healthy() bool { return s.State() == StateHealthy }

// Start loads the artifact, the table schema and the statistics, in that order. The
// first failure leaves the service Failed. Start can run only once; a failed service
// must be restarted as a new process.
func (s *Service) Start() error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateStarting)) {
		return errors.NewValueError("Service.Start", "service was already started (state "+s.State().String()+")")
	}
	start := time.Now()
	s.logger.Debug("Running startup routine", log.ServiceStateKey, StateStarting.String())

	res, err := s.load()
	if err != nil {
		s.state.Store(int32(StateFailed))
		s.logger.Error("Startup failed", err,
			log.ServiceStateKey, StateFailed.String(),
			log.ErrorKindKey, errors.KindOf(err).String(),
		)
		return err
	}

	s.res.Store(res)
	s.state.Store(int32(StateHealthy))
	s.logger.Info("Application configured",
		log.ServiceStateKey, StateHealthy.String(),
		log.ModelNameKey, res.pipeline.Metadata.ModelType,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Service) load() (*resources, error) {
	s.logger.Debug("Collecting model artifact", log.ArtifactPathKey, s.cfg.ArtifactPath)
	p, err := pipeline.Load(s.cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Collecting table schema", "path", s.cfg.TableSchemaPath)
	schema, err := validation.LoadSchema(s.cfg.TableSchemaPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Collecting feature statistics", "path", s.cfg.FeatureStatsPath)
	stats, err := validation.LoadStats(s.cfg.FeatureStatsPath)
	if err != nil {
		return nil, err
	}
	if len(stats.Mean) != len(schema.NumericColumns) {
		return nil, errors.NewDimensionError("Service.Start", len(schema.NumericColumns), len(stats.Mean), 1)
	}
	return &resources{pipeline: p, schema: schema, stats: stats}, nil
}

// Predict validates a JSON array of row objects and returns one prediction per row.
// Structural mismatches and decoding failures are returned as data errors; outliers
// are only logged.
func (s *Service) Predict(payload []byte, logger log.Logger) ([]interface{}, error) {
	res := s.res.Load()
	if res == nil || !s.Healthy() {
		return nil, errors.NewValueError("Service.Predict", "service is not healthy (state "+s.State().String()+")")
	}
	if logger == nil {
		logger = s.logger
	}

	logger.Debug("Performs payload validation", "payload_bytes", len(payload))
	frame, err := dataset.FromJSON(payload)
	if err != nil {
		return nil, err
	}
	if frame.Rows() == 0 {
		return nil, errors.NewValueError("Service.Predict", "payload has no rows")
	}

	if _, err := validation.TableStructure(frame, res.schema, validation.WithRaise(), validation.WithLogger(logger)); err != nil {
		return nil, err
	}
	logger.Debug("Column structure matched")

	ok, err := validation.FrameOutliers(frame, res.schema, res.stats,
		validation.WithSigma(s.cfg.OutlierSigma), validation.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Warn("Found some outliers", log.SamplesKey, frame.Rows())
		if s.onOutlier != nil {
			s.onOutlier()
		}
	}

	preds, err := res.pipeline.PredictValues(frame)
	if err != nil {
		return nil, err
	}
	logger.Debug("Prediction done", log.PredsKey, len(preds))
	return preds, nil
}
