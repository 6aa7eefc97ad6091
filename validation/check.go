package validation

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// DefaultSigma is the half-width of the accepted band in standard deviations.
const DefaultSigma = 3.0

type options struct {
	raise  bool
	sigma  float64
	logger log.Logger
}

// Option configures a check.
type Option func(*options)

// WithRaise makes a failing check return an error instead of false.
func WithRaise() Option {
	return func(o *options) { o.raise = true }
}

// WithSigma sets k in mean ± k·std. Non-positive values are rejected by the check.
func WithSigma(k float64) Option {
	return func(o *options) { o.sigma = k }
}

// WithLogger routes check diagnostics to l, typically a request-scoped logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(check string, opts []Option) *options {
	o := &options{sigma: DefaultSigma}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("validation")
	}
	o.logger = o.logger.With(log.ValidationCheckKey, check)
	return o
}

// TableStructure checks that the frame's columns equal the schema's column list, and
// that its numeric and categorical columns equal the schema's partitions, each compared
// as an ordered list. A mismatch returns false, or a StructureMismatchError under
// WithRaise.
func TableStructure(frame *dataset.Frame, schema *TabularSchema, opts ...Option) (bool, error) {
	o := newOptions("table_structure", opts)
	o.logger.Debug("Checking incoming table structure")

	checks := []struct {
		partition string
		expected  []string
		found     []string
	}{
		{"columns", schema.Columns, frame.Names()},
		{"numeric", schema.NumericColumns, frame.NamesOf(dataset.Numeric)},
		{"categorical", schema.CategoricalColumns, frame.NamesOf(dataset.Categorical)},
	}

	for _, c := range checks {
		if slices.Equal(nonNil(c.expected), nonNil(c.found)) {
			continue
		}
		o.logger.Warn("Column structure mismatch",
			"partition", c.partition,
			"expected", c.expected,
			"found", c.found,
		)
		if !o.raise {
			return false, nil
		}
		return false, errors.NewStructureMismatchError(c.partition, c.expected, c.found)
	}
	return true, nil
}

// Outliers flags every value of X outside mean ± k·std of its column. NaN cells are
// skipped. X must have one column per statistic. A violation returns false, or an
// OutlierError listing every flagged position under WithRaise.
func Outliers(X mat.Matrix, stats *Stats, opts ...Option) (bool, error) {
	o := newOptions("outliers", opts)
	o.logger.Debug("Checking the data for outliers")

	if o.sigma <= 0 || math.IsNaN(o.sigma) {
		return false, errors.NewConfigError("outlier_sigma", o.sigma, []string{"> 0"})
	}
	rows, cols := X.Dims()
	if cols != len(stats.Mean) || cols != len(stats.Std) {
		return false, errors.NewDimensionError("Outliers", len(stats.Mean), cols, 1)
	}

	var positions []errors.OutlierPosition
	for j := 0; j < cols; j++ {
		lo := stats.Mean[j] - o.sigma*stats.Std[j]
		hi := stats.Mean[j] + o.sigma*stats.Std[j]
		for i := 0; i < rows; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			if v < lo || v > hi {
				positions = append(positions, errors.OutlierPosition{Row: i, Feature: j, Value: v})
			}
		}
	}

	if len(positions) == 0 {
		o.logger.Debug("Sigma test passed")
		return true, nil
	}

	outlierRows := make([]int, 0, len(positions))
	for _, p := range positions {
		outlierRows = append(outlierRows, p.Row)
	}
	o.logger.Warn("Detected outliers", "rows", outlierRows, "sigma", o.sigma)
	if !o.raise {
		return false, nil
	}
	return false, errors.NewOutlierError(o.sigma, positions)
}

// FrameOutliers runs Outliers over the schema's numeric columns of frame.
func FrameOutliers(frame *dataset.Frame, schema *TabularSchema, stats *Stats, opts ...Option) (bool, error) {
	X, err := frame.Numeric(schema.NumericColumns)
	if err != nil {
		return false, err
	}
	if r, _ := X.Dims(); r == 0 {
		return true, nil
	}
	return Outliers(X, stats, opts...)
}
