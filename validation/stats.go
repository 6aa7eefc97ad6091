package validation

import (
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Stats holds the per-feature mean and standard deviation of the numeric training
// columns, in schema order.
type Stats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Validate checks that Mean and Std have matching lengths and finite values.
func (s Stats) Validate() error {
	if len(s.Mean) != len(s.Std) {
		return errors.NewDimensionError("Stats", len(s.Mean), len(s.Std), 1)
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Std[i]) || math.IsInf(s.Std[i], 0) || s.Std[i] < 0 {
			return errors.NewValueError("Stats", "statistics must be finite with non-negative std")
		}
	}
	return nil
}

// ComputeStats returns the mean and population standard deviation of every column,
// ignoring NaN cells. A column with no values gets mean 0 and std 0.
func ComputeStats(columns [][]float64) Stats {
	s := Stats{Mean: make([]float64, len(columns)), Std: make([]float64, len(columns))}
	buf := make([]float64, 0)
	for j, col := range columns {
		buf = buf[:0]
		for _, v := range col {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			continue
		}
		mean, variance := stat.PopMeanVariance(buf, nil)
		s.Mean[j] = mean
		s.Std[j] = math.Sqrt(variance)
	}
	return s
}

// ReadStats decodes and validates a statistics document.
func ReadStats(r io.Reader) (*Stats, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapIO(err, "read statistics")
	}
	if err := validateDocument(statisticsFile, raw); err != nil {
		return nil, err
	}
	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.NewValueError("ReadStats", err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadStats reads the statistics file at path.
func LoadStats(path string) (*Stats, error) {
	logger := log.GetLoggerWithName("validation").With(log.ConfigPathKey, path)
	logger.Debug("Reading statistical data")

	f, err := openDocument("feature statistics", path)
	if err != nil {
		logger.Error("Encountered error during stats loading", err)
		return nil, err
	}
	defer f.Close()

	s, err := ReadStats(f)
	if err != nil {
		logger.Error("Encountered error during stats loading", err)
		return nil, err
	}
	return s, nil
}

// WriteStats writes s as indented JSON.
func WriteStats(path string, s Stats) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return writeDocument(path, Stats{Mean: nonNil(s.Mean), Std: nonNil(s.Std)})
}
