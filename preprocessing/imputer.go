package preprocessing

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Imputation strategies for numeric columns.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
	StrategyConstant     = "constant"
)

// ImputerStrategies lists the accepted numeric imputation strategies.
var ImputerStrategies = []string{StrategyMean, StrategyMedian, StrategyMostFrequent, StrategyConstant}

// SimpleImputer replaces NaN cells of each column with a per-column statistic.
// A column without any observed value is filled with FillValue.
type SimpleImputer struct {
	State *model.StateManager

	Strategy  string
	FillValue float64

	// Statistics holds the fill value of every column after Fit.
	Statistics []float64
}

// NewSimpleImputer creates an imputer for the given strategy.
func NewSimpleImputer(strategy string, fillValue float64) (*SimpleImputer, error) {
	switch strategy {
	case StrategyMean, StrategyMedian, StrategyMostFrequent, StrategyConstant:
	default:
		return nil, errors.NewConfigError("feature.numeric_imputer_strategy", strategy, ImputerStrategies)
	}
	return &SimpleImputer{State: model.NewStateManager(), Strategy: strategy, FillValue: fillValue}, nil
}

// IsFitted reports whether Fit has completed.
func (imp *SimpleImputer) IsFitted() bool { return imp.State.IsFitted() }

// Fit computes the fill value of every column from its observed cells.
func (imp *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	imp.State.Reset()

	imp.Statistics = make([]float64, c)
	observed := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		observed = observed[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			log.GetLoggerWithName("preprocessing").Warn("Column has no observed values, using the fill value",
				"column", j, "fill_value", imp.FillValue)
			imp.Statistics[j] = imp.FillValue
			continue
		}

		switch imp.Strategy {
		case StrategyMean:
			imp.Statistics[j] = stat.Mean(observed, nil)
		case StrategyMedian:
			sort.Float64s(observed)
			imp.Statistics[j] = percentile(observed, 50)
		case StrategyMostFrequent:
			imp.Statistics[j] = mostFrequentFloat(observed)
		case StrategyConstant:
			imp.Statistics[j] = imp.FillValue
		}
	}

	imp.State.SetDimensions(c, r)
	imp.State.SetFitted()
	return nil
}

// Transform returns a copy of X with NaN cells replaced.
func (imp *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := imp.State.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := imp.State.RequireFeatures("SimpleImputer.Transform", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				v = imp.Statistics[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// FitTransform fits on X and transforms it.
func (imp *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := imp.Fit(X); err != nil {
		return nil, err
	}
	return imp.Transform(X)
}

// mostFrequentFloat returns the modal value, the smallest one on ties.
func mostFrequentFloat(values []float64) float64 {
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := math.Inf(1), 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

// MissingCategory fills categorical columns that were entirely missing at fit time.
const MissingCategory = "missing"

// CategoricalImputer replaces empty cells with the most frequent label of each column.
type CategoricalImputer struct {
	State *model.StateManager

	Statistics []string
}

// NewCategoricalImputer creates a most-frequent imputer for string columns.
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{State: model.NewStateManager()}
}

// IsFitted reports whether Fit has completed.
func (imp *CategoricalImputer) IsFitted() bool { return imp.State.IsFitted() }

// Fit learns the modal label of every column. Ties go to the lexicographically smallest.
func (imp *CategoricalImputer) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.NewModelError("CategoricalImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	c := len(X[0])
	imp.State.Reset()

	imp.Statistics = make([]string, c)
	for j := 0; j < c; j++ {
		counts := make(map[string]int)
		for _, row := range X {
			if row[j] != "" {
				counts[row[j]]++
			}
		}
		best, bestCount := MissingCategory, 0
		for v, n := range counts {
			if n > bestCount || (n == bestCount && v < best) {
				best, bestCount = v, n
			}
		}
		imp.Statistics[j] = best
	}

	imp.State.SetDimensions(c, len(X))
	imp.State.SetFitted()
	return nil
}

// Transform returns a copy of X with empty cells filled.
func (imp *CategoricalImputer) Transform(X [][]string) ([][]string, error) {
	if err := imp.State.RequireFitted("CategoricalImputer", "Transform"); err != nil {
		return nil, err
	}
	out := make([][]string, len(X))
	for i, row := range X {
		if err := imp.State.RequireFeatures("CategoricalImputer.Transform", len(row)); err != nil {
			return nil, errors.Wrap(err, "row "+strconv.Itoa(i))
		}
		filled := make([]string, len(row))
		for j, v := range row {
			if v == "" {
				v = imp.Statistics[j]
			}
			filled[j] = v
		}
		out[i] = filled
	}
	return out, nil
}

// FitTransform fits on X and transforms it.
func (imp *CategoricalImputer) FitTransform(X [][]string) ([][]string, error) {
	if err := imp.Fit(X); err != nil {
		return nil, err
	}
	return imp.Transform(X)
}
