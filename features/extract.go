package features

import (
	"strconv"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/validation"
)

// ExtractTarget returns the target column as labels. Numeric targets are rendered
// with the shortest float formatting ("1", "0.5"). Missing target cells are rejected.
func ExtractTarget(frame *dataset.Frame, name string) ([]string, error) {
	logger := log.GetLoggerWithName("features")
	logger.Debug("Extracting target variable", "target", name)

	col, ok := frame.Column(name)
	if !ok {
		err := errors.NewMissingColumnError([]string{name})
		logger.Error("Target column is missing", err, "target", name)
		return nil, err
	}

	labels := make([]string, col.Len())
	for i := range labels {
		if col.IsMissing(i) {
			return nil, errors.NewValueError("ExtractTarget", "target "+strconv.Quote(name)+" is missing at row "+strconv.Itoa(i))
		}
		labels[i] = col.StringAt(i)
	}
	return labels, nil
}

// ExtractFeatureColumns selects the named columns, reporting every absent one.
func ExtractFeatureColumns(frame *dataset.Frame, names []string) (*dataset.Frame, error) {
	logger := log.GetLoggerWithName("features")
	logger.Debug("Extracting features", "columns", names)

	out, err := frame.Select(names)
	if err != nil {
		logger.Error("Some feature columns are missing", err)
		return nil, err
	}
	return out, nil
}

// ComputeStats summarizes the named numeric columns of frame for the outlier check.
func ComputeStats(frame *dataset.Frame, numeric []string) (validation.Stats, error) {
	columns := make([][]float64, len(numeric))
	X, err := frame.Numeric(numeric)
	if err != nil {
		return validation.Stats{}, err
	}
	rows, _ := X.Dims()
	for j := range numeric {
		col := make([]float64, rows)
		for i := 0; i < rows; i++ {
			col[i] = X.At(i, j)
		}
		columns[j] = col
	}
	return validation.ComputeStats(columns), nil
}

// Schema describes the active feature columns of cfg for request validation.
func Schema(cfg Config) validation.TabularSchema {
	return validation.TabularSchema{
		Columns:            cfg.Columns(),
		NumericColumns:     append([]string(nil), cfg.NumericFeatures...),
		CategoricalColumns: append([]string(nil), cfg.CategoricalFeatures...),
	}
}
