package tree

import (
	"math"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// MaxFeatures is the number of features searched per split: every feature, "sqrt",
// "log2", a count or a fraction of the features.
type MaxFeatures struct {
	Mode string // "all", "sqrt", "log2", "count" or "fraction"
	N    int
	Frac float64
}

// AllFeatures searches every feature at each split.
var AllFeatures = MaxFeatures{Mode: "all"}

// SqrtFeatures searches sqrt(n_features) features at each split.
var SqrtFeatures = MaxFeatures{Mode: "sqrt"}

// ParseMaxFeatures reads a max_features hyperparameter value.
func ParseMaxFeatures(estimator string, v interface{}) (MaxFeatures, error) {
	switch x := v.(type) {
	case nil:
		return AllFeatures, nil
	case string:
		switch x {
		case "all", "sqrt", "log2":
			return MaxFeatures{Mode: x}, nil
		}
	case float64:
		if x > 0 && x <= 1 {
			return MaxFeatures{Mode: "fraction", Frac: x}, nil
		}
		if x > 1 && x == math.Trunc(x) {
			return MaxFeatures{Mode: "count", N: int(x)}, nil
		}
	case int, int64, uint64:
		n, err := model.IntParam(estimator, "max_features", v)
		if err == nil && n >= 1 {
			return MaxFeatures{Mode: "count", N: n}, nil
		}
	}
	return MaxFeatures{}, errors.NewParameterError(estimator, "max_features", v,
		`expected "sqrt", "log2", "all", null, an integer >= 1 or a fraction in (0, 1]`)
}

// Value returns the hyperparameter form of m.
func (m MaxFeatures) Value() interface{} {
	switch m.Mode {
	case "count":
		return m.N
	case "fraction":
		return m.Frac
	case "":
		return "all"
	}
	return m.Mode
}

// Resolve returns the number of features searched out of d, at least one.
func (m MaxFeatures) Resolve(d int) int {
	var n int
	switch m.Mode {
	case "sqrt":
		n = int(math.Sqrt(float64(d)))
	case "log2":
		n = int(math.Log2(float64(d)))
	case "count":
		n = m.N
	case "fraction":
		n = int(m.Frac * float64(d))
	default:
		n = d
	}
	if n < 1 {
		n = 1
	}
	if n > d {
		n = d
	}
	return n
}
