package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Hyperparameters arrive from YAML or JSON, so numbers may be decoded as int, int64,
// uint64 or float64. The helpers below coerce them and report a ParameterError naming
// the estimator and key otherwise.

// FloatParam coerces a numeric hyperparameter to float64.
func FloatParam(estimator, key string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, errors.NewParameterError(estimator, key, v, "expected a number")
}

// IntParam coerces an integral hyperparameter to int. Floats with a fractional part
// are rejected.
func IntParam(estimator, key string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int(x), nil
		}
	}
	return 0, errors.NewParameterError(estimator, key, v, "expected an integer")
}

// Int64Param coerces an integral hyperparameter to int64.
func Int64Param(estimator, key string, v interface{}) (int64, error) {
	n, err := IntParam(estimator, key, v)
	return int64(n), err
}

// BoolParam requires a boolean hyperparameter.
func BoolParam(estimator, key string, v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NewParameterError(estimator, key, v, "expected a boolean")
}

// StringParam requires a string hyperparameter, optionally one of allowed.
func StringParam(estimator, key string, v interface{}, allowed ...string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewParameterError(estimator, key, v, "expected a string")
	}
	if len(allowed) == 0 {
		return s, nil
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", errors.NewParameterError(estimator, key, v, "expected one of "+joinQuoted(allowed))
}

// OptionalIntParam coerces an integer hyperparameter where nil means "unset" (-1).
func OptionalIntParam(estimator, key string, v interface{}) (int, error) {
	if v == nil {
		return -1, nil
	}
	return IntParam(estimator, key, v)
}

// CheckPositive rejects values <= 0.
func CheckPositive(estimator, key string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.NewParameterError(estimator, key, v, "must be > 0")
	}
	return nil
}

// CheckRange rejects values outside [lo, hi].
func CheckRange(estimator, key string, v, lo, hi float64) error {
	if v < lo || v > hi || math.IsNaN(v) {
		return errors.NewParameterError(estimator, key, v, "must be within ["+ftoa(lo)+", "+ftoa(hi)+"]")
	}
	return nil
}

// CheckMinInt rejects integers below min.
func CheckMinInt(estimator, key string, v, min int) error {
	if v < min {
		return errors.NewParameterError(estimator, key, v, "must be >= "+itoa(min))
	}
	return nil
}

func joinQuoted(values []string) string {
	q := make([]string, len(values))
	for i, v := range values {
		q[i] = strconv.Quote(v)
	}
	return strings.Join(q, ", ")
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func itoa(v int) string { return strconv.Itoa(v) }
