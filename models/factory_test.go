package models

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(40, 2, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		c := float64(i % 2)
		X.Set(i, 0, 4*c+float64(i%5)*0.1)
		X.Set(i, 1, -4*c+float64(i%7)*0.1)
		y.Set(i, 0, c)
	}
	return X, y
}

func TestMake_UnknownType(t *testing.T) {
	_, err := Make(EstimatorConfig{ModelType: "SVM"})
	var ce *errors.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Field != "estimator.model_type" {
		t.Errorf("unexpected field %q", ce.Field)
	}
}

func TestMake_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		cfg  EstimatorConfig
	}{
		{"LogReg unknown key", EstimatorConfig{ModelType: LogReg, ModelParams: map[string]interface{}{"alpha": 1.0}}},
		{"LogReg negative C", EstimatorConfig{ModelType: LogReg, ModelParams: map[string]interface{}{"C": -1.0}}},
		{"RandomForest string estimators", EstimatorConfig{ModelType: RandomForest, ModelParams: map[string]interface{}{"n_estimators": "ten"}}},
		{"Boosting subsample", EstimatorConfig{ModelType: Boosting, ModelParams: map[string]interface{}{"subsample": 0.0}}},
		{"HistBoosting bins", EstimatorConfig{ModelType: HistBoosting, ModelParams: map[string]interface{}{"max_bins": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Make(tt.cfg)
			var pe *errors.ParameterError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParameterError, got %v", err)
			}
			if !errors.IsConfig(err) {
				t.Errorf("parameter errors must classify as config errors")
			}
		})
	}
}

func TestMake_InjectsRandomState(t *testing.T) {
	for _, typ := range Types() {
		t.Run(typ, func(t *testing.T) {
			m, err := Make(EstimatorConfig{ModelType: typ, RandomState: 7})
			if err != nil {
				t.Fatal(err)
			}
			if got := m.GetParams()["random_state"]; got != int64(7) {
				t.Errorf("random_state = %v (%T), want 7", got, got)
			}
		})
	}

	m, err := Make(EstimatorConfig{
		ModelType:   RandomForest,
		RandomState: 7,
		ModelParams: map[string]interface{}{"random_state": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.GetParams()["random_state"]; got != int64(3) {
		t.Errorf("explicit random_state overridden: %v", got)
	}
}

func TestMakeAndFit(t *testing.T) {
	X, y := separable()
	params := map[string]map[string]interface{}{
		LogReg:       {"max_iter": 200},
		RandomForest: {"n_estimators": 10},
		Boosting:     {"n_estimators": 20},
		HistBoosting: {"max_iter": 20, "min_samples_leaf": 5},
	}
	for _, typ := range Types() {
		t.Run(typ, func(t *testing.T) {
			m, err := MakeAndFit(X, y, EstimatorConfig{ModelType: typ, ModelParams: params[typ], RandomState: 1})
			if err != nil {
				t.Fatalf("MakeAndFit: %v", err)
			}
			if !m.IsFitted() {
				t.Fatal("estimator not fitted")
			}
			pred, err := m.Predict(X)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 40; i++ {
				if pred.At(i, 0) != y.At(i, 0) {
					t.Fatalf("row %d: predicted %v, want %v", i, pred.At(i, 0), y.At(i, 0))
				}
			}
		})
	}
}

func TestMakeAndFit_DataError(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(2, 1, []float64{0, 1})
	_, err := MakeAndFit(X, y, EstimatorConfig{ModelType: LogReg})
	if !errors.IsData(err) {
		t.Errorf("expected a data error, got %v", err)
	}
}
