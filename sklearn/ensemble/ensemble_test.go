package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

type classifier interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	GetParams() map[string]interface{}
	SetParams(map[string]interface{}) error
}

// blobs returns perPerClass samples around (5c, 5c) for every class c.
func blobs(perClass, nClasses int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	n := perClass * nClasses
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % nClasses
		X.Set(i, 0, 5*float64(c)+rng.Float64()*2-1)
		X.Set(i, 1, 5*float64(c)+rng.Float64()*2-1)
		y.Set(i, 0, float64(c))
	}
	return X, y
}

func factories() map[string]func() classifier {
	return map[string]func() classifier{
		"RandomForest": func() classifier {
			return NewRandomForestClassifier(WithNEstimators(20), WithForestRandomState(7), WithNJobs(2))
		},
		"GradientBoosting": func() classifier {
			return NewGradientBoostingClassifier(WithBoostingNEstimators(30), WithBoostingRandomState(7))
		},
		"HistGradientBoosting": func() classifier {
			return NewHistGradientBoostingClassifier(WithHistMaxIter(30), WithHistRandomState(7))
		},
	}
}

func accuracy(t *testing.T, c classifier, X, y mat.Matrix) float64 {
	t.Helper()
	pred, err := c.Predict(X)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	n, _ := y.Dims()
	ok := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			ok++
		}
	}
	return float64(ok) / float64(n)
}

func TestClassifiers_Binary(t *testing.T) {
	X, y := blobs(30, 2, 1)
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			c := newClf()
			if err := c.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if acc := accuracy(t, c, X, y); acc != 1 {
				t.Errorf("training accuracy = %v, want 1", acc)
			}
			test := mat.NewDense(2, 2, []float64{0.2, -0.3, 5.1, 4.8})
			pred, err := c.Predict(test)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if pred.At(0, 0) != 0 || pred.At(1, 0) != 1 {
				t.Errorf("unexpected predictions %v", mat.Formatted(pred))
			}
		})
	}
}

func TestClassifiers_MulticlassProba(t *testing.T) {
	X, y := blobs(30, 3, 2)
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			c := newClf()
			if err := c.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if acc := accuracy(t, c, X, y); acc < 0.95 {
				t.Errorf("training accuracy = %v, want >= 0.95", acc)
			}
			proba, err := c.PredictProba(X)
			if err != nil {
				t.Fatalf("PredictProba: %v", err)
			}
			r, k := proba.Dims()
			if k != 3 {
				t.Fatalf("expected 3 probability columns, got %d", k)
			}
			for i := 0; i < r; i++ {
				sum := 0.0
				for j := 0; j < k; j++ {
					p := proba.At(i, j)
					if p < 0 || p > 1 {
						t.Fatalf("row %d: probability %v out of range", i, p)
					}
					sum += p
				}
				if math.Abs(sum-1) > 1e-9 {
					t.Errorf("row %d: probabilities sum to %v", i, sum)
				}
			}
		})
	}
}

func TestClassifiers_Deterministic(t *testing.T) {
	X, y := blobs(25, 2, 3)
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			a, b := newClf(), newClf()
			if err := a.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			if err := b.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			pa, _ := a.PredictProba(X)
			pb, _ := b.PredictProba(X)
			if !mat.Equal(pa, pb) {
				t.Error("same random_state produced different probabilities")
			}
		})
	}
}

func TestClassifiers_Gob(t *testing.T) {
	X, y := blobs(30, 3, 4)
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			c := newClf()
			if err := c.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(c); err != nil {
				t.Fatalf("encode: %v", err)
			}

			var restored classifier
			switch c.(type) {
			case *RandomForestClassifier:
				restored = &RandomForestClassifier{}
			case *GradientBoostingClassifier:
				restored = &GradientBoostingClassifier{}
			case *HistGradientBoostingClassifier:
				restored = &HistGradientBoostingClassifier{}
			}
			if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
				t.Fatalf("decode: %v", err)
			}

			want, _ := c.PredictProba(X)
			got, err := restored.PredictProba(X)
			if err != nil {
				t.Fatalf("PredictProba after decode: %v", err)
			}
			if !mat.Equal(want, got) {
				t.Error("probabilities changed after gob round trip")
			}
		})
	}
}

func TestClassifiers_NotFitted(t *testing.T) {
	X, _ := blobs(5, 2, 5)
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			_, err := newClf().Predict(X)
			var nf *errors.NotFittedError
			if !errors.As(err, &nf) {
				t.Errorf("expected NotFittedError, got %v", err)
			}
		})
	}
}

func TestClassifiers_SingleClass(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	for name, newClf := range factories() {
		t.Run(name, func(t *testing.T) {
			if err := newClf().Fit(X, y); !errors.IsData(err) {
				t.Errorf("expected a data error, got %v", err)
			}
		})
	}
}

func TestSetParams_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		clf    func() classifier
		params map[string]interface{}
	}{
		{"forest unknown key", factories()["RandomForest"], map[string]interface{}{"depth": 3}},
		{"forest zero estimators", factories()["RandomForest"], map[string]interface{}{"n_estimators": 0}},
		{"forest bad max_features", factories()["RandomForest"], map[string]interface{}{"max_features": "half"}},
		{"boosting subsample", factories()["GradientBoosting"], map[string]interface{}{"subsample": 1.5}},
		{"boosting learning rate", factories()["GradientBoosting"], map[string]interface{}{"learning_rate": -0.1}},
		{"boosting fractional count", factories()["GradientBoosting"], map[string]interface{}{"n_estimators": 2.5}},
		{"hist max_bins", factories()["HistGradientBoosting"], map[string]interface{}{"max_bins": 256}},
		{"hist leaf nodes", factories()["HistGradientBoosting"], map[string]interface{}{"max_leaf_nodes": 1}},
		{"hist early stopping type", factories()["HistGradientBoosting"], map[string]interface{}{"early_stopping": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.clf()
			before := c.GetParams()
			err := c.SetParams(tt.params)
			var pe *errors.ParameterError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParameterError, got %v", err)
			}
			after := c.GetParams()
			for k, v := range before {
				if after[k] != v {
					t.Errorf("param %s changed from %v to %v", k, v, after[k])
				}
			}
		})
	}
}

func TestGradientBoosting_LossDecreases(t *testing.T) {
	X, y := blobs(40, 2, 6)
	gb := NewGradientBoostingClassifier(
		WithBoostingNEstimators(20),
		WithBoostingSubsample(0.5),
		WithBoostingRandomState(3),
	)
	if err := gb.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	loss := gb.TrainLoss()
	if len(loss) != 20 {
		t.Fatalf("expected 20 stages, got %d", len(loss))
	}
	if loss[len(loss)-1] >= loss[0] {
		t.Errorf("training loss did not decrease: first %v, last %v", loss[0], loss[len(loss)-1])
	}
}

func TestHistGradientBoosting_EarlyStopping(t *testing.T) {
	X, y := blobs(30, 2, 7)
	h := NewHistGradientBoostingClassifier(WithHistMaxIter(100), WithHistEarlyStopping(true))
	if err := h.SetParams(map[string]interface{}{"tol": 10.0, "n_iter_no_change": 3}); err != nil {
		t.Fatal(err)
	}
	if err := h.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if h.NIter() != 4 {
		t.Errorf("expected to stop after 4 iterations, ran %d", h.NIter())
	}
}

func TestHistGradientBoosting_NoSplitKeepsPrior(t *testing.T) {
	X, y := blobs(10, 2, 8)
	h := NewHistGradientBoostingClassifier(WithHistMaxIter(5), WithHistMinSamplesLeaf(15))
	if err := h.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	proba, err := h.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if math.Abs(proba.At(i, 1)-0.5) > 1e-9 {
			t.Fatalf("row %d: expected prior 0.5, got %v", i, proba.At(i, 1))
		}
	}
}

func TestBinMapper(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		1, 0,
		1, 1,
		2, 2,
		2, 3,
		4, 4,
		4, 5,
	})
	bm := fitBinMapper(X, 3, rand.New(rand.NewSource(0)))

	want := []float64{1.5, 3}
	if got := bm.Thresholds[0]; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("feature 0 thresholds = %v, want %v", got, want)
	}
	if n := len(bm.Thresholds[1]); n > 2 {
		t.Errorf("feature 1 has %d thresholds, want at most 2", n)
	}

	binned := bm.transform(X)
	for i, b := range []uint8{0, 0, 1, 1, 2, 2} {
		if binned[0][i] != b {
			t.Errorf("row %d: bin %d, want %d", i, binned[0][i], b)
		}
	}
	for f := range binned {
		for i := 1; i < 6; i++ {
			if binned[f][i] < binned[f][i-1] {
				t.Errorf("feature %d: bins not monotone at row %d", f, i)
			}
		}
	}
}
