package errors

import (
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "mltemplate: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "mltemplate: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Transform", 4, 3, 1)

	want := "mltemplate: Transform: dimension mismatch on axis 1 (features). Expected 4, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("StandardScaler", "Transform")

	want := "mltemplate: StandardScaler: this model is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("LogisticRegression", 100, "")

	want := "LogisticRegression failed to converge after 100 iterations. Consider increasing max_iter or adjusting parameters."
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarn_UsesHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if !strings.Contains(got[0].Error(), "'precision' is ill-defined") {
		t.Errorf("unexpected warning text: %v", got[0])
	}
}

func TestPipelineErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "config enum",
			err:     NewConfigError("model.name", "SVM", []string{"LogReg", "RandomForest"}),
			wantMsg: "mltemplate: invalid configuration for 'model.name' (got: SVM). Expected one of [LogReg RandomForest]",
		},
		{
			name:    "config missing",
			err:     NewMissingConfigError("dataset.path", "required"),
			wantMsg: "mltemplate: invalid configuration for 'dataset.path': required",
		},
		{
			name:    "parameter",
			err:     NewParameterError("RandomForest", "n_estimators", 0, "must be >= 1"),
			wantMsg: "mltemplate: RandomForest: invalid parameter 'n_estimators': must be >= 1 (got: 0)",
		},
		{
			name:    "missing column",
			err:     NewMissingColumnError([]string{"age", "fnlwgt"}),
			wantMsg: "mltemplate: missing columns: [age fnlwgt]",
		},
		{
			name:    "not found",
			err:     NewNotFoundError("dataset", "/tmp/adult.csv"),
			wantMsg: "mltemplate: dataset not found: /tmp/adult.csv",
		},
		{
			name:    "structure mismatch",
			err:     NewStructureMismatchError("numeric", []string{"a", "b"}, []string{"b", "a"}),
			wantMsg: "mltemplate: numeric structure mismatch: expected [a b], found [b a]",
		},
		{
			name:    "outlier",
			err:     NewOutlierError(3, []OutlierPosition{{Row: 0, Feature: 1, Value: 99}}),
			wantMsg: "mltemplate: 1 value(s) outside mean ± 3·std",
		},
		{
			name:    "artifact",
			err:     NewArtifactError("model.bin", "unsupported format version 9", nil),
			wantMsg: "mltemplate: artifact model.bin: unsupported format version 9",
		},
		{
			name:    "io",
			err:     WrapIO(fmt.Errorf("connection refused"), "download"),
			wantMsg: "mltemplate: download: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain", fmt.Errorf("boom"), KindInternal},
		{"config", NewConfigError("metric.average", "weird", []string{"binary"}), KindConfig},
		{"parameter", NewParameterError("LogReg", "C", -1.0, "must be positive"), KindConfig},
		{"missing column", NewMissingColumnError([]string{"x"}), KindData},
		{"not found", NewNotFoundError("artifact", "m.bin"), KindData},
		{"structure", NewStructureMismatchError("columns", nil, nil), KindData},
		{"outlier", NewOutlierError(2, nil), KindData},
		{"value", NewValueError("Split", "class with a single member"), KindData},
		{"wrapped data", Wrap(NewMissingColumnError([]string{"x"}), "extract"), KindData},
		{"io wrapper", WrapIO(fmt.Errorf("disk full"), "write"), KindIO},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: fmt.Errorf("refused")}, KindIO},
		{"path error", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}, KindIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapIO_Nil(t *testing.T) {
	if err := WrapIO(nil, "close"); err != nil {
		t.Errorf("WrapIO(nil) = %v, want nil", err)
	}
}

func TestArtifactError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := NewArtifactError("m.bin", "decode failed", cause)
	if !Is(err, cause) {
		t.Error("Expected ArtifactError to unwrap to its cause")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}

func TestNumericalChecks(t *testing.T) {
	if err := CheckNumericalStability("fit", []float64{1, -2, 1e300}, 3); err != nil {
		t.Errorf("finite values: unexpected error %v", err)
	}
	err := CheckNumericalStability("fit", []float64{1, math.Inf(-1)}, 7)
	var nie *NumericalInstabilityError
	if !As(err, &nie) || nie.Iteration != 7 || nie.Operation != "fit" {
		t.Fatalf("expected NumericalInstabilityError at iteration 7, got %v", err)
	}
	if err := CheckScalar("loss", math.NaN(), 1); !As(err, &nie) {
		t.Errorf("NaN scalar: expected NumericalInstabilityError, got %v", err)
	}

	p := Softmax(nil, []float64{1000, 1000})
	if math.Abs(p[0]-0.5) > 1e-12 || math.Abs(p[1]-0.5) > 1e-12 {
		t.Errorf("Softmax of large equal scores = %v, want [0.5 0.5]", p)
	}
	if !math.IsInf(LogSumExp(nil), -1) {
		t.Error("LogSumExp of no values should be -Inf")
	}
}
