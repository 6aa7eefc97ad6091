package preprocessing

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Encoder names accepted by the preprocessor.
const (
	EncoderOneHot  = "ohe"
	EncoderOrdinal = "ordinal"
)

// Encoders lists the accepted encoder names.
var Encoders = []string{EncoderOneHot, EncoderOrdinal}

// CategoricalEncoder turns imputed string columns into numeric features.
type CategoricalEncoder interface {
	Fit(X [][]string) error
	Transform(X [][]string) (*mat.Dense, error)
	IsFitted() bool
	// Width is the number of output columns after Fit.
	Width() int
	FeatureNames(input []string) []string
}

// learnCategories returns the sorted distinct labels of every column.
func learnCategories(X [][]string) [][]string {
	c := len(X[0])
	out := make([][]string, c)
	for j := 0; j < c; j++ {
		seen := make(map[string]bool)
		for _, row := range X {
			if !seen[row[j]] {
				seen[row[j]] = true
				out[j] = append(out[j], row[j])
			}
		}
		sort.Strings(out[j])
	}
	return out
}

func categoryIndex(categories []string, v string) int {
	i := sort.SearchStrings(categories, v)
	if i < len(categories) && categories[i] == v {
		return i
	}
	return -1
}

// OneHotEncoder expands every column into one indicator per learned category.
// Categories unseen during Fit encode as all zeros.
type OneHotEncoder struct {
	State *model.StateManager

	Categories [][]string
}

// NewOneHotEncoder creates an unfitted one-hot encoder.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{State: model.NewStateManager()}
}

// IsFitted reports whether Fit has completed.
func (e *OneHotEncoder) IsFitted() bool { return e.State.IsFitted() }

// Fit learns the categories of every column.
func (e *OneHotEncoder) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	e.State.Reset()
	e.Categories = learnCategories(X)
	e.State.SetDimensions(len(X[0]), len(X))
	e.State.SetFitted()
	return nil
}

// Width returns the total number of indicator columns.
func (e *OneHotEncoder) Width() int {
	w := 0
	for _, c := range e.Categories {
		w += len(c)
	}
	return w
}

// Transform encodes X into indicator columns.
func (e *OneHotEncoder) Transform(X [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	w := e.Width()
	if len(X) == 0 || w == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(len(X), w, nil)
	for i, row := range X {
		if err := e.State.RequireFeatures("OneHotEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		offset := 0
		for j, v := range row {
			if k := categoryIndex(e.Categories[j], v); k >= 0 {
				out.Set(i, offset+k, 1)
			}
			offset += len(e.Categories[j])
		}
	}
	return out, nil
}

// FeatureNames returns "<column>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames(input []string) []string {
	out := make([]string, 0, e.Width())
	for j, cats := range e.Categories {
		for _, c := range cats {
			out = append(out, input[j]+"_"+c)
		}
	}
	return out
}

// UnknownOrdinal is the code of categories unseen during Fit.
const UnknownOrdinal = -1

// OrdinalEncoder maps every column to the index of its category in sorted order.
type OrdinalEncoder struct {
	State *model.StateManager

	Categories [][]string
}

// NewOrdinalEncoder creates an unfitted ordinal encoder.
func NewOrdinalEncoder() *OrdinalEncoder {
	return &OrdinalEncoder{State: model.NewStateManager()}
}

// IsFitted reports whether Fit has completed.
func (e *OrdinalEncoder) IsFitted() bool { return e.State.IsFitted() }

// Fit learns the categories of every column.
func (e *OrdinalEncoder) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.NewModelError("OrdinalEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	e.State.Reset()
	e.Categories = learnCategories(X)
	e.State.SetDimensions(len(X[0]), len(X))
	e.State.SetFitted()
	return nil
}

// Width returns the number of encoded columns.
func (e *OrdinalEncoder) Width() int { return len(e.Categories) }

// Transform encodes X; unknown categories become UnknownOrdinal.
func (e *OrdinalEncoder) Transform(X [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OrdinalEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(X) == 0 || e.Width() == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(len(X), e.Width(), nil)
	for i, row := range X {
		if err := e.State.RequireFeatures("OrdinalEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		for j, v := range row {
			out.Set(i, j, float64(categoryIndex(e.Categories[j], v)))
		}
	}
	return out, nil
}

// FeatureNames returns the input names unchanged.
func (e *OrdinalEncoder) FeatureNames(input []string) []string {
	return append([]string(nil), input...)
}

// LabelEncoder maps target labels to class indices in sorted label order.
type LabelEncoder struct {
	State *model.StateManager

	Classes []string
}

// NewLabelEncoder creates an unfitted label encoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{State: model.NewStateManager()}
}

// IsFitted reports whether Fit has completed.
func (e *LabelEncoder) IsFitted() bool { return e.State.IsFitted() }

// Fit learns the sorted distinct labels of y.
func (e *LabelEncoder) Fit(y []string) error {
	if len(y) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	e.State.Reset()
	e.Classes = learnCategories(columnOf(y))[0]
	e.State.SetDimensions(1, len(y))
	e.State.SetFitted()
	return nil
}

// Transform returns the class index of every label as an (n, 1) column vector.
func (e *LabelEncoder) Transform(y []string) (*mat.VecDense, error) {
	if err := e.State.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(len(y), nil)
	for i, label := range y {
		k := categoryIndex(e.Classes, label)
		if k < 0 {
			return nil, errors.NewValueError("LabelEncoder.Transform", "unseen label "+strconv.Quote(label))
		}
		out.SetVec(i, float64(k))
	}
	return out, nil
}

// FitTransform fits on y and transforms it.
func (e *LabelEncoder) FitTransform(y []string) (*mat.VecDense, error) {
	if err := e.Fit(y); err != nil {
		return nil, err
	}
	return e.Transform(y)
}

// InverseTransform maps class indices back to labels.
func (e *LabelEncoder) InverseTransform(idx []int) ([]string, error) {
	if err := e.State.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(idx))
	for i, k := range idx {
		if k < 0 || k >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", "class index "+strconv.Itoa(k)+" out of range")
		}
		out[i] = e.Classes[k]
	}
	return out, nil
}

// Index returns the class index of label, or -1.
func (e *LabelEncoder) Index(label string) int {
	return categoryIndex(e.Classes, label)
}

func columnOf(y []string) [][]string {
	out := make([][]string, len(y))
	for i, v := range y {
		out[i] = []string{v}
	}
	return out
}
