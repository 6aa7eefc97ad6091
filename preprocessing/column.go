package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// NumericPipeline chains impute → scale → optional KernelPCA.
type NumericPipeline struct {
	Imputer *SimpleImputer
	Scaler  Scaler
	PCA     *KernelPCA
}

func (p *NumericPipeline) fitTransform(X mat.Matrix) (mat.Matrix, error) {
	out, err := p.Imputer.FitTransform(X)
	if err != nil {
		return nil, err
	}
	if out, err = p.Scaler.FitTransform(out); err != nil {
		return nil, err
	}
	if p.PCA != nil {
		return p.PCA.FitTransform(out)
	}
	return out, nil
}

func (p *NumericPipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	out, err := p.Imputer.Transform(X)
	if err != nil {
		return nil, err
	}
	if out, err = p.Scaler.Transform(out); err != nil {
		return nil, err
	}
	if p.PCA != nil {
		return p.PCA.Transform(out)
	}
	return out, nil
}

// CategoricalPipeline chains impute → encode.
type CategoricalPipeline struct {
	Imputer *CategoricalImputer
	Encoder CategoricalEncoder
}

func (p *CategoricalPipeline) fitTransform(X [][]string) (*mat.Dense, error) {
	filled, err := p.Imputer.FitTransform(X)
	if err != nil {
		return nil, err
	}
	if err := p.Encoder.Fit(filled); err != nil {
		return nil, err
	}
	return p.Encoder.Transform(filled)
}

func (p *CategoricalPipeline) transform(X [][]string) (*mat.Dense, error) {
	filled, err := p.Imputer.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Encoder.Transform(filled)
}

// ColumnTransformer applies the numeric pipeline to NumericColumns and the categorical
// pipeline to CategoricalColumns and concatenates the results, numeric block first.
type ColumnTransformer struct {
	State *model.StateManager

	NumericColumns     []string
	CategoricalColumns []string
	Numeric            *NumericPipeline
	Categorical        *CategoricalPipeline
}

// IsFitted reports whether Fit has completed.
func (ct *ColumnTransformer) IsFitted() bool { return ct.State.IsFitted() }

// Fit fits both pipelines on their columns of frame.
func (ct *ColumnTransformer) Fit(frame *dataset.Frame) error {
	_, err := ct.FitTransform(frame)
	return err
}

// FitTransform fits both pipelines and returns the transformed training matrix.
func (ct *ColumnTransformer) FitTransform(frame *dataset.Frame) (*mat.Dense, error) {
	if frame.Rows() == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	ct.State.Reset()

	var blocks []mat.Matrix
	if len(ct.NumericColumns) > 0 {
		X, err := frame.Numeric(ct.NumericColumns)
		if err != nil {
			return nil, err
		}
		out, err := ct.Numeric.fitTransform(X)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out)
	}
	if len(ct.CategoricalColumns) > 0 {
		X, err := frame.Strings(ct.CategoricalColumns)
		if err != nil {
			return nil, err
		}
		out, err := ct.Categorical.fitTransform(X)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out)
	}

	out := hstack(frame.Rows(), blocks)
	_, width := out.Dims()
	ct.State.SetDimensions(width, frame.Rows())
	ct.State.SetFitted()
	return out, nil
}

// Transform applies the fitted pipelines to frame.
func (ct *ColumnTransformer) Transform(frame *dataset.Frame) (*mat.Dense, error) {
	if err := ct.State.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	if frame.Rows() == 0 {
		return nil, errors.NewValueError("ColumnTransformer.Transform", "no rows to transform")
	}

	var blocks []mat.Matrix
	if len(ct.NumericColumns) > 0 {
		X, err := frame.Numeric(ct.NumericColumns)
		if err != nil {
			return nil, err
		}
		out, err := ct.Numeric.transform(X)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out)
	}
	if len(ct.CategoricalColumns) > 0 {
		X, err := frame.Strings(ct.CategoricalColumns)
		if err != nil {
			return nil, err
		}
		out, err := ct.Categorical.transform(X)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out)
	}
	return hstack(frame.Rows(), blocks), nil
}

// FeatureNames returns the names of the output columns.
func (ct *ColumnTransformer) FeatureNames() []string {
	var out []string
	if len(ct.NumericColumns) > 0 {
		if ct.Numeric.PCA != nil {
			out = append(out, ct.Numeric.PCA.FeatureNames()...)
		} else {
			out = append(out, ct.NumericColumns...)
		}
	}
	if len(ct.CategoricalColumns) > 0 {
		out = append(out, ct.Categorical.Encoder.FeatureNames(ct.CategoricalColumns)...)
	}
	return out
}

// hstack concatenates blocks column-wise. Blocks with no columns are skipped.
func hstack(rows int, blocks []mat.Matrix) *mat.Dense {
	width := 0
	for _, b := range blocks {
		if r, c := b.Dims(); r > 0 {
			width += c
		}
	}
	if rows == 0 || width == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(rows, width, nil)
	offset := 0
	for _, b := range blocks {
		r, c := b.Dims()
		if r == 0 {
			continue
		}
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}
	return out
}
