package tree

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

const regressorName = "DecisionTreeRegressor"

// DecisionTreeRegressor is a CART regressor with the squared error criterion.
// Gradient boosting fits one per stage and rewrites its leaf values.
type DecisionTreeRegressor struct {
	state *model.StateManager

	maxDepth            int
	minSamplesSplit     int
	minSamplesLeaf      int
	minImpurityDecrease float64
	maxFeatures         MaxFeatures
	randomState         int64

	tree_ *Tree
}

// RegressorOption is a functional option for DecisionTreeRegressor.
type RegressorOption func(*DecisionTreeRegressor)

// NewDecisionTreeRegressor creates a regressor with scikit-learn's defaults.
func NewDecisionTreeRegressor(opts ...RegressorOption) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:           model.NewStateManager(),
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     AllFeatures,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithRegressorMaxDepth limits the depth of the tree.
func WithRegressorMaxDepth(depth int) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.maxDepth = depth }
}

// WithRegressorMinSamplesSplit sets the minimum number of samples to split a node.
func WithRegressorMinSamplesSplit(n int) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesSplit = n }
}

// WithRegressorMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithRegressorMinSamplesLeaf(n int) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesLeaf = n }
}

// WithRegressorMinImpurityDecrease sets the minimum weighted impurity decrease of a split.
func WithRegressorMinImpurityDecrease(v float64) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.minImpurityDecrease = v }
}

// WithRegressorMaxFeatures sets the number of features searched per split.
func WithRegressorMaxFeatures(m MaxFeatures) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.maxFeatures = m }
}

// WithRegressorRandomState sets the seed used to draw split features.
func WithRegressorRandomState(seed int64) RegressorOption {
	return func(dt *DecisionTreeRegressor) { dt.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeRegressor) IsFitted() bool { return dt.state.IsFitted() }

// Fit grows the tree on X and the targets in the column vector y.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	if _, _, err := model.CheckXY("DecisionTreeRegressor.Fit", X, y); err != nil {
		return err
	}
	return dt.FitWeighted(X, mat.Col(nil, 0, y), nil)
}

// FitWeighted grows the tree with per-sample weights; nil or empty weights mean all ones.
func (dt *DecisionTreeRegressor) FitWeighted(X mat.Matrix, target, weights []float64) error {
	if err := validateGrowth(regressorName, dt.maxDepth, dt.minSamplesSplit, dt.minSamplesLeaf, dt.minImpurityDecrease); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if len(target) != nSamples {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", nSamples, len(target), 0)
	}
	if len(weights) == 0 {
		weights = nil
	} else if len(weights) != nSamples {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", nSamples, len(weights), 0)
	}
	dt.state.Reset()

	p := params{
		criterion:           criterionMSE,
		maxDepth:            dt.maxDepth,
		minSamplesSplit:     dt.minSamplesSplit,
		minSamplesLeaf:      dt.minSamplesLeaf,
		minImpurityDecrease: dt.minImpurityDecrease,
		maxFeatures:         dt.maxFeatures.Resolve(nFeatures),
	}
	b := newBuilder(p, X, weights, newRand(dt.randomState))
	b.target = target
	dt.tree_ = b.build()

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

// Predict returns the leaf value reached by every sample as an (n, 1) matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	leaves, err := dt.Apply(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(leaves), 1, nil)
	for i, l := range leaves {
		out.Set(i, 0, dt.tree_.Nodes[l].Value[0])
	}
	return out, nil
}

// Apply returns the index of the leaf reached by every sample.
func (dt *DecisionTreeRegressor) Apply(X mat.Matrix) ([]int, error) {
	if err := dt.state.RequireFitted(regressorName, "Apply"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeRegressor.Apply", c); err != nil {
		return nil, err
	}
	out := make([]int, r)
	row := make([]float64, c)
	for i := range out {
		mat.Row(row, i, X)
		out[i] = dt.tree_.Apply(row)
	}
	return out, nil
}

// Tree returns the fitted structure. Callers may rewrite leaf values.
func (dt *DecisionTreeRegressor) Tree() *Tree { return dt.tree_ }

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             criterionMSE,
		"max_depth":             dt.maxDepth,
		"min_samples_split":     dt.minSamplesSplit,
		"min_samples_leaf":      dt.minSamplesLeaf,
		"min_impurity_decrease": dt.minImpurityDecrease,
		"max_features":          dt.maxFeatures.Value(),
		"random_state":          dt.randomState,
	}
}
