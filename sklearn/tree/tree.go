// Package tree provides CART decision trees. The classifier is used on its own and by
// the random forest; the regressor fits the stages of gradient boosting.
package tree

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

const classifierName = "DecisionTreeClassifier"

// DecisionTreeClassifier is a CART classifier compatible with scikit-learn's
// DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion           string // "gini" or "entropy"
	maxDepth            int    // -1 for unlimited
	minSamplesSplit     int
	minSamplesLeaf      int
	minImpurityDecrease float64
	maxFeatures         MaxFeatures
	randomState         int64 // negative for a random seed

	// Fitted state
	classes_  []int
	nClasses_ int
	tree_     *Tree
}

// DecisionTreeOption is a functional option for DecisionTreeClassifier
type DecisionTreeOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a tree with scikit-learn's defaults.
func NewDecisionTreeClassifier(opts ...DecisionTreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       criterionGini,
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

// WithCriterion sets the split criterion ("gini" or "entropy").
func WithCriterion(criterion string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree; -1 means unlimited.
func WithMaxDepth(depth int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features searched per split.
func WithMaxFeatures(m MaxFeatures) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = m }
}

// WithRandomState sets the seed used to draw split features.
func WithRandomState(seed int64) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool { return dt.state.IsFitted() }

// Fit grows the tree on X and the class labels in y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	if _, _, err := model.CheckXY("DecisionTreeClassifier.Fit", X, y); err != nil {
		return err
	}
	classes := model.UniqueClasses(y)
	return dt.FitClasses(X, model.ClassIndices(y, classes), classes, nil)
}

// FitClasses grows the tree on samples whose labels are given as indices into
// classes. Samples with zero weight are ignored; nil weights mean all ones.
func (dt *DecisionTreeClassifier) FitClasses(X mat.Matrix, yIdx []int, classes []int, weights []float64) error {
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if len(yIdx) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(yIdx), 0)
	}
	if weights != nil && len(weights) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(weights), 0)
	}
	dt.state.Reset()

	b := newBuilder(dt.growParams(nFeatures), X, weights, newRand(dt.randomState))
	b.classes = yIdx
	b.nClasses = len(classes)
	dt.tree_ = b.build()
	dt.classes_ = append([]int(nil), classes...)
	dt.nClasses_ = len(classes)

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) growParams(nFeatures int) params {
	return params{
		criterion:           dt.criterion,
		maxDepth:            dt.maxDepth,
		minSamplesSplit:     dt.minSamplesSplit,
		minSamplesLeaf:      dt.minSamplesLeaf,
		minImpurityDecrease: dt.minImpurityDecrease,
		maxFeatures:         dt.maxFeatures.Resolve(nFeatures),
	}
}

func (dt *DecisionTreeClassifier) validate() error {
	if dt.criterion != criterionGini && dt.criterion != criterionEntropy {
		return errors.NewParameterError(classifierName, "criterion", dt.criterion, `expected "gini" or "entropy"`)
	}
	return validateGrowth(classifierName, dt.maxDepth, dt.minSamplesSplit, dt.minSamplesLeaf, dt.minImpurityDecrease)
}

func validateGrowth(estimator string, maxDepth, minSplit, minLeaf int, minDecrease float64) error {
	if maxDepth == 0 || maxDepth < -1 {
		return errors.NewParameterError(estimator, "max_depth", maxDepth, "must be >= 1 or null")
	}
	if err := model.CheckMinInt(estimator, "min_samples_split", minSplit, 2); err != nil {
		return err
	}
	if err := model.CheckMinInt(estimator, "min_samples_leaf", minLeaf, 1); err != nil {
		return err
	}
	if minDecrease < 0 {
		return errors.NewParameterError(estimator, "min_impurity_decrease", minDecrease, "must be >= 0")
	}
	return nil
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

// PredictProba returns the class distribution of the leaf reached by every sample.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted(classifierName, "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, dt.nClasses_, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.tree_.Nodes[dt.tree_.Apply(row)].Value)
	}
	return out, nil
}

// Predict returns the most probable class of every sample.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, dt.classes_), nil
}

// Score returns the mean accuracy on the given data and labels.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if dt.tree_ == nil {
		return nil
	}
	return append([]float64(nil), dt.tree_.Importances...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.MaxDepth
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.NLeaves()
}

// Classes returns the class labels known to the tree.
func (dt *DecisionTreeClassifier) Classes() []int { return append([]int(nil), dt.classes_...) }

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             dt.criterion,
		"max_depth":             dt.maxDepth,
		"min_samples_split":     dt.minSamplesSplit,
		"min_samples_leaf":      dt.minSamplesLeaf,
		"min_impurity_decrease": dt.minImpurityDecrease,
		"max_features":          dt.maxFeatures.Value(),
		"random_state":          dt.randomState,
	}
}

// SetParams sets the model hyperparameters. Failures leave the model unchanged.
func (dt *DecisionTreeClassifier) SetParams(p map[string]interface{}) error {
	next := *dt
	for key, value := range p {
		var err error
		switch key {
		case "criterion":
			next.criterion, err = model.StringParam(classifierName, key, value, criterionGini, criterionEntropy)
		case "max_depth":
			next.maxDepth, err = model.OptionalIntParam(classifierName, key, value)
		case "min_samples_split":
			next.minSamplesSplit, err = model.IntParam(classifierName, key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = model.IntParam(classifierName, key, value)
		case "min_impurity_decrease":
			next.minImpurityDecrease, err = model.FloatParam(classifierName, key, value)
		case "max_features":
			next.maxFeatures, err = ParseMaxFeatures(classifierName, value)
		case "random_state":
			next.randomState, err = model.Int64Param(classifierName, key, value)
		default:
			err = errors.NewParameterError(classifierName, key, value, "unknown parameter")
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*dt = next
	return nil
}

// String returns a short description of the classifier.
func (dt *DecisionTreeClassifier) String() string {
	return "DecisionTreeClassifier(criterion=" + dt.criterion + ", max_depth=" + strconv.Itoa(dt.maxDepth) + ")"
}

type classifierState struct {
	Params  map[string]interface{}
	State   model.ModelState
	Classes []int
	Tree    *Tree
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(classifierState{
		Params:  dt.GetParams(),
		State:   dt.state.GetState(),
		Classes: dt.classes_,
		Tree:    dt.tree_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s classifierState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	*dt = *NewDecisionTreeClassifier()
	if err := dt.SetParams(s.Params); err != nil {
		return err
	}
	dt.state.SetState(s.State)
	dt.classes_ = s.Classes
	dt.nClasses_ = len(s.Classes)
	dt.tree_ = s.Tree
	return nil
}
