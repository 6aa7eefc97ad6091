package ensemble

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/core/parallel"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/sklearn/tree"
)

const forestName = "RandomForestClassifier"

// RandomForestClassifier averages the class distributions of bootstrapped CART trees.
// Tree i is seeded with random_state+i, so the fitted forest does not depend on how
// the trees are scheduled across workers.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     tree.MaxFeatures
	bootstrap       bool
	randomState     int64
	nJobs           int

	classes_    []int
	estimators_ []*tree.DecisionTreeClassifier
}

// ForestOption is a functional option for RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest with scikit-learn's defaults.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     tree.SqrtFeatures,
		bootstrap:       true,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestMaxDepth limits the depth of every tree.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithForestRandomState sets the base seed.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of workers; 0 uses every CPU.
func WithNJobs(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool { return rf.state.IsFitted() }

// Fit grows the trees in parallel.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := rf.validate(); err != nil {
		return err
	}
	rf.state.Reset()
	start := time.Now()

	classes := model.UniqueClasses(y)
	if len(classes) < 2 {
		return errors.NewValueError("RandomForestClassifier.Fit", "needs samples of at least two classes")
	}
	yIdx := model.ClassIndices(y, classes)
	base := rf.randomState
	if base < 0 {
		base = rand.Int63n(1 << 31)
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) error {
		seed := base + int64(i)
		var weights []float64
		if rf.bootstrap {
			weights = bootstrapWeights(nSamples, rand.New(rand.NewSource(seed)))
		}
		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(seed),
		)
		if err := dt.FitClasses(X, yIdx, classes, weights); err != nil {
			return errors.Wrap(err, "tree "+strconv.Itoa(i))
		}
		trees[i] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.classes_ = classes
	rf.estimators_ = trees
	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()
	log.GetLoggerWithName("ensemble").Debug("RandomForestClassifier fitted",
		log.ModelNameKey, forestName,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		"n_estimators", rf.nEstimators,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// bootstrapWeights draws n samples with replacement and returns the draw counts.
func bootstrapWeights(n int, rng *rand.Rand) []float64 {
	w := make([]float64, n)
	for k := 0; k < n; k++ {
		w[rng.Intn(n)]++
	}
	return w
}

func (rf *RandomForestClassifier) validate() error {
	if err := model.CheckMinInt(forestName, "n_estimators", rf.nEstimators, 1); err != nil {
		return err
	}
	if rf.criterion != "gini" && rf.criterion != "entropy" {
		return errors.NewParameterError(forestName, "criterion", rf.criterion, `expected "gini" or "entropy"`)
	}
	if rf.maxDepth == 0 || rf.maxDepth < -1 {
		return errors.NewParameterError(forestName, "max_depth", rf.maxDepth, "must be >= 1 or null")
	}
	if err := model.CheckMinInt(forestName, "min_samples_split", rf.minSamplesSplit, 2); err != nil {
		return err
	}
	if err := model.CheckMinInt(forestName, "min_samples_leaf", rf.minSamplesLeaf, 1); err != nil {
		return err
	}
	return model.CheckMinInt(forestName, "n_jobs", rf.nJobs, -1)
}

// PredictProba averages the class distributions of the trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted(forestName, "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	sum := mat.NewDense(r, len(rf.classes_), nil)
	for _, dt := range rf.estimators_ {
		p, err := dt.PredictProba(X)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, rf.classes_), nil
}

// FeatureImportances returns the mean impurity-based importance over the trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	if len(rf.estimators_) == 0 {
		return nil
	}
	nFeatures, _ := rf.state.GetDimensions()
	out := make([]float64, nFeatures)
	for _, dt := range rf.estimators_ {
		for j, v := range dt.GetFeatureImportances() {
			out[j] += v / float64(len(rf.estimators_))
		}
	}
	return out
}

// Classes returns the class labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []int { return append([]int(nil), rf.classes_...) }

// GetParams returns the model hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures.Value(),
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the model hyperparameters. Failures leave the model unchanged.
func (rf *RandomForestClassifier) SetParams(p map[string]interface{}) error {
	next := *rf
	for key, value := range p {
		var err error
		switch key {
		case "n_estimators":
			next.nEstimators, err = model.IntParam(forestName, key, value)
		case "criterion":
			next.criterion, err = model.StringParam(forestName, key, value, "gini", "entropy")
		case "max_depth":
			next.maxDepth, err = model.OptionalIntParam(forestName, key, value)
		case "min_samples_split":
			next.minSamplesSplit, err = model.IntParam(forestName, key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = model.IntParam(forestName, key, value)
		case "max_features":
			next.maxFeatures, err = tree.ParseMaxFeatures(forestName, value)
		case "bootstrap":
			next.bootstrap, err = model.BoolParam(forestName, key, value)
		case "random_state":
			next.randomState, err = model.Int64Param(forestName, key, value)
		case "n_jobs":
			next.nJobs, err = model.IntParam(forestName, key, value)
		default:
			err = errors.NewParameterError(forestName, key, value, "unknown parameter")
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*rf = next
	return nil
}

type forestState struct {
	Params  map[string]interface{}
	State   model.ModelState
	Classes []int
	Trees   []*tree.DecisionTreeClassifier
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestState{
		Params:  rf.GetParams(),
		State:   rf.state.GetState(),
		Classes: rf.classes_,
		Trees:   rf.estimators_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	*rf = *NewRandomForestClassifier()
	if err := rf.SetParams(s.Params); err != nil {
		return err
	}
	rf.state.SetState(s.State)
	rf.classes_ = s.Classes
	rf.estimators_ = s.Trees
	return nil
}
