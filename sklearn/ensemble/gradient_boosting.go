package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/sklearn/tree"
)

const boostingName = "GradientBoostingClassifier"

// GradientBoostingClassifier fits an additive model of regression trees to the
// negative gradient of the log loss. Leaf values take a single Newton step.
type GradientBoostingClassifier struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	maxFeatures     tree.MaxFeatures
	randomState     int64

	classes_  []int
	baseline_ []float64
	// stages_[m][k] is the tree of iteration m for raw score k.
	stages_     [][]*tree.Tree
	trainLoss_  []float64
	nFeatures_  int
}

// BoostingOption is a functional option for GradientBoostingClassifier.
type BoostingOption func(*GradientBoostingClassifier)

// NewGradientBoostingClassifier creates a booster with scikit-learn's defaults.
func NewGradientBoostingClassifier(opts ...BoostingOption) *GradientBoostingClassifier {
	gb := &GradientBoostingClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
		maxFeatures:     tree.AllFeatures,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// WithBoostingNEstimators sets the number of boosting stages.
func WithBoostingNEstimators(n int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.nEstimators = n }
}

// WithBoostingLearningRate sets the shrinkage applied to every stage.
func WithBoostingLearningRate(lr float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.learningRate = lr }
}

// WithBoostingSubsample sets the fraction of samples drawn for every stage.
func WithBoostingSubsample(f float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.subsample = f }
}

// WithBoostingRandomState sets the seed for subsampling and feature draws.
func WithBoostingRandomState(seed int64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (gb *GradientBoostingClassifier) IsFitted() bool { return gb.state.IsFitted() }

// Fit runs the boosting iterations.
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("GradientBoostingClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := gb.validate(); err != nil {
		return err
	}
	gb.state.Reset()
	start := time.Now()

	classes := model.UniqueClasses(y)
	if len(classes) < 2 {
		return errors.NewValueError("GradientBoostingClassifier.Fit", "needs samples of at least two classes")
	}
	yIdx := model.ClassIndices(y, classes)
	loss := logLoss{nClasses: len(classes)}
	t := loss.nTrees()

	seed := gb.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	baseline := loss.baseline(yIdx)
	raw := make([]float64, nSamples*t)
	for i := 0; i < nSamples; i++ {
		copy(raw[i*t:(i+1)*t], baseline)
	}

	grad := make([]float64, nSamples)
	hess := make([]float64, nSamples)
	residual := make([]float64, nSamples)
	stages := make([][]*tree.Tree, 0, gb.nEstimators)
	trainLoss := make([]float64, 0, gb.nEstimators)

	for m := 0; m < gb.nEstimators; m++ {
		weights := gb.sampleMask(nSamples, rng)
		stage := make([]*tree.Tree, t)
		// every raw score of a stage is fitted against the same predictions
		rawPrev := append([]float64(nil), raw...)
		for k := 0; k < t; k++ {
			loss.gradients(k, yIdx, rawPrev, grad, hess)
			for i := range grad {
				residual[i] = -grad[i]
			}

			reg := tree.NewDecisionTreeRegressor(
				tree.WithRegressorMaxDepth(gb.maxDepth),
				tree.WithRegressorMinSamplesSplit(gb.minSamplesSplit),
				tree.WithRegressorMinSamplesLeaf(gb.minSamplesLeaf),
				tree.WithRegressorMaxFeatures(gb.maxFeatures),
				tree.WithRegressorRandomState(rng.Int63()),
			)
			if err := reg.FitWeighted(X, residual, weights); err != nil {
				return err
			}
			leaves, err := reg.Apply(X)
			if err != nil {
				return err
			}
			tr := reg.Tree()
			newtonLeaves(tr, leaves, weights, grad, hess, t)
			for i, l := range leaves {
				raw[i*t+k] += gb.learningRate * tr.Nodes[l].Value[0]
			}
			stage[k] = tr
		}
		stages = append(stages, stage)
		if err := errors.CheckNumericalStability(boostingName+".Fit", raw, m); err != nil {
			return err
		}
		value := loss.value(yIdx, raw)
		if err := errors.CheckScalar(boostingName+".Fit", value, m); err != nil {
			return err
		}
		trainLoss = append(trainLoss, value)
	}

	gb.classes_ = classes
	gb.baseline_ = baseline
	gb.stages_ = stages
	gb.trainLoss_ = trainLoss
	gb.nFeatures_ = nFeatures
	gb.state.SetDimensions(nFeatures, nSamples)
	gb.state.SetFitted()
	log.GetLoggerWithName("ensemble").Debug("GradientBoostingClassifier fitted",
		log.ModelNameKey, boostingName,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.LossKey, trainLoss[len(trainLoss)-1],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// sampleMask returns 0/1 weights selecting round(subsample*n) samples without
// replacement, or nil when every sample is used.
func (gb *GradientBoostingClassifier) sampleMask(n int, rng *rand.Rand) []float64 {
	if gb.subsample >= 1 {
		return nil
	}
	k := int(math.Max(1, math.Round(gb.subsample*float64(n))))
	w := make([]float64, n)
	for _, i := range rng.Perm(n)[:k] {
		w[i] = 1
	}
	return w
}

// newtonLeaves replaces the leaf means of tr by sum(-g) / sum(h) over the in-bag
// samples of every leaf, scaled by (K-1)/K for K > 1 raw scores.
func newtonLeaves(tr *tree.Tree, leaves []int, weights, grad, hess []float64, k int) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for i, l := range leaves {
		if weights != nil && weights[i] == 0 {
			continue
		}
		num[l] -= grad[i]
		den[l] += hess[i]
	}
	scale := 1.0
	if k > 1 {
		scale = float64(k-1) / float64(k)
	}
	for l := range tr.Nodes {
		if !tr.Nodes[l].IsLeaf() {
			continue
		}
		v := 0.0
		if d := den[l]; math.Abs(d) >= 1e-150 {
			v = scale * num[l] / d
		}
		tr.Nodes[l].Value = []float64{v}
	}
}

func (gb *GradientBoostingClassifier) validate() error {
	if err := model.CheckMinInt(boostingName, "n_estimators", gb.nEstimators, 1); err != nil {
		return err
	}
	if err := model.CheckPositive(boostingName, "learning_rate", gb.learningRate); err != nil {
		return err
	}
	if gb.subsample <= 0 || gb.subsample > 1 {
		return errors.NewParameterError(boostingName, "subsample", gb.subsample, "must be within (0, 1]")
	}
	if gb.maxDepth == 0 || gb.maxDepth < -1 {
		return errors.NewParameterError(boostingName, "max_depth", gb.maxDepth, "must be >= 1 or null")
	}
	if err := model.CheckMinInt(boostingName, "min_samples_split", gb.minSamplesSplit, 2); err != nil {
		return err
	}
	return model.CheckMinInt(boostingName, "min_samples_leaf", gb.minSamplesLeaf, 1)
}

// DecisionFunction returns the raw scores, n × 1 for binary problems.
func (gb *GradientBoostingClassifier) DecisionFunction(X mat.Matrix) ([]float64, error) {
	if err := gb.state.RequireFitted(boostingName, "DecisionFunction"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := gb.state.RequireFeatures("GradientBoostingClassifier.DecisionFunction", c); err != nil {
		return nil, err
	}
	t := len(gb.baseline_)
	raw := make([]float64, r*t)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		scores := raw[i*t : (i+1)*t]
		copy(scores, gb.baseline_)
		for _, stage := range gb.stages_ {
			for k, tr := range stage {
				scores[k] += gb.learningRate * tr.Nodes[tr.Apply(row)].Value[0]
			}
		}
	}
	return raw, nil
}

// PredictProba returns the class probabilities.
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	raw, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	return logLoss{nClasses: len(gb.classes_)}.proba(raw, r), nil
}

// Predict returns the most probable class.
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, gb.classes_), nil
}

// TrainLoss returns the training log loss after every stage.
func (gb *GradientBoostingClassifier) TrainLoss() []float64 {
	return append([]float64(nil), gb.trainLoss_...)
}

// GetParams returns the model hyperparameters.
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      gb.nEstimators,
		"learning_rate":     gb.learningRate,
		"max_depth":         gb.maxDepth,
		"min_samples_split": gb.minSamplesSplit,
		"min_samples_leaf":  gb.minSamplesLeaf,
		"subsample":         gb.subsample,
		"max_features":      gb.maxFeatures.Value(),
		"random_state":      gb.randomState,
	}
}

// SetParams sets the model hyperparameters. Failures leave the model unchanged.
func (gb *GradientBoostingClassifier) SetParams(p map[string]interface{}) error {
	next := *gb
	for key, value := range p {
		var err error
		switch key {
		case "n_estimators":
			next.nEstimators, err = model.IntParam(boostingName, key, value)
		case "learning_rate":
			next.learningRate, err = model.FloatParam(boostingName, key, value)
		case "max_depth":
			next.maxDepth, err = model.OptionalIntParam(boostingName, key, value)
		case "min_samples_split":
			next.minSamplesSplit, err = model.IntParam(boostingName, key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = model.IntParam(boostingName, key, value)
		case "subsample":
			next.subsample, err = model.FloatParam(boostingName, key, value)
		case "max_features":
			next.maxFeatures, err = tree.ParseMaxFeatures(boostingName, value)
		case "random_state":
			next.randomState, err = model.Int64Param(boostingName, key, value)
		default:
			err = errors.NewParameterError(boostingName, key, value, "unknown parameter")
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*gb = next
	return nil
}

type boostingState struct {
	Params    map[string]interface{}
	State     model.ModelState
	Classes   []int
	Baseline  []float64
	Stages    [][]*tree.Tree
	TrainLoss []float64
}

// GobEncode implements gob.GobEncoder.
func (gb *GradientBoostingClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(boostingState{
		Params:    gb.GetParams(),
		State:     gb.state.GetState(),
		Classes:   gb.classes_,
		Baseline:  gb.baseline_,
		Stages:    gb.stages_,
		TrainLoss: gb.trainLoss_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (gb *GradientBoostingClassifier) GobDecode(data []byte) error {
	var s boostingState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	*gb = *NewGradientBoostingClassifier()
	if err := gb.SetParams(s.Params); err != nil {
		return err
	}
	gb.state.SetState(s.State)
	gb.classes_ = s.Classes
	gb.baseline_ = s.Baseline
	gb.stages_ = s.Stages
	gb.trainLoss_ = s.TrainLoss
	gb.nFeatures_ = s.State.NFeatures
	return nil
}
