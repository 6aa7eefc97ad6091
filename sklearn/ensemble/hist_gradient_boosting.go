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

const (
	histName = "HistGradientBoostingClassifier"

	// minHessianToSplit is the smallest hessian sum allowed in a child.
	minHessianToSplit = 1e-3
)

// HistGradientBoostingClassifier is a gradient booster over binned features.
// Trees grow leaf-wise: the leaf with the largest gain is split first until
// max_leaf_nodes is reached.
type HistGradientBoostingClassifier struct {
	state *model.StateManager

	learningRate     float64
	maxIter          int
	maxLeafNodes     int
	maxDepth         int
	minSamplesLeaf   int
	l2Regularization float64
	maxBins          int
	earlyStopping    bool
	nIterNoChange    int
	tol              float64
	randomState      int64

	classes_   []int
	baseline_  []float64
	// trees_[m][k] hold leaf values already scaled by the learning rate.
	trees_     [][]*tree.Tree
	trainLoss_ []float64
	nIter_     int
}

// HistOption is a functional option for HistGradientBoostingClassifier.
type HistOption func(*HistGradientBoostingClassifier)

// NewHistGradientBoostingClassifier creates a booster with scikit-learn's defaults.
func NewHistGradientBoostingClassifier(opts ...HistOption) *HistGradientBoostingClassifier {
	h := &HistGradientBoostingClassifier{
		state:          model.NewStateManager(),
		learningRate:   0.1,
		maxIter:        100,
		maxLeafNodes:   31,
		maxDepth:       -1,
		minSamplesLeaf: 20,
		maxBins:        255,
		nIterNoChange:  10,
		tol:            1e-7,
		randomState:    -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithHistMaxIter sets the number of boosting iterations.
func WithHistMaxIter(n int) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.maxIter = n }
}

// WithHistLearningRate sets the shrinkage of the leaf values.
func WithHistLearningRate(lr float64) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.learningRate = lr }
}

// WithHistMinSamplesLeaf sets the minimum number of samples per leaf.
func WithHistMinSamplesLeaf(n int) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.minSamplesLeaf = n }
}

// WithHistMaxLeafNodes sets the maximum number of leaves per tree.
func WithHistMaxLeafNodes(n int) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.maxLeafNodes = n }
}

// WithHistEarlyStopping stops when the training loss stops improving.
func WithHistEarlyStopping(enabled bool) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.earlyStopping = enabled }
}

// WithHistRandomState sets the seed used when subsampling rows for binning.
func WithHistRandomState(seed int64) HistOption {
	return func(h *HistGradientBoostingClassifier) { h.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (h *HistGradientBoostingClassifier) IsFitted() bool { return h.state.IsFitted() }

// Fit bins X and runs the boosting iterations.
func (h *HistGradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("HistGradientBoostingClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := h.validate(); err != nil {
		return err
	}
	h.state.Reset()
	start := time.Now()

	classes := model.UniqueClasses(y)
	if len(classes) < 2 {
		return errors.NewValueError("HistGradientBoostingClassifier.Fit", "needs samples of at least two classes")
	}
	yIdx := model.ClassIndices(y, classes)
	loss := logLoss{nClasses: len(classes)}
	t := loss.nTrees()

	seed := h.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	mapper := fitBinMapper(X, h.maxBins, rand.New(rand.NewSource(seed)))
	binned := mapper.transform(X)

	baseline := loss.baseline(yIdx)
	raw := make([]float64, nSamples*t)
	for i := 0; i < nSamples; i++ {
		copy(raw[i*t:(i+1)*t], baseline)
	}
	grad := make([]float64, nSamples)
	hess := make([]float64, nSamples)

	g := &histGrower{
		mapper:         mapper,
		binned:         binned,
		grad:           grad,
		hess:           hess,
		learningRate:   h.learningRate,
		maxLeafNodes:   h.maxLeafNodes,
		maxDepth:       h.maxDepth,
		minSamplesLeaf: h.minSamplesLeaf,
		l2:             h.l2Regularization,
	}

	trees := make([][]*tree.Tree, 0, h.maxIter)
	trainLoss := make([]float64, 0, h.maxIter)
	for m := 0; m < h.maxIter; m++ {
		rawPrev := append([]float64(nil), raw...)
		stage := make([]*tree.Tree, t)
		for k := 0; k < t; k++ {
			loss.gradients(k, yIdx, rawPrev, grad, hess)
			tr, leafOf := g.grow(nFeatures)
			for i := 0; i < nSamples; i++ {
				raw[i*t+k] += tr.Nodes[leafOf[i]].Value[0]
			}
			stage[k] = tr
		}
		trees = append(trees, stage)
		if err := errors.CheckNumericalStability(histName+".Fit", raw, m); err != nil {
			return err
		}
		value := loss.value(yIdx, raw)
		if err := errors.CheckScalar(histName+".Fit", value, m); err != nil {
			return err
		}
		trainLoss = append(trainLoss, value)
		if h.earlyStopping && h.shouldStop(trainLoss) {
			break
		}
	}

	h.classes_ = classes
	h.baseline_ = baseline
	h.trees_ = trees
	h.trainLoss_ = trainLoss
	h.nIter_ = len(trees)
	h.state.SetDimensions(nFeatures, nSamples)
	h.state.SetFitted()
	log.GetLoggerWithName("ensemble").Debug("HistGradientBoostingClassifier fitted",
		log.ModelNameKey, histName,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, h.nIter_,
		log.LossKey, trainLoss[len(trainLoss)-1],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// shouldStop reports whether none of the last nIterNoChange iterations improved the
// reference loss by more than tol.
func (h *HistGradientBoostingClassifier) shouldStop(losses []float64) bool {
	if len(losses) <= h.nIterNoChange {
		return false
	}
	ref := losses[len(losses)-h.nIterNoChange-1]
	for _, l := range losses[len(losses)-h.nIterNoChange:] {
		if l < ref-h.tol {
			return false
		}
	}
	return true
}

func (h *HistGradientBoostingClassifier) validate() error {
	if err := model.CheckPositive(histName, "learning_rate", h.learningRate); err != nil {
		return err
	}
	if err := model.CheckMinInt(histName, "max_iter", h.maxIter, 1); err != nil {
		return err
	}
	if err := model.CheckMinInt(histName, "max_leaf_nodes", h.maxLeafNodes, 2); err != nil {
		return err
	}
	if h.maxDepth == 0 || h.maxDepth < -1 {
		return errors.NewParameterError(histName, "max_depth", h.maxDepth, "must be >= 1 or null")
	}
	if err := model.CheckMinInt(histName, "min_samples_leaf", h.minSamplesLeaf, 1); err != nil {
		return err
	}
	if h.l2Regularization < 0 {
		return errors.NewParameterError(histName, "l2_regularization", h.l2Regularization, "must be >= 0")
	}
	if h.maxBins < 2 || h.maxBins > 255 {
		return errors.NewParameterError(histName, "max_bins", h.maxBins, "must be within [2, 255]")
	}
	if err := model.CheckMinInt(histName, "n_iter_no_change", h.nIterNoChange, 1); err != nil {
		return err
	}
	if h.tol < 0 {
		return errors.NewParameterError(histName, "tol", h.tol, "must be >= 0")
	}
	return nil
}

// DecisionFunction returns the raw scores, n × 1 for binary problems.
func (h *HistGradientBoostingClassifier) DecisionFunction(X mat.Matrix) ([]float64, error) {
	if err := h.state.RequireFitted(histName, "DecisionFunction"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := h.state.RequireFeatures("HistGradientBoostingClassifier.DecisionFunction", c); err != nil {
		return nil, err
	}
	t := len(h.baseline_)
	raw := make([]float64, r*t)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		scores := raw[i*t : (i+1)*t]
		copy(scores, h.baseline_)
		for _, stage := range h.trees_ {
			for k, tr := range stage {
				scores[k] += tr.Nodes[tr.Apply(row)].Value[0]
			}
		}
	}
	return raw, nil
}

// PredictProba returns the class probabilities.
func (h *HistGradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	raw, err := h.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	return logLoss{nClasses: len(h.classes_)}.proba(raw, r), nil
}

// Predict returns the most probable class.
func (h *HistGradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := h.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, h.classes_), nil
}

// NIter returns the number of iterations actually run.
func (h *HistGradientBoostingClassifier) NIter() int { return h.nIter_ }

// TrainLoss returns the training log loss after every iteration.
func (h *HistGradientBoostingClassifier) TrainLoss() []float64 {
	return append([]float64(nil), h.trainLoss_...)
}

// GetParams returns the model hyperparameters.
func (h *HistGradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate":     h.learningRate,
		"max_iter":          h.maxIter,
		"max_leaf_nodes":    h.maxLeafNodes,
		"max_depth":         h.maxDepth,
		"min_samples_leaf":  h.minSamplesLeaf,
		"l2_regularization": h.l2Regularization,
		"max_bins":          h.maxBins,
		"early_stopping":    h.earlyStopping,
		"n_iter_no_change":  h.nIterNoChange,
		"tol":               h.tol,
		"random_state":      h.randomState,
	}
}

// SetParams sets the model hyperparameters. Failures leave the model unchanged.
func (h *HistGradientBoostingClassifier) SetParams(p map[string]interface{}) error {
	next := *h
	for key, value := range p {
		var err error
		switch key {
		case "learning_rate":
			next.learningRate, err = model.FloatParam(histName, key, value)
		case "max_iter":
			next.maxIter, err = model.IntParam(histName, key, value)
		case "max_leaf_nodes":
			next.maxLeafNodes, err = model.IntParam(histName, key, value)
		case "max_depth":
			next.maxDepth, err = model.OptionalIntParam(histName, key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = model.IntParam(histName, key, value)
		case "l2_regularization":
			next.l2Regularization, err = model.FloatParam(histName, key, value)
		case "max_bins":
			next.maxBins, err = model.IntParam(histName, key, value)
		case "early_stopping":
			next.earlyStopping, err = model.BoolParam(histName, key, value)
		case "n_iter_no_change":
			next.nIterNoChange, err = model.IntParam(histName, key, value)
		case "tol":
			next.tol, err = model.FloatParam(histName, key, value)
		case "random_state":
			next.randomState, err = model.Int64Param(histName, key, value)
		default:
			err = errors.NewParameterError(histName, key, value, "unknown parameter")
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*h = next
	return nil
}

type histState struct {
	Params    map[string]interface{}
	State     model.ModelState
	Classes   []int
	Baseline  []float64
	Trees     [][]*tree.Tree
	TrainLoss []float64
}

// GobEncode implements gob.GobEncoder.
func (h *HistGradientBoostingClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(histState{
		Params:    h.GetParams(),
		State:     h.state.GetState(),
		Classes:   h.classes_,
		Baseline:  h.baseline_,
		Trees:     h.trees_,
		TrainLoss: h.trainLoss_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (h *HistGradientBoostingClassifier) GobDecode(data []byte) error {
	var s histState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	*h = *NewHistGradientBoostingClassifier()
	if err := h.SetParams(s.Params); err != nil {
		return err
	}
	h.state.SetState(s.State)
	h.classes_ = s.Classes
	h.baseline_ = s.Baseline
	h.trees_ = s.Trees
	h.trainLoss_ = s.TrainLoss
	h.nIter_ = len(s.Trees)
	return nil
}

// histGrower grows one leaf-wise tree on the binned data for the current gradients.
type histGrower struct {
	mapper binMapper
	binned [][]uint8
	grad   []float64
	hess   []float64

	learningRate   float64
	maxLeafNodes   int
	maxDepth       int
	minSamplesLeaf int
	l2             float64
}

type histSplit struct {
	valid   bool
	gain    float64
	feature int
	bin     int
}

type growNode struct {
	id      int
	samples []int
	depth   int
	sumG    float64
	sumH    float64
	split   histSplit
}

// grow returns the fitted tree and the leaf every training sample ends in.
func (g *histGrower) grow(nFeatures int) (*tree.Tree, []int) {
	n := len(g.grad)
	root := &growNode{samples: make([]int, n)}
	for i := range root.samples {
		root.samples[i] = i
		root.sumG += g.grad[i]
		root.sumH += g.hess[i]
	}
	tr := &tree.Tree{NFeatures: nFeatures, Importances: make([]float64, nFeatures)}
	tr.Nodes = append(tr.Nodes, g.node(root))
	g.findSplit(root)

	open := []*growNode{root}
	leaves := 1
	for leaves < g.maxLeafNodes {
		best := -1
		for i, c := range open {
			if c.split.valid && (best < 0 || c.split.gain > open[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		parent := open[best]
		open = append(open[:best], open[best+1:]...)

		left, right := g.partition(parent)
		left.id = len(tr.Nodes)
		tr.Nodes = append(tr.Nodes, g.node(left))
		right.id = len(tr.Nodes)
		tr.Nodes = append(tr.Nodes, g.node(right))

		pn := &tr.Nodes[parent.id]
		pn.Feature = parent.split.feature
		pn.Threshold = g.mapper.Thresholds[parent.split.feature][parent.split.bin]
		pn.Left = left.id
		pn.Right = right.id
		tr.Importances[parent.split.feature] += parent.split.gain
		if d := parent.depth + 1; d > tr.MaxDepth {
			tr.MaxDepth = d
		}
		leaves++

		for _, c := range []*growNode{left, right} {
			if g.maxDepth < 0 || c.depth < g.maxDepth {
				g.findSplit(c)
			}
			open = append(open, c)
		}
	}

	leafOf := make([]int, n)
	for _, c := range open {
		for _, i := range c.samples {
			leafOf[i] = c.id
		}
	}
	normalize(tr.Importances)
	return tr, leafOf
}

// node returns the tree node of c as a leaf with its shrunk Newton value.
func (g *histGrower) node(c *growNode) tree.Node {
	return tree.Node{
		Feature:  -1,
		Left:     tree.TreeLeaf,
		Right:    tree.TreeLeaf,
		Value:    []float64{-g.learningRate * c.sumG / (c.sumH + g.l2)},
		NSamples: len(c.samples),
		Weight:   c.sumH,
	}
}

// findSplit stores the best split of c over every feature and bin boundary.
func (g *histGrower) findSplit(c *growNode) {
	c.split = histSplit{}
	if len(c.samples) < 2*g.minSamplesLeaf || c.sumH < 2*minHessianToSplit {
		return
	}
	parentScore := c.sumG * c.sumG / (c.sumH + g.l2)
	for f, bins := range g.binned {
		nb := g.mapper.nBins(f)
		if nb < 2 {
			continue
		}
		histG := make([]float64, nb)
		histH := make([]float64, nb)
		histC := make([]int, nb)
		for _, i := range c.samples {
			b := bins[i]
			histG[b] += g.grad[i]
			histH[b] += g.hess[i]
			histC[b]++
		}
		var gl, hl float64
		cl := 0
		for b := 0; b < nb-1; b++ {
			gl += histG[b]
			hl += histH[b]
			cl += histC[b]
			cr := len(c.samples) - cl
			if cl < g.minSamplesLeaf {
				continue
			}
			if cr < g.minSamplesLeaf {
				break
			}
			hr := c.sumH - hl
			if hl < minHessianToSplit || hr < minHessianToSplit {
				continue
			}
			gr := c.sumG - gl
			gain := gl*gl/(hl+g.l2) + gr*gr/(hr+g.l2) - parentScore
			if gain > 1e-12 && (!c.split.valid || gain > c.split.gain) {
				c.split = histSplit{valid: true, gain: gain, feature: f, bin: b}
			}
		}
	}
}

// partition splits the samples of c on its best split.
func (g *histGrower) partition(c *growNode) (*growNode, *growNode) {
	bins := g.binned[c.split.feature]
	left := &growNode{depth: c.depth + 1}
	right := &growNode{depth: c.depth + 1}
	for _, i := range c.samples {
		if int(bins[i]) <= c.split.bin {
			left.samples = append(left.samples, i)
			left.sumG += g.grad[i]
			left.sumH += g.hess[i]
		} else {
			right.samples = append(right.samples, i)
			right.sumG += g.grad[i]
			right.sumH += g.hess[i]
		}
	}
	return left, right
}

func normalize(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total <= 0 || math.IsNaN(total) {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
