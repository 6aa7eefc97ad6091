// Package linear_model provides the logistic regression classifier.
package linear_model

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

const estimatorName = "LogisticRegression"

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "l1", "elasticnet", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	randomState  int64   // Random seed, negative for a random one
	maxIter      int     // Maximum iterations
	multiClass   string  // Multi-class: "auto", "ovr"
	warmStart    bool    // Reuse previous solution
	l1Ratio      float64 // L1 ratio for elastic net
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     []int       // Actual iterations per class
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		randomState:  -1,
		maxIter:      100,
		multiClass:   "auto",
		l1Ratio:      0.5,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed used for the initial weights
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

// Fit trains the logistic regression model. y holds class labels as a column vector.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	if err := lr.validate(); err != nil {
		return err
	}

	warm := lr.warmStart && lr.state.IsFitted() && lr.nFeatures_ == nFeatures
	lr.state.Reset()

	classes := model.UniqueClasses(y)
	if len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "needs samples of at least two classes, got "+strconv.Itoa(len(classes)))
	}
	if warm && !equalInts(classes, lr.classes_) {
		warm = false
	}
	lr.classes_ = classes
	lr.nClasses_ = len(classes)
	lr.nFeatures_ = nFeatures

	if !warm {
		lr.initializeWeights(nFeatures)
	}

	if lr.nClasses_ == 2 {
		err = lr.fitBinary(X, y)
	} else {
		err = lr.fitOVR(X, y)
	}
	if err != nil {
		return err
	}

	for k, it := range lr.nIter_ {
		if it >= lr.maxIter {
			errors.Warn(errors.NewConvergenceWarning("gradient_descent", it,
				"gradient descent did not converge for class "+strconv.Itoa(lr.classes_[k])+"; increase max_iter"))
		}
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	log.GetLoggerWithName("linear_model").Debug("LogisticRegression fitted",
		log.ModelNameKey, estimatorName,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, lr.nClasses_,
		log.IterationKey, lr.nIter_,
	)
	return nil
}

func (lr *LogisticRegression) validate() error {
	if err := model.CheckPositive(estimatorName, "C", lr.C); err != nil {
		return err
	}
	if err := model.CheckMinInt(estimatorName, "max_iter", lr.maxIter, 1); err != nil {
		return err
	}
	if err := model.CheckPositive(estimatorName, "tol", lr.tol); err != nil {
		return err
	}
	return model.CheckRange(estimatorName, "l1_ratio", lr.l1Ratio, 0, 1)
}

// initializeWeights initializes model weights
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	rows := lr.nClasses_
	if rows == 2 {
		rows = 1
	}
	lr.coef_ = make([][]float64, rows)
	for i := range lr.coef_ {
		lr.coef_[i] = make([]float64, nFeatures)
	}
	lr.intercept_ = make([]float64, rows)
	lr.nIter_ = make([]int, rows)

	seed := lr.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	// Initialize with small random values
	for i := range lr.coef_ {
		for j := range lr.coef_[i] {
			lr.coef_[i][j] = rng.NormFloat64() * 0.01
		}
	}
}

// fitBinary fits binary logistic regression using gradient descent
func (lr *LogisticRegression) fitBinary(X, y mat.Matrix) error {
	nSamples, _ := X.Dims()
	yBinary := make([]float64, nSamples)
	for i := range yBinary {
		if int(y.At(i, 0)) == lr.classes_[1] {
			yBinary[i] = 1
		}
	}
	return lr.descend(X, yBinary, 0)
}

// fitOVR fits one-vs-rest multiclass classification
func (lr *LogisticRegression) fitOVR(X, y mat.Matrix) error {
	nSamples, _ := X.Dims()
	for classIdx, class := range lr.classes_ {
		yBinary := make([]float64, nSamples)
		for i := range yBinary {
			if int(y.At(i, 0)) == class {
				yBinary[i] = 1
			}
		}
		if err := lr.descend(X, yBinary, classIdx); err != nil {
			return err
		}
	}
	return nil
}

// descend runs gradient descent on the weights of row k of coef_ against 0/1 targets.
// Weights that overflow stop the descent with a NumericalInstabilityError.
func (lr *LogisticRegression) descend(X mat.Matrix, yBinary []float64, k int) error {
	nSamples, nFeatures := X.Dims()
	weights := lr.coef_[k]
	intercept := &lr.intercept_[k]
	lambda := 1.0 / lr.C
	baseLearningRate := 1.0

	gradWeights := make([]float64, nFeatures)
	for iter := 0; iter < lr.maxIter; iter++ {
		for j := range gradWeights {
			gradWeights[j] = 0
		}
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := errors.Expit(z) - yBinary[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] /= float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		for j, w := range weights {
			gradWeights[j] += lr.penaltyGradient(lambda, w)
		}

		// Adaptive learning rate
		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if lr.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}
		if err := errors.CheckNumericalStability("LogisticRegression.descend", weights, iter); err != nil {
			return err
		}
		if err := errors.CheckScalar("LogisticRegression.descend", *intercept, iter); err != nil {
			return err
		}

		lr.nIter_[k] = iter + 1

		maxGrad := 0.0
		if lr.fitIntercept {
			maxGrad = math.Abs(gradIntercept)
		}
		for _, g := range gradWeights {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < lr.tol {
			break
		}
	}
	return nil
}

// penaltyGradient returns the (sub)gradient of the penalty for a single weight.
func (lr *LogisticRegression) penaltyGradient(lambda, w float64) float64 {
	sign := 0.0
	if w > 0 {
		sign = 1
	} else if w < 0 {
		sign = -1
	}
	switch lr.penalty {
	case "l2":
		return lambda * w
	case "l1":
		return lambda * sign
	case "elasticnet":
		return lambda * (lr.l1Ratio*sign + (1-lr.l1Ratio)*w)
	default:
		return 0
	}
}

// DecisionFunction returns the raw linear scores, (n, 1) for binary models.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if err := lr.state.RequireFitted(estimatorName, "DecisionFunction"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression.DecisionFunction", nFeatures); err != nil {
		return nil, err
	}
	scores := mat.NewDense(nSamples, len(lr.coef_), nil)
	for i := 0; i < nSamples; i++ {
		for k, w := range lr.coef_ {
			z := lr.intercept_[k]
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * w[j]
			}
			scores.Set(i, k, z)
		}
	}
	return scores, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted(estimatorName, "Predict"); err != nil {
		return nil, err
	}
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, lr.classes_), nil
}

// PredictProba returns probability estimates for each class. Multiclass models
// normalize the one-vs-rest probabilities with a softmax over the scores.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted(estimatorName, "PredictProba"); err != nil {
		return nil, err
	}
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p1 := errors.Expit(scores.At(i, 0))
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
		}
		return probas, nil
	}
	for i := 0; i < nSamples; i++ {
		errors.Softmax(probas.RawRowView(i), scores.RawRowView(i))
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int { return append([]int(nil), lr.classes_...) }

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for i, row := range lr.coef_ {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"multi_class":   lr.multiClass,
		"warm_start":    lr.warmStart,
		"l1_ratio":      lr.l1Ratio,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters. Unknown keys and wrongly typed or out of
// range values fail with a ParameterError and leave the model unchanged.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	next := *lr
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			next.penalty, err = model.StringParam(estimatorName, key, value, "l2", "l1", "elasticnet", "none")
		case "C":
			next.C, err = model.FloatParam(estimatorName, key, value)
		case "fit_intercept":
			next.fitIntercept, err = model.BoolParam(estimatorName, key, value)
		case "random_state":
			next.randomState, err = model.Int64Param(estimatorName, key, value)
		case "max_iter":
			next.maxIter, err = model.IntParam(estimatorName, key, value)
		case "multi_class":
			next.multiClass, err = model.StringParam(estimatorName, key, value, "auto", "ovr")
		case "warm_start":
			next.warmStart, err = model.BoolParam(estimatorName, key, value)
		case "l1_ratio":
			next.l1Ratio, err = model.FloatParam(estimatorName, key, value)
		case "tol":
			next.tol, err = model.FloatParam(estimatorName, key, value)
		default:
			err = errors.NewParameterError(estimatorName, key, value, "unknown parameter")
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*lr = next
	return nil
}

// logisticState is the gob form of a LogisticRegression.
type logisticState struct {
	Params    map[string]interface{}
	State     model.ModelState
	Coef      [][]float64
	Intercept []float64
	Classes   []int
	NIter     []int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(logisticState{
		Params:    lr.GetParams(),
		State:     lr.state.GetState(),
		Coef:      lr.coef_,
		Intercept: lr.intercept_,
		Classes:   lr.classes_,
		NIter:     lr.nIter_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var s logisticState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	*lr = *NewLogisticRegression()
	if err := lr.SetParams(s.Params); err != nil {
		return err
	}
	lr.state.SetState(s.State)
	lr.coef_ = s.Coef
	lr.intercept_ = s.Intercept
	lr.classes_ = s.Classes
	lr.nClasses_ = len(s.Classes)
	lr.nFeatures_ = s.State.NFeatures
	lr.nIter_ = s.NIter
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
