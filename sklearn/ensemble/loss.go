// Package ensemble provides the tree ensembles built by the estimator factory:
// random forests, gradient boosting and histogram-based gradient boosting.
package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// logLoss is the binomial / multinomial log loss on raw predictions. Binary problems
// keep a single raw score per sample, multiclass problems one per class.
type logLoss struct {
	nClasses int
}

// nTrees returns the number of trees grown per boosting iteration.
func (l logLoss) nTrees() int {
	if l.nClasses == 2 {
		return 1
	}
	return l.nClasses
}

// baseline returns the raw prediction of the class prior.
func (l logLoss) baseline(yIdx []int) []float64 {
	counts := make([]float64, l.nClasses)
	for _, c := range yIdx {
		counts[c]++
	}
	n := float64(len(yIdx))
	eps := math.Nextafter(1, 2) - 1
	if l.nClasses == 2 {
		p := math.Min(math.Max(counts[1]/n, eps), 1-eps)
		return []float64{math.Log(p / (1 - p))}
	}
	out := make([]float64, l.nClasses)
	for k, c := range counts {
		out[k] = math.Log(math.Max(c/n, eps))
	}
	return out
}

// gradients fills the gradient and hessian of every sample for tree k of the current
// iteration. raw is n × nTrees row-major.
func (l logLoss) gradients(k int, yIdx []int, raw, grad, hess []float64) {
	t := l.nTrees()
	if l.nClasses == 2 {
		for i, c := range yIdx {
			p := errors.Expit(raw[i])
			grad[i] = p - float64(c)
			hess[i] = p * (1 - p)
		}
		return
	}
	prob := make([]float64, t)
	for i, c := range yIdx {
		errors.Softmax(prob, raw[i*t:(i+1)*t])
		y := 0.0
		if c == k {
			y = 1
		}
		grad[i] = prob[k] - y
		hess[i] = prob[k] * (1 - prob[k])
	}
}

// proba converts raw predictions into an n × nClasses probability matrix.
func (l logLoss) proba(raw []float64, n int) *mat.Dense {
	out := mat.NewDense(n, l.nClasses, nil)
	t := l.nTrees()
	for i := 0; i < n; i++ {
		if l.nClasses == 2 {
			p := errors.Expit(raw[i])
			out.Set(i, 0, 1-p)
			out.Set(i, 1, p)
			continue
		}
		errors.Softmax(out.RawRowView(i), raw[i*t:(i+1)*t])
	}
	return out
}

// value returns the mean log loss of raw predictions.
func (l logLoss) value(yIdx []int, raw []float64) float64 {
	P := l.proba(raw, len(yIdx))
	sum := 0.0
	for i, c := range yIdx {
		sum -= errors.StabilizeLog(P.At(i, c))
	}
	return sum / float64(len(yIdx))
}
