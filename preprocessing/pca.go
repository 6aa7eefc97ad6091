package preprocessing

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/core/parallel"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Kernels accepted by KernelPCA.
const (
	KernelLinear  = "linear"
	KernelPoly    = "poly"
	KernelRBF     = "rbf"
	KernelSigmoid = "sigmoid"
	KernelCosine  = "cosine"
)

// kernelParallelThreshold is the row count above which kernel rows are computed in
// parallel.
const kernelParallelThreshold = 256

// Kernels lists the accepted kernel names.
var Kernels = []string{KernelLinear, KernelPoly, KernelRBF, KernelSigmoid, KernelCosine}

// KernelPCA projects samples onto the leading eigenvectors of the centered kernel
// matrix of the training set.
type KernelPCA struct {
	State *model.StateManager

	NComponents int
	Kernel      string
	// Gamma <= 0 selects 1/n_features at fit time.
	Gamma  float64
	Degree float64
	Coef0  float64

	// Fitted state
	XFit        []float64 // row-major n_samples × n_features
	GammaFit    float64
	Eigenvalues []float64
	// ScaledAlphas is n_samples × n_components, eigenvectors divided by sqrt(eigenvalue).
	ScaledAlphas []float64
	KFitRows     []float64
	KFitAll      float64
}

// NewKernelPCA creates a KernelPCA with sklearn's default kernel parameters.
func NewKernelPCA(nComponents int, kernel string) (*KernelPCA, error) {
	if nComponents < 1 {
		return nil, errors.NewConfigError("feature.pca_components", nComponents, []string{">= 1"})
	}
	switch kernel {
	case KernelLinear, KernelPoly, KernelRBF, KernelSigmoid, KernelCosine:
	default:
		return nil, errors.NewConfigError("feature.pca_kernel", kernel, Kernels)
	}
	return &KernelPCA{
		State:       model.NewStateManager(),
		NComponents: nComponents,
		Kernel:      kernel,
		Degree:      3,
		Coef0:       1,
	}, nil
}

// IsFitted reports whether Fit has completed.
func (k *KernelPCA) IsFitted() bool { return k.State.IsFitted() }

// Components returns the number of output columns after Fit.
func (k *KernelPCA) Components() int {
	_, n := k.State.GetDimensions()
	if n < k.NComponents {
		return n
	}
	return k.NComponents
}

// Fit eigendecomposes the centered training kernel. More components than samples are
// clamped to the sample count.
func (k *KernelPCA) Fit(X mat.Matrix) error {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError("KernelPCA.Fit", "empty data", errors.ErrEmptyData)
	}
	k.State.Reset()

	k.XFit = make([]float64, n*d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			k.XFit[i*d+j] = X.At(i, j)
		}
	}
	k.GammaFit = k.Gamma
	if k.GammaFit <= 0 {
		k.GammaFit = 1 / float64(d)
	}

	K := k.kernelMatrix(n, d)
	k.KFitRows = make([]float64, n)
	for j := 0; j < n; j++ {
		k.KFitRows[j] = floats.Sum(K.RawRowView(j)) / float64(n)
	}
	k.KFitAll = floats.Sum(k.KFitRows) / float64(n)

	centered := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			centered.SetSym(i, j, K.At(i, j)-k.KFitRows[i]-k.KFitRows[j]+k.KFitAll)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(centered, true); !ok {
		return errors.NewModelError("KernelPCA.Fit", "eigendecomposition failed", errors.ErrSingularMatrix)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	nc := k.NComponents
	if nc > n {
		log.GetLoggerWithName("preprocessing").Warn("KernelPCA components exceed the sample count",
			"n_components", nc, log.SamplesKey, n)
		nc = n
	}
	k.Eigenvalues = make([]float64, nc)
	k.ScaledAlphas = make([]float64, n*nc)
	col := make([]float64, n)
	for c := 0; c < nc; c++ {
		lambda := values[order[c]]
		if lambda < 0 {
			lambda = 0
		}
		k.Eigenvalues[c] = lambda
		mat.Col(col, order[c], &vectors)
		flipSign(col)
		if lambda == 0 {
			continue
		}
		s := math.Sqrt(lambda)
		for i := 0; i < n; i++ {
			k.ScaledAlphas[i*nc+c] = col[i] / s
		}
	}

	k.State.SetDimensions(d, n)
	k.State.SetFitted()
	return nil
}

// Transform projects X onto the fitted components.
func (k *KernelPCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := k.State.RequireFitted("KernelPCA", "Transform"); err != nil {
		return nil, err
	}
	m, d := X.Dims()
	if err := k.State.RequireFeatures("KernelPCA.Transform", d); err != nil {
		return nil, err
	}
	n := len(k.KFitRows)
	nc := len(k.Eigenvalues)

	fit := mat.NewDense(n, d, k.XFit)
	Kx := mat.NewDense(m, n, nil)
	parallel.ParallelizeWithThreshold(m, kernelParallelThreshold, func(start, end int) {
		row := make([]float64, d)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			for j := 0; j < n; j++ {
				Kx.Set(i, j, k.kernel(row, fit.RawRowView(j)))
			}
		}
	})
	for i := 0; i < m; i++ {
		r := Kx.RawRowView(i)
		mean := floats.Sum(r) / float64(n)
		for j := range r {
			r[j] = r[j] - k.KFitRows[j] - mean + k.KFitAll
		}
	}

	out := mat.NewDense(m, nc, nil)
	out.Mul(Kx, mat.NewDense(n, nc, k.ScaledAlphas))
	return out, nil
}

// FitTransform fits on X and transforms it.
func (k *KernelPCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := k.Fit(X); err != nil {
		return nil, err
	}
	return k.Transform(X)
}

// GetParams returns the KernelPCA parameters.
func (k *KernelPCA) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_components": k.NComponents,
		"kernel":       k.Kernel,
		"gamma":        k.Gamma,
		"degree":       k.Degree,
		"coef0":        k.Coef0,
	}
}

// FeatureNames returns pca0, pca1, ...
func (k *KernelPCA) FeatureNames() []string {
	out := make([]string, len(k.Eigenvalues))
	for i := range out {
		out[i] = "pca" + strconv.Itoa(i)
	}
	return out
}

func (k *KernelPCA) kernelMatrix(n, d int) *mat.Dense {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = k.XFit[i*d : (i+1)*d]
	}
	K := mat.NewDense(n, n, nil)
	// each unordered pair is written by exactly one worker
	parallel.ParallelizeWithThreshold(n, kernelParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := i; j < n; j++ {
				v := k.kernel(rows[i], rows[j])
				K.Set(i, j, v)
				K.Set(j, i, v)
			}
		}
	})
	return K
}

func (k *KernelPCA) kernel(a, b []float64) float64 {
	switch k.Kernel {
	case KernelPoly:
		return math.Pow(k.GammaFit*floats.Dot(a, b)+k.Coef0, k.Degree)
	case KernelRBF:
		d := floats.Distance(a, b, 2)
		return math.Exp(-k.GammaFit * d * d)
	case KernelSigmoid:
		return math.Tanh(k.GammaFit*floats.Dot(a, b) + k.Coef0)
	case KernelCosine:
		na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
		if na == 0 || nb == 0 {
			return 0
		}
		return floats.Dot(a, b) / (na * nb)
	default:
		return floats.Dot(a, b)
	}
}

// flipSign makes the entry with the largest magnitude positive so that the
// decomposition is deterministic.
func flipSign(v []float64) {
	idx := floats.MaxIdx(absCopy(v))
	if v[idx] < 0 {
		floats.Scale(-1, v)
	}
}

func absCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
