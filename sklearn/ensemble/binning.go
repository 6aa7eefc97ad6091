package ensemble

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// binSubsample bounds the number of rows used to compute the bin thresholds.
const binSubsample = 200000

// binMapper maps continuous features to at most maxBins integer bins. A value x
// falls into the first bin b with x <= Thresholds[f][b]; values above every
// threshold fall into the last bin.
type binMapper struct {
	Thresholds [][]float64
}

// fitBinMapper computes per-feature thresholds. Features with few distinct values get
// midpoints between consecutive values, the others quantiles.
func fitBinMapper(X mat.Matrix, maxBins int, rng *rand.Rand) binMapper {
	n, d := X.Dims()
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	if n > binSubsample {
		rows = rng.Perm(n)[:binSubsample]
		sort.Ints(rows)
	}

	bm := binMapper{Thresholds: make([][]float64, d)}
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		for k, i := range rows {
			col[k] = X.At(i, j)
		}
		sort.Float64s(col)
		distinct := uniqueSorted(col)
		if len(distinct) <= maxBins {
			thr := make([]float64, 0, len(distinct))
			for k := 0; k+1 < len(distinct); k++ {
				thr = append(thr, (distinct[k]+distinct[k+1])/2)
			}
			bm.Thresholds[j] = thr
			continue
		}
		thr := make([]float64, 0, maxBins-1)
		for b := 1; b < maxBins; b++ {
			q := stat.Quantile(float64(b)/float64(maxBins), stat.LinInterp, col, nil)
			if len(thr) == 0 || q > thr[len(thr)-1] {
				thr = append(thr, q)
			}
		}
		bm.Thresholds[j] = thr
	}
	return bm
}

// transform returns the binned data feature-major: out[f][i] is the bin of X[i, f].
func (bm binMapper) transform(X mat.Matrix) [][]uint8 {
	n, d := X.Dims()
	out := make([][]uint8, d)
	for j := 0; j < d; j++ {
		thr := bm.Thresholds[j]
		out[j] = make([]uint8, n)
		for i := 0; i < n; i++ {
			out[j][i] = uint8(sort.SearchFloat64s(thr, X.At(i, j)))
		}
	}
	return out
}

// nBins returns the number of bins of feature j.
func (bm binMapper) nBins(j int) int { return len(bm.Thresholds[j]) + 1 }

func uniqueSorted(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for i, x := range v {
		if i == 0 || x != v[i-1] {
			out = append(out, x)
		}
	}
	return out
}
