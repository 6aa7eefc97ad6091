package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TreeLeaf marks the child index of a leaf node.
const TreeLeaf = -1

// Node is a node of a fitted tree stored in a flat slice. Samples with
// X[Feature] <= Threshold go to Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int

	// Value is the class distribution (classification) or the mean target (regression).
	Value    []float64
	Impurity float64
	NSamples int
	// Weight is the total sample weight that reached the node.
	Weight float64
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return n.Left == TreeLeaf }

// Tree is the fitted structure shared by the classifier and the regressor.
type Tree struct {
	Nodes       []Node
	NFeatures   int
	MaxDepth    int
	Importances []float64
}

// Apply returns the leaf index reached by row.
func (t *Tree) Apply(row []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// criterion names
const (
	criterionGini    = "gini"
	criterionEntropy = "entropy"
	criterionMSE     = "squared_error"
)

// params are the growth limits shared by both tree kinds.
type params struct {
	criterion           string
	maxDepth            int // < 0 means unlimited
	minSamplesSplit     int
	minSamplesLeaf      int
	minImpurityDecrease float64
	maxFeatures         int // <= 0 or >= nFeatures means all
}

// builder grows a tree depth first.
type builder struct {
	params
	cols     [][]float64 // feature-major copy of X
	classes  []int       // class index per sample (classification)
	nClasses int
	target   []float64 // regression target
	weights  []float64
	rng      *rand.Rand

	totalWeight float64
	tree        *Tree
}

func newBuilder(p params, X mat.Matrix, weights []float64, rng *rand.Rand) *builder {
	n, d := X.Dims()
	cols := make([][]float64, d)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	return &builder{
		params:  p,
		cols:    cols,
		weights: weights,
		rng:     rng,
		tree:    &Tree{NFeatures: d, Importances: make([]float64, d)},
	}
}

func (b *builder) classification() bool { return b.criterion != criterionMSE }

// build grows the tree from the samples with positive weight.
func (b *builder) build() *Tree {
	samples := make([]int, 0, len(b.weights))
	for i, w := range b.weights {
		if w > 0 {
			samples = append(samples, i)
			b.totalWeight += w
		}
	}
	b.grow(samples, 0)

	total := 0.0
	for _, v := range b.tree.Importances {
		total += v
	}
	if total > 0 {
		for j := range b.tree.Importances {
			b.tree.Importances[j] /= total
		}
	}
	return b.tree
}

// stats accumulates weighted class counts or target moments.
type stats struct {
	counts []float64
	sum    float64
	sumSq  float64
	weight float64
	n      int
}

func (b *builder) newStats() stats {
	if b.classification() {
		return stats{counts: make([]float64, b.nClasses)}
	}
	return stats{}
}

func (b *builder) add(s *stats, i int) {
	w := b.weights[i]
	s.weight += w
	s.n++
	if b.classification() {
		s.counts[b.classes[i]] += w
		return
	}
	s.sum += w * b.target[i]
	s.sumSq += w * b.target[i] * b.target[i]
}

func (b *builder) remove(s *stats, i int) {
	w := b.weights[i]
	s.weight -= w
	s.n--
	if b.classification() {
		s.counts[b.classes[i]] -= w
		return
	}
	s.sum -= w * b.target[i]
	s.sumSq -= w * b.target[i] * b.target[i]
}

func (b *builder) impurity(s *stats) float64 {
	if s.weight <= 0 {
		return 0
	}
	switch b.criterion {
	case criterionEntropy:
		h := 0.0
		for _, c := range s.counts {
			if c > 0 {
				p := c / s.weight
				h -= p * math.Log2(p)
			}
		}
		return h
	case criterionMSE:
		mean := s.sum / s.weight
		return math.Max(s.sumSq/s.weight-mean*mean, 0)
	default:
		g := 1.0
		for _, c := range s.counts {
			p := c / s.weight
			g -= p * p
		}
		return g
	}
}

func (b *builder) value(s *stats) []float64 {
	if !b.classification() {
		if s.weight <= 0 {
			return []float64{0}
		}
		return []float64{s.sum / s.weight}
	}
	v := make([]float64, b.nClasses)
	for k, c := range s.counts {
		v[k] = c / s.weight
	}
	return v
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left in the order sorted by feature
	childImp  float64
	order     []int
	found     bool
}

// grow adds the node for samples and its subtree; it returns the node index.
func (b *builder) grow(samples []int, depth int) int {
	s := b.newStats()
	for _, i := range samples {
		b.add(&s, i)
	}
	imp := b.impurity(&s)

	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature:  -1,
		Left:     TreeLeaf,
		Right:    TreeLeaf,
		Value:    b.value(&s),
		Impurity: imp,
		NSamples: len(samples),
		Weight:   s.weight,
	})
	if depth > b.tree.MaxDepth {
		b.tree.MaxDepth = depth
	}

	n := len(samples)
	if (b.maxDepth >= 0 && depth >= b.maxDepth) ||
		n < b.minSamplesSplit || n < 2*b.minSamplesLeaf || imp <= 1e-12 {
		return idx
	}

	best := b.findSplit(samples, s)
	if !best.found {
		return idx
	}
	decrease := s.weight*imp - best.childImp
	if decrease/b.totalWeight+1e-12 < b.minImpurityDecrease {
		return idx
	}
	b.tree.Importances[best.feature] += decrease

	left := append([]int(nil), best.order[:best.pos]...)
	right := append([]int(nil), best.order[best.pos:]...)
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	node := &b.tree.Nodes[idx]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return idx
}

// candidateFeatures returns the features searched at a node.
func (b *builder) candidateFeatures() []int {
	d := len(b.cols)
	if b.maxFeatures <= 0 || b.maxFeatures >= d {
		out := make([]int, d)
		for j := range out {
			out[j] = j
		}
		return out
	}
	return b.rng.Perm(d)[:b.maxFeatures]
}

// findSplit searches thresholds between consecutive distinct values and keeps the
// split with the smallest weighted child impurity.
func (b *builder) findSplit(samples []int, parent stats) split {
	best := split{childImp: math.Inf(1)}
	order := make([]int, len(samples))

	for _, f := range b.candidateFeatures() {
		col := b.cols[f]
		copy(order, samples)
		sort.SliceStable(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })
		if col[order[0]] == col[order[len(order)-1]] {
			continue
		}

		left := b.newStats()
		right := parent
		if b.classification() {
			right.counts = append([]float64(nil), parent.counts...)
		}
		for p := 0; p < len(order)-1; p++ {
			b.add(&left, order[p])
			b.remove(&right, order[p])
			if col[order[p]] == col[order[p+1]] {
				continue
			}
			if left.n < b.minSamplesLeaf || right.n < b.minSamplesLeaf {
				continue
			}
			childImp := left.weight*b.impurity(&left) + right.weight*b.impurity(&right)
			if childImp < best.childImp {
				thr := col[order[p]] + (col[order[p+1]]-col[order[p]])/2
				if thr >= col[order[p+1]] {
					thr = col[order[p]]
				}
				best = split{
					feature:   f,
					threshold: thr,
					pos:       p + 1,
					childImp:  childImp,
					order:     append(best.order[:0:0], order...),
					found:     true,
				}
			}
		}
	}
	return best
}
