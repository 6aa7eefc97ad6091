package features

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Split holds the two partitions of a stratified split.
type Split struct {
	TrainX *dataset.Frame
	ValX   *dataset.Frame
	TrainY []string
	ValY   []string

	TrainIndex []int
	ValIndex   []int
}

// StratifiedSplit performs a single shuffled split that keeps class proportions.
// Every class needs at least two members, and both partitions must be able to hold
// one row per class.
func StratifiedSplit(X *dataset.Frame, y []string, cfg SplitConfig) (*Split, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(y)
	if X.Rows() != n {
		return nil, errors.NewDimensionError("StratifiedSplit", X.Rows(), n, 0)
	}

	classes, classIndex := groupByClass(y)
	if len(classes) < 2 {
		return nil, errors.NewValueError("StratifiedSplit", "the target needs at least two classes to stratify, found "+strconv.Itoa(len(classes)))
	}
	counts := make([]int, len(classes))
	for c, idx := range classIndex {
		counts[c] = len(idx)
		if len(idx) < 2 {
			return nil, errors.NewValueError("StratifiedSplit",
				"class "+strconv.Quote(classes[c])+" has a single member; every class needs at least two")
		}
	}

	nVal := cfg.validationSize(n)
	nTrain := n - nVal
	if nVal >= n || nTrain <= 0 {
		return nil, errors.NewConfigError("splitter.validation", cfg.Validation, []string{"fewer rows than the " + strconv.Itoa(n) + " available"})
	}
	if nVal < len(classes) || nTrain < len(classes) {
		return nil, errors.NewValueError("StratifiedSplit",
			"partitions of "+strconv.Itoa(nTrain)+" and "+strconv.Itoa(nVal)+" rows cannot hold all "+strconv.Itoa(len(classes))+" classes")
	}

	rng := rand.New(rand.NewSource(cfg.RandomState))
	valCounts := approximateMode(counts, nVal, rng)
	rest := make([]int, len(counts))
	for i := range counts {
		rest[i] = counts[i] - valCounts[i]
	}
	trainCounts := approximateMode(rest, nTrain, rng)

	trainIdx := make([]int, 0, nTrain)
	valIdx := make([]int, 0, nVal)
	for c, idx := range classIndex {
		perm := rng.Perm(len(idx))
		for k := 0; k < trainCounts[c]; k++ {
			trainIdx = append(trainIdx, idx[perm[k]])
		}
		for k := trainCounts[c]; k < trainCounts[c]+valCounts[c]; k++ {
			valIdx = append(valIdx, idx[perm[k]])
		}
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(valIdx), func(i, j int) { valIdx[i], valIdx[j] = valIdx[j], valIdx[i] })

	s := &Split{
		TrainX:     X.Take(trainIdx),
		ValX:       X.Take(valIdx),
		TrainY:     takeLabels(y, trainIdx),
		ValY:       takeLabels(y, valIdx),
		TrainIndex: trainIdx,
		ValIndex:   valIdx,
	}
	log.GetLoggerWithName("features").Debug("Split dataset",
		"train", len(trainIdx),
		"validation", len(valIdx),
		log.ClassesKey, len(classes),
		log.RandomSeedKey, cfg.RandomState,
	)
	return s, nil
}

// groupByClass returns the sorted distinct labels and the row indices of each.
func groupByClass(y []string) ([]string, [][]int) {
	pos := make(map[string]int)
	var classes []string
	for _, label := range y {
		if _, ok := pos[label]; !ok {
			pos[label] = 0
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	for i, c := range classes {
		pos[c] = i
	}
	index := make([][]int, len(classes))
	for i, label := range y {
		c := pos[label]
		index[c] = append(index[c], i)
	}
	return classes, index
}

// approximateMode draws nDraws items out of classes with the given counts so that each
// class gets its floor share and the leftovers go to the largest remainders. Ties among
// equal remainders are broken at random.
func approximateMode(counts []int, nDraws int, rng *rand.Rand) []int {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]int, len(counts))
	if total == 0 {
		return out
	}

	remainders := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		cont := float64(c) * float64(nDraws) / float64(total)
		fl := math.Floor(cont)
		out[i] = int(fl)
		remainders[i] = cont - fl
		assigned += out[i]
	}

	need := nDraws - assigned
	if need <= 0 {
		return out
	}

	// distinct remainder values, largest first
	values := append([]float64(nil), remainders...)
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	for k := 0; k < len(values) && need > 0; k++ {
		if k > 0 && values[k] == values[k-1] {
			continue
		}
		var tied []int
		for i, r := range remainders {
			if r == values[k] && out[i] < counts[i] {
				tied = append(tied, i)
			}
		}
		rng.Shuffle(len(tied), func(a, b int) { tied[a], tied[b] = tied[b], tied[a] })
		for _, i := range tied {
			if need == 0 {
				break
			}
			out[i]++
			need--
		}
	}
	return out
}

func takeLabels(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
