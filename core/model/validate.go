package model

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// CheckXY validates a training pair: X non-empty and finite, y a column vector with one
// entry per row of X.
func CheckXY(op string, X, y mat.Matrix) (nSamples, nFeatures int, err error) {
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewValueError(op, "empty training data")
	}
	yRows, yCols := y.Dims()
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if yRows != nSamples {
		return 0, 0, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if err := CheckFinite(op, X); err != nil {
		return 0, 0, err
	}
	return nSamples, nFeatures, nil
}

// CheckFinite rejects NaN and infinite entries.
func CheckFinite(op string, X mat.Matrix) error {
	r, c := X.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValueError(op, "input contains NaN or infinity at row "+strconv.Itoa(i)+", column "+strconv.Itoa(j))
			}
		}
	}
	return nil
}

// UniqueClasses returns the sorted distinct class labels in y.
func UniqueClasses(y mat.Matrix) []int {
	rows, _ := y.Dims()
	seen := make(map[int]bool)
	var classes []int
	for i := 0; i < rows; i++ {
		c := int(y.At(i, 0))
		if !seen[c] {
			seen[c] = true
			classes = append(classes, c)
		}
	}
	sort.Ints(classes)
	return classes
}

// ClassIndices maps every label of y to its position in classes.
func ClassIndices(y mat.Matrix, classes []int) []int {
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	rows, _ := y.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = pos[int(y.At(i, 0))]
	}
	return out
}

// ArgmaxRows returns classes[argmax] of every row of proba as an (n, 1) matrix.
// Ties go to the first class.
func ArgmaxRows(proba mat.Matrix, classes []int) *mat.Dense {
	r, c := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}
