package metrics

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// ProbabilityScores は陽性クラスの予測確率から計算する指標です。
// metrics JSON には含めず、実行ログと run registry に記録します。
type ProbabilityScores struct {
	ROCAUC    float64 `json:"roc_auc"`
	LogLoss   float64 `json:"log_loss"`
	ErrorRate float64 `json:"error_rate"`
}

// EvaluateProba は確率行列 proba（列 k が classes[k]）から posLabel を正例として
// ROC AUC、log-loss、誤分類率を計算する。二値分類のみ。
func EvaluateProba(yTrue []string, proba mat.Matrix, classes []string, posLabel string) (ProbabilityScores, error) {
	const op = "EvaluateProba"
	if proba == nil || len(yTrue) == 0 {
		return ProbabilityScores{}, errors.NewValueError(op, "empty input")
	}
	rows, cols := proba.Dims()
	if rows != len(yTrue) {
		return ProbabilityScores{}, errors.NewDimensionError(op, len(yTrue), rows, 0)
	}
	if cols != len(classes) {
		return ProbabilityScores{}, errors.NewDimensionError(op, len(classes), cols, 1)
	}
	if len(classes) != 2 {
		return ProbabilityScores{}, errors.NewValueError(op,
			"probability scores need a binary target, got "+strconv.Itoa(len(classes))+" classes")
	}
	pos := -1
	for k, c := range classes {
		if c == posLabel {
			pos = k
		}
	}
	if pos < 0 {
		return ProbabilityScores{}, errors.NewValueError(op, "pos_label "+strconv.Quote(posLabel)+" is not a class")
	}
	neg := 1 - pos

	truth := mat.NewVecDense(rows, nil)
	score := mat.NewVecDense(rows, nil)
	pred := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		if yTrue[i] == posLabel {
			truth.SetVec(i, 1)
		}
		p, q := proba.At(i, pos), proba.At(i, neg)
		score.SetVec(i, p)
		// argmax と同じく同点は先頭の列
		if p > q || (p == q && pos == 0) {
			pred.SetVec(i, 1)
		}
	}

	var (
		s   ProbabilityScores
		err error
	)
	if s.ROCAUC, err = AUCMatrix(truth, score); err != nil {
		return ProbabilityScores{}, err
	}
	if s.LogLoss, err = BinaryLogLoss(truth, score); err != nil {
		return ProbabilityScores{}, err
	}
	if s.ErrorRate, err = ClassificationError(truth, pred); err != nil {
		return ProbabilityScores{}, err
	}
	return s, nil
}
