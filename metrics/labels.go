package metrics

import (
	"sort"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// confusion は posLabel に対する二値混同行列
type confusion struct {
	tp, fp, fn, tn int
}

// binaryConfusion は2値以下のラベル集合を前提に混同行列を作る。
// posLabel がどちらの系列にも現れない場合、3種類以上のラベルがある場合はエラー。
func binaryConfusion(op string, yTrue, yPred []string, posLabel string) (confusion, error) {
	if err := checkLabels(op, yTrue, yPred); err != nil {
		return confusion{}, err
	}
	labels := labelSet(yTrue, yPred)
	if len(labels) > 2 {
		return confusion{}, errors.NewValueError(op, "target is multiclass but the metric is binary")
	}
	found := false
	for _, l := range labels {
		if l == posLabel {
			found = true
		}
	}
	if !found {
		return confusion{}, errors.NewValueError(op, "pos_label="+posLabel+" is not a valid label")
	}

	var c confusion
	for i := range yTrue {
		t, p := yTrue[i] == posLabel, yPred[i] == posLabel
		switch {
		case t && p:
			c.tp++
		case !t && p:
			c.fp++
		case t && !p:
			c.fn++
		default:
			c.tn++
		}
	}
	return c, nil
}

func checkLabels(op string, yTrue, yPred []string) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty labels")
	}
	if len(yTrue) != len(yPred) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}

func labelSet(series ...[]string) []string {
	seen := make(map[string]struct{})
	for _, s := range series {
		for _, v := range s {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ratio returns num/den, or 0 with an UndefinedMetricWarning when den is zero.
func ratio(metric, condition string, num, den int) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, 0))
		return 0
	}
	return float64(num) / float64(den)
}

// AccuracyScore は文字列ラベルの正解率を返す。多クラスでも使える。
func AccuracyScore(yTrue, yPred []string) (float64, error) {
	if err := checkLabels("AccuracyScore", yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// PrecisionScore は tp / (tp + fp) を返す。
func PrecisionScore(yTrue, yPred []string, posLabel string) (float64, error) {
	c, err := binaryConfusion("PrecisionScore", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("precision", "no predicted samples", c.tp, c.tp+c.fp), nil
}

// RecallScore は tp / (tp + fn) を返す。
func RecallScore(yTrue, yPred []string, posLabel string) (float64, error) {
	c, err := binaryConfusion("RecallScore", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("recall", "no true samples", c.tp, c.tp+c.fn), nil
}

// F1Score は precision と recall の調和平均 2tp / (2tp + fp + fn) を返す。
func F1Score(yTrue, yPred []string, posLabel string) (float64, error) {
	c, err := binaryConfusion("F1Score", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("f1", "no true nor predicted samples", 2*c.tp, 2*c.tp+c.fp+c.fn), nil
}
