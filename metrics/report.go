package metrics

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report は検証データに対する4つの評価指標です。
type Report struct {
	Accuracy  float64 `json:"accuracy"`
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
	F1        float64 `json:"f1"`
}

// Evaluate は posLabel を正例として Report を計算する。
func Evaluate(yTrue, yPred []string, posLabel string) (Report, error) {
	var (
		r   Report
		err error
	)
	if r.Accuracy, err = AccuracyScore(yTrue, yPred); err != nil {
		return Report{}, err
	}
	if r.Recall, err = RecallScore(yTrue, yPred, posLabel); err != nil {
		return Report{}, err
	}
	if r.Precision, err = PrecisionScore(yTrue, yPred, posLabel); err != nil {
		return Report{}, err
	}
	if r.F1, err = F1Score(yTrue, yPred, posLabel); err != nil {
		return Report{}, err
	}
	return r, nil
}

// Dump は Report を JSON として path に書き出す。
func (r Report) Dump(path string) error {
	log.GetLoggerWithName("metrics").Debug("Dumping metrics", log.ArtifactPathKey, path)
	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode metrics")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.WrapIO(err, "write metrics")
	}
	return nil
}

// LoadReport は Dump で書き出した JSON を読み込む。
func LoadReport(path string) (Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, errors.NewNotFoundError("metrics", path)
		}
		return Report{}, errors.WrapIO(err, "read metrics")
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, errors.NewValueError("LoadReport", "malformed metrics JSON: "+err.Error())
	}
	return r, nil
}

// Plot は4つの指標の棒グラフを PNG/SVG/PDF（拡張子で判定）として保存する。
func (r Report) Plot(path, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "score"
	p.Y.Min = 0
	p.Y.Max = 1

	values := plotter.Values{r.Accuracy, r.Recall, r.Precision, r.F1}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX("accuracy", "recall", "precision", "f1")

	if err := p.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
		return errors.WrapIO(err, "save metrics plot")
	}
	return nil
}
