// Package pipeline joins the fitted preprocessor, the target label encoder and the
// classifier into the end-to-end unit that is serialized and served.
package pipeline

import (
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/models"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/preprocessing"
)

// Metadata describes how a pipeline was trained.
type Metadata struct {
	ModelType    string
	Params       map[string]interface{}
	FeatureNames []string
	Classes      []string
	// NumericTarget is set when every training label parsed as a number.
	NumericTarget bool
	TrainedAt     time.Time
	TrainSamples  int
}

// Pipeline is the fitted preprocessing + classification unit.
type Pipeline struct {
	Preprocessor *preprocessing.Preprocessor
	Labels       *preprocessing.LabelEncoder
	Classifier   model.Classifier
	Estimator    models.EstimatorConfig
	Metadata     Metadata
}

// New returns an unfitted pipeline.
func New(pre *preprocessing.Preprocessor, est models.EstimatorConfig) *Pipeline {
	return &Pipeline{
		Preprocessor: pre,
		Labels:       preprocessing.NewLabelEncoder(),
		Estimator:    est,
	}
}

// IsFitted reports whether every stage is fitted.
func (p *Pipeline) IsFitted() bool {
	return p.Preprocessor != nil && p.Preprocessor.IsFitted() &&
		p.Labels != nil && p.Labels.IsFitted() &&
		p.Classifier != nil && p.Classifier.IsFitted()
}

// Fit fits the preprocessor on X, encodes y and trains the configured estimator.
// The stages are fitted on fresh instances and swapped in together, so a failed fit
// leaves the previous stages untouched.
func (p *Pipeline) Fit(X *dataset.Frame, y []string) error {
	if X.Rows() != len(y) {
		return errors.NewDimensionError("Pipeline.Fit", X.Rows(), len(y), 0)
	}
	if p.Preprocessor == nil {
		return errors.NewValueError("Pipeline.Fit", "pipeline has no preprocessor")
	}
	// ハイパーパラメータはデータに触れる前に検証する
	if _, err := models.Make(p.Estimator); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("pipeline")
	start := time.Now()

	labels := preprocessing.NewLabelEncoder()
	yIdx, err := labels.FitTransform(y)
	if err != nil {
		return err
	}
	pre, err := preprocessing.NewPreprocessor(p.Preprocessor.Config)
	if err != nil {
		return err
	}
	Xt, err := pre.FitTransform(X)
	if err != nil {
		return err
	}
	clf, err := models.MakeAndFit(Xt, yIdx, p.Estimator)
	if err != nil {
		return err
	}

	p.Preprocessor = pre
	p.Labels = labels
	p.Classifier = clf
	p.Metadata = Metadata{
		ModelType:     p.Estimator.ModelType,
		Params:        clf.GetParams(),
		FeatureNames:  p.Preprocessor.FeatureNames(),
		Classes:       append([]string(nil), labels.Classes...),
		NumericTarget: allNumeric(labels.Classes),
		TrainedAt:     time.Now().UTC(),
		TrainSamples:  len(y),
	}
	logger.Info("Pipeline fitted",
		log.ModelNameKey, p.Estimator.ModelType,
		log.SamplesKey, len(y),
		log.ClassesKey, len(labels.Classes),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Pipeline) requireFitted(method string) error {
	if !p.IsFitted() {
		return errors.NewNotFittedError("Pipeline", method)
	}
	return nil
}

// transform runs the preprocessor on X.
func (p *Pipeline) transform(X *dataset.Frame) (*mat.Dense, error) {
	if X.Rows() == 0 {
		return nil, errors.NewValueError("Pipeline.Predict", "empty input")
	}
	return p.Preprocessor.Transform(X)
}

// Predict returns the predicted label of every row of X.
func (p *Pipeline) Predict(X *dataset.Frame) ([]string, error) {
	if err := p.requireFitted("Predict"); err != nil {
		return nil, err
	}
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	pred, err := p.Classifier.Predict(Xt)
	if err != nil {
		return nil, err
	}
	rows, _ := pred.Dims()
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = int(pred.At(i, 0))
	}
	return p.Labels.InverseTransform(idx)
}

// PredictValues is Predict with labels converted back to numbers when the training
// target was numeric, for JSON responses.
func (p *Pipeline) PredictValues(X *dataset.Frame) ([]interface{}, error) {
	labels, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(labels))
	for i, l := range labels {
		out[i] = l
		if p.Metadata.NumericTarget {
			if v, err := strconv.ParseFloat(l, 64); err == nil {
				out[i] = v
			}
		}
	}
	return out, nil
}

// PredictProba returns the class probabilities of every row of X. Column k belongs
// to Classes()[k].
func (p *Pipeline) PredictProba(X *dataset.Frame) (mat.Matrix, error) {
	if err := p.requireFitted("PredictProba"); err != nil {
		return nil, err
	}
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(Xt)
}

// Classes returns the target labels in class index order.
func (p *Pipeline) Classes() []string {
	if p.Labels == nil {
		return nil
	}
	return append([]string(nil), p.Labels.Classes...)
}

func allNumeric(labels []string) bool {
	for _, l := range labels {
		if _, err := strconv.ParseFloat(l, 64); err != nil {
			return false
		}
	}
	return len(labels) > 0
}
