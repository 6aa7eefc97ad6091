// Package mltemplate is a template for tabular binary classification projects: an
// offline training pipeline that produces a serialized preprocessing+model artifact,
// and an HTTP inference service that validates requests and serves predictions from it.
//
// # Features
//
//   - Dataset download (HTTP) and loading of CSV or xlsx files
//   - Stratified train/validation split
//   - Column-wise preprocessing: impute, scale and optional KernelPCA for numeric
//     columns; impute and encode for categorical columns
//   - Estimators: LogReg, RandomForest, Boosting and HistBoosting
//   - Accuracy, precision, recall and F1 against a positive label, dumped as JSON
//   - Versioned, atomic artifact serialization
//   - Inference service with a startup state machine, structural and outlier checks,
//     and Prometheus metrics
//   - Run registry in sqlite
//
// # Quick Start
//
// Train with the bundled configuration and serve the result:
//
//	mlctl train -c configs/training.yaml
//	mlctl serve --env configs/inference.env
//	mlctl predict -d data/payload.json
//
// The same steps in code:
//
//	cfg, err := training.LoadConfig("configs/training.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := training.Run(ctx, cfg, "configs/training.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("F1:", res.Report.F1)
//
// # Packages
//
//   - dataset: download and load tabular files into a Frame
//   - features: target/feature extraction, stratified split, schema and statistics
//   - preprocessing: imputers, scalers, encoders, KernelPCA and the column transformer
//   - models: estimator factory over sklearn/linear_model and sklearn/ensemble
//   - metrics: classification metrics and their JSON report
//   - pipeline: the end-to-end fitted pipeline and its artifact format
//   - training: the training orchestration
//   - tracking: sqlite run registry
//   - validation: table schema, feature statistics and request checks
//   - inference: the HTTP service
//   - core/model: estimator interfaces, parameter helpers and fitted state
//   - core/parallel: parallel helpers used by the forest
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Errors
//
// Every error is classified by errors.KindOf as a configuration, data or I/O error.
// Configuration errors abort before any work starts. The inference service answers
// data errors on the request path with a null prediction.
package mltemplate
