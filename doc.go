// Package sorvete trains and serves a simple linear model of ice-cream sales
// as a function of temperature.
//
// The training pipeline reads a CSV file, splits it 80/20 with a fixed seed,
// fits an ordinary least squares regression on the training rows, evaluates
// MSE and R² on the held-out rows, records the run in a local MLflow-style
// tracking directory and saves the model as a directory that can be loaded
// back for inference.
//
// # Quick Start
//
// Train from the command line:
//
//	go run ./cmd/train --data_csv data/sorvete.csv --out_model models/sorvete
//
// or from Go:
//
//	store, err := tracking.NewFileStore("mlruns")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := trainer.Train(trainer.DefaultConfig("data/sorvete.csv", "models/sorvete", store))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(res.Summary())
//
// and load the saved model:
//
//	model, err := flavor.Load("models/sorvete")
//	predictions, err := model.Predict(mat.NewDense(1, 1, []float64{30}))
//
// # Packages
//
//   - cmd/train: command-line entry point
//   - trainer: end-to-end pipeline
//   - dataset: CSV loading into gonum matrices
//   - modelselection: deterministic train/test split
//   - linear: ordinary least squares regression
//   - metrics: MSE, RMSE, MAE, R², explained variance
//   - tracking: experiment runs in the MLflow file-store layout
//   - flavor: MLmodel directories
//   - config: environment configuration
//   - core/model, core/parallel: shared model state, weights and parallel helpers
//   - pkg/errors, pkg/log: structured errors and zerolog-backed logging
//
// # Configuration
//
// MLFLOW_TRACKING_URI selects the tracking directory (default ./mlruns),
// MLFLOW_EXPERIMENT_NAME the experiment (default "Default") and
// TRAINER_LOG_LEVEL the log level (default info). Logs are JSON lines on
// stderr.
package sorvete
