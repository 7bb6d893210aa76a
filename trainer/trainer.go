// Package trainer runs the ice-cream sales training pipeline end to end:
// load the CSV, split it, fit the regression on the train rows, evaluate on
// the test rows, record the run and save the model directory.
package trainer

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gelato-ml/sorvete/dataset"
	"github.com/gelato-ml/sorvete/flavor"
	"github.com/gelato-ml/sorvete/linear"
	"github.com/gelato-ml/sorvete/metrics"
	"github.com/gelato-ml/sorvete/modelselection"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
	"github.com/gelato-ml/sorvete/tracking"
)

// RunName is the name of every training run.
const RunName = "regressao_sorvete"

// Algorithm is logged as the "algoritmo" param.
const Algorithm = linear.ModelName

// Config describes one training invocation.
type Config struct {
	DataCSV  string
	OutModel string

	// Store receives the run. Required.
	Store tracking.Store
	// Experiment defaults to the Default experiment.
	Experiment string

	TestSize float64 // 0 means modelselection.DefaultTestSize
	Seed     uint64  // used as given; the CLI passes modelselection.DefaultSeed

	// SkipPlot disables the diagnostic plot artifact.
	SkipPlot bool
}

// DefaultConfig returns a Config with the fixed split parameters.
func DefaultConfig(dataCSV, outModel string, store tracking.Store) Config {
	return Config{
		DataCSV:  dataCSV,
		OutModel: outModel,
		Store:    store,
		TestSize: modelselection.DefaultTestSize,
		Seed:     modelselection.DefaultSeed,
	}
}

// Result summarizes a finished training run.
type Result struct {
	MSE       float64
	R2        float64
	Report    metrics.Report
	Slope     float64
	Intercept float64
	NTrain    int
	NTest     int
	OutDir    string
	RunID     string
}

// Summary is the two-line report printed to stdout.
func (r *Result) Summary() string {
	return fmt.Sprintf("MSE=%s  R2=%s\nModelo salvo em: %s\n", formatScore(r.MSE), formatScore(r.R2), r.OutDir)
}

// formatScore prints three decimals, and "nan" when a metric is undefined.
func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.3f", v)
}

// Train executes the pipeline. Schema and parse errors are reported before a
// run is opened or anything is written; once the run is open it is closed
// as FINISHED or FAILED on every path.
func Train(cfg Config) (*Result, error) {
	if cfg.DataCSV == "" || cfg.OutModel == "" {
		return nil, errors.NewValueError("Train", "data CSV and output directory are required")
	}
	if cfg.Store == nil {
		return nil, errors.NewValueError("Train", "a tracking store is required")
	}
	if cfg.TestSize == 0 {
		cfg.TestSize = modelselection.DefaultTestSize
	}

	logger := log.GetLoggerWithName("trainer")
	start := time.Now()

	frame, err := dataset.ReadCSV(cfg.DataCSV)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireColumns(dataset.FeatureColumn, dataset.TargetColumn); err != nil {
		return nil, err
	}
	X, err := frame.Matrix(dataset.FeatureColumn)
	if err != nil {
		return nil, err
	}
	y, err := frame.Vector(dataset.TargetColumn)
	if err != nil {
		return nil, err
	}

	train, test, err := modelselection.TrainTestSplit(frame.Len(), cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, err
	}
	split, err := modelselection.SplitXY(X, y, train, test)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset split",
		log.OperationKey, log.OperationSplit,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, frame.Len(),
		log.TrainSizeKey, len(train),
		log.TestSizeKey, len(test),
		log.RandomSeedKey, cfg.Seed,
	)

	res := &Result{NTrain: len(train), NTest: len(test), OutDir: cfg.OutModel}
	info, err := tracking.WithRun(cfg.Store, cfg.Experiment, RunName, func(run *tracking.Run) error {
		res.RunID = run.ID()
		return fitAndRecord(run, cfg, split, res, logger)
	})
	if info != nil {
		res.RunID = info.RunID
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Training pipeline completed",
		log.RunIDKey, res.RunID,
		log.MSEKey, res.MSE,
		log.R2ScoreKey, res.R2,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func fitAndRecord(run *tracking.Run, cfg Config, split *modelselection.Split, res *Result, logger log.Logger) error {
	lr := linear.NewLinearRegression(linear.WithFeatureNames(dataset.FeatureColumn))
	if err := lr.Fit(split.XTrain, split.YTrain); err != nil {
		return err
	}

	pred, err := lr.Predict(split.XTest)
	if err != nil {
		return err
	}
	yPred, err := metrics.ColumnVector(pred)
	if err != nil {
		return err
	}
	report, err := metrics.Evaluate(split.YTest, yPred)
	if err != nil {
		return err
	}

	res.Report = report
	res.MSE = report.MSE
	res.R2 = report.R2
	res.Slope = lr.Coef()[0]
	res.Intercept = lr.GetIntercept()

	logger.Info("Model evaluated",
		log.OperationKey, log.OperationScore,
		log.PhaseKey, log.PhaseTesting,
		log.MSEKey, report.MSE,
		log.RMSEKey, report.RMSE,
		log.MAEKey, report.MAE,
		log.R2ScoreKey, report.R2,
		log.SlopeKey, res.Slope,
		log.InterceptKey, res.Intercept,
	)

	if err := run.LogParams(map[string]string{
		"algoritmo": Algorithm,
		"feature":   dataset.FeatureColumn,
	}); err != nil {
		return err
	}
	if err := run.LogMetric("mse", report.MSE); err != nil {
		return err
	}
	if err := run.LogMetric("r2", report.R2); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutModel, 0o755); err != nil {
		return errors.NewPersistenceError("mkdir", cfg.OutModel, err)
	}
	if _, err := flavor.Save(cfg.OutModel, lr,
		flavor.WithTarget(dataset.TargetColumn),
		flavor.WithMetadata(map[string]interface{}{"run_id": run.ID()}),
	); err != nil {
		return err
	}
	if err := run.SetTags(map[string]string{
		"mlflow.source.type": "LOCAL",
		"mlflow.source.name": "sorvete-train",
		"model.path":         cfg.OutModel,
		"data.path":          cfg.DataCSV,
	}); err != nil {
		return err
	}

	if !cfg.SkipPlot {
		// The plot is diagnostic only; failing to draw it does not fail the run.
		if err := logFitPlot(run, split, lr); err != nil {
			logger.Warn("Diagnostic plot skipped", err)
		}
	}
	return nil
}
