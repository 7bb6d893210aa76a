// Command train fits the ice-cream sales regression on a CSV file, records
// the run in the local tracking store and saves the model directory.
//
//	train --data_csv data/sorvete.csv --out_model models/sorvete
//
// MLFLOW_TRACKING_URI, MLFLOW_EXPERIMENT_NAME and TRAINER_LOG_LEVEL are read
// from the environment.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/gelato-ml/sorvete/config"
	"github.com/gelato-ml/sorvete/pkg/log"
	"github.com/gelato-ml/sorvete/trainer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type args struct {
	DataCSV  string `arg:"--data_csv,required" help:"CSV with the Temperatura (°C) and Vendas de Sorvete columns"`
	OutModel string `arg:"--out_model,required" help:"output model directory"`
}

func (args) Description() string {
	return "Trains a linear regression of ice-cream sales on temperature."
}

func main() {
	os.Exit(run(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

// run parses argv, executes the pipeline and returns the exit status.
// Nothing touches the filesystem before the flags are parsed.
func run(argv []string, lookupEnv func(string) (string, bool), stdout, stderr io.Writer) int {
	var a args
	p, err := arg.NewParser(arg.Config{Program: "train"}, &a)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	switch err := p.Parse(argv); {
	case err == arg.ErrHelp:
		p.WriteHelp(stdout)
		return exitOK
	case err != nil:
		p.WriteUsage(stderr)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load(lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if err := log.SetupLoggerTo(stderr, cfg.LogLevel); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	logger := log.GetLoggerWithName("train")

	store, err := cfg.OpenStore()
	if err != nil {
		logger.Error("Failed to open tracking store", err, log.TrackingURIKey, cfg.TrackingURI)
		return exitError
	}

	tc := trainer.DefaultConfig(a.DataCSV, a.OutModel, store)
	tc.Experiment = cfg.ExperimentName

	res, err := trainer.Train(tc)
	if err != nil {
		logger.Error("Training failed", err)
		return exitError
	}

	fmt.Fprint(stdout, res.Summary())
	return exitOK
}
