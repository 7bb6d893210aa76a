package trainer

import (
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gelato-ml/sorvete/dataset"
	"github.com/gelato-ml/sorvete/linear"
	"github.com/gelato-ml/sorvete/modelselection"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/tracking"
)

// PlotFile is the artifact name of the diagnostic plot.
const PlotFile = "test_fit.png"

// logFitPlot draws the test points and the fitted line and attaches the PNG
// to the run.
func logFitPlot(run *tracking.Run, split *modelselection.Split, lr *linear.LinearRegression) error {
	tmp, err := os.MkdirTemp("", "sorvete-plot-")
	if err != nil {
		return errors.NewPersistenceError("mkdir", os.TempDir(), err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	path := filepath.Join(tmp, PlotFile)
	if err := renderFitPlot(path, split, lr); err != nil {
		return err
	}
	return run.LogArtifact(path)
}

func renderFitPlot(path string, split *modelselection.Split, lr *linear.LinearRegression) error {
	n, _ := split.XTest.Dims()
	xs := make([]float64, n)
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		xs[i] = split.XTest.At(i, 0)
		pts[i].X = xs[i]
		pts[i].Y = split.YTest.AtVec(i)
	}

	p := plot.New()
	p.Title.Text = "Vendas de sorvete: conjunto de teste"
	p.X.Label.Text = dataset.FeatureColumn
	p.Y.Label.Text = dataset.TargetColumn

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	scatter.Color = plotter.DefaultLineStyle.Color
	p.Add(scatter)
	p.Legend.Add("teste", scatter)

	line, err := regressionLine(xs, lr)
	if err != nil {
		return errors.Wrap(err, "regression line")
	}
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("ajuste", line)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.NewPersistenceError("save plot", path, err)
	}
	return nil
}

// regressionLine spans the fitted line across the range of xs.
func regressionLine(xs []float64, lr *linear.LinearRegression) (*plotter.Line, error) {
	minX, maxX := xs[0], xs[0]
	for _, x := range xs {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
	}
	slope, intercept := lr.Coef()[0], lr.GetIntercept()
	return plotter.NewLine(plotter.XYs{
		{X: minX, Y: slope*minX + intercept},
		{X: maxX, Y: slope*maxX + intercept},
	})
}
