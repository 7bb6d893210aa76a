// Package modelselection splits datasets into train and test partitions.
package modelselection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// Defaults used by the trainer.
const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// TrainTestSplit returns row indices for a shuffled train/test partition of n
// rows. The result depends only on (n, testSize, seed): the test split has
// ceil(testSize*n) rows taken from the front of a seeded permutation and the
// train split has the rest, in permutation order.
func TrainTestSplit(n int, testSize float64, seed uint64) (train, test []int, err error) {
	const op = "TrainTestSplit"
	if n <= 0 {
		return nil, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if !(testSize > 0 && testSize < 1) {
		return nil, nil, errors.NewValueError(op, fmt.Sprintf("test_size must be in (0, 1), got %v", testSize))
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTrain <= 0 {
		return nil, nil, errors.NewValueError(op,
			fmt.Sprintf("with n_samples=%d and test_size=%v the train set would be empty", n, testSize))
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Split holds the four partitions produced by SplitXY.
type Split struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain *mat.VecDense
	YTest  *mat.VecDense
}

// SplitXY gathers the rows of X and y named by train and test.
func SplitXY(X mat.Matrix, y mat.Vector, train, test []int) (*Split, error) {
	r, _ := X.Dims()
	if y.Len() != r {
		return nil, errors.NewDimensionError("SplitXY", r, y.Len(), 0)
	}
	xTrain, yTrain, err := gather(X, y, train)
	if err != nil {
		return nil, err
	}
	xTest, yTest, err := gather(X, y, test)
	if err != nil {
		return nil, err
	}
	return &Split{XTrain: xTrain, XTest: xTest, YTrain: yTrain, YTest: yTest}, nil
}

func gather(X mat.Matrix, y mat.Vector, rows []int) (*mat.Dense, *mat.VecDense, error) {
	r, c := X.Dims()
	if len(rows) == 0 {
		return nil, nil, errors.NewModelError("SplitXY", "empty partition", errors.ErrEmptyData)
	}
	xOut := mat.NewDense(len(rows), c, nil)
	yOut := mat.NewVecDense(len(rows), nil)
	for i, row := range rows {
		if row < 0 || row >= r {
			return nil, nil, errors.NewValueError("SplitXY", fmt.Sprintf("row index %d out of range [0, %d)", row, r))
		}
		for j := 0; j < c; j++ {
			xOut.Set(i, j, X.At(row, j))
		}
		yOut.SetVec(i, y.AtVec(row))
	}
	return xOut, yOut, nil
}
