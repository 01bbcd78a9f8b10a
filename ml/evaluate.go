package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

func MeanAbsoluteError(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue)), nil
}

func RootMeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue))), nil
}

func checkPair(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return fmt.Errorf("no values to compare")
	}
	return nil
}

func splitSizes(n int, testSize float64) (nTrain, nTest int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, 0, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	nTest = int(math.Ceil(testSize * float64(n)))
	nTrain = n - nTest
	if nTrain <= 0 || nTest <= 0 {
		return 0, 0, fmt.Errorf("cannot split %d rows with test size %v", n, testSize)
	}
	return nTrain, nTest, nil
}

// TrainTestSplit shuffles row indexes with a fixed seed and holds out
// ceil(n*testSize) of them for testing.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	_, nTest, err := splitSizes(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// TimeOrderedSplit trains on the earliest rows and tests on the latest, so
// no future observation informs the model that is scored on it. Rows with
// equal keys keep their input order.
func TimeOrderedSplit(keys []int64, testSize float64) (train, test []int, err error) {
	nTrain, _, err := splitSizes(len(keys), testSize)
	if err != nil {
		return nil, nil, err
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	return order[:nTrain], order[nTrain:], nil
}
