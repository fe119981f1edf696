package ml

import (
	"errors"
	"math"
)

// Model is a regressor over a single feature column (the day index)
// producing integer counts.
type Model interface {
	Name() string
	Train(x []float64, y []int) error
	// Predict returns one rounded prediction per element of x.
	Predict(x []float64) ([]int, error)
}

// Describer is implemented by models that can render their fitted function.
type Describer interface {
	Describe() (string, error)
}

var (
	ErrModelNotTrained  = errors.New("model not trained")
	ErrUnknownModelType = errors.New("unknown model type")
	ErrEmptyTrainingSet = errors.New("features or labels empty")
	ErrSizeMismatch     = errors.New("features and labels size mismatch")
)

func checkTrainingSet(x []float64, y []int) error {
	if len(x) == 0 || len(y) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(x) != len(y) {
		return ErrSizeMismatch
	}
	return nil
}

// roundToInts rounds half to even, matching numpy's round.
func roundToInts(values []float64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(math.RoundToEven(v))
	}
	return out
}

func toFloats(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}
