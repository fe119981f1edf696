package ml

import (
	"fmt"

	"covidforecast/config"
)

// NewModel constructs the untrained model selected by spec.Type.
func NewModel(name string, spec config.ModelSpec) (Model, error) {
	switch spec.Type {
	case config.ModelTypeRegression:
		return NewPolynomialRegression(name, spec.PolynomialDegree), nil
	case config.ModelTypeNeuralNet:
		return NewNeuralNet(name, spec), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelType, spec.Type)
	}
}

// GetModel selects the model for spec and trains it on x, y.
func GetModel(name string, x []float64, y []int, spec config.ModelSpec) (Model, error) {
	model, err := NewModel(name, spec)
	if err != nil {
		return nil, err
	}
	if err := model.Train(x, y); err != nil {
		return nil, fmt.Errorf("train %s: %w", name, err)
	}
	return model, nil
}
