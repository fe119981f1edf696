package ml

import (
	"fmt"

	"covidforecast/config"
	"covidforecast/logger"
)

// NeuralNet wraps a multi-layer perceptron regressor. With "auto" hidden
// layer sizes the architecture is derived from the training set size.
type NeuralNet struct {
	name         string
	spec         config.ModelSpec
	hiddenLayers []int
	net          *mlp
}

// NewNeuralNet creates an untrained model. spec is copied.
func NewNeuralNet(name string, spec config.ModelSpec) *NeuralNet {
	if spec.HiddenLayerSizes != nil {
		spec.HiddenLayerSizes = append(config.HiddenLayerSizes{}, spec.HiddenLayerSizes...)
	}
	if spec.Tuning != nil {
		tuning := make(map[string]interface{}, len(spec.Tuning))
		for k, v := range spec.Tuning {
			tuning[k] = v
		}
		spec.Tuning = tuning
	}
	return &NeuralNet{
		name: name,
		spec: spec,
	}
}

func (m *NeuralNet) Name() string {
	return m.name
}

// CalcHiddenLayers resolves configured sizes for a training set of the
// given length: "auto" yields two equal layers of samples/5 units.
func CalcHiddenLayers(sizes config.HiddenLayerSizes, samples int) []int {
	if !sizes.IsAuto() {
		return append([]int{}, sizes...)
	}
	calculated := samples / 5
	return []int{calculated, calculated}
}

// HiddenLayers returns the sizes used by the last Train call.
func (m *NeuralNet) HiddenLayers() []int {
	return append([]int(nil), m.hiddenLayers...)
}

func (m *NeuralNet) Train(x []float64, y []int) error {
	if err := checkTrainingSet(x, y); err != nil {
		return err
	}

	hidden := CalcHiddenLayers(m.spec.HiddenLayerSizes, len(x))
	m.hiddenLayers = hidden
	for _, size := range hidden {
		if size <= 0 {
			return fmt.Errorf("hidden_layer_sizes must be > 0, got %v (%d samples)", hidden, len(x))
		}
	}

	params := newMLPParams(m.spec, hidden)
	net := newMLP(params)
	if err := net.fit(x, toFloats(y)); err != nil {
		return err
	}
	m.net = net

	logger.L().Debugw("neural net trained",
		"model", m.name,
		"hidden_layer_sizes", hidden,
		"solver", params.solver,
		"iterations", net.nIter,
		"loss", net.lossCurve[len(net.lossCurve)-1],
	)
	return nil
}

func (m *NeuralNet) Predict(x []float64) ([]int, error) {
	if m.net == nil {
		return nil, ErrModelNotTrained
	}
	if len(x) == 0 {
		return []int{}, nil
	}
	return roundToInts(m.net.predict(x)), nil
}
