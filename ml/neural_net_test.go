package ml

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidforecast/config"
)

func seed(v int64) *int64 {
	return &v
}

func TestCalcHiddenLayers(t *testing.T) {
	tests := []struct {
		name    string
		sizes   config.HiddenLayerSizes
		samples int
		want    []int
	}{
		{name: "auto ten rows", sizes: nil, samples: 10, want: []int{2, 2}},
		{name: "auto floors", sizes: nil, samples: 59, want: []int{11, 11}},
		{name: "auto tiny", sizes: nil, samples: 4, want: []int{0, 0}},
		{name: "explicit", sizes: config.HiddenLayerSizes{7, 3, 2}, samples: 100, want: []int{7, 3, 2}},
		{name: "no hidden layer", sizes: config.HiddenLayerSizes{}, samples: 10, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalcHiddenLayers(tt.sizes, tt.samples))
		})
	}
}

func TestNeuralNetAutoSizing(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := []int{3, 5, 7, 9, 11, 13, 15, 17, 19, 21}

	model := NewNeuralNet("cases", config.ModelSpec{
		Type:        config.ModelTypeNeuralNet,
		Solver:      "lbfgs",
		RandomState: seed(0),
	})
	require.NoError(t, model.Train(x, y))
	assert.Equal(t, []int{2, 2}, model.HiddenLayers())

	pred, err := model.Predict(x)
	require.NoError(t, err)
	assert.Len(t, pred, len(x))
}

func TestNeuralNetWithoutHiddenLayers(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := []int{3, 5, 7, 9, 11, 13, 15, 17, 19, 21}

	model := NewNeuralNet("cases", config.ModelSpec{
		Type:             config.ModelTypeNeuralNet,
		HiddenLayerSizes: config.HiddenLayerSizes{},
		Solver:           "lbfgs",
		RandomState:      seed(0),
	})
	require.NoError(t, model.Train(x, y))
	assert.Empty(t, model.HiddenLayers())
	assert.Equal(t, []int{1, 1}, model.net.units)

	pred, err := model.Predict(x)
	require.NoError(t, err)
	require.Len(t, pred, len(y))
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1)
	}
}

func TestNeuralNetRejectsEmptyLayers(t *testing.T) {
	model := NewNeuralNet("cases", config.ModelSpec{Type: config.ModelTypeNeuralNet})
	err := model.Train([]float64{0, 1, 2}, []int{1, 2, 3})
	assert.Error(t, err)
	assert.Equal(t, []int{0, 0}, model.HiddenLayers())
}

func TestNeuralNetSolversFitLine(t *testing.T) {
	x := make([]float64, 40)
	y := make([]int, 40)
	for i := range x {
		x[i] = float64(i) / 40
		y[i] = 10 + 20*i/40
	}

	for _, solver := range []string{"adam", "sgd", "lbfgs"} {
		t.Run(solver, func(t *testing.T) {
			model := NewNeuralNet("cases", config.ModelSpec{
				Type:             config.ModelTypeNeuralNet,
				Solver:           solver,
				Activation:       "tanh",
				HiddenLayerSizes: config.HiddenLayerSizes{8},
				LearningRateInit: 0.01,
				MaxIter:          500,
				RandomState:      seed(42),
			})
			require.NoError(t, model.Train(x, y))

			first := model.net.lossCurve[0]
			last := model.net.lossCurve[len(model.net.lossCurve)-1]
			assert.False(t, math.IsNaN(last))
			if solver != "lbfgs" {
				assert.Less(t, last, first)
			}

			pred, err := model.Predict(x)
			require.NoError(t, err)
			assert.Len(t, pred, len(x))
		})
	}
}

func TestNeuralNetSeedIsDeterministic(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	y := []int{1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377, 610}
	spec := config.ModelSpec{Type: config.ModelTypeNeuralNet, RandomState: seed(7), MaxIter: 50}

	a := NewNeuralNet("a", spec)
	b := NewNeuralNet("b", spec)
	require.NoError(t, a.Train(x, y))
	require.NoError(t, b.Train(x, y))

	pa, err := a.Predict(x)
	require.NoError(t, err)
	pb, err := b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestNeuralNetUntrained(t *testing.T) {
	model := NewNeuralNet("cases", config.ModelSpec{Type: config.ModelTypeNeuralNet})
	_, err := model.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestNeuralNetCopiesSpec(t *testing.T) {
	spec := config.ModelSpec{
		Type:             config.ModelTypeNeuralNet,
		HiddenLayerSizes: config.HiddenLayerSizes{4},
		Tuning:           map[string]interface{}{"momentum": 0.5},
	}
	model := NewNeuralNet("cases", spec)
	spec.HiddenLayerSizes[0] = 99
	spec.Tuning["momentum"] = 0.1

	assert.Equal(t, config.HiddenLayerSizes{4}, model.spec.HiddenLayerSizes)
	assert.Equal(t, 0.5, model.spec.Tuning["momentum"])
}

func TestMLPGradientMatchesFiniteDifferences(t *testing.T) {
	for _, act := range []string{"tanh", "logistic", "identity"} {
		t.Run(act, func(t *testing.T) {
			p := newMLPParams(config.ModelSpec{
				Activation:  act,
				Alpha:       func() *float64 { v := 0.01; return &v }(),
				RandomState: seed(3),
			}, []int{3, 2})
			net := newMLP(p)

			x := column([]float64{-1, -0.5, 0.25, 0.8, 1.3})
			y := []float64{0.2, -0.1, 0.4, 0.9, 1.1}

			grad := make([]float64, len(net.theta))
			net.lossGrad(x, y, grad)

			const h = 1e-6
			for k := range net.theta {
				orig := net.theta[k]
				net.theta[k] = orig + h
				up := net.lossGrad(x, y, nil)
				net.theta[k] = orig - h
				down := net.lossGrad(x, y, nil)
				net.theta[k] = orig

				numeric := (up - down) / (2 * h)
				assert.InDelta(t, numeric, grad[k], 1e-6, "parameter %d", k)
			}
		})
	}
}

func TestAdaptiveSGDStopping(t *testing.T) {
	opt := &sgdOptimizer{lrInit: 1e-3, lr: 1e-3, schedule: "adaptive"}
	assert.False(t, opt.triggerStopping())
	assert.InDelta(t, 2e-4, opt.lr, 1e-12)

	opt.lr = 1e-6
	assert.True(t, opt.triggerStopping())

	constant := &sgdOptimizer{schedule: "constant"}
	assert.True(t, constant.triggerStopping())
}

func TestInvscalingSchedule(t *testing.T) {
	opt := &sgdOptimizer{lrInit: 0.1, lr: 0.1, schedule: "invscaling", powerT: 0.5}
	opt.iterationEnds(3)
	assert.InDelta(t, 0.05, opt.lr, 1e-12)
}

func TestNewMLPParamsTuning(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, p mlpParams)
	}{
		{
			name: "defaults",
			raw:  `{"type": "neural_net"}`,
			check: func(t *testing.T, p mlpParams) {
				assert.Equal(t, "relu", p.activation)
				assert.Equal(t, "adam", p.solver)
				assert.Equal(t, "constant", p.learningRate)
				assert.Equal(t, 1e-4, p.alpha)
				assert.Equal(t, 1e-3, p.learningRateInit)
				assert.Equal(t, 200, p.maxIter)
				assert.Equal(t, 15000, p.maxFun)
				assert.Equal(t, 10, p.nIterNoChange)
				assert.Equal(t, 0.9, p.momentum)
				assert.True(t, p.nesterov)
				assert.Equal(t, 0.9, p.beta1)
				assert.Equal(t, 0.999, p.beta2)
				assert.Equal(t, 1e-8, p.epsilon)
				assert.Equal(t, 0.5, p.powerT)
				assert.True(t, p.shuffle)
			},
		},
		{
			name: "adam keys",
			raw:  `{"type": "neural_net", "beta_1": 0.8, "beta_2": 0.99, "epsilon": 1e-6}`,
			check: func(t *testing.T, p mlpParams) {
				assert.Equal(t, 0.8, p.beta1)
				assert.Equal(t, 0.99, p.beta2)
				assert.Equal(t, 1e-6, p.epsilon)

				opt, ok := newOptimizer(p, 3).(*adamOptimizer)
				require.True(t, ok)
				assert.Equal(t, 0.8, opt.beta1)
				assert.Equal(t, 0.99, opt.beta2)
				assert.Equal(t, 1e-6, opt.eps)
			},
		},
		{
			name: "sgd keys",
			raw: `{"type": "neural_net", "solver": "sgd", "learning_rate": "invscaling",
				"momentum": 0.5, "nesterovs_momentum": false, "power_t": 0.25}`,
			check: func(t *testing.T, p mlpParams) {
				opt, ok := newOptimizer(p, 3).(*sgdOptimizer)
				require.True(t, ok)
				assert.Equal(t, 0.5, opt.momentum)
				assert.False(t, opt.nesterov)
				assert.Equal(t, 0.25, opt.powerT)
				assert.Equal(t, "invscaling", opt.schedule)
			},
		},
		{
			name: "explicit tuning object",
			raw:  `{"type": "neural_net", "solver": "lbfgs", "tuning": {"max_fun": 500}}`,
			check: func(t *testing.T, p mlpParams) {
				assert.Equal(t, "lbfgs", p.solver)
				assert.Equal(t, 500, p.maxFun)
			},
		},
		{
			name: "named hyperparameters",
			raw: `{"type": "neural_net", "alpha": 0, "tol": 0.01, "shuffle": false,
				"random_state": 42, "max_iter": 7, "n_iter_no_change": 3, "batch_size": 16}`,
			check: func(t *testing.T, p mlpParams) {
				assert.Equal(t, 0.0, p.alpha)
				assert.Equal(t, 0.01, p.tol)
				assert.False(t, p.shuffle)
				assert.Equal(t, int64(42), p.seed)
				assert.Equal(t, 7, p.maxIter)
				assert.Equal(t, 3, p.nIterNoChange)
				assert.Equal(t, 16, p.batchSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var spec config.ModelSpec
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &spec))
			require.NoError(t, spec.Validate())
			tt.check(t, newMLPParams(spec, []int{4}))
		})
	}
}
