package ml

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"covidforecast/config"
	"covidforecast/logger"
)

// mlpParams are the resolved hyperparameters of a multi-layer perceptron.
type mlpParams struct {
	hiddenLayers     []int
	activation       string
	solver           string
	alpha            float64
	batchSize        int
	learningRate     string
	learningRateInit float64
	powerT           float64
	maxIter          int
	maxFun           int
	tol              float64
	nIterNoChange    int
	shuffle          bool
	seed             int64
	momentum         float64
	nesterov         bool
	beta1            float64
	beta2            float64
	epsilon          float64
}

func newMLPParams(spec config.ModelSpec, hidden []int) mlpParams {
	p := mlpParams{
		hiddenLayers:     hidden,
		activation:       spec.Activation,
		solver:           spec.Solver,
		alpha:            1e-4,
		batchSize:        int(spec.BatchSize),
		learningRate:     spec.LearningRate,
		learningRateInit: spec.LearningRateInit,
		powerT:           spec.TuningFloat("power_t", 0.5),
		maxIter:          spec.MaxIter,
		maxFun:           int(spec.TuningFloat("max_fun", 15000)),
		tol:              1e-4,
		nIterNoChange:    spec.NIterNoChange,
		shuffle:          true,
		seed:             time.Now().UnixNano(),
		momentum:         spec.TuningFloat("momentum", 0.9),
		nesterov:         spec.TuningBool("nesterovs_momentum", true),
		beta1:            spec.TuningFloat("beta_1", 0.9),
		beta2:            spec.TuningFloat("beta_2", 0.999),
		epsilon:          spec.TuningFloat("epsilon", 1e-8),
	}
	if p.activation == "" {
		p.activation = "relu"
	}
	if p.solver == "" {
		p.solver = "adam"
	}
	if p.learningRate == "" {
		p.learningRate = "constant"
	}
	if p.learningRateInit == 0 {
		p.learningRateInit = 1e-3
	}
	if p.maxIter == 0 {
		p.maxIter = 200
	}
	if p.nIterNoChange == 0 {
		p.nIterNoChange = 10
	}
	if spec.Alpha != nil {
		p.alpha = *spec.Alpha
	}
	if spec.Tol != nil {
		p.tol = *spec.Tol
	}
	if spec.Shuffle != nil {
		p.shuffle = *spec.Shuffle
	}
	if spec.RandomState != nil {
		p.seed = *spec.RandomState
	}
	return p
}

// layer is a view into a flat parameter (or gradient) vector.
type layer struct {
	w     *mat.Dense
	wData []float64
	b     []float64
}

// bindLayers slices flat into weight matrices and bias vectors for the
// consecutive layer widths in units.
func bindLayers(units []int, flat []float64) []layer {
	layers := make([]layer, len(units)-1)
	off := 0
	for i := range layers {
		in, out := units[i], units[i+1]
		wData := flat[off : off+in*out]
		off += in * out
		layers[i] = layer{
			w:     mat.NewDense(in, out, wData),
			wData: wData,
			b:     flat[off : off+out],
		}
		off += out
	}
	return layers
}

func paramCount(units []int) int {
	total := 0
	for i := 0; i < len(units)-1; i++ {
		total += units[i]*units[i+1] + units[i+1]
	}
	return total
}

// mlp is a fully connected regressor with an identity output layer trained
// on squared loss with an L2 penalty.
type mlp struct {
	params mlpParams
	units  []int
	theta  []float64
	layers []layer
	act    activation
	rng    *rand.Rand

	lossCurve []float64
	nIter     int
}

func newMLP(p mlpParams) *mlp {
	units := make([]int, 0, len(p.hiddenLayers)+2)
	units = append(units, 1)
	units = append(units, p.hiddenLayers...)
	units = append(units, 1)

	m := &mlp{
		params: p,
		units:  units,
		theta:  make([]float64, paramCount(units)),
		act:    activationFor(p.activation),
		rng:    rand.New(rand.NewSource(p.seed)),
	}
	m.layers = bindLayers(units, m.theta)
	m.initialize()
	return m
}

// initialize draws Glorot-uniform weights and biases.
func (m *mlp) initialize() {
	factor := 6.0
	if m.params.activation == "logistic" {
		factor = 2.0
	}
	for i, l := range m.layers {
		bound := math.Sqrt(factor / float64(m.units[i]+m.units[i+1]))
		for k := range l.wData {
			l.wData[k] = (2*m.rng.Float64() - 1) * bound
		}
		for k := range l.b {
			l.b[k] = (2*m.rng.Float64() - 1) * bound
		}
	}
}

func column(x []float64) *mat.Dense {
	return mat.NewDense(len(x), 1, append([]float64(nil), x...))
}

// forward returns the output of every layer, the input included.
func (m *mlp) forward(x *mat.Dense) []*mat.Dense {
	outputs := make([]*mat.Dense, len(m.layers)+1)
	outputs[0] = x
	for i, l := range m.layers {
		z := new(mat.Dense)
		z.Mul(outputs[i], l.w)
		rows, _ := z.Dims()
		for r := 0; r < rows; r++ {
			floats.Add(z.RawRowView(r), l.b)
		}
		if i < len(m.layers)-1 {
			m.act.apply(z)
		}
		outputs[i+1] = z
	}
	return outputs
}

// lossGrad returns the penalised squared loss on x, y. When grad is not nil
// the gradient with respect to theta is written into it.
func (m *mlp) lossGrad(x *mat.Dense, y []float64, grad []float64) float64 {
	outputs := m.forward(x)
	n, _ := x.Dims()
	nf := float64(n)

	pred := outputs[len(outputs)-1]
	delta := mat.NewDense(n, 1, nil)
	loss := 0.0
	for i := 0; i < n; i++ {
		d := pred.At(i, 0) - y[i]
		delta.Set(i, 0, d)
		loss += d * d
	}
	loss /= 2 * nf

	penalty := 0.0
	for _, l := range m.layers {
		penalty += floats.Dot(l.wData, l.wData)
	}
	loss += 0.5 * m.params.alpha * penalty / nf

	if grad == nil {
		return loss
	}

	grads := bindLayers(m.units, grad)
	for i := len(m.layers) - 1; i >= 0; i-- {
		g := grads[i]
		g.w.Mul(outputs[i].T(), delta)
		for k := range g.wData {
			g.wData[k] = (g.wData[k] + m.params.alpha*m.layers[i].wData[k]) / nf
		}
		for c := range g.b {
			g.b[c] = floats.Sum(mat.Col(nil, c, delta)) / nf
		}

		if i > 0 {
			prev := new(mat.Dense)
			prev.Mul(delta, m.layers[i].w.T())
			m.act.deriv(outputs[i], prev)
			delta = prev
		}
	}
	return loss
}

func (m *mlp) fit(x, y []float64) error {
	if m.params.solver == "lbfgs" {
		return m.fitLBFGS(x, y)
	}
	return m.fitStochastic(x, y)
}

func (m *mlp) fitStochastic(x, y []float64) error {
	n := len(x)
	batch := m.params.batchSize
	if batch <= 0 {
		batch = min(200, n)
	} else if batch > n {
		batch = n
	}

	opt := newOptimizer(m.params, len(m.theta))
	grad := make([]float64, len(m.theta))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	noImprovement := 0
	timeStep := 0
	for it := 0; it < m.params.maxIter; it++ {
		if m.params.shuffle {
			m.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		accumulated := 0.0
		for start := 0; start < n; start += batch {
			end := min(start+batch, n)
			bx, by := gather(x, y, order[start:end])
			accumulated += m.lossGrad(bx, by, grad) * float64(end-start)
			opt.update(m.theta, grad)
		}

		m.nIter++
		loss := accumulated / float64(n)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return fmt.Errorf("training diverged at iteration %d", m.nIter)
		}
		timeStep += n
		m.lossCurve = append(m.lossCurve, loss)

		if loss > bestLoss-m.params.tol {
			noImprovement++
		} else {
			noImprovement = 0
		}
		if loss < bestLoss {
			bestLoss = loss
		}

		opt.iterationEnds(timeStep)
		if noImprovement > m.params.nIterNoChange {
			if opt.triggerStopping() {
				return nil
			}
			noImprovement = 0
		}
	}

	logger.L().Warnw("neural net reached max_iter without converging",
		"max_iter", m.params.maxIter, "loss", m.lossCurve[len(m.lossCurve)-1])
	return nil
}

func gather(x, y []float64, idx []int) (*mat.Dense, []float64) {
	bx := make([]float64, len(idx))
	by := make([]float64, len(idx))
	for i, k := range idx {
		bx[i] = x[k]
		by[i] = y[k]
	}
	return mat.NewDense(len(idx), 1, bx), by
}

func (m *mlp) fitLBFGS(x, y []float64) error {
	bx := column(x)
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			copy(m.theta, theta)
			return m.lossGrad(bx, y, nil)
		},
		Grad: func(grad, theta []float64) {
			copy(m.theta, theta)
			m.lossGrad(bx, y, grad)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   m.params.maxIter,
		FuncEvaluations:   m.params.maxFun,
		GradientThreshold: m.params.tol,
	}

	initial := append([]float64(nil), m.theta...)
	result, err := optimize.Minimize(problem, initial, settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("lbfgs: %w", err)
	}
	if err != nil {
		logger.L().Warnw("lbfgs stopped early", "status", result.Status.String(), "error", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("lbfgs: training diverged (%s)", result.Status)
		}
	}

	copy(m.theta, result.X)
	m.nIter = result.Stats.MajorIterations
	m.lossCurve = append(m.lossCurve, result.F)
	if result.Status == optimize.IterationLimit {
		logger.L().Warnw("neural net reached max_iter without converging",
			"max_iter", m.params.maxIter, "loss", result.F)
	}
	return nil
}

func (m *mlp) predict(x []float64) []float64 {
	outputs := m.forward(column(x))
	return mat.Col(nil, 0, outputs[len(outputs)-1])
}
