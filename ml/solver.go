package ml

import "math"

// optimizer updates a flat parameter vector from a gradient of the same
// layout, once per minibatch.
type optimizer interface {
	update(params, grads []float64)
	// iterationEnds is called after every epoch with the number of samples
	// seen so far.
	iterationEnds(timeStep int)
	// triggerStopping is called when the loss stopped improving. It returns
	// false when the optimizer adjusted itself and training should go on.
	triggerStopping() bool
}

func newOptimizer(p mlpParams, size int) optimizer {
	if p.solver == "sgd" {
		return &sgdOptimizer{
			lrInit:   p.learningRateInit,
			lr:       p.learningRateInit,
			schedule: p.learningRate,
			momentum: p.momentum,
			nesterov: p.nesterov,
			powerT:   p.powerT,
			velocity: make([]float64, size),
		}
	}
	return &adamOptimizer{
		lrInit: p.learningRateInit,
		beta1:  p.beta1,
		beta2:  p.beta2,
		eps:    p.epsilon,
		ms:     make([]float64, size),
		vs:     make([]float64, size),
	}
}

type sgdOptimizer struct {
	lrInit   float64
	lr       float64
	schedule string
	momentum float64
	nesterov bool
	powerT   float64
	velocity []float64
}

func (o *sgdOptimizer) update(params, grads []float64) {
	for i, g := range grads {
		step := o.momentum*o.velocity[i] - o.lr*g
		o.velocity[i] = step
		if o.nesterov {
			step = o.momentum*step - o.lr*g
		}
		params[i] += step
	}
}

func (o *sgdOptimizer) iterationEnds(timeStep int) {
	if o.schedule == "invscaling" {
		o.lr = o.lrInit / math.Pow(float64(timeStep+1), o.powerT)
	}
}

func (o *sgdOptimizer) triggerStopping() bool {
	if o.schedule != "adaptive" {
		return true
	}
	if o.lr <= 1e-6 {
		return true
	}
	o.lr /= 5
	return false
}

type adamOptimizer struct {
	lrInit float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	ms     []float64
	vs     []float64
}

func (o *adamOptimizer) update(params, grads []float64) {
	o.t++
	t := float64(o.t)
	lr := o.lrInit * math.Sqrt(1-math.Pow(o.beta2, t)) / (1 - math.Pow(o.beta1, t))
	for i, g := range grads {
		o.ms[i] = o.beta1*o.ms[i] + (1-o.beta1)*g
		o.vs[i] = o.beta2*o.vs[i] + (1-o.beta2)*g*g
		params[i] -= lr * o.ms[i] / (math.Sqrt(o.vs[i]) + o.eps)
	}
}

func (o *adamOptimizer) iterationEnds(int) {}

func (o *adamOptimizer) triggerStopping() bool {
	return true
}
