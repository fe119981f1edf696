package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// activation applies a hidden-layer nonlinearity in place and scales a
// backpropagated delta by its derivative, expressed through the layer output.
type activation struct {
	name  string
	apply func(z *mat.Dense)
	deriv func(out, delta *mat.Dense)
}

func activationFor(name string) activation {
	switch name {
	case "identity":
		return activation{
			name:  name,
			apply: func(*mat.Dense) {},
			deriv: func(_, _ *mat.Dense) {},
		}
	case "logistic":
		return activation{
			name: name,
			apply: func(z *mat.Dense) {
				z.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, z)
			},
			deriv: func(out, delta *mat.Dense) {
				delta.Apply(func(i, j int, v float64) float64 {
					o := out.At(i, j)
					return v * o * (1 - o)
				}, delta)
			},
		}
	case "tanh":
		return activation{
			name: name,
			apply: func(z *mat.Dense) {
				z.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
			},
			deriv: func(out, delta *mat.Dense) {
				delta.Apply(func(i, j int, v float64) float64 {
					o := out.At(i, j)
					return v * (1 - o*o)
				}, delta)
			},
		}
	default:
		return activation{
			name: "relu",
			apply: func(z *mat.Dense) {
				z.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
			},
			deriv: func(out, delta *mat.Dense) {
				delta.Apply(func(i, j int, v float64) float64 {
					if out.At(i, j) <= 0 {
						return 0
					}
					return v
				}, delta)
			},
		}
	}
}
