package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"covidforecast/logger"
)

// PolynomialRegression fits y = b + c1*x + c2*x^2 + ... + cd*x^d by ordinary
// least squares.
type PolynomialRegression struct {
	name   string
	degree int

	// coef[j] multiplies x^j. coef[0] belongs to the constant column and is
	// always zero since the intercept is fitted separately.
	coef      []float64
	intercept float64
	trained   bool
}

// NewPolynomialRegression creates an untrained model of the given degree.
func NewPolynomialRegression(name string, degree int) *PolynomialRegression {
	return &PolynomialRegression{
		name:   name,
		degree: degree,
	}
}

func (p *PolynomialRegression) Name() string {
	return p.name
}

// Degree returns the highest exponent of the basis.
func (p *PolynomialRegression) Degree() int {
	return p.degree
}

// polynomialFeatures expands x into the columns [1, x, x^2, ..., x^degree].
func polynomialFeatures(x []float64, degree int) *mat.Dense {
	cols := degree + 1
	data := make([]float64, len(x)*cols)
	for i, v := range x {
		term := 1.0
		for j := 0; j < cols; j++ {
			data[i*cols+j] = term
			term *= v
		}
	}
	return mat.NewDense(len(x), cols, data)
}

// lstsqRcond is the relative cutoff below which singular values are treated
// as zero, float64 machine epsilon.
const lstsqRcond = 0x1p-52

// Train fits the coefficients. Columns are centered so the intercept is fitted
// separately, and the centered system is solved through an SVD. A rank
// deficient design (a single row, fewer rows than the degree, a constant x)
// yields the minimum-norm least squares solution.
func (p *PolynomialRegression) Train(x []float64, y []int) error {
	if err := checkTrainingSet(x, y); err != nil {
		return err
	}
	if p.degree < 1 {
		return fmt.Errorf("polynomial degree must be at least 1, got %d", p.degree)
	}

	n := len(x)
	features := polynomialFeatures(x, p.degree)
	targets := toFloats(y)
	yMean := stat.Mean(targets, nil)

	means := make([]float64, p.degree+1)
	design := mat.NewDense(n, p.degree, nil)
	column := make([]float64, n)
	for j := 1; j <= p.degree; j++ {
		mat.Col(column, j, features)
		means[j] = stat.Mean(column, nil)
		for i, v := range column {
			design.Set(i, j-1, v-means[j])
		}
	}

	centered := make([]float64, n)
	for i, v := range targets {
		centered[i] = v - yMean
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return fmt.Errorf("least squares: SVD did not converge for %d samples", n)
	}
	w := mat.NewVecDense(p.degree, nil)
	rank := svd.Rank(lstsqRcond)
	// With rank 0 every centered column is zero and the solution is w = 0.
	if rank > 0 {
		svd.SolveVecTo(w, mat.NewVecDense(n, centered), rank)
	}
	if rank < p.degree {
		logger.L().Debugw("rank deficient polynomial fit", "model", p.name, "degree", p.degree, "rank", rank, "samples", n)
	}

	coef := make([]float64, p.degree+1)
	intercept := yMean
	for j := 1; j <= p.degree; j++ {
		coef[j] = w.AtVec(j - 1)
		intercept -= coef[j] * means[j]
	}
	for _, c := range append(coef, intercept) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("least squares: non-finite coefficient for %d samples", n)
		}
	}

	p.coef = coef
	p.intercept = intercept
	p.trained = true

	logger.L().Debugw("polynomial model trained", "model", p.name, "degree", p.degree, "samples", n)
	return nil
}

func (p *PolynomialRegression) predictRaw(x []float64) ([]float64, error) {
	if !p.trained {
		return nil, ErrModelNotTrained
	}
	if len(x) == 0 {
		return []float64{}, nil
	}

	var out mat.VecDense
	out.MulVec(polynomialFeatures(x, p.degree), mat.NewVecDense(len(p.coef), p.coef))
	raw := make([]float64, len(x))
	for i := range raw {
		raw[i] = out.AtVec(i) + p.intercept
	}
	return raw, nil
}

func (p *PolynomialRegression) Predict(x []float64) ([]int, error) {
	raw, err := p.predictRaw(x)
	if err != nil {
		return nil, err
	}
	return roundToInts(raw), nil
}

// Coefficients returns a copy of the fitted coefficients, index j for x^j.
func (p *PolynomialRegression) Coefficients() []float64 {
	return append([]float64(nil), p.coef...)
}

// Intercept returns the fitted constant term.
func (p *PolynomialRegression) Intercept() float64 {
	return p.intercept
}

// Describe renders the fitted polynomial, e.g. "3.000 + 2.000X^1 - 0.500X^2".
func (p *PolynomialRegression) Describe() (string, error) {
	if !p.trained {
		return "", ErrModelNotTrained
	}

	var b strings.Builder
	b.WriteString(strconv.FormatFloat(p.intercept, 'f', 3, 64))
	for i := 1; i < len(p.coef); i++ {
		if p.coef[i] >= 0 {
			b.WriteString(" + ")
		} else {
			b.WriteString(" - ")
		}
		b.WriteString(strconv.FormatFloat(math.Abs(p.coef[i]), 'f', 3, 64))
		b.WriteString("X^")
		b.WriteString(strconv.Itoa(i))
	}
	return b.String(), nil
}
