package recommend

import (
	"math"
	"math/rand"
)

// tensor is a dense row-major matrix with a gradient buffer of the same
// shape. Every trainable parameter in the scorer is one tensor.
type tensor struct {
	Rows, Cols int
	W          []float64
	G          []float64
}

func newTensor(rows, cols int) *tensor {
	return &tensor{
		Rows: rows,
		Cols: cols,
		W:    make([]float64, rows*cols),
		G:    make([]float64, rows*cols),
	}
}

// Row returns the i-th row of the weight buffer as a shared slice.
func (t *tensor) Row(i int) []float64 {
	return t.W[i*t.Cols : (i+1)*t.Cols]
}

// GradRow returns the i-th row of the gradient buffer.
func (t *tensor) GradRow(i int) []float64 {
	return t.G[i*t.Cols : (i+1)*t.Cols]
}

func (t *tensor) zeroGrad() {
	for i := range t.G {
		t.G[i] = 0
	}
}

// initGaussian fills the weights with N(0, stddev^2) noise.
func (t *tensor) initGaussian(rng *rand.Rand, stddev float64) {
	for i := range t.W {
		t.W[i] = rng.NormFloat64() * stddev
	}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// bceLoss is binary cross-entropy with the log arguments clamped away
// from zero, so a saturated sigmoid cannot produce an infinite loss.
func bceLoss(pred, target float64) float64 {
	const eps = 1e-12
	p := math.Min(math.Max(pred, eps), 1-eps)
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}
