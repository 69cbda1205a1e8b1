package recommend

import (
	"fmt"
	"math"
)

// Optimizer applies one update step to the model parameters from their
// accumulated gradients. State (momentum, moment estimates) is keyed by
// parameter position, which is stable across calls.
type Optimizer interface {
	Step(params []*tensor)
}

// NewOptimizer builds the optimizer named by the config.
func NewOptimizer(cfg Config) (Optimizer, error) {
	switch cfg.Optimizer {
	case OptimizerSGD:
		return &sgdOptimizer{
			lr:          cfg.SGDLR,
			momentum:    cfg.SGDMomentum,
			weightDecay: cfg.L2Regularization,
		}, nil
	case OptimizerAdam:
		return &adamOptimizer{
			lr:          cfg.AdamLR,
			beta1:       0.9,
			beta2:       0.999,
			eps:         1e-8,
			weightDecay: cfg.L2Regularization,
		}, nil
	case OptimizerRMSprop:
		return &rmspropOptimizer{
			lr:       cfg.RMSpropLR,
			alpha:    cfg.RMSpropAlpha,
			momentum: cfg.RMSpropMomentum,
			eps:      1e-8,
		}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s", cfg.Optimizer)
	}
}

// ---- SGD with momentum ----

type sgdOptimizer struct {
	lr          float64
	momentum    float64
	weightDecay float64

	velocity [][]float64
}

func (o *sgdOptimizer) Step(params []*tensor) {
	if o.velocity == nil {
		o.velocity = make([][]float64, len(params))
		for i, p := range params {
			o.velocity[i] = make([]float64, len(p.W))
		}
	}

	for i, p := range params {
		v := o.velocity[i]
		for j := range p.W {
			g := p.G[j] + o.weightDecay*p.W[j]
			if o.momentum != 0 {
				v[j] = o.momentum*v[j] + g
				g = v[j]
			}
			p.W[j] -= o.lr * g
		}
	}
}

// ---- Adam ----

type adamOptimizer struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	t int
	m [][]float64
	v [][]float64
}

func (o *adamOptimizer) Step(params []*tensor) {
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.W))
			o.v[i] = make([]float64, len(p.W))
		}
	}

	o.t++
	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range params {
		m, v := o.m[i], o.v[i]
		for j := range p.W {
			g := p.G[j] + o.weightDecay*p.W[j]
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / bias1
			vHat := v[j] / bias2
			p.W[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
}

// ---- RMSprop ----

type rmspropOptimizer struct {
	lr       float64
	alpha    float64
	momentum float64
	eps      float64

	sq  [][]float64
	buf [][]float64
}

func (o *rmspropOptimizer) Step(params []*tensor) {
	if o.sq == nil {
		o.sq = make([][]float64, len(params))
		o.buf = make([][]float64, len(params))
		for i, p := range params {
			o.sq[i] = make([]float64, len(p.W))
			o.buf[i] = make([]float64, len(p.W))
		}
	}

	for i, p := range params {
		sq, buf := o.sq[i], o.buf[i]
		for j := range p.W {
			g := p.G[j]
			sq[j] = o.alpha*sq[j] + (1-o.alpha)*g*g
			step := g / (math.Sqrt(sq[j]) + o.eps)
			if o.momentum > 0 {
				buf[j] = o.momentum*buf[j] + step
				step = buf[j]
			}
			p.W[j] -= o.lr * step
		}
	}
}
