package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MomentumSGD is stochastic gradient descent with unit-gain momentum.
//
// Rates are expressed per sample: a step over a minibatch of n samples uses a
// momentum of exp(-n/TimeConstant) and clips gradients to ClipThreshold*n.
// With Truncate set, clipping is element-wise; otherwise the whole gradient of a
// parameter is rescaled when its L2 norm exceeds the threshold.
type MomentumSGD struct {
	LearningRate  float64
	TimeConstant  float64
	ClipThreshold float64
	Truncate      bool

	params   []*Tensor
	velocity []*mat.Dense
}

// NewMomentumSGD creates an optimizer over params.
func NewMomentumSGD(params []*Tensor, learningRate, timeConstant, clipThreshold float64, truncate bool) (*MomentumSGD, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", learningRate)
	}

	if timeConstant < 0 || clipThreshold < 0 {
		return nil, fmt.Errorf("time constant and clip threshold cannot be negative")
	}

	velocity := make([]*mat.Dense, len(params))
	for i, p := range params {
		if !p.requiresGrad {
			return nil, fmt.Errorf("tensor %q is not a parameter", p.Name)
		}
		r, c := p.Shape()
		velocity[i] = mat.NewDense(r, c, nil)
	}

	return &MomentumSGD{
		LearningRate:  learningRate,
		TimeConstant:  timeConstant,
		ClipThreshold: clipThreshold,
		Truncate:      truncate,
		params:        params,
		velocity:      velocity,
	}, nil
}

// Momentum returns the momentum applied to a minibatch of the given size.
func (o *MomentumSGD) Momentum(samples int) float64 {
	if o.TimeConstant == 0 {
		return 0
	}

	return math.Exp(-float64(samples) / o.TimeConstant)
}

// Step applies the accumulated gradients of a minibatch of the given size and
// zeroes them.
func (o *MomentumSGD) Step(samples int) {
	if samples <= 0 {
		return
	}

	m := o.Momentum(samples)
	threshold := o.ClipThreshold * float64(samples)

	for i, p := range o.params {
		if p.Grad == nil {
			continue
		}

		if threshold > 0 {
			clip(p.Grad, threshold, o.Truncate)
		}

		v := o.velocity[i]
		var g mat.Dense
		g.Scale(1-m, p.Grad)
		v.Scale(m, v)
		v.Add(v, &g)

		var update mat.Dense
		update.Scale(o.LearningRate, v)
		p.Value.Sub(p.Value, &update)

		p.ZeroGrad()
	}
}

func clip(g *mat.Dense, threshold float64, truncate bool) {
	if truncate {
		g.Apply(func(_, _ int, v float64) float64 {
			return math.Max(-threshold, math.Min(threshold, v))
		}, g)
		return
	}

	norm := floats.Norm(g.RawMatrix().Data, 2)
	if norm > threshold {
		g.Scale(threshold/norm, g)
	}
}
