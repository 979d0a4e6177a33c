package main

import (
	"fmt"
	"math"

	"github.com/cascpredictor/autodiff"
	"gonum.org/v1/gonum/mat"
)

// stabilizerInit makes the stabilizer an identity at initialisation:
// 1/4 * ln(1 + e^(4*x)) == 1 when x = ln(e^4 - 1)/4.
var stabilizerInit = math.Log(math.Exp(4)-1) / 4

// layer maps a sequence of column vectors to another sequence.
type layer interface {
	forward(xs []*autodiff.Tensor) ([]*autodiff.Tensor, error)
	parameters() []*autodiff.Tensor
}

// chain keeps the first error of a run of tensor ops. Ops reject nil inputs, so
// everything after a failure short-circuits into another error.
type chain struct {
	err error
}

func (c *chain) do(t *autodiff.Tensor, err error) *autodiff.Tensor {
	if c.err == nil && err != nil {
		c.err = err
	}
	return t
}

// stabilizer rescales its input by a learned positive scalar.
type stabilizer struct {
	alpha *autodiff.Tensor
}

func newStabilizer(name string) *stabilizer {
	return &stabilizer{alpha: scalarParameter(stabilizerInit, name+".alpha")}
}

func (s *stabilizer) beta() (*autodiff.Tensor, error) {
	var c chain
	x := c.do(autodiff.Scale(s.alpha, 4))
	x = c.do(autodiff.Exp(x))
	x = c.do(autodiff.AddScalar(x, 1))
	x = c.do(autodiff.Log(x))
	x = c.do(autodiff.Scale(x, 0.25))
	return x, c.err
}

func (s *stabilizer) forward(xs []*autodiff.Tensor) ([]*autodiff.Tensor, error) {
	beta, err := s.beta()
	if err != nil {
		return nil, fmt.Errorf("stabilizer: %w", err)
	}

	out := make([]*autodiff.Tensor, len(xs))
	for i, x := range xs {
		if out[i], err = autodiff.ScalarMul(beta, x); err != nil {
			return nil, fmt.Errorf("stabilizer: %w", err)
		}
	}

	return out, nil
}

func (s *stabilizer) parameters() []*autodiff.Tensor {
	return []*autodiff.Tensor{s.alpha}
}

// lstm is a recurrent layer whose previous output and cell state are fed back
// with a one step delay. Gate blocks are ordered forget, input, output,
// candidate.
type lstm struct {
	w, b, h *autodiff.Tensor
	// p projects the cell output when outputDim != cellDim.
	p *autodiff.Tensor

	cellDim   int
	outputDim int
}

func newLSTM(name string, inputDim, outputDim, cellDim int, seed uint64) (*lstm, error) {
	if cellDim == 0 {
		cellDim = outputDim
	}

	gates := 4 * cellDim
	l := &lstm{cellDim: cellDim, outputDim: outputDim}

	var err error
	if l.w, err = glorotParameter(name+".W", gates, inputDim, inputDim, gates, seed+1); err != nil {
		return nil, err
	}
	if l.b, err = glorotParameter(name+".b", gates, 1, 1, gates, seed+2); err != nil {
		return nil, err
	}
	if l.h, err = glorotParameter(name+".H", gates, outputDim, outputDim, gates, seed+3); err != nil {
		return nil, err
	}
	if outputDim != cellDim {
		if l.p, err = glorotParameter(name+".P", outputDim, cellDim, cellDim, outputDim, seed+4); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *lstm) forward(xs []*autodiff.Tensor) ([]*autodiff.Tensor, error) {
	h, err := autodiff.Zeros(l.outputDim, 1, "h0")
	if err != nil {
		return nil, err
	}
	c, err := autodiff.Zeros(l.cellDim, 1, "c0")
	if err != nil {
		return nil, err
	}

	out := make([]*autodiff.Tensor, len(xs))
	for t, x := range xs {
		if h, c, err = l.step(x, h, c); err != nil {
			return nil, fmt.Errorf("lstm step %d: %w", t, err)
		}
		out[t] = h
	}

	return out, nil
}

func (l *lstm) step(x, prevH, prevC *autodiff.Tensor) (*autodiff.Tensor, *autodiff.Tensor, error) {
	var ch chain
	n := l.cellDim

	wx := ch.do(autodiff.MatMul(l.w, x))
	wxb := ch.do(autodiff.Add(wx, l.b))
	hh := ch.do(autodiff.MatMul(l.h, prevH))
	z := ch.do(autodiff.Add(wxb, hh))

	ft := ch.do(autodiff.Sigmoid(ch.do(autodiff.SliceRows(z, 0, n))))
	it := ch.do(autodiff.Sigmoid(ch.do(autodiff.SliceRows(z, n, 2*n))))
	ot := ch.do(autodiff.Sigmoid(ch.do(autodiff.SliceRows(z, 2*n, 3*n))))
	gt := ch.do(autodiff.Tanh(ch.do(autodiff.SliceRows(z, 3*n, 4*n))))

	keep := ch.do(autodiff.Mul(ft, prevC))
	write := ch.do(autodiff.Mul(it, gt))
	ct := ch.do(autodiff.Add(keep, write))
	ht := ch.do(autodiff.Mul(ot, ch.do(autodiff.Tanh(ct))))

	if l.p != nil {
		ht = ch.do(autodiff.MatMul(l.p, ht))
	}

	return ht, ct, ch.err
}

func (l *lstm) parameters() []*autodiff.Tensor {
	params := []*autodiff.Tensor{l.w, l.b, l.h}
	if l.p != nil {
		params = append(params, l.p)
	}
	return params
}

// dense is an affine projection without activation.
type dense struct {
	w, b *autodiff.Tensor
}

func newDense(name string, inputDim, outputDim int, seed uint64) (*dense, error) {
	w, err := glorotParameter(name+".W", outputDim, inputDim, inputDim, outputDim, seed+1)
	if err != nil {
		return nil, err
	}

	b, err := autodiff.Zeros(outputDim, 1, name+".b")
	if err != nil {
		return nil, err
	}

	return &dense{w: w, b: autodiff.NewParameter(b.Value, b.Name)}, nil
}

func (d *dense) forward(xs []*autodiff.Tensor) ([]*autodiff.Tensor, error) {
	out := make([]*autodiff.Tensor, len(xs))
	for i, x := range xs {
		var c chain
		out[i] = c.do(autodiff.Add(c.do(autodiff.MatMul(d.w, x)), d.b))
		if c.err != nil {
			return nil, fmt.Errorf("dense: %w", c.err)
		}
	}

	return out, nil
}

func (d *dense) parameters() []*autodiff.Tensor {
	return []*autodiff.Tensor{d.w, d.b}
}

func glorotParameter(name string, rows, cols, fanIn, fanOut int, seed uint64) (*autodiff.Tensor, error) {
	m, err := autodiff.GlorotUniform(rows, cols, fanIn, fanOut, 1, seed)
	if err != nil {
		return nil, fmt.Errorf("initialising %s: %w", name, err)
	}

	return autodiff.NewParameter(m, name), nil
}

func scalarParameter(value float64, name string) *autodiff.Tensor {
	return autodiff.NewParameter(mat.NewDense(1, 1, []float64{value}), name)
}
