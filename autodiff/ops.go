package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MatMul performs matrix multiplication with gradient tracking
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("input tensors cannot be nil")
	}

	ar, ac := a.Shape()
	br, bc := b.Shape()
	if ac != br {
		return nil, fmt.Errorf("matrix dimensions don't match for multiplication: a(%dx%d), b(%dx%d)", ar, ac, br, bc)
	}

	value := new(mat.Dense)
	value.Mul(a.Value, b.Value)

	out := newResult(value, "matmul", a, b)
	out.backward = func() {
		// dL/dA = dL/dC * B^T, dL/dB = A^T * dL/dC
		if a.requiresGrad {
			var ga mat.Dense
			ga.Mul(out.Grad, b.Value.T())
			a.accumulate(&ga)
		}
		if b.requiresGrad {
			var gb mat.Dense
			gb.Mul(a.Value.T(), out.Grad)
			b.accumulate(&gb)
		}
	}

	return out, nil
}

// Add performs element-wise addition with gradient tracking
func Add(a, b *Tensor) (*Tensor, error) {
	if err := sameShape("addition", a, b); err != nil {
		return nil, err
	}

	value := new(mat.Dense)
	value.Add(a.Value, b.Value)

	out := newResult(value, "add", a, b)
	out.backward = func() {
		if a.requiresGrad {
			a.accumulate(out.Grad)
		}
		if b.requiresGrad {
			b.accumulate(out.Grad)
		}
	}

	return out, nil
}

// AddN sums any number of equally shaped tensors in a single node.
func AddN(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("nothing to add")
	}

	for _, t := range ts[1:] {
		if err := sameShape("addition", ts[0], t); err != nil {
			return nil, err
		}
	}

	value := mat.DenseCopyOf(ts[0].Value)
	for _, t := range ts[1:] {
		value.Add(value, t.Value)
	}

	out := newResult(value, "add_n", ts...)
	out.backward = func() {
		for _, t := range ts {
			if t.requiresGrad {
				t.accumulate(out.Grad)
			}
		}
	}

	return out, nil
}

// Mul performs element-wise multiplication (Hadamard product) with gradient tracking
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := sameShape("element-wise multiplication", a, b); err != nil {
		return nil, err
	}

	value := new(mat.Dense)
	value.MulElem(a.Value, b.Value)

	out := newResult(value, "mul", a, b)
	out.backward = func() {
		if a.requiresGrad {
			var ga mat.Dense
			ga.MulElem(out.Grad, b.Value)
			a.accumulate(&ga)
		}
		if b.requiresGrad {
			var gb mat.Dense
			gb.MulElem(out.Grad, a.Value)
			b.accumulate(&gb)
		}
	}

	return out, nil
}

// ScalarMul multiplies every element of a by the 1x1 tensor s. Both operands
// receive gradients.
func ScalarMul(s, a *Tensor) (*Tensor, error) {
	if s == nil || a == nil {
		return nil, fmt.Errorf("input tensors cannot be nil")
	}

	if r, c := s.Shape(); r != 1 || c != 1 {
		return nil, fmt.Errorf("scalar operand must be 1x1, got %dx%d", r, c)
	}

	k := s.Value.At(0, 0)
	value := new(mat.Dense)
	value.Scale(k, a.Value)

	out := newResult(value, "scalar_mul", s, a)
	out.backward = func() {
		if a.requiresGrad {
			var ga mat.Dense
			ga.Scale(k, out.Grad)
			a.accumulate(&ga)
		}
		if s.requiresGrad {
			var prod mat.Dense
			prod.MulElem(out.Grad, a.Value)
			s.accumulate(mat.NewDense(1, 1, []float64{mat.Sum(&prod)}))
		}
	}

	return out, nil
}

// Scale multiplies a tensor by a constant.
func Scale(a *Tensor, k float64) (*Tensor, error) {
	if a == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}

	value := new(mat.Dense)
	value.Scale(k, a.Value)

	out := newResult(value, "scale", a)
	out.backward = func() {
		var ga mat.Dense
		ga.Scale(k, out.Grad)
		a.accumulate(&ga)
	}

	return out, nil
}

// AddScalar adds a constant to every element.
func AddScalar(a *Tensor, k float64) (*Tensor, error) {
	return unary(a, "add_scalar",
		func(x float64) float64 { return x + k },
		func(_, _ float64) float64 { return 1 },
	)
}

// Sigmoid applies the logistic function element-wise.
func Sigmoid(a *Tensor) (*Tensor, error) {
	return unary(a, "sigmoid",
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(_, y float64) float64 { return y * (1 - y) },
	)
}

// Tanh applies the hyperbolic tangent element-wise.
func Tanh(a *Tensor) (*Tensor, error) {
	return unary(a, "tanh",
		math.Tanh,
		func(_, y float64) float64 { return 1 - y*y },
	)
}

// Exp applies e^x element-wise.
func Exp(a *Tensor) (*Tensor, error) {
	return unary(a, "exp",
		math.Exp,
		func(_, y float64) float64 { return y },
	)
}

// Log applies the natural logarithm element-wise.
func Log(a *Tensor) (*Tensor, error) {
	return unary(a, "log",
		math.Log,
		func(x, _ float64) float64 { return 1 / x },
	)
}

// unary builds an element-wise op from its forward function f and its
// derivative df, which receives both the input x and the output y.
func unary(a *Tensor, name string, f func(x float64) float64, df func(x, y float64) float64) (*Tensor, error) {
	if a == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}

	value := new(mat.Dense)
	value.Apply(func(_, _ int, v float64) float64 { return f(v) }, a.Value)

	out := newResult(value, name, a)
	out.backward = func() {
		var ga mat.Dense
		ga.Apply(func(i, j int, g float64) float64 {
			return g * df(a.Value.At(i, j), value.At(i, j))
		}, out.Grad)
		a.accumulate(&ga)
	}

	return out, nil
}

// SliceRows returns rows [start, end) of a as a new tensor.
func SliceRows(a *Tensor, start, end int) (*Tensor, error) {
	if a == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}

	rows, cols := a.Shape()
	if start < 0 || end > rows || start >= end {
		return nil, fmt.Errorf("invalid row slice [%d, %d) of %d rows", start, end, rows)
	}

	value := mat.DenseCopyOf(a.Value.Slice(start, end, 0, cols))

	out := newResult(value, "slice", a)
	out.backward = func() {
		if a.Grad == nil {
			a.Grad = mat.NewDense(rows, cols, nil)
		}
		view := a.Grad.Slice(start, end, 0, cols).(*mat.Dense)
		view.Add(view, out.Grad)
	}

	return out, nil
}

// Sum reduces a tensor to a 1x1 tensor holding the sum of its elements.
func Sum(a *Tensor) (*Tensor, error) {
	if a == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}

	out := newResult(mat.NewDense(1, 1, []float64{mat.Sum(a.Value)}), "sum", a)
	out.backward = func() {
		g := out.Grad.At(0, 0)
		var ga mat.Dense
		ga.Apply(func(_, _ int, _ float64) float64 { return g }, a.Value)
		a.accumulate(&ga)
	}

	return out, nil
}

func sameShape(op string, a, b *Tensor) error {
	if a == nil || b == nil {
		return fmt.Errorf("input tensors cannot be nil")
	}

	ar, ac := a.Shape()
	br, bc := b.Shape()
	if ar != br || ac != bc {
		return fmt.Errorf("matrix dimensions don't match for %s: a(%dx%d), b(%dx%d)", op, ar, ac, br, bc)
	}

	return nil
}
