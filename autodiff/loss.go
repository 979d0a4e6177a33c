package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropyWithSoftmax computes -sum(label * log(softmax(logits))) for a
// single column of logits. The label is treated as a constant distribution.
func CrossEntropyWithSoftmax(logits, label *Tensor) (*Tensor, error) {
	if err := sameShape("cross entropy", logits, label); err != nil {
		return nil, err
	}

	if _, c := logits.Shape(); c != 1 {
		return nil, fmt.Errorf("cross entropy expects column vectors, got %d columns", c)
	}

	z := mat.Col(nil, 0, logits.Value)
	y := mat.Col(nil, 0, label.Value)

	lse := floats.LogSumExp(z)
	loss := lse*floats.Sum(y) - floats.Dot(y, z)

	out := newResult(mat.NewDense(1, 1, []float64{loss}), "cross_entropy", logits)
	out.backward = func() {
		// d/dz = softmax(z) * sum(y) - y
		g := out.Grad.At(0, 0)
		mass := floats.Sum(y)
		grad := make([]float64, len(z))
		for i := range z {
			grad[i] = g * (math.Exp(z[i]-lse)*mass - y[i])
		}
		logits.accumulate(mat.NewDense(len(z), 1, grad))
	}

	return out, nil
}

// ClassificationError returns 1 when the arg-max of logits differs from the
// arg-max of label and 0 otherwise.
func ClassificationError(logits, label *Tensor) (float64, error) {
	if err := sameShape("classification error", logits, label); err != nil {
		return 0, err
	}

	z := mat.Col(nil, 0, logits.Value)
	y := mat.Col(nil, 0, label.Value)
	if floats.MaxIdx(z) != floats.MaxIdx(y) {
		return 1, nil
	}

	return 0, nil
}
