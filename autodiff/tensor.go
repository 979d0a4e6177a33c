// Package autodiff is a small reverse-mode automatic differentiation engine over
// gonum dense matrices. Graphs are built eagerly: every op computes its value
// immediately and records a closure that pushes gradients to its parents.
package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a node in a computation graph.
type Tensor struct {
	Value *mat.Dense
	Grad  *mat.Dense
	Name  string

	requiresGrad bool
	parents      []*Tensor
	backward     func()
}

// NewConstant wraps a matrix that never receives gradients, such as a one-hot
// feature or label vector.
func NewConstant(value *mat.Dense, name string) *Tensor {
	return &Tensor{Value: value, Name: name}
}

// NewParameter wraps a trainable matrix. Gradients accumulate into Grad until
// ZeroGrad is called.
func NewParameter(value *mat.Dense, name string) *Tensor {
	return &Tensor{Value: value, Name: name, requiresGrad: true}
}

// Zeros returns a constant of the given shape filled with zeros.
func Zeros(rows, cols int, name string) (*Tensor, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: rows=%d, cols=%d", rows, cols)
	}

	return NewConstant(mat.NewDense(rows, cols, nil), name), nil
}

// OneHot returns a size×1 constant with a single 1 at index.
func OneHot(index, size int, name string) (*Tensor, error) {
	if index < 0 || index >= size {
		return nil, fmt.Errorf("one-hot index %d out of range [0, %d)", index, size)
	}

	t, err := Zeros(size, 1, name)
	if err != nil {
		return nil, err
	}
	t.Value.Set(index, 0, 1)

	return t, nil
}

// Shape returns the rows and columns of the tensor value.
func (t *Tensor) Shape() (int, int) {
	return t.Value.Dims()
}

// RequiresGrad reports whether gradients flow into this tensor.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// ZeroGrad resets the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	if t.Grad != nil {
		t.Grad.Zero()
	}
}

func (t *Tensor) accumulate(g mat.Matrix) {
	if t.Grad == nil {
		r, c := t.Value.Dims()
		t.Grad = mat.NewDense(r, c, nil)
	}
	t.Grad.Add(t.Grad, g)
}

// newResult creates the output node of an op. The node only keeps its parents
// when at least one of them needs a gradient.
func newResult(value *mat.Dense, name string, parents ...*Tensor) *Tensor {
	out := &Tensor{Value: value, Name: name}
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			break
		}
	}

	if out.requiresGrad {
		out.parents = parents
	}

	return out
}

// Backward runs the reverse pass from a scalar root, accumulating gradients into
// every tensor that requires them.
func Backward(root *Tensor) error {
	if root == nil {
		return fmt.Errorf("cannot run backward from a nil tensor")
	}

	if r, c := root.Value.Dims(); r != 1 || c != 1 {
		return fmt.Errorf("backward root must be a scalar, got %dx%d", r, c)
	}

	if !root.requiresGrad {
		return fmt.Errorf("tensor %q does not require gradients", root.Name)
	}

	root.Grad = mat.NewDense(1, 1, []float64{1})

	order := topologicalOrder(root)
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.backward != nil && node.Grad != nil {
			node.backward()
		}
	}

	return nil
}

// topologicalOrder lists the graph under root with every node after its parents.
// The walk is iterative since recurrent graphs get deep.
func topologicalOrder(root *Tensor) []*Tensor {
	type frame struct {
		node *Tensor
		next int
	}

	visited := map[*Tensor]bool{root: true}
	order := make([]*Tensor, 0)
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.parents) {
			parent := top.node.parents[top.next]
			top.next++
			if !visited[parent] && parent.requiresGrad {
				visited[parent] = true
				stack = append(stack, frame{node: parent})
			}
			continue
		}

		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}

	return order
}
