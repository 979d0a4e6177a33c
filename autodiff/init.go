package autodiff

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// GlorotUniform returns a rows×cols matrix drawn uniformly from
// [-limit, limit) with limit = scale*sqrt(6/(fanIn+fanOut)).
// The same seed always yields the same matrix.
func GlorotUniform(rows, cols, fanIn, fanOut int, scale float64, seed uint64) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: rows=%d, cols=%d", rows, cols)
	}

	if fanIn+fanOut <= 0 {
		return nil, fmt.Errorf("fan-in plus fan-out must be positive, got %d", fanIn+fanOut)
	}

	limit := scale * math.Sqrt(6/float64(fanIn+fanOut))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}

	return mat.NewDense(rows, cols, data), nil
}
