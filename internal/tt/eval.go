package tt

import (
	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
	"github.com/trane-ml/trane/internal/parallel"
)

// EvaluateAt evaluates a TT tensor at a list of index rows without
// densifying. Each row carries one index per mode; the result holds one
// entry per row.
func (t *Tensor) EvaluateAt(indices [][]int) ([]float64, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot evaluate an empty tensor")
	}
	if t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "evaluation at indices is defined for TT tensors only")
	}
	d := len(t.cores)
	for row, idx := range indices {
		if len(idx) != d {
			return nil, errors.Wrapf(ErrInvalidArguments,
				"index row %d has %d entries, tensor has %d modes", row, len(idx), d)
		}
	}

	// Rows are independent; large batches fan out across cores.
	out := make([]float64, len(indices))
	rowErrs := make([]error, len(indices))
	cfg := parallel.DefaultConfig()
	cfg.MinChunkSize = 64
	parallel.For(len(indices), func(row int) {
		out[row], rowErrs[row] = t.evaluateOne(indices[row])
	}, cfg)
	for _, err := range rowErrs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *Tensor) evaluateOne(idx []int) (float64, error) {
	// Carry the (1 x R[i+1]) interface row through the chain, picking the
	// fixed mode slice of every core.
	v := dense.Ones(dense.Shape{1, 1}, t.Device())
	for i, c := range t.cores {
		r, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2]
		if idx[i] < 0 || idx[i] >= n {
			return 0, errors.Wrapf(ErrInvalidArguments,
				"index %d out of range for mode %d of size %d", idx[i], i, n)
		}
		slab := dense.Zeros(dense.Shape{r, rNext}, t.Device())
		cd, sd := c.Data(), slab.Data()
		for a := 0; a < r; a++ {
			src := (a*n + idx[i]) * rNext
			copy(sd[a*rNext:(a+1)*rNext], cd[src:src+rNext])
		}
		next, err := dense.MatMul(v, slab)
		if err != nil {
			return 0, err
		}
		v = next
	}
	return v.Data()[0], nil
}
