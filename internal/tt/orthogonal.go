package tt

import (
	"github.com/trane-ml/trane/internal/dense"
)

// leftFold reshapes a core (R, modes..., R') into the (R*modes, R') matrix.
func leftFold(c *dense.Dense) *dense.Dense {
	s := c.Shape()
	return c.MustReshape(dense.Shape{c.NumElements() / s[len(s)-1], s[len(s)-1]})
}

// rightFold reshapes a core (R, modes..., R') into the (R, modes*R') matrix.
func rightFold(c *dense.Dense) *dense.Dense {
	s := c.Shape()
	return c.MustReshape(dense.Shape{s[0], c.NumElements() / s[0]})
}

// unfold restores a folded core to (r, modes..., rNext).
func unfold(m *dense.Dense, r int, modes []int, rNext int) *dense.Dense {
	shape := make(dense.Shape, 0, len(modes)+2)
	shape = append(shape, r)
	shape = append(shape, modes...)
	shape = append(shape, rNext)
	return m.MustReshape(shape)
}

// coreModes returns the physical mode sizes of a core (one entry for the
// tensor case, two for the matrix case).
func coreModes(c *dense.Dense) []int {
	s := c.Shape()
	return append([]int(nil), s[1:len(s)-1]...)
}

// leftOrthogonalCores sweeps left to right, QR-factoring each core and
// pushing the triangular factor into its right neighbour. The represented
// tensor is unchanged; after the sweep every core but the last has
// orthonormal columns and the last core carries the tensor's energy.
func leftOrthogonalCores(cores []*dense.Dense) ([]*dense.Dense, error) {
	d := len(cores)
	out := make([]*dense.Dense, d)
	for i, c := range cores {
		out[i] = c.Clone()
	}
	for i := 0; i < d-1; i++ {
		modes := coreModes(out[i])
		r := out[i].Shape()[0]

		q, rm, err := dense.QR(leftFold(out[i]))
		if err != nil {
			return nil, err
		}
		k := q.Shape()[1]
		out[i] = unfold(q, r, modes, k)

		next, err := dense.MatMul(rm, rightFold(out[i+1]))
		if err != nil {
			return nil, err
		}
		nextModes := coreModes(out[i+1])
		out[i+1] = unfold(next, k, nextModes, out[i+1].Shape()[len(out[i+1].Shape())-1])
	}
	return out, nil
}

// rightOrthogonalCores is the mirror sweep from the last core down to the
// first; after the sweep every core but the first is row-orthogonal and the
// first core carries the tensor's energy.
func rightOrthogonalCores(cores []*dense.Dense) ([]*dense.Dense, error) {
	d := len(cores)
	out := make([]*dense.Dense, d)
	for i, c := range cores {
		out[i] = c.Clone()
	}
	for i := d - 1; i > 0; i-- {
		modes := coreModes(out[i])
		rNext := out[i].Shape()[len(out[i].Shape())-1]

		folded, err := rightFold(out[i]).Permute(1, 0)
		if err != nil {
			return nil, err
		}
		q, rm, err := dense.QR(folded)
		if err != nil {
			return nil, err
		}
		k := q.Shape()[1]
		qt, err := q.Permute(1, 0)
		if err != nil {
			return nil, err
		}
		out[i] = unfold(qt, k, modes, rNext)

		carry, err := rm.Permute(1, 0)
		if err != nil {
			return nil, err
		}
		prev, err := dense.MatMul(leftFold(out[i-1]), carry)
		if err != nil {
			return nil, err
		}
		prevModes := coreModes(out[i-1])
		out[i-1] = unfold(prev, out[i-1].Shape()[0], prevModes, k)
	}
	return out, nil
}
