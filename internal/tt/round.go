package tt

import (
	"math"

	"github.com/trane-ml/trane/internal/dense"
)

// Round recompresses the train to the smallest TT-rank reproducing the
// tensor within the relative Frobenius accuracy eps.
func (t *Tensor) Round(eps float64) (*Tensor, error) {
	return t.RoundWith(Options{Eps: eps})
}

// RoundWith is Round with an explicit rank cap configuration. The cap is
// enforced per boundary, never globally.
//
// The sweep first right-orthogonalizes cores 2..d, so the truncated SVD at
// each step discards singular values that bound the global approximation
// error exactly, not just a local one.
func (t *Tensor) RoundWith(opts Options) (*Tensor, error) {
	eps, err := opts.eps()
	if err != nil {
		return nil, err
	}
	d := len(t.cores)
	caps, err := opts.caps(d)
	if err != nil {
		return nil, err
	}
	if d <= 1 {
		return t.Clone(), nil
	}

	cores, err := rightOrthogonalCores(t.cores)
	if err != nil {
		return nil, err
	}
	// All the energy now sits in the first core.
	nrm := cores[0].Norm()
	if nrm == 0 {
		return t.Clone(), nil
	}
	delta := eps / math.Sqrt(float64(d-1)) * nrm

	for i := 0; i < d-1; i++ {
		modes := coreModes(cores[i])
		r := cores[i].Shape()[0]

		u, s, vt, err := dense.SVD(leftFold(cores[i]))
		if err != nil {
			return nil, err
		}
		keep := chooseRank(s, delta, caps[i+1])

		uk, err := u.Slice2D(0, u.Shape()[0], 0, keep)
		if err != nil {
			return nil, err
		}
		cores[i] = unfold(uk, r, modes, keep)

		vk, err := vt.Slice2D(0, keep, 0, vt.Shape()[1])
		if err != nil {
			return nil, err
		}
		scaleRows(vk, s[:keep])

		next, err := dense.MatMul(vk, rightFold(cores[i+1]))
		if err != nil {
			return nil, err
		}
		nextModes := coreModes(cores[i+1])
		cores[i+1] = unfold(next, keep, nextModes, cores[i+1].Shape()[len(cores[i+1].Shape())-1])
	}
	return FromCores(cores)
}
