package tt

import (
	"math"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// Defaults for SVD-based compression and rounding, shared by the compressor
// and the rounding engine.
const (
	DefaultEps     = 1e-10
	DefaultMaxRank = 2048
)

// Options configure SVD-based compression and rounding.
type Options struct {
	// Eps is the target relative accuracy in the Frobenius norm.
	// Zero selects DefaultEps; negative values are rejected.
	Eps float64

	// MaxRank caps the kept rank at every boundary.
	// Zero selects DefaultMaxRank.
	MaxRank int

	// MaxRanks optionally caps each boundary individually (length d+1,
	// matching the rank sequence R). Overrides MaxRank when set.
	MaxRanks []int
}

func (o Options) eps() (float64, error) {
	if o.Eps < 0 {
		return 0, errors.Wrapf(ErrInvalidArguments, "tolerance must be positive, got %g", o.Eps)
	}
	if o.Eps == 0 {
		return DefaultEps, nil
	}
	return o.Eps, nil
}

// caps expands the rank cap into a per-boundary sequence of length d+1.
func (o Options) caps(d int) ([]int, error) {
	if o.MaxRanks != nil {
		if len(o.MaxRanks) != d+1 {
			return nil, errors.Wrapf(ErrInvalidArguments,
				"per-boundary rank caps must have length %d, got %d", d+1, len(o.MaxRanks))
		}
		for i, c := range o.MaxRanks {
			if c < 1 {
				return nil, errors.Wrapf(ErrInvalidArguments,
					"rank cap at boundary %d must be at least 1, got %d", i, c)
			}
		}
		return append([]int(nil), o.MaxRanks...), nil
	}
	rmax := o.MaxRank
	if rmax == 0 {
		rmax = DefaultMaxRank
	}
	if rmax < 1 {
		return nil, errors.Wrapf(ErrInvalidArguments, "rank cap must be at least 1, got %d", rmax)
	}
	caps := make([]int, d+1)
	caps[0], caps[d] = 1, 1
	for i := 1; i < d; i++ {
		caps[i] = rmax
	}
	return caps, nil
}

// FromDense compresses a dense array into the TT format, treating every
// array dimension as one tensor mode.
func FromDense(a *dense.Dense, opts Options) (*Tensor, error) {
	return FromDenseShaped(a, a.Shape(), opts)
}

// FromDenseShaped compresses a dense array into the TT format with the given
// target mode sizes. The array is reshaped first; the element count must be
// preserved.
func FromDenseShaped(a *dense.Dense, modes []int, opts Options) (*Tensor, error) {
	eps, err := opts.eps()
	if err != nil {
		return nil, err
	}
	caps, err := opts.caps(len(modes))
	if err != nil {
		return nil, err
	}
	shaped, err := a.Reshape(dense.Shape(modes))
	if err != nil {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot treat %v as modes %v: %v", a.Shape(), modes, err)
	}

	cores, err := decompose(shaped, modes, eps, caps)
	if err != nil {
		return nil, err
	}
	return FromCores(cores)
}

// FromDenseMatrix compresses a dense operator into the TT-matrix format.
// The operator's shape is given as (row, col) size pairs; the array must
// either carry the full shape M1 x ... x Md x N1 x ... x Nd or the matching
// element count. The operator is matricized dimension by dimension before
// compression.
func FromDenseMatrix(a *dense.Dense, modes [][2]int, opts Options) (*Tensor, error) {
	eps, err := opts.eps()
	if err != nil {
		return nil, err
	}
	d := len(modes)
	caps, err := opts.caps(d)
	if err != nil {
		return nil, err
	}

	full := make(dense.Shape, 0, 2*d)
	for _, p := range modes {
		full = append(full, p[0])
	}
	for _, p := range modes {
		full = append(full, p[1])
	}
	shaped, err := a.Reshape(full)
	if err != nil {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot treat %v as operator shape %v: %v", a.Shape(), modes, err)
	}

	// Interleave row and column modes: (M1, N1, M2, N2, ...), then fuse each
	// (Mi, Ni) pair into one mode for the sweep.
	perm := make([]int, 0, 2*d)
	for i := 0; i < d; i++ {
		perm = append(perm, i, d+i)
	}
	interleaved, err := shaped.Permute(perm...)
	if err != nil {
		return nil, err
	}
	fused := make([]int, d)
	for i, p := range modes {
		fused[i] = p[0] * p[1]
	}
	cores, err := decompose(interleaved.MustReshape(dense.Shape(fused)), fused, eps, caps)
	if err != nil {
		return nil, err
	}
	for i, c := range cores {
		s := c.Shape()
		cores[i] = c.MustReshape(dense.Shape{s[0], modes[i][0], modes[i][1], s[2]})
	}
	return FromCores(cores)
}

// decompose runs the sequential truncated-SVD sweep over a dense array whose
// shape equals modes, producing rank-3 cores. The discarded singular energy
// per step is bounded by eps/sqrt(d-1) of the global Frobenius norm, which
// bounds the total relative error by eps (Eckart-Young).
func decompose(a *dense.Dense, modes []int, eps float64, caps []int) ([]*dense.Dense, error) {
	d := len(modes)
	if d == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot decompose a zero-mode array")
	}
	if d == 1 {
		return []*dense.Dense{a.MustReshape(dense.Shape{1, modes[0], 1})}, nil
	}

	delta := eps / math.Sqrt(float64(d-1)) * a.Norm()

	cores := make([]*dense.Dense, 0, d)
	rank := 1
	rem := a.MustReshape(dense.Shape{modes[0], a.NumElements() / modes[0]})
	for i := 0; i < d-1; i++ {
		u, s, vt, err := dense.SVD(rem)
		if err != nil {
			return nil, err
		}
		keep := chooseRank(s, delta, caps[i+1])

		uk, err := u.Slice2D(0, u.Shape()[0], 0, keep)
		if err != nil {
			return nil, err
		}
		cores = append(cores, uk.MustReshape(dense.Shape{rank, modes[i], keep}))

		vk, err := vt.Slice2D(0, keep, 0, vt.Shape()[1])
		if err != nil {
			return nil, err
		}
		scaleRows(vk, s[:keep])

		rank = keep
		if i < d-2 {
			rem = vk.MustReshape(dense.Shape{rank * modes[i+1], vk.NumElements() / (rank * modes[i+1])})
		} else {
			rem = vk
		}
	}
	cores = append(cores, rem.MustReshape(dense.Shape{rank, modes[d-1], 1}))
	return cores, nil
}

// chooseRank returns the smallest rank whose discarded singular values carry
// at most delta of Frobenius energy, capped from above and bounded below by 1.
func chooseRank(s []float64, delta float64, maxRank int) int {
	keep := len(s)
	tail := 0.0
	for keep > 1 {
		next := tail + s[keep-1]*s[keep-1]
		if math.Sqrt(next) > delta {
			break
		}
		tail = next
		keep--
	}
	if keep > maxRank {
		keep = maxRank
	}
	return keep
}

// scaleRows multiplies row i of a 2D array by w[i] in place.
func scaleRows(a *dense.Dense, w []float64) {
	cols := a.Shape()[1]
	data := a.Data()
	for i, wi := range w {
		row := data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] *= wi
		}
	}
}
