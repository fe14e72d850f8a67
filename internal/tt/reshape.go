package tt

import (
	"math"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// Reshape splits or merges the physical modes of a TT tensor to the given
// shape. Splits that do not align with existing core boundaries are realized
// by local SVD re-compression; a rounding pass at the same tolerance runs at
// the end.
func (t *Tensor) Reshape(shape []int, opts Options) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot reshape an empty tensor")
	}
	if t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "use ReshapeMatrix for TT matrices")
	}
	if volume(t.n) != volume(shape) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"the product of modes must remain equal: %v vs %v", t.n, shape)
	}
	eps, err := opts.eps()
	if err != nil {
		return nil, err
	}
	rmax := opts.MaxRank
	if rmax == 0 {
		rmax = DefaultMaxRank
	}

	core := t.cores[0].Clone()
	var coresNew []*dense.Dense
	idx, idxShape := 0, 0
	for idxShape < len(shape) {
		n := core.Shape()[1]
		if n%shape[idxShape] != 0 {
			if idx == len(t.cores)-1 {
				return nil, errors.Wrapf(ErrShapeMismatch,
					"modes %v cannot be regrouped as %v", t.n, shape)
			}
			idx++
			core, err = mergeTensorCores(core, t.cores[idx])
			if err != nil {
				return nil, err
			}
			continue
		}
		if n/shape[idxShape] > 1 {
			left, right, err := splitTensorCore(core, shape[idxShape], eps, rmax)
			if err != nil {
				return nil, err
			}
			coresNew = append(coresNew, left)
			core = right
			idxShape++
			continue
		}

		// Exact match: emit the core and pull in the next one.
		coresNew = append(coresNew, core)
		idxShape++
		if idx == len(t.cores)-1 {
			// Any remaining target entries can only be trailing singletons.
			for ; idxShape < len(shape); idxShape++ {
				if shape[idxShape] != 1 {
					return nil, errors.Wrapf(ErrShapeMismatch,
						"modes %v cannot be regrouped as %v", t.n, shape)
				}
				coresNew = append(coresNew, dense.Ones(dense.Shape{1, 1, 1}, t.Device()))
			}
			break
		}
		idx++
		core = t.cores[idx].Clone()
		if idxShape == len(shape) {
			// Target consumed with cores left over; by the volume check they
			// all carry size-1 modes, so fold their connectors into the tail.
			leftovers := append([]*dense.Dense{core}, t.cores[idx+1:]...)
			if err := foldTrailingConnectors(coresNew, leftovers, t.n, shape); err != nil {
				return nil, err
			}
		}
	}

	out, err := FromCores(coresNew)
	if err != nil {
		return nil, err
	}
	return out.RoundWith(Options{Eps: eps, MaxRank: rmax})
}

// foldTrailingConnectors absorbs leftover size-1 cores into the last emitted
// core by multiplying their (rank x rank) connectors through.
func foldTrailingConnectors(kept []*dense.Dense, leftovers []*dense.Dense, from, to []int) error {
	if len(kept) == 0 {
		return errors.Wrapf(ErrShapeMismatch, "modes %v cannot be regrouped as %v", from, to)
	}
	last := kept[len(kept)-1]
	for _, c := range leftovers {
		s := c.Shape()
		if modeVolume(c) != 1 {
			return errors.Wrapf(ErrShapeMismatch, "modes %v cannot be regrouped as %v", from, to)
		}
		conn := c.MustReshape(dense.Shape{s[0], s[len(s)-1]})
		merged, err := dense.MatMul(leftFold(last), conn)
		if err != nil {
			return err
		}
		last = unfold(merged, last.Shape()[0], coreModes(last), s[len(s)-1])
	}
	kept[len(kept)-1] = last
	return nil
}

// ReshapeMatrix splits or merges the mode pairs of a TT matrix to the given
// (row, col) shape pairs, re-compressing locally where the split does not
// align with core boundaries.
func (t *Tensor) ReshapeMatrix(shape [][2]int, opts Options) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot reshape an empty tensor")
	}
	if !t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "use Reshape for TT tensors")
	}
	rows := make([]int, len(shape))
	cols := make([]int, len(shape))
	for i, p := range shape {
		rows[i], cols[i] = p[0], p[1]
	}
	if volume(t.m) != volume(rows) || volume(t.n) != volume(cols) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"the product of modes must remain equal: %vx%v vs %vx%v", t.m, t.n, rows, cols)
	}
	eps, err := opts.eps()
	if err != nil {
		return nil, err
	}
	rmax := opts.MaxRank
	if rmax == 0 {
		rmax = DefaultMaxRank
	}

	core := t.cores[0].Clone()
	var coresNew []*dense.Dense
	idx, idxShape := 0, 0
	for idxShape < len(shape) {
		m, n := core.Shape()[1], core.Shape()[2]
		if m%rows[idxShape] != 0 || n%cols[idxShape] != 0 {
			if idx == len(t.cores)-1 {
				return nil, errors.Wrapf(ErrShapeMismatch,
					"mode pairs %vx%v cannot be regrouped as %v", t.m, t.n, shape)
			}
			idx++
			core, err = mergeOperatorCores(core, t.cores[idx])
			if err != nil {
				return nil, err
			}
			continue
		}
		if m/rows[idxShape] > 1 || n/cols[idxShape] > 1 {
			left, right, err := splitOperatorCore(core, rows[idxShape], cols[idxShape], eps, rmax)
			if err != nil {
				return nil, err
			}
			coresNew = append(coresNew, left)
			core = right
			idxShape++
			continue
		}

		coresNew = append(coresNew, core)
		idxShape++
		if idx == len(t.cores)-1 {
			for ; idxShape < len(shape); idxShape++ {
				if rows[idxShape] != 1 || cols[idxShape] != 1 {
					return nil, errors.Wrapf(ErrShapeMismatch,
						"mode pairs %vx%v cannot be regrouped as %v", t.m, t.n, shape)
				}
				coresNew = append(coresNew, dense.Ones(dense.Shape{1, 1, 1, 1}, t.Device()))
			}
			break
		}
		idx++
		core = t.cores[idx].Clone()
		if idxShape == len(shape) {
			leftovers := append([]*dense.Dense{core}, t.cores[idx+1:]...)
			if err := foldTrailingConnectors(coresNew, leftovers, t.n, cols); err != nil {
				return nil, err
			}
		}
	}

	out, err := FromCores(coresNew)
	if err != nil {
		return nil, err
	}
	return out.RoundWith(Options{Eps: eps, MaxRank: rmax})
}

// ToQTT reshapes the train to the quantized-TT format, where every mode has
// the given size (2 by default in the literature). Each original mode size
// must be a power of modeSize; a quadratic shape is required for matrices.
func (t *Tensor) ToQTT(modeSize int, opts Options) (*Tensor, error) {
	if modeSize < 2 {
		return nil, errors.Wrapf(ErrInvalidArguments, "QTT mode size must be at least 2, got %d", modeSize)
	}
	if t.isMatrix {
		var shape [][2]int
		for i := range t.n {
			if t.n[i] != t.m[i] {
				return nil, errors.Wrap(ErrShapeMismatch, "only a quadratic TT matrix can be transformed to QTT")
			}
			k, ok := logExact(t.n[i], modeSize)
			if !ok {
				return nil, errors.Wrapf(ErrShapeMismatch,
					"mode size %d is not a power of %d", t.n[i], modeSize)
			}
			for j := 0; j < k; j++ {
				shape = append(shape, [2]int{modeSize, modeSize})
			}
		}
		return t.ReshapeMatrix(shape, opts)
	}

	var shape []int
	for _, n := range t.n {
		k, ok := logExact(n, modeSize)
		if !ok {
			return nil, errors.Wrapf(ErrShapeMismatch, "mode size %d is not a power of %d", n, modeSize)
		}
		for j := 0; j < k; j++ {
			shape = append(shape, modeSize)
		}
	}
	return t.Reshape(shape, opts)
}

// FromQTT folds a quantized-TT tensor back to the given original shape.
func (t *Tensor) FromQTT(originalShape []int, opts Options) (*Tensor, error) {
	return t.Reshape(originalShape, opts)
}

// logExact returns k with base**k == n, or false if n is not an exact power.
func logExact(n, base int) (int, bool) {
	k := 0
	for n > 1 {
		if n%base != 0 {
			return 0, false
		}
		n /= base
		k++
	}
	return k, true
}

func volume(modes []int) int {
	v := 1
	for _, m := range modes {
		v *= m
	}
	return v
}

// mergeTensorCores contracts two adjacent rank-3 cores over their shared
// rank, fusing the two physical modes.
func mergeTensorCores(a, b *dense.Dense) (*dense.Dense, error) {
	r, n1 := a.Shape()[0], a.Shape()[1]
	n2, r2 := b.Shape()[1], b.Shape()[2]
	prod, err := dense.MatMul(leftFold(a), rightFold(b))
	if err != nil {
		return nil, err
	}
	return prod.Reshape(dense.Shape{r, n1 * n2, r2})
}

// splitTensorCore splits a rank-3 core with fused mode s1*s2 into two cores
// with modes s1 and s2, truncating the connecting rank at eps.
func splitTensorCore(c *dense.Dense, s1 int, eps float64, rmax int) (*dense.Dense, *dense.Dense, error) {
	r1, s, r2 := c.Shape()[0], c.Shape()[1], c.Shape()[2]
	s2 := s / s1
	tmp := c.MustReshape(dense.Shape{r1 * s1, s2 * r2})

	left, right, err := splitMatrix(tmp, eps, rmax)
	if err != nil {
		return nil, nil, err
	}
	k := left.Shape()[1]
	return left.MustReshape(dense.Shape{r1, s1, k}), right.MustReshape(dense.Shape{k, s2, r2}), nil
}

// mergeOperatorCores contracts two adjacent rank-4 cores over their shared
// rank, fusing both row and column modes.
func mergeOperatorCores(a, b *dense.Dense) (*dense.Dense, error) {
	r, m1, n1 := a.Shape()[0], a.Shape()[1], a.Shape()[2]
	m2, n2, r2 := b.Shape()[1], b.Shape()[2], b.Shape()[3]
	prod, err := dense.MatMul(leftFold(a), rightFold(b))
	if err != nil {
		return nil, err
	}
	six, err := prod.Reshape(dense.Shape{r, m1, n1, m2, n2, r2})
	if err != nil {
		return nil, err
	}
	perm, err := six.Permute(0, 1, 3, 2, 4, 5)
	if err != nil {
		return nil, err
	}
	return perm.Reshape(dense.Shape{r, m1 * m2, n1 * n2, r2})
}

// splitOperatorCore splits a rank-4 core with fused modes (m1*m2, n1*n2)
// into two cores with modes (m1, n1) and (m2, n2).
func splitOperatorCore(c *dense.Dense, m1, n1 int, eps float64, rmax int) (*dense.Dense, *dense.Dense, error) {
	r1, m, n, r2 := c.Shape()[0], c.Shape()[1], c.Shape()[2], c.Shape()[3]
	m2, n2 := m/m1, n/n1

	six, err := c.Reshape(dense.Shape{r1, m1, m2, n1, n2, r2})
	if err != nil {
		return nil, nil, err
	}
	perm, err := six.Permute(0, 1, 3, 2, 4, 5)
	if err != nil {
		return nil, nil, err
	}
	tmp := perm.MustReshape(dense.Shape{r1 * m1 * n1, m2 * n2 * r2})

	left, right, err := splitMatrix(tmp, eps, rmax)
	if err != nil {
		return nil, nil, err
	}
	k := left.Shape()[1]
	return left.MustReshape(dense.Shape{r1, m1, n1, k}), right.MustReshape(dense.Shape{k, m2, n2, r2}), nil
}

// splitMatrix factors a matrix A into L*R with the inner dimension truncated
// at relative accuracy eps and capped at rmax.
func splitMatrix(a *dense.Dense, eps float64, rmax int) (*dense.Dense, *dense.Dense, error) {
	u, s, vt, err := dense.SVD(a)
	if err != nil {
		return nil, nil, err
	}
	nrm := 0.0
	for _, sv := range s {
		nrm += sv * sv
	}
	keep := chooseRank(s, eps*math.Sqrt(nrm), rmax)

	uk, err := u.Slice2D(0, u.Shape()[0], 0, keep)
	if err != nil {
		return nil, nil, err
	}
	vk, err := vt.Slice2D(0, keep, 0, vt.Shape()[1])
	if err != nil {
		return nil, nil, err
	}
	scaleRows(vk, s[:keep])
	return uk, vk, nil
}
