package tt

import (
	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// Index selects a position or range of one physical mode when slicing.
type Index struct {
	start, stop int
	fixed       bool
	all         bool
}

// At fixes a mode to a single position; the mode is contracted away by the
// mode reduction that follows slicing.
func At(i int) Index {
	return Index{start: i, stop: i + 1, fixed: true}
}

// Span keeps the half-open range [start, stop) of a mode.
func Span(start, stop int) Index {
	return Index{start: start, stop: stop}
}

// All keeps a mode untouched.
func All() Index {
	return Index{all: true}
}

func (ix Index) resolve(size int) (int, int, error) {
	if ix.all {
		return 0, size, nil
	}
	if ix.start < 0 || ix.stop > size || ix.start >= ix.stop {
		return 0, 0, errors.Wrapf(ErrInvalidArguments,
			"index [%d:%d) out of range for mode of size %d", ix.start, ix.stop, size)
	}
	return ix.start, ix.stop, nil
}

// Slice fixes or ranges the train's modes. A TT tensor takes d indices; a TT
// matrix takes 2d (row indices first, then column indices). Modes reduced to
// size 1 by a fixed index are contracted away; a fully fixed slice collapses
// to a single-entry train whose value is read with Item.
func (t *Tensor) Slice(indices ...Index) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot slice an empty tensor")
	}
	d := len(t.cores)
	want := d
	if t.isMatrix {
		want = 2 * d
	}
	if len(indices) != want {
		return nil, errors.Wrapf(ErrInvalidArguments,
			"slice needs %d indices, got %d", want, len(indices))
	}

	cores := make([]*dense.Dense, d)
	for i, c := range t.cores {
		if t.isMatrix {
			m0, m1, err := indices[i].resolve(t.m[i])
			if err != nil {
				return nil, err
			}
			n0, n1, err := indices[d+i].resolve(t.n[i])
			if err != nil {
				return nil, err
			}
			cores[i] = sliceCore4(c, m0, m1, n0, n1)
		} else {
			n0, n1, err := indices[i].resolve(t.n[i])
			if err != nil {
				return nil, err
			}
			cores[i] = sliceCore3(c, n0, n1)
		}
	}

	sliced, err := FromCores(cores)
	if err != nil {
		return nil, err
	}
	keepFixed := make([]bool, d)
	for i := range keepFixed {
		if t.isMatrix {
			keepFixed[i] = indices[i].fixed && indices[d+i].fixed
		} else {
			keepFixed[i] = indices[i].fixed
		}
	}
	return reduceFixedModes(sliced, keepFixed)
}

func sliceCore3(c *dense.Dense, n0, n1 int) *dense.Dense {
	r, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2]
	out := dense.Zeros(dense.Shape{r, n1 - n0, rNext}, c.Device())
	cd, od := c.Data(), out.Data()
	for a := 0; a < r; a++ {
		for j := n0; j < n1; j++ {
			src := (a*n + j) * rNext
			dst := (a*(n1-n0) + (j - n0)) * rNext
			copy(od[dst:dst+rNext], cd[src:src+rNext])
		}
	}
	return out
}

func sliceCore4(c *dense.Dense, m0, m1, n0, n1 int) *dense.Dense {
	r, m, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2], c.Shape()[3]
	out := dense.Zeros(dense.Shape{r, m1 - m0, n1 - n0, rNext}, c.Device())
	cd, od := c.Data(), out.Data()
	for a := 0; a < r; a++ {
		for i := m0; i < m1; i++ {
			for j := n0; j < n1; j++ {
				src := ((a*m+i)*n + j) * rNext
				dst := ((a*(m1-m0)+(i-m0))*(n1-n0) + (j - n0)) * rNext
				copy(od[dst:dst+rNext], cd[src:src+rNext])
			}
		}
	}
	return out
}

// reduceModes contracts away all size-1 modes of the train, folding each
// (rank x rank) connector into the nearer neighbour. It is a pure
// transformation: the input is unchanged and the result is re-validated.
func reduceModes(t *Tensor) (*Tensor, error) {
	fixed := make([]bool, len(t.cores))
	for i := range fixed {
		fixed[i] = true
	}
	return reduceFixedModes(t, fixed)
}

// reduceFixedModes contracts away size-1 modes at positions where reducible
// is set. The connector is folded toward the side with the larger adjacent
// rank, keeping the chain's storage minimal; a train whose modes all reduce
// collapses to a single size-1 mode.
func reduceFixedModes(t *Tensor, reducible []bool) (*Tensor, error) {
	d := len(t.cores)
	work := make([]*dense.Dense, d)
	for i, c := range t.cores {
		work[i] = c.Clone()
	}

	var kept []*dense.Dense
	for i := 0; i < d; i++ {
		c := work[i]
		unit := t.isMatrix && c.Shape()[1] == 1 && c.Shape()[2] == 1 ||
			!t.isMatrix && c.Shape()[1] == 1
		if !unit || !reducible[i] {
			kept = append(kept, c)
			continue
		}

		r, rNext := c.Shape()[0], c.Shape()[len(c.Shape())-1]
		connector := c.MustReshape(dense.Shape{r, rNext})
		switch {
		case (r > rNext || i == d-1) && len(kept) > 0:
			// Fold into the left neighbour.
			prev := kept[len(kept)-1]
			merged, err := dense.MatMul(leftFold(prev), connector)
			if err != nil {
				return nil, err
			}
			kept[len(kept)-1] = unfold(merged, prev.Shape()[0], coreModes(prev), rNext)
		case i < d-1:
			// Fold into the right neighbour.
			next := work[i+1]
			merged, err := dense.MatMul(connector, rightFold(next))
			if err != nil {
				return nil, err
			}
			work[i+1] = unfold(merged, r, coreModes(next), next.Shape()[len(next.Shape())-1])
		default:
			// Last core with nothing kept: everything reduced, keep it so
			// the train stays representable (a single size-1 mode).
			kept = append(kept, c)
		}
	}
	return FromCores(kept)
}

// ReduceDims contracts away the receiver's size-1 modes in place. This is
// the one mutating convenience at the API edge; it rewrites the receiver
// only after the reduced train has been re-validated.
func (t *Tensor) ReduceDims() error {
	if t.IsEmpty() {
		return nil
	}
	reduced, err := reduceModes(t)
	if err != nil {
		return err
	}
	*t = *reduced
	return nil
}
