package tt

import (
	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// fold3 views a core (R, modes..., R') as the 3-form (R, vol, R') with the
// physical modes flattened.
func fold3(c *dense.Dense) *dense.Dense {
	s := c.Shape()
	return c.MustReshape(dense.Shape{s[0], modeVolume(c), s[len(s)-1]})
}

// checkBinary validates a binary operand pair for an elementwise operation.
func checkBinary(a, b *Tensor, op string) error {
	if a.IsEmpty() || b.IsEmpty() {
		return errors.Wrapf(ErrInvalidArguments, "%s with an empty tensor", op)
	}
	if a.isMatrix != b.isMatrix {
		return errors.Wrapf(ErrIncompatibleTypes,
			"%s between a tensor and a matrix is not defined", op)
	}
	if !sameModes(a.n, b.n) {
		return errors.Wrapf(ErrShapeMismatch,
			"%s operands have mode sizes %v and %v", op, a.n, b.n)
	}
	if a.isMatrix && !sameModes(a.m, b.m) {
		return errors.Wrapf(ErrShapeMismatch,
			"%s operands have row mode sizes %v and %v", op, a.m, b.m)
	}
	return nil
}

// Add returns the sum of two trains of the same kind and mode sizes.
//
// Boundary cores are placed side by side; interior cores are embedded as a
// block-diagonal pair, realizing rank(A+B) = rank(A)+rank(B).
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	if err := checkBinary(t, other, "addition"); err != nil {
		return nil, err
	}
	d := len(t.cores)
	if d == 1 {
		// Both boundary ranks collapse to 1; the sum is entrywise.
		c, err := t.cores[0].Add(other.cores[0])
		if err != nil {
			return nil, err
		}
		return FromCores([]*dense.Dense{c})
	}
	cores := make([]*dense.Dense, d)
	for i := 0; i < d; i++ {
		ca, cb := fold3(t.cores[i]), fold3(other.cores[i])
		ra, raNext := ca.Shape()[0], ca.Shape()[2]
		rb, rbNext := cb.Shape()[0], cb.Shape()[2]
		vol := ca.Shape()[1]

		rowOff, colOff := ra, raNext
		rows, cols := ra+rb, raNext+rbNext
		if i == 0 {
			rows, rowOff = 1, 0
		}
		if i == d-1 {
			cols, colOff = 1, 0
		}

		out := dense.Zeros(dense.Shape{rows, vol, cols}, t.Device())
		embedBlock(out, ca, 0, 0)
		embedBlock(out, cb, rowOff, colOff)
		cores[i] = unfold(out, rows, coreModes(t.cores[i]), cols)
	}
	return FromCores(cores)
}

// embedBlock copies src (3-form core) into dst at the given rank offsets.
func embedBlock(dst, src *dense.Dense, rowOff, colOff int) {
	sr, vol, sc := src.Shape()[0], src.Shape()[1], src.Shape()[2]
	dc := dst.Shape()[2]
	sd, dd := src.Data(), dst.Data()
	for i := 0; i < sr; i++ {
		for j := 0; j < vol; j++ {
			srcRow := (i*vol + j) * sc
			dstRow := ((i+rowOff)*vol+j)*dc + colOff
			copy(dd[dstRow:dstRow+sc], sd[srcRow:srcRow+sc])
		}
	}
}

// Sub returns the difference of two trains.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	if err := checkBinary(t, other, "subtraction"); err != nil {
		return nil, err
	}
	return t.Add(other.Neg())
}

// Neg returns the negated train.
func (t *Tensor) Neg() *Tensor {
	out := t.Clone()
	if len(out.cores) > 0 {
		out.cores[0] = out.cores[0].Scale(-1)
	}
	return out
}

// MulScalar returns the train scaled by s.
func (t *Tensor) MulScalar(s float64) *Tensor {
	out := t.Clone()
	if len(out.cores) > 0 {
		out.cores[0] = out.cores[0].Scale(s)
	}
	return out
}

// DivScalar returns the train divided by a scalar.
func (t *Tensor) DivScalar(s float64) *Tensor {
	return t.MulScalar(1 / s)
}

// AddScalar returns the train plus a constant, implemented as addition with
// a rank-1 constant train of the same shape.
func (t *Tensor) AddScalar(s float64) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "addition with an empty tensor")
	}
	var c *Tensor
	var err error
	if t.isMatrix {
		pairs := make([][2]int, len(t.n))
		for i := range t.n {
			pairs[i] = [2]int{t.m[i], t.n[i]}
		}
		c, err = OnesMatrix(pairs, t.Device())
	} else {
		c, err = Ones(t.n, t.Device())
	}
	if err != nil {
		return nil, err
	}
	return t.Add(c.MulScalar(s))
}

// SubScalar returns the train minus a constant.
func (t *Tensor) SubScalar(s float64) (*Tensor, error) {
	return t.AddScalar(-s)
}

// Mul returns the Hadamard (elementwise) product of two trains. The result's
// rank at every boundary is the product of the operands' ranks; callers
// multiplying repeatedly are expected to Round periodically.
func (t *Tensor) Mul(other *Tensor) (*Tensor, error) {
	if err := checkBinary(t, other, "elementwise multiplication"); err != nil {
		return nil, err
	}
	d := len(t.cores)
	cores := make([]*dense.Dense, d)
	for i := 0; i < d; i++ {
		ca, cb := fold3(t.cores[i]), fold3(other.cores[i])
		ra, raNext := ca.Shape()[0], ca.Shape()[2]
		rb, rbNext := cb.Shape()[0], cb.Shape()[2]
		vol := ca.Shape()[1]

		out := dense.Zeros(dense.Shape{ra * rb, vol, raNext * rbNext}, t.Device())
		ad, bd, od := ca.Data(), cb.Data(), out.Data()
		for ia := 0; ia < ra; ia++ {
			for ib := 0; ib < rb; ib++ {
				for j := 0; j < vol; j++ {
					dstBase := ((ia*rb+ib)*vol + j) * raNext * rbNext
					aBase := (ia*vol + j) * raNext
					bBase := (ib*vol + j) * rbNext
					for ka := 0; ka < raNext; ka++ {
						av := ad[aBase+ka]
						if av == 0 {
							continue
						}
						dst := od[dstBase+ka*rbNext : dstBase+(ka+1)*rbNext]
						src := bd[bBase : bBase+rbNext]
						for kb := range src {
							dst[kb] += av * src[kb]
						}
					}
				}
			}
		}
		cores[i] = unfold(out, ra*rb, coreModes(t.cores[i]), raNext*rbNext)
	}
	return FromCores(cores)
}

// Kron returns the Kronecker product across dimensions: the core lists are
// concatenated verbatim, so the result's shape is the concatenation of the
// operands' shapes and the ranks are unaffected.
func Kron(a, b *Tensor) (*Tensor, error) {
	if a == nil || a.IsEmpty() {
		if b == nil || b.IsEmpty() {
			return nil, errors.Wrap(ErrInvalidArguments, "kron of two empty tensors")
		}
		return b.Clone(), nil
	}
	if b == nil || b.IsEmpty() {
		return a.Clone(), nil
	}
	if a.isMatrix != b.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes,
			"kron needs both operands to be TT matrices or both TT tensors")
	}
	cores := make([]*dense.Dense, 0, len(a.cores)+len(b.cores))
	for _, c := range a.cores {
		cores = append(cores, c.Clone())
	}
	for _, c := range b.cores {
		cores = append(cores, c.Clone())
	}
	return FromCores(cores)
}

// Transpose swaps the row and column modes of a TT matrix.
func (t *Tensor) Transpose() (*Tensor, error) {
	if !t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "transpose is defined only for TT matrices")
	}
	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		p, err := c.Permute(0, 2, 1, 3)
		if err != nil {
			return nil, err
		}
		cores[i] = p
	}
	return FromCores(cores)
}
