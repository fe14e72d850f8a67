package tt

import (
	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// MatVec applies a TT matrix to a TT tensor: y_i = A_ij x_j. Each core pair
// is contracted over the shared mode and the ranks combine by Kronecker
// product.
func (t *Tensor) MatVec(x *Tensor) (*Tensor, error) {
	if t.IsEmpty() || x.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "contraction with an empty tensor")
	}
	if !t.isMatrix || x.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes,
			"matvec needs a TT matrix on the left and a TT tensor on the right")
	}
	if !sameModes(t.n, x.n) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"matvec column modes %v do not match vector modes %v", t.n, x.n)
	}

	d := len(t.cores)
	cores := make([]*dense.Dense, d)
	for i := 0; i < d; i++ {
		ac, xc := t.cores[i], x.cores[i]
		cores[i] = coreMatVec(ac, xc)
	}
	return FromCores(cores)
}

// coreMatVec contracts one operator core (rA, m, n, rA') with one vector
// core (rx, n, rx') over the shared mode n, giving (rA*rx, m, rA'*rx').
func coreMatVec(ac, xc *dense.Dense) *dense.Dense {
	ra, m, n, raN := ac.Shape()[0], ac.Shape()[1], ac.Shape()[2], ac.Shape()[3]
	rx, rxN := xc.Shape()[0], xc.Shape()[2]

	out := dense.Zeros(dense.Shape{ra * rx, m, raN * rxN}, ac.Device())
	ad, xd, od := ac.Data(), xc.Data(), out.Data()
	for a := 0; a < ra; a++ {
		for xi := 0; xi < rx; xi++ {
			for mm := 0; mm < m; mm++ {
				dstBase := ((a*rx+xi)*m + mm) * raN * rxN
				for nn := 0; nn < n; nn++ {
					aBase := ((a*m+mm)*n + nn) * raN
					xBase := (xi*n + nn) * rxN
					for a2 := 0; a2 < raN; a2++ {
						av := ad[aBase+a2]
						if av == 0 {
							continue
						}
						dst := od[dstBase+a2*rxN : dstBase+(a2+1)*rxN]
						src := xd[xBase : xBase+rxN]
						for xo := range src {
							dst[xo] += av * src[xo]
						}
					}
				}
			}
		}
	}
	return out
}

// MatMul multiplies two TT matrices: Y_ij = A_ik B_kj.
func (t *Tensor) MatMul(other *Tensor) (*Tensor, error) {
	if t.IsEmpty() || other.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "contraction with an empty tensor")
	}
	if !t.isMatrix || !other.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "matmul needs two TT matrices")
	}
	if !sameModes(t.n, other.m) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"matmul inner modes %v do not match %v", t.n, other.m)
	}

	d := len(t.cores)
	cores := make([]*dense.Dense, d)
	for i := 0; i < d; i++ {
		ac, bc := t.cores[i], other.cores[i]
		ra, m, k, raN := ac.Shape()[0], ac.Shape()[1], ac.Shape()[2], ac.Shape()[3]
		rb, n, rbN := bc.Shape()[0], bc.Shape()[2], bc.Shape()[3]

		out := dense.Zeros(dense.Shape{ra * rb, m, n, raN * rbN}, t.Device())
		ad, bd, od := ac.Data(), bc.Data(), out.Data()
		for a := 0; a < ra; a++ {
			for bi := 0; bi < rb; bi++ {
				for mm := 0; mm < m; mm++ {
					for nn := 0; nn < n; nn++ {
						dstBase := (((a*rb+bi)*m+mm)*n + nn) * raN * rbN
						for kk := 0; kk < k; kk++ {
							aBase := ((a*m+mm)*k + kk) * raN
							bBase := ((bi*k+kk)*n + nn) * rbN
							for a2 := 0; a2 < raN; a2++ {
								av := ad[aBase+a2]
								if av == 0 {
									continue
								}
								dst := od[dstBase+a2*rbN : dstBase+(a2+1)*rbN]
								src := bd[bBase : bBase+rbN]
								for bo := range src {
									dst[bo] += av * src[bo]
								}
							}
						}
					}
				}
			}
		}
		cores[i] = out
	}
	return FromCores(cores)
}

// VecMat applies a TT tensor to a TT matrix from the left: y_j = x_i A_ij.
func (t *Tensor) VecMat(a *Tensor) (*Tensor, error) {
	if t.IsEmpty() || a.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "contraction with an empty tensor")
	}
	if t.isMatrix || !a.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes,
			"vecmat needs a TT tensor on the left and a TT matrix on the right")
	}
	if !sameModes(t.n, a.m) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"vecmat modes %v do not match row modes %v", t.n, a.m)
	}

	d := len(t.cores)
	cores := make([]*dense.Dense, d)
	for i := 0; i < d; i++ {
		xc, ac := t.cores[i], a.cores[i]
		rx, m, rxN := xc.Shape()[0], xc.Shape()[1], xc.Shape()[2]
		ra, n, raN := ac.Shape()[0], ac.Shape()[2], ac.Shape()[3]

		out := dense.Zeros(dense.Shape{ra * rx, n, raN * rxN}, t.Device())
		xd, ad, od := xc.Data(), ac.Data(), out.Data()
		for aa := 0; aa < ra; aa++ {
			for xi := 0; xi < rx; xi++ {
				for nn := 0; nn < n; nn++ {
					dstBase := ((aa*rx+xi)*n + nn) * raN * rxN
					for mm := 0; mm < m; mm++ {
						aBase := ((aa*m+mm)*n + nn) * raN
						xBase := (xi*m + mm) * rxN
						for a2 := 0; a2 < raN; a2++ {
							av := ad[aBase+a2]
							if av == 0 {
								continue
							}
							dst := od[dstBase+a2*rxN : dstBase+(a2+1)*rxN]
							src := xd[xBase : xBase+rxN]
							for xo := range src {
								dst[xo] += av * src[xo]
							}
						}
					}
				}
			}
		}
		cores[i] = out
	}
	return FromCores(cores)
}

// ApplyDense applies a TT matrix to a fully dense array by direct
// mode-by-mode contraction, returning a dense array. The array's trailing
// dimensions must equal the matrix's column modes; leading dimensions are
// treated as a batch. This is the only contraction path that can return a
// non-TT result.
func (t *Tensor) ApplyDense(x *dense.Dense) (*dense.Dense, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "contraction with an empty tensor")
	}
	if !t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "dense application needs a TT matrix")
	}
	d := len(t.cores)
	xs := x.Shape()
	if len(xs) < d {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"dense operand has %d dimensions, operator has %d column modes", len(xs), d)
	}
	batchDims := xs[:len(xs)-d]
	for i, nn := range t.n {
		if xs[len(xs)-d+i] != nn {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"dense operand modes %v do not match operator column modes %v", xs[len(xs)-d:], t.n)
		}
	}
	batch := 1
	for _, b := range batchDims {
		batch *= b
	}

	// Running tensor: (r_i, batch*M_{<i}, N_{>=i}). Each step contracts away
	// one column mode and appends the matching row mode to the batch block.
	tailVol := x.NumElements() / batch
	cur := x.MustReshape(dense.Shape{1, batch, tailVol})
	for i := 0; i < d; i++ {
		c := t.cores[i]
		r, m, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2], c.Shape()[3]
		bm := cur.Shape()[1]
		rest := cur.Shape()[2] / n

		// (m*rNext, r*n) x (r*n, bm*rest)
		g, err := c.Permute(1, 3, 0, 2)
		if err != nil {
			return nil, err
		}
		gm := g.MustReshape(dense.Shape{m * rNext, r * n})
		cp, err := cur.MustReshape(dense.Shape{r, bm, n, rest}).Permute(0, 2, 1, 3)
		if err != nil {
			return nil, err
		}
		prod, err := dense.MatMul(gm, cp.MustReshape(dense.Shape{r * n, bm * rest}))
		if err != nil {
			return nil, err
		}
		next, err := prod.MustReshape(dense.Shape{m, rNext, bm, rest}).Permute(1, 2, 0, 3)
		if err != nil {
			return nil, err
		}
		cur = next.MustReshape(dense.Shape{rNext, bm * m, rest})
	}

	outShape := append(append(dense.Shape{}, batchDims...), t.m...)
	return cur.Reshape(outShape)
}

// Dot computes the inner product of two TT tensors via bilinear contraction.
func Dot(a, b *Tensor) (float64, error) {
	if a.IsEmpty() || b.IsEmpty() {
		return 0, errors.Wrap(ErrInvalidArguments, "dot with an empty tensor")
	}
	if a.isMatrix || b.isMatrix {
		return 0, errors.Wrap(ErrIncompatibleTypes, "dot is not implemented for TT matrices")
	}
	if !sameModes(a.n, b.n) {
		return 0, errors.Wrapf(ErrShapeMismatch, "dot operands have mode sizes %v and %v", a.n, b.n)
	}
	v := bilinearChain(a.cores, b.cores)
	return v.Data()[0], nil
}

// PartialDot contracts a with the smaller train b over the given modes of a,
// returning a TT tensor over the remaining modes. The modes must be sorted
// and b must carry exactly those mode sizes. Internally b is extended with
// constant connector cores on the untouched modes, multiplied in and summed
// out, so the ranks follow the Hadamard rank law on the contracted bonds.
func PartialDot(a, b *Tensor, modes []int) (*Tensor, error) {
	if a.IsEmpty() || b.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "dot with an empty tensor")
	}
	if a.isMatrix || b.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "dot is not implemented for TT matrices")
	}
	if len(modes) == 0 || len(modes) >= len(a.n) {
		return nil, errors.Wrapf(ErrInvalidArguments,
			"partial dot needs between 1 and %d modes, got %d; use Dot for the full contraction", len(a.n)-1, len(modes))
	}
	if len(b.n) != len(modes) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"partial dot over %d modes needs a %d-mode operand, got %d modes", len(modes), len(modes), len(b.n))
	}
	for k, m := range modes {
		if m < 0 || m >= len(a.n) {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d out of range for %d modes", m, len(a.n))
		}
		if k > 0 && modes[k] <= modes[k-1] {
			return nil, errors.Wrapf(ErrInvalidArguments, "modes must be strictly increasing, got %v", modes)
		}
		if b.n[k] != a.n[m] {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"mode %d has size %d, contraction operand carries %d", m, a.n[m], b.n[k])
		}
	}

	// Extend b to a's full mode set: untouched modes get a constant connector
	// core that passes the rank through and ignores the mode index.
	selected := make(map[int]bool, len(modes))
	for _, m := range modes {
		selected[m] = true
	}
	cores := make([]*dense.Dense, len(a.n))
	j := 0
	for i := range a.n {
		if selected[i] {
			cores[i] = b.cores[j].Clone()
			j++
			continue
		}
		r := 1
		if j > 0 {
			r = b.cores[j-1].Shape()[2]
		}
		conn := dense.Zeros(dense.Shape{r, a.n[i], r}, b.Device())
		cd := conn.Data()
		for al := 0; al < r; al++ {
			for nn := 0; nn < a.n[i]; nn++ {
				cd[(al*a.n[i]+nn)*r+al] = 1
			}
		}
		cores[i] = conn
	}
	bExt, err := FromCores(cores)
	if err != nil {
		return nil, err
	}
	prod, err := a.Mul(bExt)
	if err != nil {
		return nil, err
	}
	return prod.Sum(modes...)
}

// bilinearChain contracts two core chains over all physical modes, carrying
// the (ra, rb) interface matrix left to right. Both chains must share mode
// sizes; the final interface is 1x1.
func bilinearChain(as, bs []*dense.Dense) *dense.Dense {
	v := dense.Ones(dense.Shape{1, 1}, as[0].Device())
	for i := range as {
		ac, bc := fold3(as[i]), fold3(bs[i])
		ra, vol, raN := ac.Shape()[0], ac.Shape()[1], ac.Shape()[2]
		rb, rbN := bc.Shape()[0], bc.Shape()[2]

		next := dense.Zeros(dense.Shape{raN, rbN}, v.Device())
		vd, ad, bd, nd := v.Data(), ac.Data(), bc.Data(), next.Data()
		for a := 0; a < ra; a++ {
			for b := 0; b < rb; b++ {
				w := vd[a*rb+b]
				if w == 0 {
					continue
				}
				for j := 0; j < vol; j++ {
					aBase := (a*vol + j) * raN
					bBase := (b*vol + j) * rbN
					for a2 := 0; a2 < raN; a2++ {
						av := w * ad[aBase+a2]
						if av == 0 {
							continue
						}
						dst := nd[a2*rbN : (a2+1)*rbN]
						src := bd[bBase : bBase+rbN]
						for b2 := range src {
							dst[b2] += av * src[b2]
						}
					}
				}
			}
		}
		v = next
	}
	return v
}

// SumAll contracts the train over every mode, returning the scalar sum of
// all entries.
func (t *Tensor) SumAll() (float64, error) {
	if t.IsEmpty() {
		return 0, errors.Wrap(ErrInvalidArguments, "sum of an empty tensor")
	}
	v := dense.Ones(dense.Shape{1}, t.Device())
	for _, c := range t.cores {
		f := fold3(c)
		r, vol, rNext := f.Shape()[0], f.Shape()[1], f.Shape()[2]
		next := dense.Zeros(dense.Shape{rNext, 1}, t.Device())
		vd, fd, nd := v.Data(), f.Data(), next.Data()
		for i := 0; i < r; i++ {
			w := vd[i]
			if w == 0 {
				continue
			}
			for j := 0; j < vol; j++ {
				base := (i*vol + j) * rNext
				for k := 0; k < rNext; k++ {
					nd[k] += w * fd[base+k]
				}
			}
		}
		v = next.MustReshape(dense.Shape{rNext})
	}
	return v.Data()[0], nil
}

// Sum contracts the train along the given modes and returns the result in
// the TT format with the summed modes removed.
func (t *Tensor) Sum(modes ...int) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "sum of an empty tensor")
	}
	if len(modes) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "sum needs at least one mode; use SumAll for the full contraction")
	}
	selected := make(map[int]bool, len(modes))
	for _, m := range modes {
		if m < 0 || m >= len(t.cores) {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d out of range for %d modes", m, len(t.cores))
		}
		selected[m] = true
	}

	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		if !selected[i] {
			cores[i] = c.Clone()
			continue
		}
		f := fold3(c)
		r, vol, rNext := f.Shape()[0], f.Shape()[1], f.Shape()[2]
		out := dense.Zeros(dense.Shape{r, 1, rNext}, t.Device())
		fd, od := f.Data(), out.Data()
		for a := 0; a < r; a++ {
			for j := 0; j < vol; j++ {
				base := (a*vol + j) * rNext
				for k := 0; k < rNext; k++ {
					od[a*rNext+k] += fd[base+k]
				}
			}
		}
		if t.isMatrix {
			out = out.MustReshape(dense.Shape{r, 1, 1, rNext})
		}
		cores[i] = out
	}
	summed, err := FromCores(cores)
	if err != nil {
		return nil, err
	}
	return reduceModes(summed)
}

// NModeProduct multiplies the train with factor matrices along the given
// modes: core j of the result is the mode product of core j with factors[i]
// whenever modes[i] == j. Factor i must have shape (L_i, N_{modes[i]}).
func (t *Tensor) NModeProduct(factors []*dense.Dense, modes []int) (*Tensor, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "n-mode product with an empty tensor")
	}
	if len(factors) != len(modes) {
		return nil, errors.Wrapf(ErrInvalidArguments,
			"got %d factor matrices for %d modes", len(factors), len(modes))
	}
	out := t.Clone()
	for i, f := range factors {
		mode := modes[i]
		if mode < 0 || mode >= len(out.cores) {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d out of range for %d modes", mode, len(out.cores))
		}
		fs := f.Shape()
		if len(fs) != 2 || fs[1] != t.n[mode] {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"factor %d has shape %v, mode %d has size %d", i, fs, mode, t.n[mode])
		}
		c := out.cores[mode]
		var err error
		if t.isMatrix {
			// Contract the column mode: (r, m, n, r') x (l, n) -> (r, m, l, r').
			r, m, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[3]
			p, perr := c.Permute(0, 1, 3, 2)
			if perr != nil {
				return nil, perr
			}
			ft, perr := f.Permute(1, 0)
			if perr != nil {
				return nil, perr
			}
			prod, merr := dense.MatMul(p.MustReshape(dense.Shape{r * m * rNext, t.n[mode]}), ft)
			if merr != nil {
				return nil, merr
			}
			prod = prod.MustReshape(dense.Shape{r, m, rNext, fs[0]})
			out.cores[mode], err = prod.Permute(0, 1, 3, 2)
		} else {
			r, rNext := c.Shape()[0], c.Shape()[2]
			p, perr := c.Permute(0, 2, 1)
			if perr != nil {
				return nil, perr
			}
			ft, perr := f.Permute(1, 0)
			if perr != nil {
				return nil, perr
			}
			prod, merr := dense.MatMul(p.MustReshape(dense.Shape{r * rNext, t.n[mode]}), ft)
			if merr != nil {
				return nil, merr
			}
			prod = prod.MustReshape(dense.Shape{r, rNext, fs[0]})
			out.cores[mode], err = prod.Permute(0, 2, 1)
		}
		if err != nil {
			return nil, err
		}
	}
	return FromCores(out.cores)
}
