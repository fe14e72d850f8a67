package dense

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// asMat exposes a 2D array as a gonum matrix sharing the same storage.
func (d *Dense) asMat() (*mat.Dense, error) {
	if len(d.shape) != 2 {
		return nil, errors.Errorf("expected a 2D array, got shape %v", d.shape)
	}
	return mat.NewDense(d.shape[0], d.shape[1], d.data), nil
}

// fromMat copies a gonum matrix into a fresh Dense on the given device.
func fromMat(m mat.Matrix, device Device) *Dense {
	r, c := m.Dims()
	out := Zeros(Shape{r, c}, device)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[i*c+j] = m.At(i, j)
		}
	}
	return out
}

// Slice2D returns a copy of the submatrix [r0:r1, c0:c1] of a 2D array.
func (d *Dense) Slice2D(r0, r1, c0, c1 int) (*Dense, error) {
	if len(d.shape) != 2 {
		return nil, errors.Errorf("expected a 2D array, got shape %v", d.shape)
	}
	if r0 < 0 || r1 > d.shape[0] || c0 < 0 || c1 > d.shape[1] || r0 >= r1 || c0 >= c1 {
		return nil, errors.Errorf("invalid slice [%d:%d, %d:%d] of %v", r0, r1, c0, c1, d.shape)
	}
	out := Zeros(Shape{r1 - r0, c1 - c0}, d.device)
	cols := d.shape[1]
	for i := r0; i < r1; i++ {
		copy(out.data[(i-r0)*(c1-c0):(i-r0+1)*(c1-c0)], d.data[i*cols+c0:i*cols+c1])
	}
	return out, nil
}

// MatMul computes the matrix product of two 2D arrays.
func MatMul(a, b *Dense) (*Dense, error) {
	am, err := a.asMat()
	if err != nil {
		return nil, err
	}
	bm, err := b.asMat()
	if err != nil {
		return nil, err
	}
	if a.shape[1] != b.shape[0] {
		return nil, errors.Errorf("matmul dimension mismatch: %v x %v", a.shape, b.shape)
	}
	var out mat.Dense
	out.Mul(am, bm)
	return fromMat(&out, a.device), nil
}

// QR computes a thin orthogonal factorization A = Q*R of a 2D array, where Q
// is m×k with orthonormal columns, R is k×n and k = min(m, n).
//
// gonum's QR requires m >= n; for wide matrices the factorization falls back
// to the SVD (Q = U, R = diag(S)*Vᵀ), which satisfies the same contract.
func QR(a *Dense) (*Dense, *Dense, error) {
	am, err := a.asMat()
	if err != nil {
		return nil, nil, err
	}
	m, n := a.shape[0], a.shape[1]
	if m < n {
		u, s, vt, err := SVD(a)
		if err != nil {
			return nil, nil, err
		}
		for i, sv := range s {
			row := vt.data[i*n : (i+1)*n]
			for j := range row {
				row[j] *= sv
			}
		}
		return u, vt, nil
	}

	var qr mat.QR
	qr.Factorize(am)
	var qFull, rFull mat.Dense
	qr.QTo(&qFull)
	qr.RTo(&rFull)
	q := fromMat(qFull.Slice(0, m, 0, n), a.device)
	r := fromMat(rFull.Slice(0, n, 0, n), a.device)
	return q, r, nil
}

// SVD computes the thin singular value decomposition A = U*diag(S)*Vᵀ of a
// 2D array. U is m×k, Vᵀ is k×n, S has length k = min(m, n) and is sorted in
// decreasing order.
func SVD(a *Dense) (*Dense, []float64, *Dense, error) {
	am, err := a.asMat()
	if err != nil {
		return nil, nil, nil, err
	}
	var svd mat.SVD
	if ok := svd.Factorize(am, mat.SVDThin); !ok {
		return nil, nil, nil, errors.Errorf("SVD failed to converge for shape %v", a.shape)
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	return fromMat(&u, a.device), s, fromMat(v.T(), a.device), nil
}

// SolveLS solves A*X = B in the least-squares sense for 2D arrays.
// Falls back to an SVD-based pseudo-inverse solve when A is singular or
// badly conditioned.
func SolveLS(a, b *Dense) (*Dense, error) {
	am, err := a.asMat()
	if err != nil {
		return nil, err
	}
	bm, err := b.asMat()
	if err != nil {
		return nil, err
	}
	if a.shape[0] != b.shape[0] {
		return nil, errors.Errorf("solve dimension mismatch: %v vs %v", a.shape, b.shape)
	}

	var x mat.Dense
	if err := x.Solve(am, bm); err != nil {
		var svd mat.SVD
		if ok := svd.Factorize(am, mat.SVDThin); !ok {
			return nil, errors.Errorf("solve failed for shape %v", a.shape)
		}
		rank := 0
		s := svd.Values(nil)
		tol := 1e-14 * s[0] * float64(max(a.shape[0], a.shape[1]))
		for _, sv := range s {
			if sv > tol {
				rank++
			}
		}
		if rank == 0 {
			// A numerically zero system: the minimal-norm solution is zero.
			return Zeros(Shape{a.shape[1], b.shape[1]}, a.device), nil
		}
		svd.SolveTo(&x, bm, rank)
	}
	return fromMat(&x, a.device), nil
}
