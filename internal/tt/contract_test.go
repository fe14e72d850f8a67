package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

// denseMatVec applies a densified operator (M1,...,Md,N1,...,Nd) to a dense
// tensor (N1,...,Nd) by brute force, as the reference for contraction tests.
func denseMatVec(t *testing.T, a *Tensor, x *dense.Dense) *dense.Dense {
	t.Helper()
	fa := fullOf(t, a)
	m := a.RowModeSizes()
	n := a.ModeSizes()
	mVol, nVol := 1, 1
	for _, v := range m {
		mVol *= v
	}
	for _, v := range n {
		nVol *= v
	}
	am := fa.MustReshape(dense.Shape{mVol, nVol})
	xv := x.MustReshape(dense.Shape{nVol, 1})
	y, err := dense.MatMul(am, xv)
	require.NoError(t, err)
	return y.MustReshape(dense.Shape(m))
}

func TestMatVecIdentity(t *testing.T) {
	id, err := Eye([]int{3, 4}, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)

	y, err := id.MatVec(x)
	require.NoError(t, err)
	requireDenseClose(t, fullOf(t, x), fullOf(t, y), 1e-10*(1+fullOf(t, x).Norm()))
}

func TestMatVecMatchesDense(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 2}, {2, 4}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{2, 4}, 2, dense.CPU)
	require.NoError(t, err)

	y, err := a.MatVec(x)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, y.ModeSizes())
	assert.Equal(t, []int{1, 4, 1}, y.Ranks(), "ranks combine as Kronecker products")

	want := denseMatVec(t, a, fullOf(t, x))
	requireDenseClose(t, want, fullOf(t, y), 1e-9*(1+want.Norm()))
}

func TestMatVecRejectsModeMismatch(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 2}, {2, 4}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{2, 5}, 2, dense.CPU)
	require.NoError(t, err)
	_, err = a.MatVec(x)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = x.MatVec(x)
	require.ErrorIs(t, err, ErrIncompatibleTypes)
}

func TestMatMulMatchesDense(t *testing.T) {
	a, err := RandomMatrix([][2]int{{2, 3}, {3, 2}}, 2, dense.CPU)
	require.NoError(t, err)
	b, err := RandomMatrix([][2]int{{3, 2}, {2, 3}}, 2, dense.CPU)
	require.NoError(t, err)

	c, err := a.MatMul(b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, c.RowModeSizes())
	assert.Equal(t, []int{2, 3}, c.ModeSizes())

	fa := fullOf(t, a).MustReshape(dense.Shape{6, 6})
	fb := fullOf(t, b).MustReshape(dense.Shape{6, 6})
	want, err := dense.MatMul(fa, fb)
	require.NoError(t, err)
	got := fullOf(t, c).MustReshape(dense.Shape{6, 6})
	requireDenseClose(t, want, got, 1e-9*(1+want.Norm()))
}

func TestVecMatMatchesDense(t *testing.T) {
	x, err := Random([]int{3, 2}, 2, dense.CPU)
	require.NoError(t, err)
	a, err := RandomMatrix([][2]int{{3, 2}, {2, 4}}, 2, dense.CPU)
	require.NoError(t, err)

	y, err := x.VecMat(a)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, y.ModeSizes())

	// x^T A = (A^T x)^T.
	at, err := a.Transpose()
	require.NoError(t, err)
	want := denseMatVec(t, at, fullOf(t, x))
	requireDenseClose(t, want, fullOf(t, y), 1e-9*(1+want.Norm()))
}

func TestApplyDenseMatchesMatVec(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 2}, {2, 4}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{2, 4}, 2, dense.CPU)
	require.NoError(t, err)

	viaTT, err := a.MatVec(x)
	require.NoError(t, err)
	got, err := a.ApplyDense(fullOf(t, x))
	require.NoError(t, err)
	require.Equal(t, dense.Shape{3, 2}, got.Shape())
	requireDenseClose(t, fullOf(t, viaTT), got, 1e-9*(1+got.Norm()))
}

func TestApplyDenseBatched(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 2}, {2, 4}}, 2, dense.CPU)
	require.NoError(t, err)
	batch := dense.Randn(dense.Shape{5, 2, 4}, dense.CPU)

	got, err := a.ApplyDense(batch)
	require.NoError(t, err)
	require.Equal(t, dense.Shape{5, 3, 2}, got.Shape())

	// Every batch entry must match the unbatched application.
	for b := 0; b < 5; b++ {
		single := dense.Zeros(dense.Shape{2, 4}, dense.CPU)
		for i := 0; i < 2; i++ {
			for j := 0; j < 4; j++ {
				single.Set(batch.At(b, i, j), i, j)
			}
		}
		want, err := a.ApplyDense(single)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				assert.InDelta(t, want.At(i, j), got.At(b, i, j), 1e-9, "batch %d", b)
			}
		}
	}
}

func TestDotMatchesDense(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	y, err := Random([]int{3, 4, 5}, 3, dense.CPU)
	require.NoError(t, err)

	got, err := Dot(x, y)
	require.NoError(t, err)

	fx, fy := fullOf(t, x), fullOf(t, y)
	want := 0.0
	for i, v := range fx.Data() {
		want += v * fy.Data()[i]
	}
	assert.InDelta(t, want, got, 1e-9*(1+want*want))
}

func TestSumAllMatchesDense(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	got, err := x.SumAll()
	require.NoError(t, err)

	want := 0.0
	for _, v := range fullOf(t, x).Data() {
		want += v
	}
	assert.InDelta(t, want, got, 1e-9)
}

func TestSumContractsSelectedModes(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	s, err := x.Sum(1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, s.ModeSizes())

	full := fullOf(t, x)
	want := dense.Zeros(dense.Shape{3, 5}, dense.CPU)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 5; k++ {
				want.Set(want.At(i, k)+full.At(i, j, k), i, k)
			}
		}
	}
	requireDenseClose(t, want, fullOf(t, s), 1e-9*(1+want.Norm()))

	_, err = x.Sum()
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = x.Sum(3)
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestNModeProductWithIdentityIsNoop(t *testing.T) {
	x, err := Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)
	y, err := x.NModeProduct([]*dense.Dense{dense.Eye(4, dense.CPU)}, []int{1})
	require.NoError(t, err)
	requireDenseClose(t, fullOf(t, x), fullOf(t, y), 1e-10)
}

func TestNModeProductMatchesDense(t *testing.T) {
	x, err := Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)
	f := dense.Randn(dense.Shape{5, 4}, dense.CPU)

	y, err := x.NModeProduct([]*dense.Dense{f}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, y.ModeSizes())

	full := fullOf(t, x)
	want := dense.Zeros(dense.Shape{3, 5}, dense.CPU)
	for i := 0; i < 3; i++ {
		for l := 0; l < 5; l++ {
			v := 0.0
			for j := 0; j < 4; j++ {
				v += full.At(i, j) * f.At(l, j)
			}
			want.Set(v, i, l)
		}
	}
	requireDenseClose(t, want, fullOf(t, y), 1e-9*(1+want.Norm()))

	_, err = x.NModeProduct([]*dense.Dense{f}, []int{0})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPartialDotMatchesDense(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	b, err := Random([]int{4}, 1, dense.CPU)
	require.NoError(t, err)

	got, err := PartialDot(x, b, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, got.ModeSizes())

	fx, fb, fg := fullOf(t, x), fullOf(t, b), fullOf(t, got)
	for i := 0; i < 3; i++ {
		for k := 0; k < 5; k++ {
			want := 0.0
			for j := 0; j < 4; j++ {
				want += fx.At(i, j, k) * fb.At(j)
			}
			assert.InDelta(t, want, fg.At(i, k), 1e-9, "entry (%d,%d)", i, k)
		}
	}
}

func TestPartialDotOverTwoModes(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	b, err := Random([]int{3, 5}, 2, dense.CPU)
	require.NoError(t, err)

	got, err := PartialDot(x, b, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.ModeSizes())

	fx, fb, fg := fullOf(t, x), fullOf(t, b), fullOf(t, got)
	for j := 0; j < 4; j++ {
		want := 0.0
		for i := 0; i < 3; i++ {
			for k := 0; k < 5; k++ {
				want += fx.At(i, j, k) * fb.At(i, k)
			}
		}
		assert.InDelta(t, want, fg.At(j), 1e-9, "entry %d", j)
	}
}

func TestPartialDotValidatesInput(t *testing.T) {
	x, err := Random([]int{3, 4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	b, err := Random([]int{4}, 1, dense.CPU)
	require.NoError(t, err)

	_, err = PartialDot(x, b, nil)
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = PartialDot(x, b, []int{0, 1, 2})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = PartialDot(x, b, []int{3})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = PartialDot(x, b, []int{0})
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = PartialDot(x, b, []int{0, 1})
	require.ErrorIs(t, err, ErrShapeMismatch)

	a, err := RandomMatrix([][2]int{{2, 2}}, 1, dense.CPU)
	require.NoError(t, err)
	_, err = PartialDot(a, b, []int{0})
	require.ErrorIs(t, err, ErrIncompatibleTypes)
}
