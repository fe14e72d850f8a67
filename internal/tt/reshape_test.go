package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

func TestReshapeSplitMatchesDense(t *testing.T) {
	x, full := arangeTensor(t, []int{8, 4, 4})

	y, err := x.Reshape([]int{2, 4, 4, 4}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 4, 4}, y.ModeSizes())
	requireDenseClose(t, full.MustReshape(dense.Shape{2, 4, 4, 4}), fullOf(t, y), 1e-7*full.Norm())
}

func TestReshapeMergeMatchesDense(t *testing.T) {
	x, full := arangeTensor(t, []int{2, 4, 4, 4})

	y, err := x.Reshape([]int{8, 16}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 16}, y.ModeSizes())
	requireDenseClose(t, full.MustReshape(dense.Shape{8, 16}), fullOf(t, y), 1e-7*full.Norm())
}

func TestReshapeAcrossCoreBoundaries(t *testing.T) {
	// 6 and 4 regroup as 3 and 8: neither split aligns with a core boundary.
	x, full := arangeTensor(t, []int{6, 4})
	y, err := x.Reshape([]int{3, 8}, Options{})
	require.NoError(t, err)
	requireDenseClose(t, full.MustReshape(dense.Shape{3, 8}), fullOf(t, y), 1e-7*full.Norm())
}

func TestReshapeWithTrailingSingletons(t *testing.T) {
	x, full := arangeTensor(t, []int{4, 3})
	y, err := x.Reshape([]int{4, 3, 1}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 1}, y.ModeSizes())
	requireDenseClose(t, full.MustReshape(dense.Shape{4, 3, 1}), fullOf(t, y), 1e-8*full.Norm())

	back, err := y.Reshape([]int{4, 3}, Options{})
	require.NoError(t, err)
	requireDenseClose(t, full, fullOf(t, back), 1e-8*full.Norm())
}

func TestReshapeRejectsElementCountChange(t *testing.T) {
	x, err := Random([]int{4, 5}, 2, dense.CPU)
	require.NoError(t, err)
	_, err = x.Reshape([]int{4, 6}, Options{})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeRejectsUnalignedRegrouping(t *testing.T) {
	x, err := Random([]int{6}, 1, dense.CPU)
	require.NoError(t, err)
	_, err = x.Reshape([]int{4}, Options{})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeMatrixMatchesDense(t *testing.T) {
	a := dense.Arange(0, 256, dense.CPU)
	op, err := FromDenseMatrix(a, [][2]int{{4, 4}, {4, 4}}, Options{})
	require.NoError(t, err)

	re, err := op.ReshapeMatrix([][2]int{{2, 2}, {2, 2}, {2, 2}, {2, 2}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2}, re.RowModeSizes())
	assert.Equal(t, []int{2, 2, 2, 2}, re.ModeSizes())

	back, err := re.ReshapeMatrix([][2]int{{4, 4}, {4, 4}}, Options{})
	require.NoError(t, err)
	want := fullOf(t, op)
	requireDenseClose(t, want, fullOf(t, back), 1e-7*want.Norm())
}

func TestQTTRoundTrip(t *testing.T) {
	x, err := Random([]int{8, 8}, 2, dense.CPU)
	require.NoError(t, err)
	full := fullOf(t, x)

	q, err := x.ToQTT(2, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2}, q.ModeSizes())

	back, err := q.FromQTT([]int{8, 8}, Options{})
	require.NoError(t, err)
	requireDenseClose(t, full, fullOf(t, back), 1e-7*full.Norm())
}

func TestQTTRejectsNonPowerModes(t *testing.T) {
	x, err := Random([]int{6, 8}, 2, dense.CPU)
	require.NoError(t, err)
	_, err = x.ToQTT(2, Options{})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestQTTMatrix(t *testing.T) {
	op, err := RandomMatrix([][2]int{{4, 4}}, 1, dense.CPU)
	require.NoError(t, err)
	q, err := op.ToQTT(2, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, q.RowModeSizes())
	assert.Equal(t, []int{2, 2}, q.ModeSizes())

	rect, err := RandomMatrix([][2]int{{4, 2}}, 1, dense.CPU)
	require.NoError(t, err)
	_, err = rect.ToQTT(2, Options{})
	require.ErrorIs(t, err, ErrShapeMismatch)
}
