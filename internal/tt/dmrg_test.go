package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

func TestFastMatVecMatchesExactProduct(t *testing.T) {
	a, err := RandomMatrix([][2]int{{4, 4}, {3, 3}, {2, 2}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{4, 3, 2}, 2, dense.CPU)
	require.NoError(t, err)

	exact, err := a.MatVec(x)
	require.NoError(t, err)
	want := fullOf(t, exact)

	y, report, err := FastMatVec(a, x, MatVecOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged, "report: %+v", report)
	requireDenseClose(t, want, fullOf(t, y), 1e-7*(1+want.Norm()))

	// The sweeps must not exceed the exact Kronecker ranks.
	for i, r := range y.Ranks() {
		assert.LessOrEqual(t, r, exact.Ranks()[i], "boundary %d", i)
	}
}

func TestFastMatVecIdentity(t *testing.T) {
	id, err := Eye([]int{3, 4}, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{3, 4}, 3, dense.CPU)
	require.NoError(t, err)

	y, report, err := FastMatVec(id, x, MatVecOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged)
	want := fullOf(t, x)
	requireDenseClose(t, want, fullOf(t, y), 1e-7*(1+want.Norm()))
}

func TestFastMatVecWarmStart(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 3}, {3, 3}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{3, 3}, 2, dense.CPU)
	require.NoError(t, err)

	exact, err := a.MatVec(x)
	require.NoError(t, err)
	start, err := exact.Round(1e-8)
	require.NoError(t, err)

	y, report, err := FastMatVec(a, x, MatVecOptions{Start: start})
	require.NoError(t, err)
	assert.True(t, report.Converged)
	want := fullOf(t, exact)
	requireDenseClose(t, want, fullOf(t, y), 1e-7*(1+want.Norm()))
}

func TestFastMatVecSingleMode(t *testing.T) {
	a, err := RandomMatrix([][2]int{{4, 4}}, 1, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{4}, 1, dense.CPU)
	require.NoError(t, err)

	y, report, err := FastMatVec(a, x, MatVecOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged)

	exact, err := a.MatVec(x)
	require.NoError(t, err)
	requireDenseClose(t, fullOf(t, exact), fullOf(t, y), 1e-9)
}

func TestFastMatVecValidatesInput(t *testing.T) {
	a, err := RandomMatrix([][2]int{{3, 3}, {3, 3}}, 2, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{3, 3}, 2, dense.CPU)
	require.NoError(t, err)

	_, _, err = FastMatVec(x, x, MatVecOptions{})
	require.ErrorIs(t, err, ErrIncompatibleTypes)

	bad, err := Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)
	_, _, err = FastMatVec(a, bad, MatVecOptions{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = FastMatVec(a, x, MatVecOptions{Eps: -1})
	require.ErrorIs(t, err, ErrInvalidArguments)

	wrongStart, err := Random([]int{4, 4}, 2, dense.CPU)
	require.NoError(t, err)
	_, _, err = FastMatVec(a, x, MatVecOptions{Start: wrongStart})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFastMatVecFailsSoftOnTinyBudget(t *testing.T) {
	a, err := RandomMatrix([][2]int{{4, 4}, {4, 4}, {4, 4}}, 3, dense.CPU)
	require.NoError(t, err)
	x, err := Random([]int{4, 4, 4}, 3, dense.CPU)
	require.NoError(t, err)

	y, report, err := FastMatVec(a, x, MatVecOptions{Sweeps: 1, MaxRank: 1})
	require.NoError(t, err, "a starved run still returns its best iterate")
	require.NotNil(t, y)
	assert.Equal(t, 1, report.Sweeps)
}
