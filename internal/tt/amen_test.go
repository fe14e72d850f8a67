package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

func TestDivideOnesByOnes(t *testing.T) {
	ones, err := Ones([]int{4, 5, 6}, dense.CPU)
	require.NoError(t, err)

	z, report, err := ElementwiseDivide(ones, ones, DivideOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged, "report: %+v", report)
	// The residual must genuinely reach the default tolerance, not stall at
	// the bilinear chain's cancellation floor.
	assert.Less(t, report.Residual, DefaultEps)
	requireDenseClose(t, fullOf(t, ones), fullOf(t, z), 1e-7)
}

func TestDivideRecoversFactor(t *testing.T) {
	x, err := Random([]int{3, 4, 3}, 2, dense.CPU)
	require.NoError(t, err)
	y := positiveRank1(t, []int{3, 4, 3})

	xy, err := x.Mul(y)
	require.NoError(t, err)
	z, report, err := ElementwiseDivide(xy, y, DivideOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged, "report: %+v", report)

	want := fullOf(t, x)
	requireDenseClose(t, want, fullOf(t, z), 1e-6*(1+want.Norm()))
}

func TestDivMethodUsesDefaults(t *testing.T) {
	x := positiveRank1(t, []int{4, 4})
	z, err := x.Div(x)
	require.NoError(t, err)

	want := dense.Ones(dense.Shape{4, 4}, dense.CPU)
	requireDenseClose(t, want, fullOf(t, z), 1e-7)
}

func TestDivideSingleMode(t *testing.T) {
	x, err := Random([]int{6}, 1, dense.CPU)
	require.NoError(t, err)
	y := positiveRank1(t, []int{6})

	z, report, err := ElementwiseDivide(x, y, DivideOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged)

	fx, fy, fz := fullOf(t, x), fullOf(t, y), fullOf(t, z)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, fx.At(i)/fy.At(i), fz.At(i), 1e-10)
	}
}

func TestDivideMatrices(t *testing.T) {
	x, err := RandomMatrix([][2]int{{2, 3}, {3, 2}}, 2, dense.CPU)
	require.NoError(t, err)
	y, err := OnesMatrix([][2]int{{2, 3}, {3, 2}}, dense.CPU)
	require.NoError(t, err)
	shifted, err := y.AddScalar(1) // all twos, safely away from zero
	require.NoError(t, err)

	z, report, err := ElementwiseDivide(x, shifted, DivideOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged, "report: %+v", report)
	assert.True(t, z.IsMatrix())

	want := fullOf(t, x).Scale(0.5)
	requireDenseClose(t, want, fullOf(t, z), 1e-6*(1+want.Norm()))
}

func TestDivideValidatesInput(t *testing.T) {
	x, err := Random([]int{3, 3}, 2, dense.CPU)
	require.NoError(t, err)
	y, err := Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)

	_, _, err = ElementwiseDivide(x, y, DivideOptions{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = ElementwiseDivide(x, Empty(), DivideOptions{})
	require.ErrorIs(t, err, ErrInvalidArguments)

	a, err := RandomMatrix([][2]int{{3, 3}, {3, 3}}, 1, dense.CPU)
	require.NoError(t, err)
	_, _, err = ElementwiseDivide(x, a, DivideOptions{})
	require.ErrorIs(t, err, ErrIncompatibleTypes)

	_, _, err = ElementwiseDivide(x, x, DivideOptions{Kick: -1})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestDivideByZeroEntryFailsSoft(t *testing.T) {
	ones, err := Ones([]int{2, 2}, dense.CPU)
	require.NoError(t, err)
	v := dense.Ones(dense.Shape{2}, dense.CPU)
	w := dense.Ones(dense.Shape{2}, dense.CPU)
	w.Data()[1] = 0
	y, err := Rank1([]*dense.Dense{v, w})
	require.NoError(t, err)

	z, report, err := ElementwiseDivide(ones, y, DivideOptions{Sweeps: 3})
	require.NoError(t, err, "a zero divisor entry degrades the residual, it does not error")
	require.NotNil(t, z)
	assert.False(t, report.Converged)
	assert.Equal(t, 3, report.Sweeps)
}

func TestDivideSingleModeByZeroDivisor(t *testing.T) {
	x, err := Ones([]int{4}, dense.CPU)
	require.NoError(t, err)
	w := dense.Ones(dense.Shape{4}, dense.CPU)
	w.Data()[2] = 0
	y, err := Rank1([]*dense.Dense{w})
	require.NoError(t, err)

	z, report, err := ElementwiseDivide(x, y, DivideOptions{})
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.False(t, report.Converged, "report: %+v", report)
}

func TestEnrichmentRespectsRankCap(t *testing.T) {
	core := dense.Randn(dense.Shape{2, 5, 3}, dense.CPU)

	q, carry, err := enrichAndOrthogonalize(core, 4, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, q.Shape()[2], 3, "the widened bond must stay within the cap")
	assert.Equal(t, q.Shape()[2], carry.Shape()[0])

	// With headroom the kick widens the bond up to the cap.
	q, _, err = enrichAndOrthogonalize(core, 4, 6)
	require.NoError(t, err)
	assert.LessOrEqual(t, q.Shape()[2], 6)
}

func TestDivideFailsSoftOnTinyBudget(t *testing.T) {
	x, err := Random([]int{4, 4, 4}, 3, dense.CPU)
	require.NoError(t, err)
	y := positiveRank1(t, []int{4, 4, 4})

	z, report, err := ElementwiseDivide(x, y, DivideOptions{Sweeps: 1, MaxRank: 1})
	require.NoError(t, err, "a starved run still returns its best iterate")
	require.NotNil(t, z)
	assert.Equal(t, 1, report.Sweeps)
}
