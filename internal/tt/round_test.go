package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

func TestRoundRecoversRankAfterAddition(t *testing.T) {
	x, err := Random([]int{4, 5, 6}, 3, dense.CPU)
	require.NoError(t, err)

	twice, err := x.Add(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 6, 1}, twice.Ranks(), "addition doubles interior ranks")

	r, err := twice.Round(1e-10)
	require.NoError(t, err)
	assert.Equal(t, x.Ranks(), r.Ranks(), "rounding recovers the original ranks")

	want := fullOf(t, x).Scale(2)
	requireDenseClose(t, want, fullOf(t, r), 1e-8*want.Norm())
}

func TestRoundIsIdempotent(t *testing.T) {
	x, err := Random([]int{4, 4, 4}, 3, dense.CPU)
	require.NoError(t, err)

	once, err := x.Round(1e-9)
	require.NoError(t, err)
	again, err := once.Round(1e-9)
	require.NoError(t, err)

	assert.Equal(t, once.Ranks(), again.Ranks())
	requireDenseClose(t, fullOf(t, once), fullOf(t, again), 1e-8*fullOf(t, once).Norm())
}

func TestRoundPreservesValueWithinTolerance(t *testing.T) {
	x, err := Random([]int{4, 5, 6}, 4, dense.CPU)
	require.NoError(t, err)
	full := fullOf(t, x)

	r, err := x.Round(1e-6)
	require.NoError(t, err)
	diff, err := full.MaxAbsDiff(fullOf(t, r))
	require.NoError(t, err)
	assert.LessOrEqual(t, diff, 1e-5*full.Norm())
}

func TestRoundZeroTensorKeepsRankOne(t *testing.T) {
	z, err := Zeros([]int{3, 4, 5}, dense.CPU)
	require.NoError(t, err)
	r, err := z.Round(1e-10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, r.Ranks())
}

func TestRoundSingleCoreIsClone(t *testing.T) {
	x, err := Random([]int{7}, 1, dense.CPU)
	require.NoError(t, err)
	r, err := x.Round(1e-10)
	require.NoError(t, err)
	requireDenseClose(t, fullOf(t, x), fullOf(t, r), 0)
}

func TestRoundWithRankCap(t *testing.T) {
	x, err := Random([]int{5, 5, 5}, 4, dense.CPU)
	require.NoError(t, err)
	r, err := x.RoundWith(Options{Eps: 1e-14, MaxRank: 2})
	require.NoError(t, err)
	for _, rank := range r.Ranks() {
		assert.LessOrEqual(t, rank, 2)
	}
}

func TestRoundRejectsNegativeTolerance(t *testing.T) {
	x, err := Random([]int{4, 4}, 2, dense.CPU)
	require.NoError(t, err)
	_, err = x.Round(-0.5)
	require.ErrorIs(t, err, ErrInvalidArguments)
}
