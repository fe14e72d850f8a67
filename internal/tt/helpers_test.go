package tt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/internal/dense"
)

// fullOf densifies a train, failing the test on error.
func fullOf(t *testing.T, x *Tensor) *dense.Dense {
	t.Helper()
	full, err := x.Full()
	require.NoError(t, err)
	return full
}

// requireDenseClose asserts two dense arrays agree entrywise within tol.
func requireDenseClose(t *testing.T, want, got *dense.Dense, tol float64) {
	t.Helper()
	diff, err := want.MaxAbsDiff(got)
	require.NoError(t, err)
	require.LessOrEqual(t, diff, tol, "arrays differ by %v", diff)
}

// arangeTensor builds the TT decomposition of a value ramp over the given
// modes: entry (i1,...,id) holds the flat index. The ramp separates along
// every unfolding, so it compresses exactly.
func arangeTensor(t *testing.T, modes []int) (*Tensor, *dense.Dense) {
	t.Helper()
	n := 1
	for _, m := range modes {
		n *= m
	}
	full := dense.Arange(0, float64(n), dense.CPU).MustReshape(dense.Shape(modes))
	x, err := FromDense(full, Options{})
	require.NoError(t, err)
	return x, full
}

// positiveRank1 builds a rank-1 train with entries bounded away from zero,
// handy as a divisor.
func positiveRank1(t *testing.T, modes []int) *Tensor {
	t.Helper()
	vectors := make([]*dense.Dense, len(modes))
	for i, m := range modes {
		v := dense.Zeros(dense.Shape{m}, dense.CPU)
		for j := 0; j < m; j++ {
			v.Data()[j] = 1 + 0.25*float64(j%3)
		}
		vectors[i] = v
	}
	y, err := Rank1(vectors)
	require.NoError(t, err)
	return y
}
