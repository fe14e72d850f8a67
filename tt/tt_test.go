// Copyright 2025 The Trane Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trane-ml/trane/dense"
	"github.com/trane-ml/trane/tt"
)

func TestEndToEnd(t *testing.T) {
	full := dense.Arange(0, 128, dense.CPU).MustReshape(dense.Shape{8, 4, 4})
	x, err := tt.FromDense(full, tt.Options{Eps: 1e-10})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 4, 4}, x.ModeSizes())

	sum, err := x.Add(x)
	require.NoError(t, err)
	sum, err = sum.Round(1e-10)
	require.NoError(t, err)
	assert.Equal(t, x.Ranks(), sum.Ranks(), "rounding undoes the additive rank growth")

	got, err := sum.Full()
	require.NoError(t, err)
	want := full.Scale(2)
	diff, err := want.Sub(got)
	require.NoError(t, err)
	assert.LessOrEqual(t, diff.Norm(), 1e-7*want.Norm())
}

func TestOperatorApplication(t *testing.T) {
	id, err := tt.Eye([]int{4, 4}, dense.CPU)
	require.NoError(t, err)
	x, err := tt.Random([]int{4, 4}, 2, dense.CPU)
	require.NoError(t, err)

	exact, err := id.MatVec(x)
	require.NoError(t, err)
	fast, report, err := tt.FastMatVec(id, x, tt.MatVecOptions{})
	require.NoError(t, err)
	assert.True(t, report.Converged)

	fe, err := exact.Full()
	require.NoError(t, err)
	ff, err := fast.Full()
	require.NoError(t, err)
	diff, err := fe.Sub(ff)
	require.NoError(t, err)
	assert.LessOrEqual(t, diff.Norm(), 1e-7*(1+fe.Norm()))
}

func TestSliceAndEvaluate(t *testing.T) {
	full := dense.Arange(0, 60, dense.CPU).MustReshape(dense.Shape{3, 4, 5})
	x, err := tt.FromDense(full, tt.Options{})
	require.NoError(t, err)

	s, err := x.Slice(tt.At(2), tt.All(), tt.Span(1, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, s.ModeSizes())

	vals, err := x.EvaluateAt([][]int{{2, 3, 4}})
	require.NoError(t, err)
	assert.InDelta(t, full.At(2, 3, 4), vals[0], 1e-9)
}

func TestErrorsAreMatchable(t *testing.T) {
	a, err := tt.Random([]int{3, 3}, 2, dense.CPU)
	require.NoError(t, err)
	b, err := tt.Random([]int{3, 4}, 2, dense.CPU)
	require.NoError(t, err)

	_, err = a.Add(b)
	require.ErrorIs(t, err, tt.ErrShapeMismatch)
	_, err = tt.Dot(a, tt.Empty())
	require.ErrorIs(t, err, tt.ErrInvalidArguments)
}
