// Copyright 2025 The Trane Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tt

import (
	"github.com/trane-ml/trane/internal/dense"
	"github.com/trane-ml/trane/internal/tt"
)

// Type aliases for public API

// Tensor is a tensor in the TT format: a chain of rank-3 cores for plain
// tensors, rank-4 cores for TT matrices. All arithmetic, contraction,
// rounding, slicing and evaluation methods hang off this type.
type Tensor = tt.Tensor

// Options controls SVD-based compression: the relative accuracy and optional
// rank caps used by decomposition, rounding and reshaping.
type Options = tt.Options

// Index selects a position or range of one physical mode when slicing.
type Index = tt.Index

// NormMethod selects how the Frobenius norm is evaluated.
type NormMethod = tt.NormMethod

// Norm method constants.
const (
	NormOrthogonal NormMethod = tt.NormOrthogonal
	NormBilinear   NormMethod = tt.NormBilinear
)

// Report describes the outcome of an iterative sweep solver.
type Report = tt.Report

// MatVecOptions configures the DMRG matrix-vector product.
type MatVecOptions = tt.MatVecOptions

// DivideOptions configures the AMEN elementwise division solver.
type DivideOptions = tt.DivideOptions

// Compression defaults.
const (
	DefaultEps     = tt.DefaultEps
	DefaultMaxRank = tt.DefaultMaxRank
)

// Error kinds; match with errors.Is.
var (
	ErrRankMismatch      = tt.ErrRankMismatch
	ErrInvalidArguments  = tt.ErrInvalidArguments
	ErrShapeMismatch     = tt.ErrShapeMismatch
	ErrIncompatibleTypes = tt.ErrIncompatibleTypes
)

// Construction

// Empty returns the empty train, the zero value of the algebra.
func Empty() *Tensor {
	return tt.Empty()
}

// FromCores builds a train from explicit cores after validating the chain.
func FromCores(cores []*dense.Dense) (*Tensor, error) {
	return tt.FromCores(cores)
}

// FromDense compresses a dense tensor into the TT format at the requested
// accuracy.
//
// Example:
//
//	full := dense.Arange(0, 128, dense.CPU).MustReshape(dense.Shape{8, 4, 4})
//	x, err := tt.FromDense(full, tt.Options{Eps: 1e-10})
func FromDense(a *dense.Dense, opts Options) (*Tensor, error) {
	return tt.FromDense(a, opts)
}

// FromDenseShaped reshapes a dense array to the given modes, then compresses.
func FromDenseShaped(a *dense.Dense, modes []int, opts Options) (*Tensor, error) {
	return tt.FromDenseShaped(a, modes, opts)
}

// FromDenseMatrix compresses a dense array into a TT matrix with the given
// (row, col) mode pairs.
func FromDenseMatrix(a *dense.Dense, modes [][2]int, opts Options) (*Tensor, error) {
	return tt.FromDenseMatrix(a, modes, opts)
}

// Creation functions

// Eye creates the TT identity operator for the given mode sizes.
func Eye(shape []int, device dense.Device) (*Tensor, error) {
	return tt.Eye(shape, device)
}

// Zeros creates a rank-1 all-zero TT tensor.
func Zeros(shape []int, device dense.Device) (*Tensor, error) {
	return tt.Zeros(shape, device)
}

// Ones creates a rank-1 all-one TT tensor.
func Ones(shape []int, device dense.Device) (*Tensor, error) {
	return tt.Ones(shape, device)
}

// ZerosMatrix creates a rank-1 all-zero TT matrix from (row, col) pairs.
func ZerosMatrix(shape [][2]int, device dense.Device) (*Tensor, error) {
	return tt.ZerosMatrix(shape, device)
}

// OnesMatrix creates a rank-1 all-one TT matrix from (row, col) pairs.
func OnesMatrix(shape [][2]int, device dense.Device) (*Tensor, error) {
	return tt.OnesMatrix(shape, device)
}

// Random creates a TT tensor with normally distributed cores at a uniform
// target rank.
func Random(shape []int, rank int, device dense.Device) (*Tensor, error) {
	return tt.Random(shape, rank, device)
}

// RandomRanks creates a TT tensor with normally distributed cores at the
// exact given rank sequence.
func RandomRanks(shape []int, ranks []int, device dense.Device) (*Tensor, error) {
	return tt.RandomRanks(shape, ranks, device)
}

// RandomMatrix creates a TT matrix with normally distributed cores at a
// uniform target rank.
func RandomMatrix(shape [][2]int, rank int, device dense.Device) (*Tensor, error) {
	return tt.RandomMatrix(shape, rank, device)
}

// Randn creates a TT tensor whose dense entries are approximately normal
// with the given variance.
func Randn(shape []int, ranks []int, variance float64, device dense.Device) (*Tensor, error) {
	return tt.Randn(shape, ranks, variance, device)
}

// Rank1 creates the rank-1 TT tensor that is the outer product of the given
// vectors.
func Rank1(vectors []*dense.Dense) (*Tensor, error) {
	return tt.Rank1(vectors)
}

// Meshgrid creates grid tensors from coordinate vectors; result i varies
// only along mode i.
func Meshgrid(vectors []*dense.Dense) ([]*Tensor, error) {
	return tt.Meshgrid(vectors)
}

// Algebra

// Dot computes the inner product of two TT tensors.
func Dot(a, b *Tensor) (float64, error) {
	return tt.Dot(a, b)
}

// PartialDot contracts a with a smaller train over the given modes of a,
// returning a TT tensor over the remaining modes.
func PartialDot(a, b *Tensor, modes []int) (*Tensor, error) {
	return tt.PartialDot(a, b, modes)
}

// Kron concatenates two trains into their Kronecker (outer) product.
func Kron(a, b *Tensor) (*Tensor, error) {
	return tt.Kron(a, b)
}

// Slicing

// At fixes a mode to a single position.
func At(i int) Index {
	return tt.At(i)
}

// Span keeps the half-open range [start, stop) of a mode.
func Span(start, stop int) Index {
	return tt.Span(start, stop)
}

// All keeps a mode untouched.
func All() Index {
	return tt.All()
}

// Persistence

// Load reads a tensor train from a .tt file written with Tensor.Save.
func Load(path string) (*Tensor, error) {
	return tt.Load(path)
}

// Solvers

// FastMatVec computes A x directly at low rank by DMRG two-site sweeps.
// The solver fails soft: inspect the report for convergence.
func FastMatVec(a, x *Tensor, opts MatVecOptions) (*Tensor, Report, error) {
	return tt.FastMatVec(a, x, opts)
}

// ElementwiseDivide computes x / y elementwise with AMEN sweeps. The solver
// fails soft: inspect the report for convergence.
func ElementwiseDivide(x, y *Tensor, opts DivideOptions) (*Tensor, Report, error) {
	return tt.ElementwiseDivide(x, y, opts)
}
