// Copyright 2025 The Trane Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dense

import (
	"github.com/trane-ml/trane/internal/dense"
)

// Type aliases for public API

// Dense is a dense multidimensional float64 array in row-major order.
type Dense = dense.Dense

// Shape represents the dimensions of a dense array.
// Example: Shape{2, 3, 4} represents a 3D array with dimensions 2×3×4.
type Shape = dense.Shape

// Device represents the device where array data resides.
type Device = dense.Device

// Device constants.
const (
	CPU Device = dense.CPU
)

// Creation functions

// New creates a zero-filled array with the given shape.
func New(shape Shape, device Device) (*Dense, error) {
	return dense.New(shape, device)
}

// FromSlice creates an array from a Go slice; the data is copied.
//
// Example:
//
//	x, err := dense.FromSlice([]float64{1, 2, 3, 4, 5, 6}, dense.Shape{2, 3}, dense.CPU)
func FromSlice(data []float64, shape Shape, device Device) (*Dense, error) {
	return dense.FromSlice(data, shape, device)
}

// Zeros creates an array filled with zeros.
func Zeros(shape Shape, device Device) *Dense {
	return dense.Zeros(shape, device)
}

// Ones creates an array filled with ones.
func Ones(shape Shape, device Device) *Dense {
	return dense.Ones(shape, device)
}

// Full creates an array filled with a specific value.
func Full(shape Shape, value float64, device Device) *Dense {
	return dense.Full(shape, value, device)
}

// Rand creates an array filled with random values from the uniform
// distribution U(0, 1).
func Rand(shape Shape, device Device) *Dense {
	return dense.Rand(shape, device)
}

// Randn creates an array filled with random values from the standard normal
// distribution N(0, 1).
func Randn(shape Shape, device Device) *Dense {
	return dense.Randn(shape, device)
}

// Arange creates a 1D array with values from start to end (exclusive).
//
// Example:
//
//	x := dense.Arange(0, 10, dense.CPU)  // [0, 1, 2, ..., 9]
func Arange(start, end float64, device Device) *Dense {
	return dense.Arange(start, end, device)
}

// Eye creates a 2D identity matrix.
func Eye(n int, device Device) *Dense {
	return dense.Eye(n, device)
}

// Linear algebra

// MatMul multiplies two 2D arrays.
func MatMul(a, b *Dense) (*Dense, error) {
	return dense.MatMul(a, b)
}

// QR computes a thin QR-like factorization of a 2D array.
func QR(a *Dense) (*Dense, *Dense, error) {
	return dense.QR(a)
}

// SVD computes the thin singular value decomposition of a 2D array,
// returning U, the singular values, and V transposed.
func SVD(a *Dense) (*Dense, []float64, *Dense, error) {
	return dense.SVD(a)
}

// SolveLS solves the least-squares system A X = B, falling back to the
// pseudo-inverse when A is rank deficient.
func SolveLS(a, b *Dense) (*Dense, error) {
	return dense.SolveLS(a, b)
}
