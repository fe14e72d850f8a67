// Copyright 2025 The Trane Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tt provides tensor-train (TT) decompositions and low-rank tensor
// algebra for Trane.
//
// # Overview
//
// A tensor train represents a d-dimensional tensor as a chain of small
// three-dimensional cores, turning exponential storage into a product of
// mode sizes and TT-ranks. The package provides:
//   - TT-SVD decomposition of dense tensors at a requested accuracy
//   - TT matrices (operators) with paired row and column modes
//   - Rank-aware arithmetic: addition, Hadamard product, contractions
//   - Rounding (rank re-compression), reshaping and QTT conversion
//   - Sweep solvers: DMRG matrix-vector product and AMEN division
//
// # Basic Usage
//
//	import (
//	    "github.com/trane-ml/trane/dense"
//	    "github.com/trane-ml/trane/tt"
//	)
//
//	func main() {
//	    full := dense.Arange(0, 128, dense.CPU).MustReshape(dense.Shape{8, 4, 4})
//	    x, err := tt.FromDense(full, tt.Options{Eps: 1e-10})
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    y := x.MulScalar(2)
//	    z, _ := x.Add(y)
//	    z, _ = z.Round(1e-10)
//	}
//
// # Accuracy and Ranks
//
// Decomposition, rounding and reshaping take a relative accuracy eps: the
// result satisfies ||T - T'|| <= eps * ||T|| in the Frobenius norm while the
// TT-ranks adapt to the requested accuracy. Rank caps are available through
// Options.
//
// # Operators
//
// A TT matrix stores one row and one column mode per core and acts on TT
// tensors via MatVec, on TT matrices via MatMul, and on dense arrays via
// ApplyDense. FastMatVec computes the product directly at low rank with DMRG
// sweeps when the exact Kronecker ranks would be too expensive.
package tt
