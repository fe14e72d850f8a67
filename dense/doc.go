// Copyright 2025 The Trane Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dense provides the dense multidimensional arrays that back the
// tensor-train algebra in Trane.
//
// # Overview
//
// A Dense holds float64 entries in row-major order together with a shape and
// a device tag. It is the exchange format at the boundary of the tt package:
// full tensors go in through decomposition and come out through
// reconstruction.
//
// # Basic Usage
//
//	import "github.com/trane-ml/trane/dense"
//
//	func main() {
//	    x := dense.Arange(0, 24, dense.CPU).MustReshape(dense.Shape{2, 3, 4})
//	    y := x.Clone()
//	    _ = x.Norm()
//	    _ = y
//	}
//
// # Device Support
//
// CPU is the only device in this release; the Device tag keeps call sites
// stable for accelerated backends.
package dense
