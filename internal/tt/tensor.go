package tt

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// Tensor is a tensor in the Tensor-Train (TT) format: an ordered chain of
// rank-3 cores (tensor case) or rank-4 cores (matrix/operator case) linked by
// rank indices.
//
// Core i of a TT tensor has shape (R[i], N[i], R[i+1]); core i of a TT matrix
// has shape (R[i], M[i], N[i], R[i+1]). The boundary ranks R[0] and R[d] are
// always 1.
//
// A Tensor exclusively owns its cores: every producing operation returns
// freshly allocated cores, never views shared with an input. All public
// operations return new Tensors; the only in-place mutation is ReduceDims,
// which rewrites the receiver and re-validates before returning.
type Tensor struct {
	cores    []*dense.Dense
	n        []int // mode sizes (column modes for the matrix case)
	m        []int // row mode sizes, non-nil only for the matrix case
	r        []int // TT-ranks, length d+1
	isMatrix bool
}

// Empty returns the empty-tensor sentinel (a chain of zero cores).
// Algebraic operations on an empty tensor fail with ErrInvalidArguments.
func Empty() *Tensor {
	return &Tensor{cores: nil, n: nil, m: nil, r: []int{1, 1}}
}

// FromCores builds a Tensor from a list of cores, validating the chain.
//
// Validation order: every core's leading dimension must match the running
// rank, every core must be rank 3 or rank 4 (mixing the two is an error), and
// the resulting rank sequence must start and end at 1.
func FromCores(cores []*dense.Dense) (*Tensor, error) {
	if len(cores) == 0 {
		return Empty(), nil
	}

	d := len(cores)
	n := make([]int, 0, d)
	m := make([]int, 0, d)
	r := make([]int, 0, d+1)
	r = append(r, cores[0].Shape()[0])
	device := cores[0].Device()

	for i, c := range cores {
		s := c.Shape()
		if s[0] != r[len(r)-1] {
			return nil, errors.Wrapf(ErrRankMismatch,
				"core %d has leading rank %d, expected %d", i, s[0], r[len(r)-1])
		}
		switch len(s) {
		case 3:
			r = append(r, s[2])
			n = append(n, s[1])
		case 4:
			r = append(r, s[3])
			m = append(m, s[1])
			n = append(n, s[2])
		default:
			return nil, errors.Wrapf(ErrInvalidArguments,
				"core %d has %d dimensions, TT cores have to be either 3d or 4d", i, len(s))
		}
		if c.Device() != device {
			return nil, errors.Wrapf(ErrInvalidArguments,
				"core %d lives on %s, core 0 on %s", i, c.Device(), device)
		}
	}

	if len(m) != 0 && len(m) != len(n) {
		return nil, errors.Wrap(ErrInvalidArguments,
			"cannot mix 3d and 4d cores in one train")
	}
	if r[0] != 1 || r[len(r)-1] != 1 {
		return nil, errors.Wrapf(ErrInvalidArguments,
			"boundary ranks must be 1, got R[0]=%d, R[d]=%d", r[0], r[len(r)-1])
	}

	t := &Tensor{cores: cores, n: n, r: r}
	if len(m) == len(n) && len(m) > 0 {
		t.m = m
		t.isMatrix = true
	}
	return t, nil
}

// Dims returns the number of modes d.
func (t *Tensor) Dims() int {
	return len(t.cores)
}

// IsEmpty reports whether t is the empty-tensor sentinel.
func (t *Tensor) IsEmpty() bool {
	return len(t.cores) == 0
}

// IsMatrix reports whether t is a TT matrix (operator).
func (t *Tensor) IsMatrix() bool {
	return t.isMatrix
}

// ModeSizes returns a copy of the mode sizes N (column modes for a matrix).
func (t *Tensor) ModeSizes() []int {
	return append([]int(nil), t.n...)
}

// RowModeSizes returns a copy of the row mode sizes M. Nil for a TT tensor.
func (t *Tensor) RowModeSizes() []int {
	if !t.isMatrix {
		return nil
	}
	return append([]int(nil), t.m...)
}

// Ranks returns a copy of the TT-rank sequence R (length d+1).
func (t *Tensor) Ranks() []int {
	return append([]int(nil), t.r...)
}

// Core returns core i. The returned array is owned by the Tensor and must
// not be modified.
func (t *Tensor) Core(i int) *dense.Dense {
	return t.cores[i]
}

// Device returns the placement shared by all cores.
func (t *Tensor) Device() dense.Device {
	if len(t.cores) == 0 {
		return dense.CPU
	}
	return t.cores[0].Device()
}

// Numel returns the number of entries stored across all cores.
func (t *Tensor) Numel() int {
	total := 0
	for _, c := range t.cores {
		total += c.NumElements()
	}
	return total
}

// Clone returns a deep copy of the Tensor.
func (t *Tensor) Clone() *Tensor {
	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		cores[i] = c.Clone()
	}
	return &Tensor{
		cores:    cores,
		n:        append([]int(nil), t.n...),
		m:        append([]int(nil), t.m...),
		r:        append([]int(nil), t.r...),
		isMatrix: t.isMatrix,
	}
}

// To returns a copy of the Tensor with every core reconstructed on the given
// device. Placement transfer always copies, never aliases.
func (t *Tensor) To(device dense.Device) *Tensor {
	out := t.Clone()
	for i, c := range out.cores {
		out.cores[i] = c.To(device)
	}
	return out
}

// Full contracts the chain and returns the dense tensor.
// For a TT matrix the result has shape M1 x ... x Md x N1 x ... x Nd.
func (t *Tensor) Full() (*dense.Dense, error) {
	if t.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidArguments, "cannot densify an empty tensor")
	}
	d := len(t.cores)

	// Sweep left to right, absorbing one core at a time:
	// (P, R[i]) x (R[i], modes*R[i+1]) -> (P*modes, R[i+1]).
	cur := t.cores[0].MustReshape(dense.Shape{modeVolume(t.cores[0]), t.r[1]})
	for i := 1; i < d; i++ {
		c := t.cores[i]
		rhs := c.MustReshape(dense.Shape{t.r[i], modeVolume(c) * t.r[i+1]})
		prod, err := dense.MatMul(cur, rhs)
		if err != nil {
			return nil, err
		}
		cur = prod.MustReshape(dense.Shape{prod.NumElements() / t.r[i+1], t.r[i+1]})
	}

	if !t.isMatrix {
		return cur.Reshape(dense.Shape(t.n))
	}

	// Matrix case: currently laid out as (M1,N1,M2,N2,...); interleave out.
	interleaved := make(dense.Shape, 0, 2*d)
	for i := 0; i < d; i++ {
		interleaved = append(interleaved, t.m[i], t.n[i])
	}
	cur, err := cur.Reshape(interleaved)
	if err != nil {
		return nil, err
	}
	perm := make([]int, 0, 2*d)
	for i := 0; i < d; i++ {
		perm = append(perm, 2*i)
	}
	for i := 0; i < d; i++ {
		perm = append(perm, 2*i+1)
	}
	return cur.Permute(perm...)
}

// Item returns the single entry of a tensor whose modes are all of size 1.
func (t *Tensor) Item() (float64, error) {
	if t.IsEmpty() {
		return 0, errors.Wrap(ErrInvalidArguments, "empty tensor has no entries")
	}
	full, err := t.Full()
	if err != nil {
		return 0, err
	}
	if full.NumElements() != 1 {
		return 0, errors.Wrapf(ErrInvalidArguments,
			"Item needs a single-entry tensor, shape is %v", full.Shape())
	}
	return full.Data()[0], nil
}

// ToMatrix lifts a TT tensor of shape N1 x ... x Nd to a TT matrix of shape
// N1 x ... x Nd x 1 x ... x 1.
func (t *Tensor) ToMatrix() (*Tensor, error) {
	if t.isMatrix {
		return nil, errors.Wrap(ErrIncompatibleTypes, "already a TT matrix")
	}
	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		s := c.Shape()
		cores[i] = c.MustReshape(dense.Shape{s[0], s[1], 1, s[2]})
	}
	return FromCores(cores)
}

// String returns a human-readable summary: mode sizes, ranks, placement and
// the storage-compression ratio (stored entries over full entry count).
func (t *Tensor) String() string {
	var b strings.Builder
	if t.IsEmpty() {
		return "TT tensor (empty)"
	}
	if t.isMatrix {
		fmt.Fprintf(&b, "TT matrix with sizes and ranks:\n")
		fmt.Fprintf(&b, "M = %v\n", t.m)
	} else {
		fmt.Fprintf(&b, "TT tensor with sizes and ranks:\n")
	}
	fmt.Fprintf(&b, "N = %v\n", t.n)
	fmt.Fprintf(&b, "R = %v\n", t.r)
	fmt.Fprintf(&b, "Device: %s, dtype: float64\n", t.Device())

	fullEntries := 1.0
	for i := range t.n {
		fullEntries *= float64(t.n[i])
		if t.isMatrix {
			fullEntries *= float64(t.m[i])
		}
	}
	entries := t.Numel()
	fmt.Fprintf(&b, "#entries %d compression %g\n", entries, float64(entries)/fullEntries)
	return b.String()
}

// modeVolume returns the product of a core's physical mode sizes.
func modeVolume(c *dense.Dense) int {
	s := c.Shape()
	vol := 1
	for _, dim := range s[1 : len(s)-1] {
		vol *= dim
	}
	return vol
}

// sameModes reports whether two int sequences are identical.
func sameModes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
