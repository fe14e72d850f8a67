package tt

import (
	"math"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// Eye constructs the TT decomposition of a multidimensional identity
// operator. All TT-ranks are 1.
func Eye(shape []int, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "identity needs at least one mode")
	}
	cores := make([]*dense.Dense, len(shape))
	for i, s := range shape {
		if s < 1 {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d has size %d", i, s)
		}
		cores[i] = dense.Eye(s, device).MustReshape(dense.Shape{1, s, s, 1})
	}
	return FromCores(cores)
}

// Zeros constructs a rank-1 all-zero TT tensor.
func Zeros(shape []int, device dense.Device) (*Tensor, error) {
	return constant(shape, 0, device)
}

// Ones constructs a rank-1 all-one TT tensor.
func Ones(shape []int, device dense.Device) (*Tensor, error) {
	return constant(shape, 1, device)
}

func constant(shape []int, value float64, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return Empty(), nil
	}
	cores := make([]*dense.Dense, len(shape))
	for i, s := range shape {
		if s < 1 {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d has size %d", i, s)
		}
		v := value
		if i > 0 {
			v = 1
		}
		cores[i] = dense.Full(dense.Shape{1, s, 1}, v, device)
	}
	return FromCores(cores)
}

// ZerosMatrix constructs a rank-1 all-zero TT matrix from (row, col) pairs.
func ZerosMatrix(shape [][2]int, device dense.Device) (*Tensor, error) {
	return constantMatrix(shape, 0, device)
}

// OnesMatrix constructs a rank-1 all-one TT matrix from (row, col) pairs.
func OnesMatrix(shape [][2]int, device dense.Device) (*Tensor, error) {
	return constantMatrix(shape, 1, device)
}

func constantMatrix(shape [][2]int, value float64, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return Empty(), nil
	}
	cores := make([]*dense.Dense, len(shape))
	for i, p := range shape {
		if p[0] < 1 || p[1] < 1 {
			return nil, errors.Wrapf(ErrInvalidArguments, "mode %d has size %dx%d", i, p[0], p[1])
		}
		v := value
		if i > 0 {
			v = 1
		}
		cores[i] = dense.Full(dense.Shape{1, p[0], p[1], 1}, v, device)
	}
	return FromCores(cores)
}

// uniformRanks expands a scalar rank into a valid rank sequence [1,r,...,r,1].
func uniformRanks(d, rank int) []int {
	r := make([]int, d+1)
	r[0], r[d] = 1, 1
	for i := 1; i < d; i++ {
		r[i] = rank
	}
	return r
}

func checkRanks(d int, r []int) error {
	if len(r) != d+1 || r[0] != 1 || r[d] != 1 {
		return errors.Wrapf(ErrInvalidArguments,
			"rank sequence %v does not fit %d modes (need length %d with boundary ranks 1)", r, d, d+1)
	}
	for i, rr := range r {
		if rr < 1 {
			return errors.Wrapf(ErrInvalidArguments, "rank at boundary %d must be at least 1, got %d", i, rr)
		}
	}
	return nil
}

// Random constructs a TT tensor with normally distributed cores at a uniform
// target rank.
func Random(shape []int, rank int, device dense.Device) (*Tensor, error) {
	return RandomRanks(shape, uniformRanks(len(shape), rank), device)
}

// RandomRanks constructs a TT tensor with normally distributed cores at the
// exact given rank sequence.
func RandomRanks(shape []int, ranks []int, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "random tensor needs at least one mode")
	}
	if err := checkRanks(len(shape), ranks); err != nil {
		return nil, err
	}
	cores := make([]*dense.Dense, len(shape))
	for i, s := range shape {
		cores[i] = dense.Randn(dense.Shape{ranks[i], s, ranks[i+1]}, device)
	}
	return FromCores(cores)
}

// RandomMatrix constructs a TT matrix with normally distributed cores at a
// uniform target rank.
func RandomMatrix(shape [][2]int, rank int, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "random matrix needs at least one mode")
	}
	ranks := uniformRanks(len(shape), rank)
	cores := make([]*dense.Dense, len(shape))
	for i, p := range shape {
		cores[i] = dense.Randn(dense.Shape{ranks[i], p[0], p[1], ranks[i+1]}, device)
	}
	return FromCores(cores)
}

// Randn constructs a TT tensor whose dense entries are approximately normal
// with the given variance: each core is scaled so the per-core variances
// multiply to variance/prod(R).
func Randn(shape []int, ranks []int, variance float64, device dense.Device) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "random tensor needs at least one mode")
	}
	if err := checkRanks(len(shape), ranks); err != nil {
		return nil, err
	}
	if variance <= 0 {
		return nil, errors.Wrapf(ErrInvalidArguments, "variance must be positive, got %g", variance)
	}

	d := len(shape)
	prodR := 1.0
	for _, r := range ranks {
		prodR *= float64(r)
	}
	v := math.Pow(variance/prodR, 1/float64(d))

	cores := make([]*dense.Dense, d)
	for i, s := range shape {
		cores[i] = dense.Randn(dense.Shape{ranks[i], s, ranks[i+1]}, device).Scale(math.Sqrt(v))
	}
	return FromCores(cores)
}

// Rank1 constructs the rank-1 TT tensor that is the outer product of the
// given vectors.
func Rank1(vectors []*dense.Dense) (*Tensor, error) {
	if len(vectors) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "rank-1 tensor needs at least one vector")
	}
	cores := make([]*dense.Dense, len(vectors))
	for i, v := range vectors {
		if len(v.Shape()) != 1 {
			return nil, errors.Wrapf(ErrInvalidArguments, "vector %d has shape %v, expected 1D", i, v.Shape())
		}
		cores[i] = v.MustReshape(dense.Shape{1, v.Shape()[0], 1})
	}
	return FromCores(cores)
}

// Meshgrid constructs grid tensors from coordinate vectors: result i has the
// full grid shape N1 x ... x Nd and varies only along mode i, where it takes
// the values of vectors[i].
func Meshgrid(vectors []*dense.Dense) ([]*Tensor, error) {
	if len(vectors) == 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "meshgrid needs at least one vector")
	}
	sizes := make([]int, len(vectors))
	for i, v := range vectors {
		if len(v.Shape()) != 1 {
			return nil, errors.Wrapf(ErrInvalidArguments, "vector %d has shape %v, expected 1D", i, v.Shape())
		}
		sizes[i] = v.Shape()[0]
	}

	out := make([]*Tensor, len(vectors))
	for i := range vectors {
		cores := make([]*dense.Dense, len(vectors))
		for j, v := range vectors {
			if j == i {
				cores[j] = v.MustReshape(dense.Shape{1, sizes[j], 1})
			} else {
				cores[j] = dense.Ones(dense.Shape{1, sizes[j], 1}, v.Device())
			}
		}
		grid, err := FromCores(cores)
		if err != nil {
			return nil, err
		}
		out[i] = grid
	}
	return out, nil
}
