package tt

import (
	"math"

	"github.com/pkg/errors"
)

// NormMethod selects how the Frobenius norm is evaluated.
type NormMethod int

const (
	// NormOrthogonal evaluates the norm by a left orthogonalization sweep
	// and reading it off the final core. Numerically the most stable choice.
	NormOrthogonal NormMethod = iota

	// NormBilinear evaluates the squared norm as the bilinear contraction
	// <T, T>. Required whenever the computation must stay expressible as a
	// chain of plain multiplications (for example when the caller
	// differentiates through it); less stable for tiny norms.
	NormBilinear
)

// Norm computes the Frobenius norm of the train using the given method.
func (t *Tensor) Norm(method NormMethod) (float64, error) {
	if t.IsEmpty() {
		return 0, errors.Wrap(ErrInvalidArguments, "norm of an empty tensor")
	}
	switch method {
	case NormOrthogonal:
		cores, err := leftOrthogonalCores(t.cores)
		if err != nil {
			return 0, err
		}
		return cores[len(cores)-1].Norm(), nil
	case NormBilinear:
		v := bilinearChain(t.cores, t.cores)
		return math.Sqrt(math.Abs(v.Data()[0])), nil
	default:
		return 0, errors.Wrapf(ErrInvalidArguments, "unknown norm method %d", method)
	}
}

// NormSquared computes the squared Frobenius norm via bilinear contraction.
func (t *Tensor) NormSquared() (float64, error) {
	if t.IsEmpty() {
		return 0, errors.Wrap(ErrInvalidArguments, "norm of an empty tensor")
	}
	v := bilinearChain(t.cores, t.cores)
	return v.Data()[0], nil
}
