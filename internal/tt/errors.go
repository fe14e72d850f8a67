package tt

import "github.com/pkg/errors"

// Error kinds reported by the package. Call sites wrap these with the
// violated shape or rank relationship; match with errors.Is.
var (
	// ErrRankMismatch indicates adjacent core ranks disagree at construction.
	ErrRankMismatch = errors.New("rank mismatch")

	// ErrInvalidArguments indicates malformed shape, rank or index arguments,
	// or an unsupported operand.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrShapeMismatch indicates operand mode sizes disagree for an operation
	// that requires equality, or a reshape changes the element count.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIncompatibleTypes indicates a tensor and a matrix train were mixed
	// where the operation requires the same kind.
	ErrIncompatibleTypes = errors.New("incompatible types")
)
