package tt

import (
	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/serialization"
)

// Save writes the train to path in the .tt format.
func (t *Tensor) Save(path string) error {
	if t.IsEmpty() {
		return errors.Wrap(ErrInvalidArguments, "cannot save an empty tensor")
	}
	header := serialization.Header{
		Kind:  serialization.KindTensor,
		Modes: t.ModeSizes(),
		Ranks: t.Ranks(),
	}
	if t.isMatrix {
		header.Kind = serialization.KindMatrix
		header.RowModes = t.RowModeSizes()
	}
	return serialization.WriteTrain(path, header, t.cores)
}

// Load reads a train saved with Save. The core chain is revalidated, so a
// tampered header cannot smuggle in an inconsistent train.
func Load(path string) (*Tensor, error) {
	header, cores, err := serialization.ReadTrain(path)
	if err != nil {
		return nil, err
	}
	t, err := FromCores(cores)
	if err != nil {
		return nil, err
	}
	switch header.Kind {
	case serialization.KindTensor:
		if t.isMatrix {
			return nil, errors.Wrapf(ErrIncompatibleTypes, "%s holds matrix cores but declares kind %q", path, header.Kind)
		}
	case serialization.KindMatrix:
		if !t.isMatrix {
			return nil, errors.Wrapf(ErrIncompatibleTypes, "%s holds tensor cores but declares kind %q", path, header.Kind)
		}
		if !sameModes(header.RowModes, t.m) {
			return nil, errors.Wrapf(ErrShapeMismatch, "%s declares row modes %v, cores give %v", path, header.RowModes, t.m)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidArguments, "unknown train kind %q", header.Kind)
	}
	if !sameModes(header.Modes, t.n) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s declares modes %v, cores give %v", path, header.Modes, t.n)
	}
	return t, nil
}
