package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/trane-ml/trane/internal/dense"
)

// ReadTrain reads a .tt file back into its header and core chain.
func ReadTrain(path string) (Header, []*dense.Dense, error) {
	var header Header

	file, err := os.Open(path)
	if err != nil {
		return header, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return header, nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return header, nil, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	var version, flags uint32
	if err := binary.Read(file, binary.LittleEndian, &version); err != nil {
		return header, nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != FormatVersion {
		return header, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err := binary.Read(file, binary.LittleEndian, &flags); err != nil {
		return header, nil, fmt.Errorf("failed to read flags: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return header, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return header, nil, ErrHeaderTooLarge
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerJSON); err != nil {
		return header, nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return header, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	pos := int64(4+4+4+8) + int64(headerSize)
	if padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment; padding > 0 {
		if _, err := io.CopyN(io.Discard, file, padding); err != nil {
			return header, nil, fmt.Errorf("failed to skip padding: %w", err)
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return header, nil, fmt.Errorf("failed to read core data: %w", err)
	}
	if flags&FlagHasChecksum != 0 {
		if err := ValidateChecksum(ComputeChecksum(data), header.Checksum); err != nil {
			return header, nil, err
		}
	}

	cores := make([]*dense.Dense, len(header.Cores))
	for i, meta := range header.Cores {
		if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return header, nil, fmt.Errorf("%w: core %d extends beyond data section", ErrMalformedTrain, i)
		}
		shape := dense.Shape(meta.Shape)
		if int64(shape.NumElements()*8) != meta.Size {
			return header, nil, fmt.Errorf("%w: core %d shape %v does not match its size", ErrMalformedTrain, i, meta.Shape)
		}
		values := make([]float64, shape.NumElements())
		raw := data[meta.Offset : meta.Offset+meta.Size]
		for j := range values {
			values[j] = math.Float64frombits(binary.LittleEndian.Uint64(raw[j*8:]))
		}
		core, err := dense.FromSlice(values, shape, dense.CPU)
		if err != nil {
			return header, nil, fmt.Errorf("failed to rebuild core %d: %w", i, err)
		}
		cores[i] = core
	}
	return header, cores, nil
}
