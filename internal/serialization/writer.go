package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/trane-ml/trane/internal/dense"
)

const traneVersion = "0.1.0"

// WriteTrain writes a core chain to path in the .tt format. The header's
// Kind, Modes, RowModes and Ranks fields must be filled by the caller;
// layout, versioning and the checksum are filled here.
func WriteTrain(path string, header Header, cores []*dense.Dense) error {
	if len(cores) == 0 {
		return fmt.Errorf("%w: no cores", ErrMalformedTrain)
	}

	header.FormatVersion = FormatVersion
	header.TraneVersion = traneVersion
	header.CreatedAt = time.Now().UTC()

	// Assemble the data section up front so the checksum can live in the
	// header. Trains are small by construction.
	var data bytes.Buffer
	header.Cores = make([]CoreMeta, 0, len(cores))
	for i, c := range cores {
		size := int64(c.NumElements() * 8)
		header.Cores = append(header.Cores, CoreMeta{
			Shape:  []int(c.Shape()),
			Offset: int64(data.Len()),
			Size:   size,
		})
		buf := make([]byte, size)
		for j, v := range c.Data() {
			binary.LittleEndian.PutUint64(buf[j*8:], math.Float64bits(v))
		}
		if _, err := data.Write(buf); err != nil {
			return fmt.Errorf("failed to buffer core %d: %w", i, err)
		}
	}
	header.Checksum = ComputeChecksum(data.Bytes())

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, FlagHasChecksum); err != nil {
		return fmt.Errorf("failed to write flags: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	pos := int64(4+4+4+8) + int64(len(headerJSON))
	if padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment; padding > 0 {
		if _, err := file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := file.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write core data: %w", err)
	}
	return file.Sync()
}
