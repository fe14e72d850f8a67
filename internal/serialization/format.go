package serialization

import "time"

// Format constants.
const (
	MagicBytes      = "TTRN"
	FormatVersion   = 1
	HeaderAlignment = 64 // Core data starts on a 64-byte boundary.
	MaxHeaderSize   = 16 << 20
)

// Train kinds stored in the header.
const (
	KindTensor = "tensor"
	KindMatrix = "matrix"
)

// Flags for the .tt format.
const (
	FlagHasChecksum uint32 = 1 << 0 // bit 0: header carries a data checksum
)

// Header is the JSON header of a .tt file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	TraneVersion  string            `json:"trane_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Kind          string            `json:"kind"`                // "tensor" or "matrix"
	RowModes      []int             `json:"row_modes,omitempty"` // Matrix row mode sizes.
	Modes         []int             `json:"modes"`               // Mode sizes; column sizes for matrices.
	Ranks         []int             `json:"ranks"`               // Boundary ranks, length len(Modes)+1.
	Cores         []CoreMeta        `json:"cores"`               // Per-core layout in chain order.
	Checksum      string            `json:"checksum,omitempty"`  // Hex SHA-256 of the data section.
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CoreMeta describes one core in the data section.
type CoreMeta struct {
	Shape  []int `json:"shape"`  // (R, N, R') or (R, M, N, R').
	Offset int64 `json:"offset"` // Bytes from the start of the data section.
	Size   int64 `json:"size"`   // Bytes.
}
