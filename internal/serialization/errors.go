package serialization

import "errors"

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrMalformedTrain     = errors.New("malformed train layout")
)
