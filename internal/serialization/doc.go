// Package serialization implements the .tt binary file format for tensor
// trains.
//
// A .tt file holds a magic tag, a format version, a JSON header describing
// the train (kind, mode sizes, ranks, per-core layout) and an aligned data
// section with the raw core entries as little-endian float64. The header
// carries a SHA-256 checksum of the data section so corrupted files are
// rejected on load.
package serialization
