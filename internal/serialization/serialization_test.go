package serialization

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/trane-ml/trane/internal/dense"
)

func writeSample(t *testing.T) (string, []*dense.Dense) {
	t.Helper()
	cores := []*dense.Dense{
		dense.Arange(0, 6, dense.CPU).MustReshape(dense.Shape{1, 3, 2}),
		dense.Arange(0, 8, dense.CPU).MustReshape(dense.Shape{2, 4, 1}),
	}
	path := filepath.Join(t.TempDir(), "sample.tt")
	header := Header{
		Kind:  KindTensor,
		Modes: []int{3, 4},
		Ranks: []int{1, 2, 1},
	}
	if err := WriteTrain(path, header, cores); err != nil {
		t.Fatalf("WriteTrain: %v", err)
	}
	return path, cores
}

func TestRoundTrip(t *testing.T) {
	path, cores := writeSample(t)

	header, got, err := ReadTrain(path)
	if err != nil {
		t.Fatalf("ReadTrain: %v", err)
	}
	if header.Kind != KindTensor {
		t.Errorf("kind = %q, want %q", header.Kind, KindTensor)
	}
	if header.FormatVersion != FormatVersion {
		t.Errorf("format version = %d, want %d", header.FormatVersion, FormatVersion)
	}
	if len(got) != len(cores) {
		t.Fatalf("got %d cores, want %d", len(got), len(cores))
	}
	for i := range cores {
		if !got[i].Shape().Equal(cores[i].Shape()) {
			t.Errorf("core %d shape = %v, want %v", i, got[i].Shape(), cores[i].Shape())
		}
		diff, err := got[i].MaxAbsDiff(cores[i])
		if err != nil || diff != 0 {
			t.Errorf("core %d differs by %v (err %v)", i, diff, err)
		}
	}
}

func TestRejectsEmptyChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tt")
	err := WriteTrain(path, Header{Kind: KindTensor}, nil)
	if !errors.Is(err, ErrMalformedTrain) {
		t.Fatalf("err = %v, want ErrMalformedTrain", err)
	}
}

func TestDetectsCorruption(t *testing.T) {
	path, _ := writeSample(t)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF // flip a bit in the data section
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err = ReadTrain(path)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tt")
	if err := os.WriteFile(path, []byte("NOPExxxxxxxxxxxxxxxx"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := ReadTrain(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestChecksum(t *testing.T) {
	a := ComputeChecksum([]byte("abc"))
	b := ComputeChecksum([]byte("abd"))
	if a == b {
		t.Fatal("distinct payloads hashed equal")
	}
	if err := ValidateChecksum(a, a); err != nil {
		t.Errorf("matching checksums rejected: %v", err)
	}
	if err := ValidateChecksum(a, b); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("err = %v, want ErrChecksumMismatch", err)
	}
}
