// Package dist reads and writes compiled program artifacts.
//
// An artifact is a fixed header ("EMBC" magic plus a format version byte)
// followed by the canonical CBOR encoding of the program. Canonical
// encoding makes artifacts byte-deterministic: compiling the same program
// twice produces the same file, so artifacts can be content-addressed and
// diffed.
package dist

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/emberlang/ember/lang"
)

// Magic identifies a compiled Ember artifact.
var Magic = [4]byte{'E', 'M', 'B', 'C'}

// Version is the current artifact format version.
const Version byte = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a program to artifact bytes.
func MarshalProgram(prog *lang.Program) ([]byte, error) {
	payload, err := cborEncMode.Marshal(prog)
	if err != nil {
		return nil, fmt.Errorf("dist: marshal program: %w", err)
	}
	out := make([]byte, 0, len(Magic)+1+len(payload))
	out = append(out, Magic[:]...)
	out = append(out, Version)
	out = append(out, payload...)
	return out, nil
}

// UnmarshalProgram deserializes a program from artifact bytes, validating
// the header first.
func UnmarshalProgram(data []byte) (*lang.Program, error) {
	if len(data) < len(Magic)+1 {
		return nil, fmt.Errorf("dist: artifact too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, fmt.Errorf("dist: bad magic %q", data[:len(Magic)])
	}
	if v := data[len(Magic)]; v != Version {
		return nil, fmt.Errorf("dist: unsupported artifact version %d (want %d)", v, Version)
	}
	var prog lang.Program
	if err := cbor.Unmarshal(data[len(Magic)+1:], &prog); err != nil {
		return nil, fmt.Errorf("dist: unmarshal program: %w", err)
	}
	return &prog, nil
}

// WriteFile writes a program artifact to path.
func WriteFile(path string, prog *lang.Program) error {
	data, err := MarshalProgram(prog)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("dist: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a program artifact from path.
func ReadFile(path string) (*lang.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dist: read %s: %w", path, err)
	}
	return UnmarshalProgram(data)
}
