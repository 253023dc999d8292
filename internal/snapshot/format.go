// Package snapshot persists optimisation state so a reconstruction can be
// inspected or resumed.
//
// File layout (all integers little-endian):
//
//	0x00  magic "IRSN"
//	0x04  format version (uint32)
//	0x08  flags (uint32)
//	0x0C  header size (uint64)
//	0x14  SHA-256 of the data section (32 bytes)
//	0x34  JSON header
//	      zero padding to a 64-byte boundary
//	      data section: float64 vectors back to back
package snapshot

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Format constants.
const (
	MagicBytes      = "IRSN"
	FormatVersion   = 1
	HeaderAlignment = 64
	ChecksumSize    = sha256.Size
	fixedHeaderSize = 4 + 4 + 4 + 8 + ChecksumSize

	MaxHeaderSize  = 16 * 1024 * 1024
	MaxVectorCount = 1024
)

// Flags describing what a snapshot carries.
const (
	FlagHasGrid      uint32 = 1 << 0
	FlagHasOptimizer uint32 = 1 << 1
)

// OptimizerPrefix marks vectors holding optimizer state.
const OptimizerPrefix = "optim."

// Header is the JSON header of a snapshot file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Level         int               `json:"level"`     // resolution level of the grid
	Iteration     int               `json:"iteration"` // iterations completed at this level
	Energy        float64           `json:"energy"`
	GradNorm      float64           `json:"grad_norm"`
	Grid          *GridMeta         `json:"grid,omitempty"`
	Vectors       []VectorMeta      `json:"vectors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// GridMeta records the grid geometry the status vector belongs to.
type GridMeta struct {
	Resolution [3]int     `json:"resolution"`
	Min        [3]float64 `json:"min"`
	Max        [3]float64 `json:"max"`
}

// VectorMeta locates a vector in the data section. Offset and Size are in bytes.
type VectorMeta struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// Len returns the number of float64 entries.
func (m VectorMeta) Len() int { return int(m.Size / 8) }

// Snapshot is the in-memory form of a snapshot file.
type Snapshot struct {
	Header
	Vectors map[string][]float64
}

// Vector returns the named vector, checking its length when want >= 0.
func (s *Snapshot) Vector(name string, want int) ([]float64, error) {
	v, ok := s.Vectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingVector, name)
	}
	if want >= 0 && len(v) != want {
		return nil, fmt.Errorf("%w: %q has %d entries, want %d", ErrDimensionMismatch, name, len(v), want)
	}
	return v, nil
}

// OptimizerState returns the optimizer vectors with the prefix stripped.
func (s *Snapshot) OptimizerState() map[string][]float64 {
	state := make(map[string][]float64)
	for name, v := range s.Vectors {
		if key, ok := strings.CutPrefix(name, OptimizerPrefix); ok {
			state[key] = v
		}
	}
	return state
}

// SetOptimizerState stores optimizer vectors under OptimizerPrefix.
func (s *Snapshot) SetOptimizerState(state map[string][]float64) {
	if s.Vectors == nil {
		s.Vectors = make(map[string][]float64)
	}
	for name, v := range state {
		s.Vectors[OptimizerPrefix+name] = v
	}
}

// ComputeChecksum computes the SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum returns ErrChecksumMismatch unless the checksums match.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
