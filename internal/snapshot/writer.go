package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Encode writes s to w. Vectors are stored in name order.
func Encode(w io.Writer, s *Snapshot) error {
	names := slices.Sorted(maps.Keys(s.Vectors))
	if len(names) > MaxVectorCount {
		return &ValidationError{
			Type:    "too_many_vectors",
			Details: fmt.Sprintf("got %d, max %d", len(names), MaxVectorCount),
		}
	}

	header := s.Header
	header.FormatVersion = FormatVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	var data []byte
	header.Vectors = make([]VectorMeta, 0, len(names))
	for _, name := range names {
		v := s.Vectors[name]
		header.Vectors = append(header.Vectors, VectorMeta{
			Name:   name,
			Offset: int64(len(data)),
			Size:   int64(8 * len(v)),
		})
		for _, x := range v {
			data = binary.LittleEndian.AppendUint64(data, math.Float64bits(x))
		}
	}

	flags := uint32(0)
	if header.Grid != nil {
		flags |= FlagHasGrid
	}
	if len(s.OptimizerState()) > 0 {
		flags |= FlagHasOptimizer
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	fixed := []any{uint32(FormatVersion), flags, uint64(len(headerJSON)), ComputeChecksum(data)}
	for _, field := range fixed {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("failed to write fixed header: %w", err)
		}
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	pad := padding(int64(fixedHeaderSize + len(headerJSON)))
	if _, err := bw.Write(make([]byte, pad)); err != nil {
		return fmt.Errorf("failed to write padding: %w", err)
	}
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return bw.Flush()
}

// Write stores s at path, creating parent directories. The file is written
// to a temporary name first and renamed, so readers never see a partial
// snapshot.
func Write(path string, s *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op after a successful rename

	if err := Encode(tmp, s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}
