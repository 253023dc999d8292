package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// Decode reads a snapshot from r, validating the vector table and the
// data checksum.
func Decode(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(fixed[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[12:20])
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	var stored [32]byte
	copy(stored[:], fixed[20:])

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(br, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pad := padding(int64(fixedHeaderSize) + int64(headerSize))
	if _, err := br.Discard(int(pad)); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", err)
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, err
	}
	if err := ValidateVectors(header.Vectors, int64(len(data))); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	s := &Snapshot{Header: header, Vectors: make(map[string][]float64, len(header.Vectors))}
	for _, m := range header.Vectors {
		v := make([]float64, m.Len())
		for i := range v {
			off := m.Offset + int64(8*i)
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
		}
		s.Vectors[m.Name] = v
	}
	return s, nil
}

// Read loads the snapshot stored at path.
func Read(path string) (*Snapshot, error) {
	//nolint:gosec // G304: snapshot path comes from the user's configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
