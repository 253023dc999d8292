package snapshot

import (
	"fmt"
	"sort"
)

// ValidateVectors checks the vector table against a data section of
// dataSize bytes: no negative or misaligned regions, nothing past the end,
// no overlaps and no duplicate names.
func ValidateVectors(vectors []VectorMeta, dataSize int64) error {
	if len(vectors) > MaxVectorCount {
		return &ValidationError{
			Type:    "too_many_vectors",
			Details: fmt.Sprintf("got %d, max %d", len(vectors), MaxVectorCount),
		}
	}

	seen := make(map[string]bool, len(vectors))
	sorted := make([]VectorMeta, len(vectors))
	copy(sorted, vectors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, v := range sorted {
		if seen[v.Name] {
			return &ValidationError{Type: "duplicate_name", Vector: v.Name, Details: "name appears twice"}
		}
		seen[v.Name] = true

		if v.Offset < 0 || v.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Vector:  v.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", v.Offset, v.Size),
			}
		}
		if v.Offset%8 != 0 || v.Size%8 != 0 {
			return &ValidationError{
				Type:    "misaligned",
				Vector:  v.Name,
				Details: fmt.Sprintf("offset=%d, size=%d are not multiples of 8", v.Offset, v.Size),
			}
		}
		if v.Offset+v.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Vector:  v.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", v.Offset, v.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if v.Offset+v.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Vector:  v.Name,
					Vector2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						v.Offset, v.Offset+v.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}
