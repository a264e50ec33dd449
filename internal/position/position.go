// Package position computes the deterministic, key-dependent permutation of
// embedding positions described in spec.md §4.4.
package position

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/deepshield/imagewatermark/internal/position/mt19937"
	"github.com/deepshield/imagewatermark/internal/wmerrors"
)

// SchemaVersion travels alongside a ground-truth matrix so embedding and
// verifying parties agree on which PRNG produced the permutation (spec.md
// §9: "Any implementation must either match this [reference] sequence or
// be accompanied by a schema version field"). This port's MT19937 stream is
// not claimed bit-identical to NumPy's legacy RandomState — see DESIGN.md.
const SchemaVersion = 1

// Generate returns a permutation p of the integers [2, length+1], seeded
// deterministically from SHA-256(pubDER). Identical inputs always yield an
// identical permutation.
func Generate(pubDER []byte, length int) ([]int, error) {
	if length < 1 {
		return nil, fmt.Errorf("position: %w: length must be >= 1, got %d", wmerrors.ErrInvalidInput, length)
	}

	digest := sha256.Sum256(pubDER)
	seed := binary.BigEndian.Uint32(digest[:4])

	p := make([]int, length)
	for i := range p {
		p[i] = i + 2
	}

	rng := mt19937.New(seed)
	for i := length - 1; i >= 1; i-- {
		j := rng.IntN(uint32(i))
		p[i], p[j] = p[j], p[i]
	}
	return p, nil
}

// CheckCapacity verifies that length+2 does not exceed the available
// diagonal length, per spec.md §4.4's edge case.
func CheckCapacity(length, diagEvenLen, diagOddLen int) error {
	capacity := diagEvenLen
	if diagOddLen < capacity {
		capacity = diagOddLen
	}
	if length+2 > capacity {
		return fmt.Errorf("position: %w: length+2=%d exceeds diagonal capacity %d", wmerrors.ErrInsufficientCapacity, length+2, capacity)
	}
	return nil
}
