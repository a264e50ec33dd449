package position_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/deepshield/imagewatermark/internal/position"
	"github.com/deepshield/imagewatermark/internal/wmerrors"
)

func TestIsPermutationOfRange(t *testing.T) {
	pub := []byte("a-public-key-der-blob")
	p, err := position.Generate(pub, 255)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 255 {
		t.Fatalf("len = %d, want 255", len(p))
	}
	sorted := append([]int(nil), p...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if want := i + 2; v != want {
			t.Fatalf("sorted[%d] = %d, want %d (not a permutation of [2, L+1])", i, v, want)
		}
	}
}

func TestDeterministic(t *testing.T) {
	pub := []byte("another-key")
	a, err := position.Generate(pub, 128)
	if err != nil {
		t.Fatal(err)
	}
	b, err := position.Generate(pub, 128)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("position %d differs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestDifferentKeysDiffer(t *testing.T) {
	a, _ := position.Generate([]byte("key-a"), 64)
	b, _ := position.Generate([]byte("key-b"), 64)
	identical := true
	for i := range a {
		if a[i] != b[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatal("expected different public keys to produce different permutations")
	}
}

func TestInsufficientCapacity(t *testing.T) {
	if err := position.CheckCapacity(100, 50, 50); !errors.Is(err, wmerrors.ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if err := position.CheckCapacity(48, 50, 50); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
