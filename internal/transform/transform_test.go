package transform_test

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/deepshield/imagewatermark/internal/transform"
)

func randomDense(h, w int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, h*w)
	for i := range data {
		data[i] = rng.Float64() * 255.0
	}
	return mat.NewDense(h, w, data)
}

func TestRoundTripNoModulation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, shape := range [][2]int{{8, 8}, {16, 16}, {256, 256}, {5, 9}, {17, 13}} {
		src := randomDense(shape[0], shape[1], rng)
		c, err := transform.Encode2D(src)
		if err != nil {
			t.Fatalf("shape=%v: %v", shape, err)
		}
		rec, err := transform.Decode2D(c)
		if err != nil {
			t.Fatalf("shape=%v: %v", shape, err)
		}
		if !mat.EqualApprox(src, rec, 1e-9) {
			t.Errorf("shape=%v: round trip did not reconstruct within tolerance", shape)
		}
	}
}

func TestTooSmallRejected(t *testing.T) {
	src := mat.NewDense(3, 3, nil)
	if _, err := transform.Encode2D(src); err == nil {
		t.Fatal("expected ErrTooSmall for a 3x3 channel")
	}
}

func TestDiagonalLengthsCoverLL2(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := randomDense(64, 64, rng)
	c, err := transform.Encode2D(src)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := c.L2.LL.Dims()
	if got, want := len(c.DiagEven)+len(c.DiagOdd), rows*cols; got != want {
		t.Errorf("len(DiagEven)+len(DiagOdd) = %d, want %d", got, want)
	}
}
