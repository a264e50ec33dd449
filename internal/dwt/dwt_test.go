package dwt_test

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/deepshield/imagewatermark/internal/dwt"
)

const epsilon = 1e-10

func randomDense(h, w int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, h*w)
	for i := range data {
		data[i] = rng.Float64()*512.0 - 256.0
	}
	return mat.NewDense(h, w, data)
}

func roundTrip(t *testing.T, h, w int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	src := randomDense(h, w, rng)
	sub := dwt.Forward2D(src)
	rec := dwt.Inverse2D(sub)
	if !mat.EqualApprox(src, rec, epsilon) {
		t.Errorf("%dx%d round trip mismatch", h, w)
	}
}

func TestRoundTripEven(t *testing.T) {
	roundTrip(t, 8, 8, 42)
	roundTrip(t, 64, 64, 1337)
	roundTrip(t, 256, 256, 999)
}

func TestRoundTripOdd(t *testing.T) {
	roundTrip(t, 7, 9, 7)
	roundTrip(t, 9, 7, 8)
	roundTrip(t, 5, 5, 9)
	roundTrip(t, 1, 1, 10)
	roundTrip(t, 3, 256, 11)
}

func TestTwoLevelCascadeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	src := randomDense(17, 13, rng)
	l1 := dwt.Forward2D(src)
	l2 := dwt.Forward2D(l1.LL)
	llRec := dwt.Inverse2D(dwt.Subbands{LL: l2.LL, LH: l2.LH, HL: l2.HL, HH: l2.HH, OrigRows: l2.OrigRows, OrigCols: l2.OrigCols})
	_ = llRec // LL2 is unmodified, so inverting level 2 must reproduce level-1 LL
	if !mat.EqualApprox(l1.LL, llRec, epsilon) {
		t.Fatal("level-2 round trip did not reproduce level-1 LL")
	}
	rec := dwt.Inverse2D(dwt.Subbands{LL: llRec, LH: l1.LH, HL: l1.HL, HH: l1.HH, OrigRows: l1.OrigRows, OrigCols: l1.OrigCols})
	if !mat.EqualApprox(src, rec, epsilon) {
		t.Fatal("full two-level cascade round trip mismatch")
	}
}

func TestConstantBlockHasZeroDetail(t *testing.T) {
	// A constant block should transform to zero detail bands.
	src := mat.NewDense(4, 4, nil)
	for i := 0; i < 16; i++ {
		src.RawMatrix().Data[i] = 5.0
	}
	sub := dwt.Forward2D(src)
	for _, band := range []*mat.Dense{sub.LH, sub.HL, sub.HH} {
		r, c := band.Dims()
		for y := 0; y < r; y++ {
			for x := 0; x < c; x++ {
				if v := band.At(y, x); v < -epsilon || v > epsilon {
					t.Errorf("expected zero detail, got %v", v)
				}
			}
		}
	}
}
