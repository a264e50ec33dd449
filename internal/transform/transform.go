// Package transform implements the forward/inverse DWT²+DCT cascade: two
// levels of 2D Haar DWT to concentrate energy into LL2, a zig-zag
// linearization of LL2 split into interleaved even/odd diagonals, and an
// orthonormal 1D DCT applied to each diagonal independently.
package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/deepshield/imagewatermark/internal/dct"
	"github.com/deepshield/imagewatermark/internal/dwt"
	"github.com/deepshield/imagewatermark/internal/wmerrors"
	"github.com/deepshield/imagewatermark/internal/zigzag"
)

// ErrTooSmall is returned when a channel's dimensions cannot sustain two
// cascaded DWT levels (spec.md data-model invariant: H, W >= 4). It wraps
// wmerrors.ErrInvalidInput.
var ErrTooSmall = fmt.Errorf("transform: channel too small for two DWT levels: %w", wmerrors.ErrInvalidInput)

// Cascade holds everything Encode2D produces and Decode2D needs to invert.
type Cascade struct {
	L1       dwt.Subbands // level-1 DWT of the channel
	L2       dwt.Subbands // level-2 DWT of L1.LL
	DiagEven []float64    // DCT of the odd-indexed zig-zag elements (v[1::2])
	DiagOdd  []float64    // DCT of the even-indexed zig-zag elements (v[0::2])
}

// Encode2D runs the forward DWT²+DCT cascade on a single channel.
func Encode2D(channel *mat.Dense) (Cascade, error) {
	rows, cols := channel.Dims()
	if rows < 4 || cols < 4 {
		return Cascade{}, fmt.Errorf("%w: shape (%d,%d)", ErrTooSmall, rows, cols)
	}

	l1 := dwt.Forward2D(channel)
	l2 := dwt.Forward2D(l1.LL)

	v, _ := zigzag.Encode(l2.LL)
	diagEven, diagOdd := splitInterleaved(v)

	return Cascade{
		L1:       l1,
		L2:       l2,
		DiagEven: dct.Forward1D(diagEven),
		DiagOdd:  dct.Forward1D(diagOdd),
	}, nil
}

// Decode2D inverts the cascade, reproducing the original channel shape
// recorded in c.L1 at forward time.
func Decode2D(c Cascade) (*mat.Dense, error) {
	diagEven := dct.Inverse1D(c.DiagEven)
	diagOdd := dct.Inverse1D(c.DiagOdd)

	rows, cols := c.L2.LL.Dims()
	v, err := interleave(diagEven, diagOdd, rows*cols)
	if err != nil {
		return nil, err
	}

	ll2, err := zigzag.Decode(v, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("transform: decode2d: %w", err)
	}

	l1Rows, l1Cols := c.L1.LL.Dims()
	llRec := dwt.Inverse2D(dwt.Subbands{
		LL: ll2, LH: c.L2.LH, HL: c.L2.HL, HH: c.L2.HH,
		OrigRows: l1Rows, OrigCols: l1Cols,
	})

	out := dwt.Inverse2D(dwt.Subbands{
		LL: llRec, LH: c.L1.LH, HL: c.L1.HL, HH: c.L1.HH,
		OrigRows: c.L1.OrigRows, OrigCols: c.L1.OrigCols,
	})
	return out, nil
}

// splitInterleaved implements spec.md's load-bearing (and historically
// misnamed) interleaving rule: D_even is the odd-indexed half of v,
// D_odd is the even-indexed half.
func splitInterleaved(v []float64) (diagEven, diagOdd []float64) {
	diagEven = make([]float64, 0, len(v)/2+1)
	diagOdd = make([]float64, 0, len(v)/2+1)
	for i, x := range v {
		if i%2 == 1 {
			diagEven = append(diagEven, x)
		} else {
			diagOdd = append(diagOdd, x)
		}
	}
	return diagEven, diagOdd
}

// interleave is the inverse of splitInterleaved, reconstructing a
// length-total vector with v[1::2] <- diagEven, v[0::2] <- diagOdd.
func interleave(diagEven, diagOdd []float64, total int) ([]float64, error) {
	if len(diagEven)+len(diagOdd) != total {
		return nil, fmt.Errorf("transform: interleave: len(even)+len(odd)=%d, want %d", len(diagEven)+len(diagOdd), total)
	}
	v := make([]float64, total)
	ei, oi := 0, 0
	for i := 0; i < total; i++ {
		if i%2 == 1 {
			v[i] = diagEven[ei]
			ei++
		} else {
			v[i] = diagOdd[oi]
			oi++
		}
	}
	return v, nil
}
