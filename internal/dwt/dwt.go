// Package dwt implements a single-level 2D Daubechies-1 (Haar) Discrete
// Wavelet Transform with symmetric boundary extension, so that odd-sized
// inputs are handled the same way pywt's dwt2(mode="symmetric") handles
// them: a channel of any size can be decomposed and losslessly reconstructed,
// which two cascaded DWT levels require (spec.md invariant: H, W >= 4).
package dwt

import "gonum.org/v1/gonum/mat"

// Subbands holds the four quadrants produced by Forward2D, plus the
// pre-transform shape needed to crop Inverse2D's output back to size.
type Subbands struct {
	LL, LH, HL, HH   *mat.Dense
	OrigRows, OrigCols int
}

// forward1D applies the Haar forward transform to a row/column of length n.
// When n is odd, the input is symmetrically extended by one sample (the
// last element is repeated) before the pairwise average/difference split,
// matching pywt's half-sample symmetric boundary mode for a length-2 filter.
// Returns avg and diff, each of length ceil(n/2).
func forward1D(src []float64) (avg, diff []float64) {
	n := len(src)
	padded := src
	if n%2 != 0 {
		padded = make([]float64, n+1)
		copy(padded, src)
		padded[n] = src[n-1]
	}
	half := len(padded) / 2
	avg = make([]float64, half)
	diff = make([]float64, half)
	for i := 0; i < half; i++ {
		avg[i] = (padded[2*i] + padded[2*i+1]) / 2.0
		diff[i] = (padded[2*i] - padded[2*i+1]) / 2.0
	}
	return avg, diff
}

// inverse1D reconstructs a length-origN row/column from its Haar
// avg/diff pair, cropping any symmetric padding introduced by forward1D.
func inverse1D(avg, diff []float64, origN int) []float64 {
	half := len(avg)
	padded := make([]float64, half*2)
	for i := 0; i < half; i++ {
		padded[2*i] = avg[i] + diff[i]
		padded[2*i+1] = avg[i] - diff[i]
	}
	return padded[:origN]
}

// Forward2D applies a single-level 2D Haar DWT with symmetric boundary
// extension to src. Rows and columns need not be even; OrigRows/OrigCols
// record the input shape so Inverse2D can crop back to it.
func Forward2D(src *mat.Dense) Subbands {
	h, w := src.Dims()

	// Step 1: forward1D on each row -> concatenate [avg | diff] per row.
	rowHalf := (w + 1) / 2
	full := mat.NewDense(h, 2*rowHalf, nil)
	for y := 0; y < h; y++ {
		row := mat.Row(nil, y, src)
		avg, diff := forward1D(row)
		for x := 0; x < rowHalf; x++ {
			full.Set(y, x, avg[x])
			full.Set(y, rowHalf+x, diff[x])
		}
	}

	// Step 2: forward1D on each column of full -> concatenate [avg | diff].
	colHalf := (h + 1) / 2
	_, cols := full.Dims()
	out := mat.NewDense(2*colHalf, cols, nil)
	for x := 0; x < cols; x++ {
		col := mat.Col(nil, x, full)
		avg, diff := forward1D(col)
		for y := 0; y < colHalf; y++ {
			out.Set(y, x, avg[y])
			out.Set(colHalf+y, x, diff[y])
		}
	}

	ll := mat.NewDense(colHalf, rowHalf, nil)
	lh := mat.NewDense(colHalf, rowHalf, nil)
	hl := mat.NewDense(colHalf, rowHalf, nil)
	hh := mat.NewDense(colHalf, rowHalf, nil)
	for y := 0; y < colHalf; y++ {
		for x := 0; x < rowHalf; x++ {
			ll.Set(y, x, out.At(y, x))
			lh.Set(y, x, out.At(y, rowHalf+x))
			hl.Set(y, x, out.At(colHalf+y, x))
			hh.Set(y, x, out.At(colHalf+y, rowHalf+x))
		}
	}
	return Subbands{LL: ll, LH: lh, HL: hl, HH: hh, OrigRows: h, OrigCols: w}
}

// Inverse2D reconstructs the OrigRows x OrigCols matrix from the four
// subbands produced by the matching Forward2D call.
func Inverse2D(s Subbands) *mat.Dense {
	colHalf, rowHalf := s.LL.Dims()
	h2, w2 := 2*colHalf, 2*rowHalf

	full := mat.NewDense(h2, w2, nil)
	for y := 0; y < colHalf; y++ {
		for x := 0; x < rowHalf; x++ {
			full.Set(y, x, s.LL.At(y, x))
			full.Set(y, rowHalf+x, s.LH.At(y, x))
			full.Set(colHalf+y, x, s.HL.At(y, x))
			full.Set(colHalf+y, rowHalf+x, s.HH.At(y, x))
		}
	}

	// Step 1: inverse1D on each column, cropped to OrigRows.
	colRec := mat.NewDense(s.OrigRows, w2, nil)
	for x := 0; x < w2; x++ {
		col := mat.Col(nil, x, full)
		avg := col[:colHalf]
		diff := col[colHalf:]
		rec := inverse1D(avg, diff, s.OrigRows)
		for y := 0; y < s.OrigRows; y++ {
			colRec.Set(y, x, rec[y])
		}
	}

	// Step 2: inverse1D on each row, cropped to OrigCols.
	out := mat.NewDense(s.OrigRows, s.OrigCols, nil)
	for y := 0; y < s.OrigRows; y++ {
		row := mat.Row(nil, y, colRec)
		avg := row[:rowHalf]
		diff := row[rowHalf:]
		rec := inverse1D(avg, diff, s.OrigCols)
		out.SetRow(y, rec)
	}
	return out
}
