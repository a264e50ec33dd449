// Package zigzag implements the bijective mapping between a 2D matrix and a
// 1D sequence along anti-diagonals, alternating direction per diagonal.
package zigzag

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Encode walks m along anti-diagonals d = 0 .. rows+cols-2. Even diagonals
// are walked bottom-left to top-right, odd diagonals top-right to
// bottom-left. It returns the 1D traversal v and order, a same-shape matrix
// holding each cell's index into v.
func Encode(m *mat.Dense) (v []float64, order *mat.Dense) {
	rows, cols := m.Dims()
	v = make([]float64, 0, rows*cols)
	order = mat.NewDense(rows, cols, nil)

	counter := 0
	totalDiagonals := rows + cols - 1
	for d := 0; d < totalDiagonals; d++ {
		if d%2 == 0 {
			r := min(d, rows-1)
			c := max(0, d-rows+1)
			for r >= 0 && c < cols {
				v = append(v, m.At(r, c))
				order.Set(r, c, float64(counter))
				counter++
				r--
				c++
			}
		} else {
			r := max(0, d-cols+1)
			c := min(d, cols-1)
			for r < rows && c >= 0 {
				v = append(v, m.At(r, c))
				order.Set(r, c, float64(counter))
				counter++
				r++
				c--
			}
		}
	}
	return v, order
}

// Decode is the inverse of Encode: it reconstructs the rows x cols matrix
// whose zig-zag traversal is v. It fails if len(v) != rows*cols.
func Decode(v []float64, rows, cols int) (*mat.Dense, error) {
	if len(v) != rows*cols {
		return nil, fmt.Errorf("zigzag: decode: len(v)=%d does not match rows*cols=%d", len(v), rows*cols)
	}

	m := mat.NewDense(rows, cols, nil)
	index := 0
	totalDiagonals := rows + cols - 1
	for d := 0; d < totalDiagonals; d++ {
		if d%2 == 0 {
			r := min(d, rows-1)
			c := max(0, d-rows+1)
			for r >= 0 && c < cols {
				m.Set(r, c, v[index])
				index++
				r--
				c++
			}
		} else {
			r := max(0, d-cols+1)
			c := min(d, cols-1)
			for r < rows && c >= 0 {
				m.Set(r, c, v[index])
				index++
				r++
				c--
			}
		}
	}
	return m, nil
}
