// Package imageio provides the Image value type and the preprocessing glue
// the watermark core needs but does not own: normalization (spec.md §3's
// Image invariant), JPEG/PNG disk I/O, and the deterministic row-major byte
// serialization the generator hashes (spec.md §4.3 step 1).
package imageio

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Image is a (H, W, C) real-valued tensor, C >= 1, value-typed per spec.md
// §3 (no shared mutable graphs between calls).
type Image struct {
	Height, Width int
	Planes        []*mat.Dense // len == number of channels; each Height x Width
}

// Channels reports the number of color channels.
func (img *Image) Channels() int {
	return len(img.Planes)
}

// Clone returns a deep copy so callers can embed/modify without aliasing
// the original image's channel planes.
func (img *Image) Clone() *Image {
	planes := make([]*mat.Dense, len(img.Planes))
	for i, p := range img.Planes {
		c := mat.DenseCopyOf(p)
		planes[i] = c
	}
	return &Image{Height: img.Height, Width: img.Width, Planes: planes}
}

// Normalize maps a channel so its minimum value becomes 0 and its maximum
// becomes scale, per spec.md §3: "Pre-normalization step always maps each
// channel to [0, scale] with min→0 and max→scale."
func Normalize(channel *mat.Dense, scale float64) *mat.Dense {
	rows, cols := channel.Dims()
	min, max := channel.At(0, 0), channel.At(0, 0)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := channel.At(y, x)
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	out := mat.NewDense(rows, cols, nil)
	span := max - min
	if span == 0 {
		// A degenerate (constant) channel normalizes to all-zero; nothing
		// to scale against.
		return out
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Set(y, x, (channel.At(y, x)-min)/span*scale)
		}
	}
	return out
}

// SerializeRowMajor serializes img to a deterministic byte order: row-major
// over (H, W, C), each sample rounded and clamped to the 8-bit range used at
// normalization. Two callers with the same pixel values always hash to the
// same bytes (spec.md §6 compatibility constraint (i)).
func SerializeRowMajor(img *Image) []byte {
	c := len(img.Planes)
	out := make([]byte, img.Height*img.Width*c)
	i := 0
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for ch := 0; ch < c; ch++ {
				out[i] = clampByte(img.Planes[ch].At(y, x))
				i++
			}
		}
	}
	return out
}

func clampByte(v float64) byte {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Load decodes a JPEG or PNG file into an Image with three channels
// (R, G, B), each in [0, 255].
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var decoded image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		decoded, err = jpeg.Decode(f)
	case ".png":
		decoded, err = png.Decode(f)
	default:
		decoded, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("imageio: decode %s: %w", path, err)
	}

	bounds := decoded.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	nrgba := image.NewNRGBA(bounds)
	draw.Draw(nrgba, bounds, decoded, bounds.Min, draw.Src)

	r := mat.NewDense(h, w, nil)
	g := mat.NewDense(h, w, nil)
	b := mat.NewDense(h, w, nil)
	minX, minY := bounds.Min.X, bounds.Min.Y
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := nrgba.PixOffset(minX+x, minY+y)
			r.Set(y, x, float64(nrgba.Pix[off]))
			g.Set(y, x, float64(nrgba.Pix[off+1]))
			b.Set(y, x, float64(nrgba.Pix[off+2]))
		}
	}
	return &Image{Height: h, Width: w, Planes: []*mat.Dense{r, g, b}}, nil
}

// Save writes an Image (channel values expected in [0, 255]) to path as
// JPEG or PNG, determined by the file extension.
func Save(img *Image, path string, jpegQuality int) error {
	if len(img.Planes) < 3 {
		return fmt.Errorf("imageio: save: need at least 3 channels, got %d", len(img.Planes))
	}
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			off := out.PixOffset(x, y)
			out.Pix[off] = clampByte(img.Planes[0].At(y, x))
			out.Pix[off+1] = clampByte(img.Planes[1].At(y, x))
			out.Pix[off+2] = clampByte(img.Planes[2].At(y, x))
			out.Pix[off+3] = 255
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(f, out)
	default:
		return jpeg.Encode(f, out, &jpeg.Options{Quality: jpegQuality})
	}
}
