// Package strategy implements the DWT²+DCT watermark strategy (spec.md
// §4.5): per-channel embedding by symmetric modulation of the two
// interleaved DCT diagonals around their mean, and the two extraction
// variants plus similarity scoring used to verify a candidate image.
package strategy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/deepshield/imagewatermark/internal/imageio"
	"github.com/deepshield/imagewatermark/internal/position"
	"github.com/deepshield/imagewatermark/internal/transform"
	"github.com/deepshield/imagewatermark/internal/wmerrors"
)

// OutputScale is the pixel range watermarked channels are re-normalized to
// before being written back into the image (spec.md §4.5 step 5).
const OutputScale = 255.0

// GroundTruth is the sparse signed tensor produced at embed time: zero
// everywhere except at the embedding positions, which hold the watermark
// symbol for that channel. Its shape always matches the full
// DCT-of-even-diagonal length per channel (spec.md §3).
type GroundTruth struct {
	Length   int // per-channel diagonal length
	Channels int
	Data     [][]int // Data[c][i], i in [0, Length)
}

func newGroundTruth(length, channels int) *GroundTruth {
	data := make([][]int, channels)
	for c := range data {
		data[c] = make([]int, length)
	}
	return &GroundTruth{Length: length, Channels: channels, Data: data}
}

// checkTransformFailure surfaces NaN/Inf in a cascade's diagonals as
// ErrTransformFailure rather than letting it silently propagate (spec.md
// §7).
func checkTransformFailure(diag []float64) error {
	for _, v := range diag {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return wmerrors.ErrTransformFailure
		}
	}
	return nil
}

// Embed embeds watermark bits w at positions p, with strength alpha, into
// every channel of img. It returns the watermarked image and the
// ground-truth tensor the registration ledger should persist.
func Embed(img *imageio.Image, w []int, p []int, alpha float64) (*imageio.Image, *GroundTruth, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, nil, fmt.Errorf("strategy: embed: %w: alpha must be in (0,1], got %v", wmerrors.ErrInvalidInput, alpha)
	}
	if len(w) != len(p) {
		return nil, nil, fmt.Errorf("strategy: embed: %w: len(w)=%d != len(p)=%d", wmerrors.ErrInvalidInput, len(w), len(p))
	}
	if len(img.Planes) == 0 {
		return nil, nil, fmt.Errorf("strategy: embed: %w: image has no channels", wmerrors.ErrInvalidInput)
	}

	outPlanes := make([]*mat.Dense, len(img.Planes))
	var gt *GroundTruth

	for ch, plane := range img.Planes {
		normalized := imageio.Normalize(plane, 1.0)

		cascade, err := transform.Encode2D(normalized)
		if err != nil {
			return nil, nil, fmt.Errorf("strategy: embed: channel %d: %w", ch, err)
		}
		if err := checkTransformFailure(cascade.DiagEven); err != nil {
			return nil, nil, err
		}
		if err := checkTransformFailure(cascade.DiagOdd); err != nil {
			return nil, nil, err
		}

		if err := position.CheckCapacity(len(p), len(cascade.DiagEven), len(cascade.DiagOdd)); err != nil {
			return nil, nil, fmt.Errorf("strategy: embed: %w", err)
		}

		if gt == nil {
			gt = newGroundTruth(len(cascade.DiagEven), len(img.Planes))
		}

		evenNew := append([]float64(nil), cascade.DiagEven...)
		oddNew := append([]float64(nil), cascade.DiagOdd...)
		for i, pos := range p {
			mean := 0.5 * (cascade.DiagEven[pos] + cascade.DiagOdd[pos])
			evenNew[pos] = mean + alpha*float64(w[i])
			oddNew[pos] = mean - alpha*float64(w[i])
			gt.Data[ch][pos] = w[i]
		}
		cascade.DiagEven = evenNew
		cascade.DiagOdd = oddNew

		rec, err := transform.Decode2D(cascade)
		if err != nil {
			return nil, nil, fmt.Errorf("strategy: embed: channel %d: %w", ch, err)
		}
		outPlanes[ch] = imageio.Normalize(rec, OutputScale)
	}

	return &imageio.Image{Height: img.Height, Width: img.Width, Planes: outPlanes}, gt, nil
}

// channelDiff computes E - O over the full diagonal arrays for one channel.
func channelDiff(plane *mat.Dense) ([]float64, error) {
	normalized := imageio.Normalize(plane, 1.0)
	cascade, err := transform.Encode2D(normalized)
	if err != nil {
		return nil, err
	}
	if err := checkTransformFailure(cascade.DiagEven); err != nil {
		return nil, err
	}
	if err := checkTransformFailure(cascade.DiagOdd); err != nil {
		return nil, err
	}
	diff := make([]float64, len(cascade.DiagEven))
	for i := range diff {
		diff[i] = cascade.DiagEven[i] - cascade.DiagOdd[i]
	}
	return diff, nil
}

// sign maps d to +1 if d >= 0, else -1 (spec.md §4.5: sign(0) <- 1).
func sign(d float64) int {
	if d >= 0 {
		return 1
	}
	return -1
}

// Extract recovers, at each position in p, sign(E[p[i]] - O[p[i]]) per
// channel, averaged across channels. This is the debug path (spec.md §9
// Open Questions): it returns a real-valued vector, not an integer tensor
// comparable to a GroundTruth, so scoring must go through ExtractMatrix.
func Extract(img *imageio.Image, p []int) ([]float64, error) {
	if len(img.Planes) == 0 {
		return nil, fmt.Errorf("strategy: extract: %w: image has no channels", wmerrors.ErrInvalidInput)
	}
	sums := make([]float64, len(p))
	for ch, plane := range img.Planes {
		diff, err := channelDiff(plane)
		if err != nil {
			return nil, fmt.Errorf("strategy: extract: channel %d: %w", ch, err)
		}
		for i, pos := range p {
			if pos < 0 || pos >= len(diff) {
				return nil, fmt.Errorf("strategy: extract: %w: position %d out of range [0,%d)", wmerrors.ErrInsufficientCapacity, pos, len(diff))
			}
			sums[i] += float64(sign(diff[pos]))
		}
	}
	out := make([]float64, len(p))
	for i := range out {
		out[i] = sums[i] / float64(len(img.Planes))
	}
	return out, nil
}

// ExtractMatrix computes sign(E - O) over the entire diagonal array of
// every channel, stacked the same way GroundTruth is shaped, so a verifier
// can score a candidate against the registered G without knowing p.
func ExtractMatrix(img *imageio.Image) (*GroundTruth, error) {
	if len(img.Planes) == 0 {
		return nil, fmt.Errorf("strategy: extract_matrix: %w: image has no channels", wmerrors.ErrInvalidInput)
	}
	var gt *GroundTruth
	for ch, plane := range img.Planes {
		diff, err := channelDiff(plane)
		if err != nil {
			return nil, fmt.Errorf("strategy: extract_matrix: channel %d: %w", ch, err)
		}
		if gt == nil {
			gt = newGroundTruth(len(diff), len(img.Planes))
		}
		for i, d := range diff {
			gt.Data[ch][i] = sign(d)
		}
	}
	return gt, nil
}

// IsSimilar scores x against the registered ground truth g: the percentage
// of g's non-zero positions where x agrees, and whether that percentage
// strictly exceeds threshold.
func IsSimilar(x, g *GroundTruth, threshold float64) (bool, float64) {
	if x.Length != g.Length || x.Channels != g.Channels {
		return false, 0.0
	}

	var total, correct int
	for c := 0; c < g.Channels; c++ {
		for i := 0; i < g.Length; i++ {
			if g.Data[c][i] == 0 {
				continue
			}
			total++
			if x.Data[c][i] == g.Data[c][i] {
				correct++
			}
		}
	}
	if total == 0 {
		return false, 0.0
	}

	score := 100.0 * float64(correct) / float64(total)
	return score > threshold, score
}
