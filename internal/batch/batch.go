package batch

import (
	"context"
	"sync"

	"github.com/deepshield/imagewatermark/internal/generator"
	"github.com/deepshield/imagewatermark/internal/imageio"
	"github.com/deepshield/imagewatermark/internal/position"
	"github.com/deepshield/imagewatermark/internal/strategy"
)

// EmbedJob is one image's worth of embed work.
type EmbedJob struct {
	ID      string
	Image   *imageio.Image
	PrivDER []byte
	PubDER  []byte
	Length  int
	Alpha   float64
}

// EmbedOutcome is the result of running one EmbedJob.
type EmbedOutcome struct {
	ID          string
	Watermarked *imageio.Image
	GroundTruth *strategy.GroundTruth
	Err         error
}

func runEmbed(j EmbedJob) EmbedOutcome {
	bits, err := generator.Generate(j.Image, j.PrivDER, j.Length)
	if err != nil {
		return EmbedOutcome{ID: j.ID, Err: err}
	}
	positions, err := position.Generate(j.PubDER, j.Length)
	if err != nil {
		return EmbedOutcome{ID: j.ID, Err: err}
	}
	watermarked, gt, err := strategy.Embed(j.Image, bits, positions, j.Alpha)
	return EmbedOutcome{ID: j.ID, Watermarked: watermarked, GroundTruth: gt, Err: err}
}

// EmbedBatch runs every job in jobs across the pool's workers and returns
// the outcomes in the same order as jobs, regardless of completion order.
func EmbedBatch(ctx context.Context, p *Pool, jobs []EmbedJob) []EmbedOutcome {
	out := make([]EmbedOutcome, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, j := range jobs {
		i, j := i, j
		p.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			out[i] = runEmbed(j)
		})
	}
	wg.Wait()
	return out
}

// VerifyJob is one image's worth of verify work against a known ground truth.
type VerifyJob struct {
	ID          string
	Image       *imageio.Image
	GroundTruth *strategy.GroundTruth
	Threshold   float64
}

// VerifyOutcome is the result of running one VerifyJob.
type VerifyOutcome struct {
	ID      string
	Similar bool
	Score   float64
	Err     error
}

func runVerify(j VerifyJob) VerifyOutcome {
	extracted, err := strategy.ExtractMatrix(j.Image)
	if err != nil {
		return VerifyOutcome{ID: j.ID, Err: err}
	}
	similar, score := strategy.IsSimilar(extracted, j.GroundTruth, j.Threshold)
	return VerifyOutcome{ID: j.ID, Similar: similar, Score: score}
}

// VerifyBatch runs every job in jobs across the pool's workers and returns
// the outcomes in the same order as jobs.
func VerifyBatch(ctx context.Context, p *Pool, jobs []VerifyJob) []VerifyOutcome {
	out := make([]VerifyOutcome, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, j := range jobs {
		i, j := i, j
		p.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			out[i] = runVerify(j)
		})
	}
	wg.Wait()
	return out
}
