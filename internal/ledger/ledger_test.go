package ledger_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/deepshield/imagewatermark/internal/ledger"
	"github.com/deepshield/imagewatermark/internal/strategy"
)

func TestRegisterAndRetrieveRoundTrip(t *testing.T) {
	l, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	gt := &strategy.GroundTruth{
		Length:   4,
		Channels: 2,
		Data:     [][]int{{1, -1, 0, 1}, {-1, -1, 1, 0}},
	}

	if err := l.Register("img-001", "/data/images/img-001.png", gt, 1); err != nil {
		t.Fatal(err)
	}

	rec, err := l.Retrieve("img-001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ImagePath != "/data/images/img-001.png" {
		t.Errorf("image path = %q", rec.ImagePath)
	}
	if rec.SchemaVersion != 1 {
		t.Errorf("schema version = %d, want 1", rec.SchemaVersion)
	}
	if rec.GroundTruth.Length != gt.Length || rec.GroundTruth.Channels != gt.Channels {
		t.Fatalf("shape mismatch: got (%d,%d)", rec.GroundTruth.Length, rec.GroundTruth.Channels)
	}
	for c := range gt.Data {
		for i := range gt.Data[c] {
			if rec.GroundTruth.Data[c][i] != gt.Data[c][i] {
				t.Errorf("data[%d][%d] = %d, want %d", c, i, rec.GroundTruth.Data[c][i], gt.Data[c][i])
			}
		}
	}
}

func TestRegisterOverwritesExisting(t *testing.T) {
	l, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	gt1 := &strategy.GroundTruth{Length: 2, Channels: 1, Data: [][]int{{1, -1}}}
	gt2 := &strategy.GroundTruth{Length: 2, Channels: 1, Data: [][]int{{-1, 1}}}

	if err := l.Register("img-002", "/a.png", gt1, 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Register("img-002", "/b.png", gt2, 1); err != nil {
		t.Fatal(err)
	}

	rec, err := l.Retrieve("img-002")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ImagePath != "/b.png" {
		t.Errorf("expected overwrite to win, got path %q", rec.ImagePath)
	}
	if rec.GroundTruth.Data[0][0] != -1 {
		t.Errorf("expected overwritten ground truth")
	}
}

func TestSummarizeMeanStdDev(t *testing.T) {
	s := ledger.Summarize([]float64{100, 100, 100})
	if s.Count != 3 || s.Mean != 100 || s.StdDev != 0 {
		t.Fatalf("got %+v, want count=3 mean=100 stddev=0", s)
	}

	s2 := ledger.Summarize([]float64{90, 100})
	if s2.Count != 2 || s2.Mean != 95 {
		t.Fatalf("got %+v, want count=2 mean=95", s2)
	}
	if s2.StdDev <= 0 {
		t.Fatalf("expected positive stddev for non-constant scores, got %v", s2.StdDev)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := ledger.Summarize(nil)
	if s.Count != 0 || s.Mean != 0 || s.StdDev != 0 {
		t.Fatalf("expected zero-value summary for empty input, got %+v", s)
	}
}

func TestRetrieveUnknownImageReturnsNoRows(t *testing.T) {
	l, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	_, err = l.Retrieve("does-not-exist")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
