// Package ledger persists the registration ledger contract spec.md §6
// names but leaves external to the core: a map from image identifier to
// the ground-truth watermark tensor G (JSON-serialized nested array) plus
// the registered image's file path. The core never opens this store
// itself — it only produces G; this package is the caller-side adapter,
// built the way the teacher's internal/db package is built.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/deepshield/imagewatermark/internal/strategy"
)

// Ledger wraps a SQLite-backed registration store.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database under dataDir.
func Open(dataDir string) (*Ledger, error) {
	dbDir := filepath.Join(dataDir, "ledger")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}

	dbPath := filepath.Join(dbDir, "watermarks.db")
	database, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("ledger: pragma %q: %w", p, err)
		}
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS registrations (
		image_id       TEXT PRIMARY KEY,
		image_path     TEXT NOT NULL,
		gt_length      INTEGER NOT NULL,
		gt_channels    INTEGER NOT NULL,
		gt_json        TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		database.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}

	return &Ledger{db: database}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Register stores the ground-truth tensor g for imageID, along with the
// path to the registered (watermarked) image and the position-PRNG schema
// version it was generated under (spec.md §9: a version field must travel
// with G so embedding and verifying parties agree on the permutation).
func (l *Ledger) Register(imageID, imagePath string, g *strategy.GroundTruth, schemaVersion int) error {
	payload, err := json.Marshal(g.Data)
	if err != nil {
		return fmt.Errorf("ledger: marshal ground truth: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO registrations (image_id, image_path, gt_length, gt_channels, gt_json, schema_version)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(image_id) DO UPDATE SET
		   image_path=excluded.image_path, gt_length=excluded.gt_length,
		   gt_channels=excluded.gt_channels, gt_json=excluded.gt_json,
		   schema_version=excluded.schema_version`,
		imageID, imagePath, g.Length, g.Channels, string(payload), schemaVersion,
	)
	if err != nil {
		return fmt.Errorf("ledger: register %s: %w", imageID, err)
	}
	return nil
}

// Record is a registration ledger row, returned by Retrieve.
type Record struct {
	ImagePath     string
	GroundTruth   *strategy.GroundTruth
	SchemaVersion int
	CreatedAt     time.Time
}

// Retrieve looks up the registered ground truth and image path for imageID.
// It returns (nil, sql.ErrNoRows) if the image was never registered.
func (l *Ledger) Retrieve(imageID string) (*Record, error) {
	var (
		imagePath             string
		length, channels, ver int
		payload               string
		createdAt             string
	)
	err := l.db.QueryRow(
		`SELECT image_path, gt_length, gt_channels, gt_json, schema_version, created_at
		 FROM registrations WHERE image_id = ?`, imageID,
	).Scan(&imagePath, &length, &channels, &payload, &ver, &createdAt)
	if err != nil {
		return nil, err
	}

	var data [][]int
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal ground truth for %s: %w", imageID, err)
	}

	ts, _ := time.Parse("2006-01-02T15:04:05.000Z", createdAt)
	return &Record{
		ImagePath:     imagePath,
		GroundTruth:   &strategy.GroundTruth{Length: length, Channels: channels, Data: data},
		SchemaVersion: ver,
		CreatedAt:     ts,
	}, nil
}

// Summary is the aggregate over a batch of similarity scores.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
}

// Summarize computes the mean and sample standard deviation of scores using
// gonum/stat, the way a batch-embed or batch-verify run reports how
// consistently its watermarks scored.
func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	mean, stddev := stat.MeanStdDev(scores, nil)
	return Summary{Count: len(scores), Mean: mean, StdDev: stddev}
}
