// Package artifact persists fitted pipelines and tells readers which one is
// current.
//
// Layout of a model directory:
//
//	sales_model_2015-07-31-09-30-00.model   zstd-compressed gob of a Bundle
//	latest.json                             manifest naming the current model
//
// Blobs are written to a temporary file and renamed into place, and the
// manifest is replaced the same way only after its blob is complete, so a
// reader never sees a partially written model.
package artifact

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mulsewm/rossmann-sales-forecasting/ml"
)

const (
	Prefix          = "sales_model_"
	Ext             = ".model"
	TimestampLayout = "2006-01-02-15-04-05"
)

var (
	ErrNoArtifact = errors.New("no model artifact found")
	ErrExists     = errors.New("model artifact already exists")
)

type Metadata struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Target    string    `json:"target"`
	Split     string    `json:"split"`
	MAE       float64   `json:"mae"`
	RMSE      float64   `json:"rmse"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	Features  []string  `json:"features"`
}

// Bundle is what gets serialized: the fitted transform+regressor and a
// description of how it was produced.
type Bundle struct {
	Meta     Metadata
	Pipeline *ml.Pipeline
}

// FileName names an artifact by its UTC creation second, so lexical and
// chronological order agree.
func FileName(createdAt time.Time) string {
	return Prefix + createdAt.UTC().Format(TimestampLayout) + Ext
}

// Save writes the bundle into dir, creating dir when needed, and returns the
// artifact path. It does not touch the manifest; see Publish.
func Save(dir string, b *Bundle) (string, error) {
	if b == nil || b.Pipeline == nil {
		return "", fmt.Errorf("save: empty bundle")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	path := filepath.Join(dir, FileName(b.Meta.CreatedAt))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-model-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, b); err != nil {
		tmp.Close()
		return "", err
	}
	// CreateTemp opens 0600; servers may run as another user.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return path, nil
}

func encode(f *os.File, b *Bundle) error {
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(b); err != nil {
		zw.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd: %w", err)
	}
	return nil
}

func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var b Bundle
	if err := gob.NewDecoder(zr).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if b.Pipeline == nil {
		return nil, fmt.Errorf("decode %s: bundle has no pipeline", filepath.Base(path))
	}
	return &b, nil
}
