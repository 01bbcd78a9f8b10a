package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mulsewm/rossmann-sales-forecasting/artifact"
)

var ErrNoModel = errors.New("no model loaded")

// ModelRegistry owns the pipeline used for serving. Readers take a snapshot
// under the read lock; Reload swaps in a new bundle only after it has been
// fully decoded.
type ModelRegistry struct {
	dir    string
	logger *slog.Logger

	// reloadMu serializes Reload so Watch, Poll and /admin/reload cannot
	// install an older artifact after a newer one.
	reloadMu sync.Mutex

	mu      sync.RWMutex
	current *artifact.Bundle
	path    string
}

func NewModelRegistry(dir string, logger *slog.Logger) *ModelRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelRegistry{dir: dir, logger: logger}
}

// Reload resolves the latest artifact and loads it when it differs from the
// one being served. It reports whether the served model changed.
func (r *ModelRegistry) Reload() (bool, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	path, err := artifact.Latest(r.dir)
	if err != nil {
		return false, err
	}

	r.mu.RLock()
	same := path == r.path
	r.mu.RUnlock()
	if same {
		return false, nil
	}

	bundle, err := artifact.Load(path)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}

	r.mu.Lock()
	r.current = bundle
	r.path = path
	r.mu.Unlock()

	r.logger.Info("model loaded", "path", path, "id", bundle.Meta.ID, "mae", bundle.Meta.MAE)
	return true, nil
}

// Set serves bundle directly, bypassing the model directory.
func (r *ModelRegistry) Set(path string, bundle *artifact.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = bundle
	r.path = path
}

func (r *ModelRegistry) Current() (*artifact.Bundle, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, "", ErrNoModel
	}
	return r.current, r.path, nil
}

// Watch reloads on every message until ctx is done or msgs is closed.
// The message payload is informational; the manifest stays authoritative.
func (r *ModelRegistry) Watch(ctx context.Context, msgs <-chan *redis.Message, onReload func(changed bool, err error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.logger.Info("model event received", "channel", msg.Channel)
			changed, err := r.Reload()
			if err != nil {
				r.logger.Warn("model reload failed", "error", err)
			}
			if onReload != nil {
				onReload(changed, err)
			}
		}
	}
}

// Poll reloads on a fixed interval, for deployments without Redis.
func (r *ModelRegistry) Poll(ctx context.Context, interval time.Duration, onReload func(changed bool, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.Reload()
			if err != nil {
				r.logger.Warn("model reload failed", "error", err)
			}
			if onReload != nil {
				onReload(changed, err)
			}
		}
	}
}
