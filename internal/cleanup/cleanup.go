// Package cleanup implements the periodic sweep from spec.md §4.11: expire
// cached audio files past their TTL, and prune old failed records.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/audiocache"
	"scribe/internal/store"
)

// Sweeper periodically runs the expiry sweep on a ticker, mirroring the
// teacher's cleanupTicker loop in cmd/worker/main.go.
type Sweeper struct {
	store           *store.Store
	cache           *audiocache.Cache
	interval        time.Duration
	failedRetention time.Duration
}

// New builds a Sweeper. interval is the sweep period (default 6h);
// failedRetention is how long failed records are kept before deletion
// (default 7d).
func New(st *store.Store, cache *audiocache.Cache, interval, failedRetention time.Duration) *Sweeper {
	return &Sweeper{
		store:           st,
		cache:           cache,
		interval:        interval,
		failedRetention: failedRetention,
	}
}

// Run blocks, sweeping on each tick until done is closed.
func (s *Sweeper) Run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	slog.Info("cleanup sweep started")

	expired, err := s.store.ExpiredAudio(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("cleanup: list expired audio failed", "error", err)
	} else {
		for _, tr := range expired {
			if tr.AudioPath != nil {
				if err := s.cache.Remove(*tr.AudioPath); err != nil {
					slog.Error("cleanup: remove cached audio failed", "id", tr.ID, "error", err)
					continue
				}
			}
			if err := s.store.ClearAudioPath(ctx, tr.ID); err != nil {
				slog.Error("cleanup: clear audio path failed", "id", tr.ID, "error", err)
			}
		}
		if len(expired) > 0 {
			slog.Info("cleanup: expired audio cleared", "count", len(expired))
		}
	}

	cutoff := time.Now().UTC().Add(-s.failedRetention)
	removed, err := s.store.DeleteFailedOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("cleanup: prune failed records failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("cleanup: old failed records pruned", "count", removed)
	}
}
