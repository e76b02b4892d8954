package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
)

// RankingSize bounds the number of reports held in the ranking sorted set.
const RankingSize = 1000

// RankingWorker periodically rebuilds the priority ranking from the
// database, dropping anything the change worker may have missed.
type RankingWorker struct {
	defects  DefectRepository
	cache    *CacheService
	interval time.Duration
	stopCh   chan struct{}
}

// NewRankingWorker creates a worker that ticks every interval.
func NewRankingWorker(defects DefectRepository, cache *CacheService, interval time.Duration) *RankingWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &RankingWorker{
		defects:  defects,
		cache:    cache,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one rebuild immediately, then every interval.
func (w *RankingWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("ranking-worker: starting")

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			log.Info().Msg("ranking-worker: stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("ranking-worker: stopping (stop signal)")
			return
		}
	}
}

// Stop signals the worker to stop.
func (w *RankingWorker) Stop() {
	close(w.stopCh)
}

func (w *RankingWorker) tick(ctx context.Context) {
	start := time.Now()

	n, err := w.rebuild(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ranking-worker: rebuild failed")
		return
	}

	elapsed := time.Since(start)
	metrics.WorkerBatchDuration.WithLabelValues("ranking").Observe(elapsed.Seconds())
	log.Info().
		Int("ranked", n).
		Dur("elapsed", elapsed).
		Msg("ranking-worker: tick complete")
}

func (w *RankingWorker) rebuild(ctx context.Context) (int, error) {
	ranked, err := w.defects.TopByScore(ctx, RankingSize)
	if err != nil {
		return 0, err
	}
	if err := w.cache.ReplaceRanking(ctx, ranked); err != nil {
		return 0, err
	}
	return len(ranked), nil
}
