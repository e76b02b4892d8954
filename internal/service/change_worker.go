package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

// ChangeChannel is the NOTIFY channel written by every report update.
const ChangeChannel = "defect_changes"

// ChangeWorker listens for PostgreSQL NOTIFY on defect_changes and batches
// cache refreshes. If 50 validations hit report X in one window, it is
// refreshed once.
type ChangeWorker struct {
	pool    *pgxpool.Pool
	defects DefectRepository
	cache   *CacheService
	window  time.Duration

	mu      sync.Mutex
	pending map[string]struct{} // report IDs waiting for refresh
}

// NewChangeWorker creates a change worker flushing every window.
func NewChangeWorker(pool *pgxpool.Pool, defects DefectRepository, cache *CacheService, window time.Duration) *ChangeWorker {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &ChangeWorker{
		pool:    pool,
		defects: defects,
		cache:   cache,
		window:  window,
		pending: make(map[string]struct{}),
	}
}

// Start listens for notifications until ctx is cancelled, reconnecting on error.
func (w *ChangeWorker) Start(ctx context.Context) {
	log.Info().Dur("window", w.window).Msg("change-worker: starting")

	for {
		if err := w.listenLoop(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("change-worker: stopping (context cancelled)")
				return
			}
			log.Warn().Err(err).Msg("change-worker: listen error, reconnecting in 5s")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				log.Info().Msg("change-worker: stopping (context cancelled)")
				return
			}
		}
	}
}

// listenLoop acquires a dedicated connection, LISTENs on defect_changes,
// and collects notifications for the flush loop.
func (w *ChangeWorker) listenLoop(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	log.Info().Str("channel", ChangeChannel).Msg("change-worker: listening")

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	go w.flushLoop(flushCtx)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		w.enqueue(notification.Payload)
	}
}

func (w *ChangeWorker) enqueue(reportID string) {
	if reportID == "" {
		return
	}
	w.mu.Lock()
	w.pending[reportID] = struct{}{}
	w.mu.Unlock()
}

func (w *ChangeWorker) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush(ctx)
		case <-ctx.Done():
			// Final flush before exit
			w.flush(context.Background())
			return
		}
	}
}

// flush drains the pending set and refreshes each report's cache entries.
// It returns the number of reports refreshed.
func (w *ChangeWorker) flush(ctx context.Context) int {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return 0
	}
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.WorkerBatchDuration.WithLabelValues("change").Observe(time.Since(start).Seconds())
	}()

	refreshed := 0
	for id := range batch {
		if err := w.cache.InvalidateDefect(ctx, id); err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("change-worker: cache invalidate error")
		}

		report, err := w.defects.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, e.ErrNotFound) {
				log.Warn().Err(err).Str("report_id", id).Msg("change-worker: load error")
			}
			continue
		}
		if err := w.cache.UpdateRanking(ctx, report); err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("change-worker: ranking update error")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Debug().
			Int("refreshed", refreshed).
			Int("notifications", len(batch)).
			Msg("change-worker: batch complete")
	}
	return refreshed
}
