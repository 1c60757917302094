package threatintel

import (
	"context"
	"log/slog"
	"time"
)

// Worker triggers a sync run for every registered source on a fixed
// interval. It is the only scheduler; the engine itself never retries, so
// a failed run waits for the next tick.
type Worker struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewWorker creates a sync worker.
// interval is typically 1 hour in production.
func NewWorker(engine *Engine, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sync loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start
	w.engine.RunAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.engine.RunAll(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}
