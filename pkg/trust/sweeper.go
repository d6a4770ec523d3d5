package trust

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs SweepExpired on a fixed interval
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper falls back to the configured sweep interval when interval is not positive
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = engine.cfg.SweepInterval
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Session sweeper started", "interval", s.interval)
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.engine.SweepExpired(ctx); err != nil {
		slog.Error("Session sweep failed", "error", err)
	}
}
