package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Heartbeat pushes keep-alive tokens to idle sessions so intermediary
// proxies do not tear down healthy long-lived connections.
type Heartbeat struct {
	engine *Engine
	period time.Duration
	idle   time.Duration
	logger *zap.Logger
}

// NewHeartbeat creates a scheduler that checks every period and sends a
// keep-alive once the feed has been idle for longer than idle.
func NewHeartbeat(engine *Engine, period, idle time.Duration, logger *zap.Logger) *Heartbeat {
	return &Heartbeat{
		engine: engine,
		period: period,
		idle:   idle,
		logger: logger,
	}
}

// Run ticks until the context is cancelled. Call this in a goroutine.
func (h *Heartbeat) Run(ctx context.Context) {
	h.logger.Info("heartbeat scheduler starting",
		zap.Duration("period", h.period),
		zap.Duration("idleThreshold", h.idle),
	)

	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat scheduler stopping")
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Heartbeat) tick() {
	last := h.engine.LastBroadcast()
	if !last.IsZero() && time.Since(last) < h.idle {
		return
	}
	if h.engine.SessionCount() == 0 {
		return
	}
	h.logger.Debug("feed idle, sending keep-alive")
	h.engine.KeepAlive()
}
