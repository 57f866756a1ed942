package router

import (
	"context"
	"time"

	"github.com/brick-pid/simplegym/pkg/metrics"
)

// DefaultMonitorInterval is how often the monitor re-checks the pool.
const DefaultMonitorInterval = 15 * time.Second

// Monitor periodically probes worker liveness and keeps the live-worker
// gauge fresh. Idle workers get an end-to-end PING through their pipe;
// workers with a request in flight are skipped — in-flight traffic is
// evidence of life, and a probe queued behind a slow call would only add
// load where the pool is already strained.
type Monitor struct {
	router   *Router
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitor for the router. interval <= 0 selects the
// default.
func NewMonitor(r *Router, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		router:   r,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the monitor loop.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop stops the monitor and waits for the loop to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Monitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) probe() {
	handles := m.router.handles
	alive := 0
	for _, h := range handles {
		if !h.available() {
			continue
		}
		if !h.mu.TryLock() {
			// Busy pipe: the in-flight request is the probe.
			alive++
			continue
		}
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		err := m.router.Ping(ctx, h.id)
		cancel()
		if err == nil {
			alive++
		} else {
			m.router.logger.Warn().Err(err).Int("worker_id", h.id).Msg("health probe failed")
		}
	}
	metrics.WorkersAlive.Set(float64(alive))
}
