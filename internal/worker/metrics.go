package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// metrics holds rolling request counters, reset every reporting interval.
type metrics struct {
	mu         sync.Mutex
	requests   int
	failures   int
	latencySum time.Duration
}

func (m *metrics) record(d time.Duration, ok bool) {
	m.mu.Lock()
	m.requests++
	m.latencySum += d
	if !ok {
		m.failures++
	}
	m.mu.Unlock()
}

func (m *metrics) drain() (requests, failures int, avgLatency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requests, failures = m.requests, m.failures
	if requests > 0 {
		avgLatency = m.latencySum / time.Duration(requests)
	}
	m.requests, m.failures, m.latencySum = 0, 0, 0
	return
}

const (
	loadWarnRatio     = 0.7
	loadCriticalRatio = 0.9
)

func loadSeverity(rooms, capacity int) string {
	if capacity <= 0 {
		return "ok"
	}
	ratio := float64(rooms) / float64(capacity)
	switch {
	case ratio >= loadCriticalRatio:
		return "critical"
	case ratio >= loadWarnRatio:
		return "warning"
	default:
		return "ok"
	}
}

// runMetrics reports throughput, latency, success rate, and load severity.
// Purely observational: admission stays with the hard capacity ceiling in
// dispatch, this loop only talks to the logs.
func (w *Worker) runMetrics() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			requests, failures, avgLatency := w.stats.drain()

			w.mu.Lock()
			rooms := len(w.rooms)
			w.mu.Unlock()

			throughput := float64(requests) / w.opts.MetricsInterval.Seconds()
			successRate := 1.0
			if requests > 0 {
				successRate = float64(requests-failures) / float64(requests)
			}

			log.Info().Str("module", "worker").Str("worker_id", string(w.id)).
				Float64("throughput_rps", throughput).
				Dur("avg_latency", avgLatency).
				Float64("success_rate", successRate).
				Int("rooms", rooms).Int("capacity", w.opts.Capacity).
				Str("load", loadSeverity(rooms, w.opts.Capacity)).
				Msg("worker metrics")
		}
	}
}

// StatusSnapshot is the read-only view served by the status endpoint.
type StatusSnapshot struct {
	WorkerID string `json:"worker_id"`
	Rooms    int    `json:"rooms"`
	Capacity int    `json:"capacity"`
	Load     string `json:"load"`
}

func (w *Worker) StatusSnapshot() StatusSnapshot {
	w.mu.Lock()
	rooms := len(w.rooms)
	w.mu.Unlock()
	return StatusSnapshot{
		WorkerID: string(w.id),
		Rooms:    rooms,
		Capacity: w.opts.Capacity,
		Load:     loadSeverity(rooms, w.opts.Capacity),
	}
}
