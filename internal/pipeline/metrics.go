package pipeline

import "sync"

// Metrics aggregates counters across concurrent document pipelines. All
// mutation goes through the mutex; batch workers share one instance.
type Metrics struct {
	mu             sync.Mutex
	totalProcessed int64
	successful     int64
	failed         int64
	autoApproved   int64
	manualReview   int64
	exceptions     int64
	totalLatencyMS int64
}

// MetricsSnapshot is a point-in-time copy safe to hand to callers.
type MetricsSnapshot struct {
	TotalProcessed int64   `json:"total_processed"`
	Successful     int64   `json:"successful"`
	Failed         int64   `json:"failed"`
	AutoApproved   int64   `json:"auto_approved"`
	ManualReview   int64   `json:"manual_review"`
	Exceptions     int64   `json:"exceptions"`
	AvgLatencyMS   float64 `json:"avg_processing_time_ms"`
}

func (m *Metrics) record(res *resultSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalProcessed++
	m.totalLatencyMS += res.elapsedMS
	if res.success {
		m.successful++
	} else {
		m.failed++
	}
	switch {
	case res.approved:
		m.autoApproved++
	case res.pending:
		m.manualReview++
	default:
		m.exceptions++
	}
}

type resultSummary struct {
	success   bool
	approved  bool
	pending   bool
	elapsedMS int64
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{
		TotalProcessed: m.totalProcessed,
		Successful:     m.successful,
		Failed:         m.failed,
		AutoApproved:   m.autoApproved,
		ManualReview:   m.manualReview,
		Exceptions:     m.exceptions,
	}
	if m.totalProcessed > 0 {
		snap.AvgLatencyMS = float64(m.totalLatencyMS) / float64(m.totalProcessed)
	}
	return snap
}
