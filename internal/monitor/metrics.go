package monitor

import (
	"slices"
	"sync"
	"time"

	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/tracker"
)

const maxElapsedSamples = 1000

// Metrics accumulates probe statistics across check runs.
type Metrics struct {
	mu sync.RWMutex

	// Run metrics
	TotalRuns   int64
	AbortedRuns int64
	LastRunID   string
	LastRunTime time.Time

	// Endpoint metrics
	TotalEndpoints int64
	Reachable      int64
	Unreachable    int64
	TotalAttempts  int64

	FailuresByType map[string]int64
	SchemeStats    map[string]*SchemeMetrics

	// Elapsed time metrics (reachable endpoints only)
	ElapsedSamples []time.Duration
	TotalElapsed   time.Duration
	MinElapsed     time.Duration
	MaxElapsed     time.Duration

	StartTime time.Time
}

// SchemeMetrics tracks results for one tracker scheme.
type SchemeMetrics struct {
	Total       int64 `json:"total"`
	Reachable   int64 `json:"reachable"`
	Unreachable int64 `json:"unreachable"`
	Attempts    int64 `json:"attempts"`
}

// Snapshot is a point-in-time copy safe to serialize.
type Snapshot struct {
	TotalRuns      int64                    `json:"total_runs"`
	AbortedRuns    int64                    `json:"aborted_runs"`
	LastRunID      string                   `json:"last_run_id,omitempty"`
	LastRunTime    time.Time                `json:"last_run_time,omitempty"`
	TotalEndpoints int64                    `json:"total_endpoints"`
	Reachable      int64                    `json:"reachable"`
	Unreachable    int64                    `json:"unreachable"`
	TotalAttempts  int64                    `json:"total_attempts"`
	SuccessRate    float64                  `json:"success_rate"`
	FailuresByType map[string]int64         `json:"failures_by_type"`
	Schemes        map[string]SchemeMetrics `json:"schemes"`
	AvgElapsedMs   int64                    `json:"avg_elapsed_ms"`
	MinElapsedMs   int64                    `json:"min_elapsed_ms"`
	MaxElapsedMs   int64                    `json:"max_elapsed_ms"`
	P95ElapsedMs   int64                    `json:"p95_elapsed_ms"`
	StartTime      time.Time                `json:"start_time"`
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		FailuresByType: make(map[string]int64),
		SchemeStats:    make(map[string]*SchemeMetrics),
		StartTime:      time.Now(),
	}
}

// EndpointDone records one verdict. It satisfies checker.Notifier.
func (m *Metrics) EndpointDone(v checker.Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalEndpoints++
	m.TotalAttempts += int64(v.Attempts)

	scheme := v.Endpoint.Scheme.String()
	stats := m.SchemeStats[scheme]
	if stats == nil {
		stats = &SchemeMetrics{}
		m.SchemeStats[scheme] = stats
	}
	stats.Total++
	stats.Attempts += int64(v.Attempts)

	if !v.Reachable {
		m.Unreachable++
		stats.Unreachable++
		for _, err := range v.Failures {
			m.FailuresByType[tracker.TypeOf(err).String()]++
		}
		return
	}

	m.Reachable++
	stats.Reachable++

	m.TotalElapsed += v.Elapsed
	m.ElapsedSamples = append(m.ElapsedSamples, v.Elapsed)
	if len(m.ElapsedSamples) > maxElapsedSamples {
		m.ElapsedSamples = m.ElapsedSamples[len(m.ElapsedSamples)-maxElapsedSamples:]
	}
	if m.MinElapsed == 0 || v.Elapsed < m.MinElapsed {
		m.MinElapsed = v.Elapsed
	}
	if v.Elapsed > m.MaxElapsed {
		m.MaxElapsed = v.Elapsed
	}
}

// RecordRun records the end of a run; err is the run's defect error, if any.
func (m *Metrics) RecordRun(report *checker.Report, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRuns++
	m.LastRunTime = time.Now()
	if err != nil {
		m.AbortedRuns++
		return
	}
	if report != nil {
		m.LastRunID = report.RunID
	}
}

// GetSuccessRate calculates the reachable share as a percentage
func (m *Metrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.successRateUnlocked()
}

func (m *Metrics) successRateUnlocked() float64 {
	if m.TotalEndpoints == 0 {
		return 0
	}
	return float64(m.Reachable) / float64(m.TotalEndpoints) * 100
}

// GetP95Elapsed returns the 95th percentile of recent reachable elapsed times.
func (m *Metrics) GetP95Elapsed() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.p95Unlocked()
}

func (m *Metrics) p95Unlocked() time.Duration {
	if len(m.ElapsedSamples) == 0 {
		return 0
	}
	sorted := slices.Clone(m.ElapsedSamples)
	slices.Sort(sorted)
	index := int(float64(len(sorted)) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		TotalRuns:      m.TotalRuns,
		AbortedRuns:    m.AbortedRuns,
		LastRunID:      m.LastRunID,
		LastRunTime:    m.LastRunTime,
		TotalEndpoints: m.TotalEndpoints,
		Reachable:      m.Reachable,
		Unreachable:    m.Unreachable,
		TotalAttempts:  m.TotalAttempts,
		SuccessRate:    m.successRateUnlocked(),
		FailuresByType: make(map[string]int64, len(m.FailuresByType)),
		Schemes:        make(map[string]SchemeMetrics, len(m.SchemeStats)),
		MinElapsedMs:   m.MinElapsed.Milliseconds(),
		MaxElapsedMs:   m.MaxElapsed.Milliseconds(),
		P95ElapsedMs:   m.p95Unlocked().Milliseconds(),
		StartTime:      m.StartTime,
	}
	if m.Reachable > 0 {
		s.AvgElapsedMs = (m.TotalElapsed / time.Duration(m.Reachable)).Milliseconds()
	}
	for k, v := range m.FailuresByType {
		s.FailuresByType[k] = v
	}
	for k, v := range m.SchemeStats {
		s.Schemes[k] = *v
	}
	return s
}
