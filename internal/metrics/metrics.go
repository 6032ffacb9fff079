// Package metrics implements the process-wide ProcessingMetrics record
// (§3): an in-memory, mutex-guarded counter set with an additive
// Prometheus export, grounded on the teacher's promauto vectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorType is one of the fixed buckets errorsByType counts against.
type ErrorType string

const (
	ParsingError         ErrorType = "ParsingError"
	ValidationError      ErrorType = "ValidationError"
	ValidationException  ErrorType = "ValidationException"
	DatabaseError        ErrorType = "DatabaseError"
	UnexpectedError      ErrorType = "UnexpectedError"
)

const rollingWindow = 100

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_processor_messages_total",
			Help: "Total number of input messages consumed, by outcome",
		},
		[]string{"outcome"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_processor_errors_total",
			Help: "Total number of pipeline errors, by type",
		},
		[]string{"type"},
	)

	processingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swift_processor_processing_duration_seconds",
			Help:    "End-to-end pipeline processing duration per message",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Snapshot is a point-in-time, read-only copy of ProcessingMetrics
// suitable for embedding in ProcessStatus or a JSON response.
type Snapshot struct {
	TotalProcessed          int64
	TotalFailed             int64
	AverageProcessingTimeMs float64
	MessagesPerMinute       float64
	ErrorsByType            map[ErrorType]int64
	LastUpdated             time.Time
}

// ProcessingMetrics is the process-wide metrics register (§3). All
// mutating methods are safe for concurrent use.
type ProcessingMetrics struct {
	mu sync.Mutex

	totalProcessed int64
	totalFailed    int64
	errorsByType   map[ErrorType]int64

	recentDurationsMs [rollingWindow]float64
	recentCount       int
	recentIndex       int

	metricsStartTime time.Time
	lastUpdated      time.Time
}

// New builds a ProcessingMetrics with metricsStartTime pinned to now.
func New() *ProcessingMetrics {
	now := time.Now().UTC()
	return &ProcessingMetrics{
		errorsByType:     make(map[ErrorType]int64),
		metricsStartTime: now,
		lastUpdated:      now,
	}
}

// RecordSuccess records one successfully processed message and its
// end-to-end duration, folding it into the rolling average over the
// last 100 successful runs.
func (m *ProcessingMetrics) RecordSuccess(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalProcessed++
	m.recentDurationsMs[m.recentIndex] = float64(duration.Milliseconds())
	m.recentIndex = (m.recentIndex + 1) % rollingWindow
	if m.recentCount < rollingWindow {
		m.recentCount++
	}
	m.lastUpdated = time.Now().UTC()

	messagesTotal.WithLabelValues("processed").Inc()
	processingDuration.Observe(duration.Seconds())
}

// RecordFailure records one failed message under the given error type.
func (m *ProcessingMetrics) RecordFailure(errType ErrorType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalFailed++
	m.errorsByType[errType]++
	m.lastUpdated = time.Now().UTC()

	messagesTotal.WithLabelValues("failed").Inc()
	errorsTotal.WithLabelValues(string(errType)).Inc()
}

// Snapshot returns a consistent copy of the current metrics.
func (m *ProcessingMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	for i := 0; i < m.recentCount; i++ {
		sum += m.recentDurationsMs[i]
	}
	avg := 0.0
	if m.recentCount > 0 {
		avg = sum / float64(m.recentCount)
	}

	elapsedMinutes := time.Since(m.metricsStartTime).Minutes()
	perMinute := 0.0
	if elapsedMinutes > 0 {
		perMinute = float64(m.totalProcessed+m.totalFailed) / elapsedMinutes
	}

	errors := make(map[ErrorType]int64, len(m.errorsByType))
	for k, v := range m.errorsByType {
		errors[k] = v
	}

	return Snapshot{
		TotalProcessed:          m.totalProcessed,
		TotalFailed:             m.totalFailed,
		AverageProcessingTimeMs: avg,
		MessagesPerMinute:       perMinute,
		ErrorsByType:            errors,
		LastUpdated:             m.lastUpdated,
	}
}
