// Package profiler - Stage timing and memory reporting for evaluation runs.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Profiler records the wall time of named stages and arbitrary numeric
// metrics of one run. It is safe for concurrent use.
type Profiler struct {
	mu         sync.Mutex
	startTime  time.Time
	operations map[string]*TimeTracker
	metrics    map[string]*MetricTracker
}

// TimeTracker tracks timing statistics of one operation.
type TimeTracker struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// MetricTracker tracks statistics of one custom metric.
type MetricTracker struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Mean returns the average recorded value.
func (m MetricTracker) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

// New creates a profiler whose uptime starts now.
func New() *Profiler {
	return &Profiler{
		startTime:  time.Now(),
		operations: make(map[string]*TimeTracker),
		metrics:    make(map[string]*MetricTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track.
//
// Returns:
// - A function to call when the operation completes.
//
// Example:
//
// ```go
//
//	done := p.StartOperation("evaluate")
//	summary, err := evaluation.EvaluateVOC(gt, dets, opts)
//	done()
//
// ```
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration adds one completed run of an operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operations[name]
	if !ok {
		t = &TimeTracker{Min: d, Max: d}
		p.operations[name] = t
	}
	t.Count++
	t.Total += d
	if d < t.Min {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
}

// RecordMetric records a custom metric value.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[name]
	if !ok {
		m = &MetricTracker{Min: value, Max: value}
		p.metrics[name] = m
	}
	m.Count++
	m.Sum += value
	if value < m.Min {
		m.Min = value
	}
	if value > m.Max {
		m.Max = value
	}
}

// Operation returns a copy of the tracker for name.
func (p *Profiler) Operation(name string) (TimeTracker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.operations[name]
	if !ok {
		return TimeTracker{}, false
	}
	return *t, true
}

// Metric returns a copy of the tracker for name.
func (p *Profiler) Metric(name string) (MetricTracker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.metrics[name]
	if !ok {
		return MetricTracker{}, false
	}
	return *m, true
}

// Report logs one line per operation and metric, in name order, followed by a
// runtime summary.
func (p *Profiler) Report(logger *zap.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range sortedKeys(p.operations) {
		t := p.operations[name]
		logger.Info("operation",
			zap.String("name", name),
			zap.Int64("count", t.Count),
			zap.Duration("total", t.Total),
			zap.Duration("min", t.Min),
			zap.Duration("max", t.Max))
	}
	for _, name := range sortedKeys(p.metrics) {
		m := p.metrics[name]
		logger.Info("metric",
			zap.String("name", name),
			zap.Int64("count", m.Count),
			zap.Float64("mean", m.Mean()),
			zap.Float64("min", m.Min),
			zap.Float64("max", m.Max))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	logger.Info("runtime",
		zap.Duration("uptime", time.Since(p.startTime)),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.String("heap_alloc", formatBytes(mem.HeapAlloc)),
		zap.String("total_alloc", formatBytes(mem.TotalAlloc)),
		zap.Uint32("gc_cycles", mem.NumGC))
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
