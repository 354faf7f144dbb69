// Package baseline maintains per-metric rolling statistics and classifies
// new observations against them using a rolling Z-score.
package baseline

import (
	"math"
	"sort"
	"sync"
	"time"

	"FinMonitorAPI/internal/models"
)

const (
	// DefaultWindowSize bounds the rolling sample window per metric.
	DefaultWindowSize = 100
	// MinSamples gates anomaly decisions: below this the baseline is not
	// considered reliable and IsAnomaly always returns false.
	MinSamples = 10

	trendSamples = 10
)

// MetricBaseline holds the rolling window and derived statistics for one
// metric. All mutation goes through AddValue, which serializes concurrent
// callers with the baseline's own lock so unrelated metrics never contend.
type MetricBaseline struct {
	metric     string
	windowSize int
	minSamples int

	mu          sync.Mutex
	values      []float64
	mean        float64
	stdDev      float64
	min         float64
	max         float64
	sampleCount int64
	lastUpdated time.Time
}

func NewMetricBaseline(metric string, windowSize, minSamples int) *MetricBaseline {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if minSamples < 1 {
		minSamples = MinSamples
	}
	return &MetricBaseline{
		metric:     metric,
		windowSize: windowSize,
		minSamples: minSamples,
		values:     make([]float64, 0, windowSize),
		min:        math.Inf(1),
		max:        math.Inf(-1),
	}
}

// AddValue appends a sample, evicting the oldest once the window is full,
// and recomputes mean and standard deviation with a full pass over the
// current window. The window is small and bounded, so the exact recompute
// stays cheap.
func (b *MetricBaseline) AddValue(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.values) >= b.windowSize {
		b.values = b.values[1:]
	}
	b.values = append(b.values, v)
	b.sampleCount++

	if v < b.min {
		b.min = v
	}
	if v > b.max {
		b.max = v
	}

	b.recalculate()
	b.lastUpdated = time.Now()
}

// recalculate recomputes mean and population stddev over the live window.
// Callers must hold the lock.
func (b *MetricBaseline) recalculate() {
	n := len(b.values)
	if n == 0 {
		b.mean = 0
		b.stdDev = 0
		return
	}

	var sum float64
	for _, v := range b.values {
		sum += v
	}
	b.mean = sum / float64(n)

	var sumSq float64
	for _, v := range b.values {
		d := v - b.mean
		sumSq += d * d
	}
	b.stdDev = math.Sqrt(sumSq / float64(n))
}

// ZScore returns the standardized distance of v from the rolling mean.
// A flat signal (stddev of zero) yields 0, never a division by zero.
func (b *MetricBaseline) ZScore(v float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zScoreLocked(v)
}

func (b *MetricBaseline) zScoreLocked(v float64) float64 {
	if b.stdDev == 0 {
		return 0
	}
	return (v - b.mean) / b.stdDev
}

// IsAnomaly reports whether |zScore(v)| exceeds threshold. Always false
// until the window holds at least minSamples values.
func (b *MetricBaseline) IsAnomaly(v, threshold float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.values) < b.minSamples {
		return false
	}
	return math.Abs(b.zScoreLocked(v)) > threshold
}

// HasEnoughData reports whether the window has reached the reliability gate.
func (b *MetricBaseline) HasEnoughData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values) >= b.minSamples
}

// Percentile sorts a copy of the window and returns the p-th percentile
// (nearest-rank). Returns 0 for an empty window. Sorting per call is fine
// on this administrative read path.
func (b *MetricBaseline) Percentile(p float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.percentileLocked(p)
}

func (b *MetricBaseline) percentileLocked(p float64) float64 {
	n := len(b.values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, b.values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// TrendDirection compares the first and second half of the most recent
// samples (up to 10). Returns +1 rising, -1 falling, 0 flat or fewer than
// 3 samples. The shift must exceed half a standard deviation to count.
func (b *MetricBaseline) TrendDirection() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trendLocked()
}

func (b *MetricBaseline) trendLocked() int {
	n := len(b.values)
	if n < 3 {
		return 0
	}

	recent := b.values
	if n > trendSamples {
		recent = b.values[n-trendSamples:]
	}

	half := len(recent) / 2
	var firstSum, secondSum float64
	for _, v := range recent[:half] {
		firstSum += v
	}
	for _, v := range recent[half:] {
		secondSum += v
	}
	firstAvg := firstSum / float64(half)
	secondAvg := secondSum / float64(len(recent)-half)

	threshold := 0.5 * b.stdDev
	switch {
	case secondAvg-firstAvg > threshold:
		return 1
	case firstAvg-secondAvg > threshold:
		return -1
	default:
		return 0
	}
}

// Reset clears the window and derived statistics back to initial values.
func (b *MetricBaseline) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values = b.values[:0]
	b.mean = 0
	b.stdDev = 0
	b.min = math.Inf(1)
	b.max = math.Inf(-1)
	b.sampleCount = 0
	b.lastUpdated = time.Time{}
}

// Summary returns an immutable snapshot for dashboards and alert synthesis.
// The mutable window is never exposed.
func (b *MetricBaseline) Summary() models.BaselineSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	min, max := b.min, b.max
	if len(b.values) == 0 {
		min, max = 0, 0
	}

	return models.BaselineSummary{
		Metric:        b.metric,
		Mean:          b.mean,
		StdDev:        b.stdDev,
		Min:           min,
		Max:           max,
		SampleCount:   b.sampleCount,
		WindowSize:    len(b.values),
		P50:           b.percentileLocked(50),
		P95:           b.percentileLocked(95),
		P99:           b.percentileLocked(99),
		Trend:         b.trendLocked(),
		HasEnoughData: len(b.values) >= b.minSamples,
		LastUpdated:   b.lastUpdated,
	}
}

// WindowLen returns the number of samples currently held.
func (b *MetricBaseline) WindowLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// SampleCount returns the monotonic total of observations ever added.
func (b *MetricBaseline) SampleCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleCount
}
