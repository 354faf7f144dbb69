package baseline

import (
	"sort"
	"sync"

	"FinMonitorAPI/internal/models"
)

// Registry owns one MetricBaseline per metric name, created lazily on
// first observation. The map is guarded by an RWMutex; per-sample work is
// serialized inside each baseline's own lock, so two metrics never block
// each other past the map lookup.
type Registry struct {
	windowSize int
	minSamples int

	mu        sync.RWMutex
	baselines map[string]*MetricBaseline
}

func NewRegistry(windowSize, minSamples int) *Registry {
	return &Registry{
		windowSize: windowSize,
		minSamples: minSamples,
		baselines:  make(map[string]*MetricBaseline),
	}
}

// Get returns the baseline for metric, creating it on first use.
func (r *Registry) Get(metric string) *MetricBaseline {
	r.mu.RLock()
	b, ok := r.baselines[metric]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.baselines[metric]; ok {
		return b
	}
	b = NewMetricBaseline(metric, r.windowSize, r.minSamples)
	r.baselines[metric] = b
	return b
}

// Observe records a sample and reports whether it is anomalous at the
// given Z-score threshold, plus the score itself. The anomaly check runs
// against the window that already includes the new sample.
func (r *Registry) Observe(metric string, value, threshold float64) (bool, float64) {
	b := r.Get(metric)
	b.AddValue(value)
	return b.IsAnomaly(value, threshold), b.ZScore(value)
}

// Lookup returns the baseline without creating one.
func (r *Registry) Lookup(metric string) (*MetricBaseline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.baselines[metric]
	return b, ok
}

// Summaries snapshots every tracked metric, sorted by name.
func (r *Registry) Summaries() []models.BaselineSummary {
	r.mu.RLock()
	baselines := make([]*MetricBaseline, 0, len(r.baselines))
	for _, b := range r.baselines {
		baselines = append(baselines, b)
	}
	r.mu.RUnlock()

	summaries := make([]models.BaselineSummary, 0, len(baselines))
	for _, b := range baselines {
		summaries = append(summaries, b.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Metric < summaries[j].Metric
	})
	return summaries
}

// Reset clears the named baseline. Returns false for unknown metrics.
func (r *Registry) Reset(metric string) bool {
	r.mu.RLock()
	b, ok := r.baselines[metric]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Len reports how many metrics are tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.baselines)
}
