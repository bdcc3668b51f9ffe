// Package stats tracks request outcomes and timings for a smoke run.
package stats

import (
	"sort"
	"sync"
	"time"
)

// maxFailures bounds the failures kept for the summary.
const maxFailures = 5

// Result is the outcome of a single request.
type Result struct {
	Title      string // "GET /transactions"
	Method     string
	Path       string
	Params     string
	Category   string
	StatusCode int
	Latency    time.Duration
	Body       interface{} // decoded response, or {"bytes": n} for binary responses
	RawBody    []byte      // JSON body as received; nil for binary or non-JSON responses
	RequestID  string
	At         time.Time
}

// OK reports whether the result counts as a success (2xx).
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type category struct {
	name      string
	count     int
	total     time.Duration
	latencies []time.Duration
}

// Recorder accumulates results. Safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	total      int
	successful int
	failed     int
	totalTime  time.Duration
	categories map[string]*category
	order      []string // first-seen order of categories
	failures   []Result
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		categories: make(map[string]*category),
	}
}

// Record adds a result and returns the running request count.
func (r *Recorder) Record(res Result) int {
	if res.Category == "" {
		res.Category = "general"
	}
	if res.At.IsZero() {
		res.At = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	r.totalTime += res.Latency
	if res.OK() {
		r.successful++
	} else {
		r.failed++
		r.failures = append(r.failures, res)
		if len(r.failures) > maxFailures {
			r.failures = r.failures[len(r.failures)-maxFailures:]
		}
	}

	cat, ok := r.categories[res.Category]
	if !ok {
		cat = &category{name: res.Category}
		r.categories[res.Category] = cat
		r.order = append(r.order, res.Category)
	}
	cat.count++
	cat.total += res.Latency
	cat.latencies = append(cat.latencies, res.Latency)

	return r.total
}

// Failed returns the number of failed requests so far.
func (r *Recorder) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// CategoryStats summarises one category.
type CategoryStats struct {
	Name  string
	Count int
	Total time.Duration
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

// Average returns the mean latency for the category.
func (c CategoryStats) Average() time.Duration {
	if c.Count == 0 {
		return 0
	}
	return c.Total / time.Duration(c.Count)
}

// Summary is a point-in-time copy of the recorder.
type Summary struct {
	Total      int
	Successful int
	Failed     int
	TotalTime  time.Duration
	Categories []CategoryStats // by count, descending
	Failures   []Result        // most recent last
}

// SuccessRate returns the share of successful requests in percent.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// Average returns the mean latency over all requests.
func (s Summary) Average() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Total)
}

// Snapshot copies the current state.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	cats := make([]CategoryStats, 0, len(r.order))
	for _, name := range r.order {
		c := r.categories[name]
		sorted := append([]time.Duration(nil), c.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		cats = append(cats, CategoryStats{
			Name:  c.name,
			Count: c.count,
			Total: c.total,
			P50:   percentile(sorted, 0.50),
			P95:   percentile(sorted, 0.95),
			Max:   percentile(sorted, 1),
		})
	}
	// Stable: equal counts keep first-seen order.
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Count > cats[j].Count })

	return Summary{
		Total:      r.total,
		Successful: r.successful,
		Failed:     r.failed,
		TotalTime:  r.totalTime,
		Categories: cats,
		Failures:   append([]Result(nil), r.failures...),
	}
}

// percentile calculates the percentile of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
