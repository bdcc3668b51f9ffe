package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	assert.Equal(t, 1, r.Record(Result{Title: "GET /labels", Category: "labels", StatusCode: 200, Latency: ms(10)}))
	assert.Equal(t, 2, r.Record(Result{Title: "GET /labels/x", Category: "labels", StatusCode: 204, Latency: ms(30)}))
	assert.Equal(t, 3, r.Record(Result{Title: "GET /cash-bills [ERROR]", Category: "cash-bills", StatusCode: 500, Latency: ms(20)}))

	s := r.Snapshot()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, r.Failed())
	assert.Equal(t, ms(60), s.TotalTime)
	assert.Equal(t, ms(20), s.Average())
	assert.InDelta(t, 66.666, s.SuccessRate(), 0.01)

	require.Len(t, s.Failures, 1)
	assert.Equal(t, 500, s.Failures[0].StatusCode)
}

func TestRecorderEmpty(t *testing.T) {
	s := NewRecorder().Snapshot()
	assert.Zero(t, s.Total)
	assert.Zero(t, s.SuccessRate())
	assert.Zero(t, s.Average())
	assert.Empty(t, s.Categories)
}

func TestRecorderDefaultsCategory(t *testing.T) {
	r := NewRecorder()
	r.Record(Result{StatusCode: 200})

	s := r.Snapshot()
	require.Len(t, s.Categories, 1)
	assert.Equal(t, "general", s.Categories[0].Name)
}

func TestSnapshotSortsByCountStable(t *testing.T) {
	r := NewRecorder()
	for _, c := range []string{"auth", "dashboard", "labels", "labels", "dashboard", "exports"} {
		r.Record(Result{Category: c, StatusCode: 200})
	}

	var names []string
	for _, c := range r.Snapshot().Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"dashboard", "labels", "auth", "exports"}, names)
}

func TestCategoryPercentiles(t *testing.T) {
	r := NewRecorder()
	for i := 1; i <= 20; i++ {
		r.Record(Result{Category: "transactions", StatusCode: 200, Latency: ms(i * 10)})
	}

	s := r.Snapshot()
	require.Len(t, s.Categories, 1)
	c := s.Categories[0]
	assert.Equal(t, 20, c.Count)
	assert.Equal(t, ms(100), c.P50)
	assert.Equal(t, ms(190), c.P95)
	assert.Equal(t, ms(200), c.Max)
	assert.Equal(t, ms(105), c.Average())
}

func TestFailuresBounded(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < 8; i++ {
		r.Record(Result{Title: fmt.Sprintf("req-%d", i), StatusCode: 404})
	}

	s := r.Snapshot()
	require.Len(t, s.Failures, maxFailures)
	assert.Equal(t, "req-3", s.Failures[0].Title)
	assert.Equal(t, "req-7", s.Failures[maxFailures-1].Title)
}

func TestResultOK(t *testing.T) {
	assert.True(t, Result{StatusCode: 200}.OK())
	assert.True(t, Result{StatusCode: 299}.OK())
	assert.False(t, Result{StatusCode: 0}.OK())
	assert.False(t, Result{StatusCode: 301}.OK())
	assert.False(t, Result{StatusCode: 409}.OK())
}
