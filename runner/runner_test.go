package runner

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/st-keller/galacash-smoke/config"
	"github.com/st-keller/galacash-smoke/history"
	"github.com/st-keller/galacash-smoke/internal/fakeapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const requestDelay = time.Millisecond

type fakeSleeper struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d != requestDelay {
		f.pauses = append(f.pauses, d)
	}
	return ctx.Err()
}

func (f *fakeSleeper) long() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.pauses...)
}

type harness struct {
	api     *fakeapi.Server
	cfg     *config.Config
	out     *bytes.Buffer
	sleeper *fakeSleeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := fakeapi.New()
	t.Cleanup(api.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = api.BaseURL()
	cfg.Pacing.RequestDelay = requestDelay.String()
	return &harness{api: api, cfg: cfg, out: &bytes.Buffer{}, sleeper: &fakeSleeper{}}
}

func (h *harness) run(t *testing.T, ctx context.Context, opts ...Option) int {
	t.Helper()
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)

	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: tr}),
		WithSleeper(h.sleeper),
		WithLogger(zap.NewNop()),
		WithStdin(strings.NewReader("")),
	}, opts...)
	r, err := New(h.cfg, h.out, opts...)
	require.NoError(t, err)
	return r.Run(ctx)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "not a url"
	_, err := New(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunAllPassExitsZero(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, context.Background())
	assert.Equal(t, ExitOK, code)

	out := h.out.String()
	assert.Contains(t, out, "[OK] All tests passed!")
	assert.Contains(t, out, "USER FLOW - Comprehensive Endpoint Coverage")
	assert.Contains(t, out, "BENDAHARA FLOW - Comprehensive Endpoint Coverage")
	assert.NotContains(t, out, "EXTENDED FLOW")
	assert.Contains(t, out, "Total Requests:     88")

	assert.Equal(t, 2, h.api.Count("/auth/login"))
	assert.Equal(t, 1, h.api.Count("/auth/refresh"))
	assert.Zero(t, h.api.Count("/auth/me"))
	assert.Equal(t, []time.Duration{20 * time.Second, 60 * time.Second}, h.sleeper.long())

	for _, hit := range h.api.Hits() {
		if strings.HasPrefix(hit.Path, "/bendahara/") {
			assert.Equal(t, "Bearer access-1313699999", hit.Authorization)
		}
	}
}

func TestRunFailureExitsOne(t *testing.T) {
	h := newHarness(t)
	h.api.Fail("/labels", http.StatusInternalServerError)

	code := h.run(t, context.Background())
	assert.Equal(t, ExitFailed, code)

	out := h.out.String()
	assert.Contains(t, out, "[ERROR] Smoke test failed: user flow: HTTP 500 GET /labels")
	assert.Contains(t, out, "TEST SUMMARY")
	assert.Zero(t, h.api.Count("/bendahara/dashboard"), "first failure aborts the run")
}

func TestRunKeepGoingExitsOne(t *testing.T) {
	h := newHarness(t)
	h.cfg.KeepGoing = true
	h.api.Fail("/labels", http.StatusInternalServerError)

	code := h.run(t, context.Background())
	assert.Equal(t, ExitFailed, code)

	out := h.out.String()
	assert.Contains(t, out, "[WARN] 1 request(s) failed")
	assert.NotContains(t, out, "Smoke test failed")
	assert.Equal(t, 1, h.api.Count("/bendahara/dashboard"))
}

func TestRunUserConflictSkips(t *testing.T) {
	h := newHarness(t)
	h.api.QueueLogin(h.cfg.User.NIM, http.StatusConflict)

	code := h.run(t, context.Background())
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, h.out.String(), "[WARN] User login skipped (already active session)")
	assert.Equal(t, []string{"POST /auth/login"}, h.api.Paths(), "no flows after a conflict")
	assert.Empty(t, h.sleeper.long())
}

func TestRunUserRateLimitRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	h.api.QueueLogin(h.cfg.User.NIM,
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests)

	code := h.run(t, context.Background())
	assert.Equal(t, ExitFailed, code)

	assert.Equal(t, 3, h.api.Count("/auth/login"))
	assert.Equal(t, []time.Duration{15 * time.Second, 25 * time.Second}, h.sleeper.long())

	out := h.out.String()
	assert.Contains(t, out, "Rate limit hit for 1313600001. Waiting 15 seconds and retrying (attempt 1/3)...")
	assert.Contains(t, out, "Rate limit hit for 1313600001. Waiting 25 seconds and retrying (attempt 2/3)...")
	assert.Contains(t, out, "TIP: Rate limit exceeded!")
}

func TestRunUserRateLimitRecovers(t *testing.T) {
	h := newHarness(t)
	h.api.QueueLogin(h.cfg.User.NIM, http.StatusTooManyRequests)

	code := h.run(t, context.Background())
	// The 429 itself is a recorded failed request.
	assert.Equal(t, ExitFailed, code)
	assert.Equal(t, []time.Duration{15 * time.Second, 20 * time.Second, 60 * time.Second}, h.sleeper.long())
	assert.Equal(t, 1, h.api.Count("/bendahara/dashboard"))
}

func TestRunBendaharaFallsBackToUserToken(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			h := newHarness(t)
			queued := []int{status}
			if status == http.StatusTooManyRequests {
				queued = []int{status, status, status}
			}
			h.api.QueueLogin(h.cfg.Bendahara.NIM, queued...)

			h.run(t, context.Background())

			assert.Zero(t, h.api.Count("/auth/refresh"), "no refresh without bendahara tokens")
			assert.Contains(t, h.out.String(), "using user token")
			var checked bool
			for _, hit := range h.api.Hits() {
				if hit.Path == "/bendahara/dashboard" {
					checked = true
					assert.Equal(t, "Bearer access-1313600001", hit.Authorization)
				}
			}
			assert.True(t, checked)
		})
	}
}

func TestRunSameAccount(t *testing.T) {
	h := newHarness(t)
	h.cfg.Bendahara = h.cfg.User

	code := h.run(t, context.Background())
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, 1, h.api.Count("/auth/login"))
	assert.Equal(t, 1, h.api.Count("/auth/refresh"))
	assert.Equal(t, []time.Duration{60 * time.Second}, h.sleeper.long())
	assert.Contains(t, h.out.String(), "Using same account for both user and bendahara flows...")
}

func TestRunExtendedAndCheckMe(t *testing.T) {
	h := newHarness(t)
	h.cfg.Extended = true
	h.cfg.CheckMe = true

	code := h.run(t, context.Background())
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, 1, h.api.Count("/auth/me"))
	assert.Equal(t, 1, h.api.Count("/users/classmates"))
	assert.Equal(t, 1, h.api.Count("/cron/health"))
	assert.Contains(t, h.out.String(), "EXTENDED FLOW")
}

func TestRunWaitsForEnter(t *testing.T) {
	h := newHarness(t)
	h.cfg.WaitBeforeStart = true

	code := h.run(t, context.Background(), WithStdin(strings.NewReader("\n")))
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, h.out.String(), "[PAUSE] Press ENTER when ready to start")
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := h.run(t, ctx)
	assert.Equal(t, ExitFailed, code)
	assert.Empty(t, h.api.Hits())
}

func TestRunRecordsHistory(t *testing.T) {
	h := newHarness(t)
	h.cfg.HistoryDB = filepath.Join(t.TempDir(), "runs.db")
	h.api.Fail("/bendahara/rekap-kas", http.StatusInternalServerError)
	h.cfg.KeepGoing = true

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	code := h.run(t, context.Background(), WithClock(func() time.Time { return start }))
	require.Equal(t, ExitFailed, code)
	assert.Contains(t, h.out.String(), "[HISTORY] Run ")

	store, err := history.Open(context.Background(), h.cfg.HistoryDB)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ExitFailed, runs[0].ExitCode)
	assert.Equal(t, 88, runs[0].Summary.Total)
	assert.Equal(t, 5, runs[0].Summary.Failed)
	assert.True(t, runs[0].StartedAt.Equal(start))
	assert.NotEmpty(t, runs[0].Summary.Categories)
}
