// Package pause defines the fixed waits that keep a smoke run under the API's rate limits.
package pause

import (
	"context"
	"fmt"
	"time"
)

// Kind names a pause in the run so logs can say why the run is idle.
type Kind int

const (
	BetweenRequests Kind = iota // before every request
	BetweenLogins               // between user and bendahara login
	RateLimitReset              // after authentication, before the flows
	LoginRetry                  // after a 429 on /auth/login
)

// String returns string representation.
func (k Kind) String() string {
	switch k {
	case BetweenRequests:
		return "between-requests"
	case BetweenLogins:
		return "between-logins"
	case RateLimitReset:
		return "rate-limit-reset"
	case LoginRetry:
		return "login-retry"
	default:
		return fmt.Sprintf("Invalid(%d)", int(k))
	}
}

// Sleeper waits for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Real sleeps on a timer. Non-positive durations return immediately.
type Real struct{}

// Sleep implements Sleeper.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the linear retry schedule used for rate-limited logins:
// Initial before the second attempt, growing by Step for every attempt after that.
type Backoff struct {
	Initial  time.Duration
	Step     time.Duration
	Attempts int
}

// Delay returns the wait after the given zero-based failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return b.Initial + time.Duration(attempt)*b.Step
}

// Last reports whether attempt is the final one allowed.
func (b Backoff) Last(attempt int) bool {
	return attempt >= b.Attempts-1
}
