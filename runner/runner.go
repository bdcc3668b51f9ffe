// Package runner drives a complete smoke run: banner, logins, pacing, flows,
// summary, optional history and the process exit code.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	smoke "github.com/st-keller/galacash-smoke"
	"github.com/st-keller/galacash-smoke/config"
	"github.com/st-keller/galacash-smoke/flow"
	"github.com/st-keller/galacash-smoke/history"
	"github.com/st-keller/galacash-smoke/pause"
	"github.com/st-keller/galacash-smoke/report"
	"github.com/st-keller/galacash-smoke/transport"
	"github.com/st-keller/galacash-smoke/types"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// Runner runs one smoke test.
type Runner struct {
	cfg      *config.Config
	client   *smoke.Client
	printer  *report.Printer
	registry *flow.Registry
	sleeper  pause.Sleeper
	stdin    io.Reader
	logger   *zap.Logger
	now      func() time.Time

	httpClient *http.Client
}

// Option configures a Runner.
type Option func(*Runner)

// WithStdin sets where the start prompt reads ENTER from (default os.Stdin).
func WithStdin(r io.Reader) Option {
	return func(rn *Runner) { rn.stdin = r }
}

// WithSleeper replaces real pauses.
func WithSleeper(s pause.Sleeper) Option {
	return func(rn *Runner) { rn.sleeper = s }
}

// WithHTTPClient skips building a client from the HTTP config.
func WithHTTPClient(h *http.Client) Option {
	return func(rn *Runner) { rn.httpClient = h }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(rn *Runner) { rn.logger = l }
}

// WithRegistry replaces the default flows.
func WithRegistry(r *flow.Registry) Option {
	return func(rn *Runner) { rn.registry = r }
}

// WithClock sets the clock used for history timestamps and certificate expiry.
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) { rn.now = now }
}

// New validates cfg and wires a Runner that prints to out.
func New(cfg *config.Config, out io.Writer, options ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		printer: report.New(out, cfg.Verbose),
		sleeper: pause.Real{},
		stdin:   os.Stdin,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.registry == nil {
		r.registry = flow.Default(cfg.Extended)
	}

	if r.httpClient == nil {
		h, err := transport.BuildHTTPClient(transport.Options{
			Timeout:    cfg.GetTimeout(),
			CACertPath: cfg.HTTP.CACert,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		r.httpClient = h
	}

	client, err := smoke.New(smoke.Options{
		BaseURL:      cfg.BaseURL,
		RequestDelay: cfg.GetRequestDelay(),
		LoginBackoff: pause.Backoff{
			Initial:  cfg.GetLoginRetryDelay(),
			Step:     cfg.GetLoginRetryStep(),
			Attempts: cfg.Pacing.LoginAttempts,
		},
	},
		smoke.WithHTTPClient(r.httpClient),
		smoke.WithLogger(r.logger.Named("client")),
		smoke.WithSleeper(r.sleeper),
		smoke.WithResultHook(r.printer.RequestLogged),
		smoke.WithNoticeHook(r.printer.Warn),
	)
	if err != nil {
		return nil, err
	}
	r.client = client
	return r, nil
}

// Client returns the API client the run uses.
func (r *Runner) Client() *smoke.Client {
	return r.client
}

// Run executes the smoke test and returns the process exit code.
func (r *Runner) Run(ctx context.Context) int {
	started := r.now()
	r.printer.Banner(r.cfg.BaseURL, r.cfg.Verbose, r.cfg.SaveDir)

	skipped, err := r.run(ctx)
	sum := r.client.Recorder().Snapshot()

	code := ExitOK
	switch {
	case err != nil:
		code = ExitFailed
		r.logger.Error("Smoke run failed", zap.Error(err))
		r.printer.Failure(err)
		r.printer.Summary(sum, r.cfg.SaveDir)
	case skipped:
		r.logger.Info("Smoke run skipped")
	default:
		r.printer.Summary(sum, r.cfg.SaveDir)
		r.printer.Verdict(sum.Failed)
		if sum.Failed > 0 {
			code = ExitFailed
		}
	}

	if cm, ok := transport.MonitorOf(r.httpClient); ok {
		if info, seen := cm.Certificate(r.now()); seen {
			r.printer.Certificate(info)
			if info.IsExpired || info.ExpiryWarning {
				r.logger.Warn("Server certificate expires soon",
					zap.String("subject", info.Subject),
					zap.Time("valid_until", info.ValidUntil),
				)
			}
		}
	}

	r.recordHistory(ctx, history.Run{
		StartedAt:  started,
		FinishedAt: r.now(),
		BaseURL:    r.cfg.BaseURL,
		ExitCode:   code,
		Error:      errString(err),
		Summary:    sum,
	})
	return code
}

// run reports skipped when the user session is already active.
func (r *Runner) run(ctx context.Context) (skipped bool, err error) {
	if r.cfg.WaitBeforeStart {
		r.printer.Prompt()
		if _, err := bufio.NewReader(r.stdin).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	tokens, err := r.authenticate(ctx)
	if errors.Is(err, smoke.ErrAlreadyLoggedIn) {
		r.printer.Warn("User login skipped (already active session)")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.pause(ctx, pause.RateLimitReset, r.cfg.GetRateLimitReset(),
		"Waiting %s for rate limiter to reset..."); err != nil {
		return false, err
	}

	for _, name := range r.registry.Names() {
		f, role, _ := r.registry.Get(name)
		s := &flow.Session{
			Client:      r.client,
			Token:       tokens[role],
			SaveDir:     r.cfg.SaveDir,
			CurrentYear: r.cfg.CurrentYear,
			KeepGoing:   r.cfg.KeepGoing,
			Reporter:    r.printer,
			Logger:      r.logger.Named("flow").With(zap.String("flow", name)),
		}
		r.logger.Debug("Running flow", zap.String("flow", name), zap.String("role", string(role)))
		if err := f(ctx, s); err != nil {
			return false, fmt.Errorf("%s flow: %w", name, err)
		}
	}
	return false, nil
}

// authenticate logs both roles in and returns the access token per role.
// A bendahara that cannot log in falls back to the user token.
func (r *Runner) authenticate(ctx context.Context) (map[types.Role]string, error) {
	r.printer.Section("AUTHENTICATION")
	r.printer.Info("Logging in user %s...", r.cfg.User.NIM)
	user, err := r.client.Login(ctx, r.cfg.User)
	if err != nil {
		return nil, err
	}
	tokens := map[types.Role]string{
		types.RoleUser:      user.AccessToken,
		types.RoleBendahara: user.AccessToken,
	}

	var bendahara *types.Tokens
	if r.cfg.SameAccount() {
		r.printer.Info("Using same account for both user and bendahara flows...")
		bendahara = user
	} else {
		if err := r.pause(ctx, pause.BetweenLogins, r.cfg.GetLoginGap(),
			"Waiting %s to avoid rate limit..."); err != nil {
			return nil, err
		}
		r.printer.Info("Logging in bendahara %s...", r.cfg.Bendahara.NIM)
		bendahara, err = r.client.Login(ctx, r.cfg.Bendahara)
		switch {
		case errors.Is(err, smoke.ErrRateLimited):
			r.printer.Warn("Rate limit exceeded. Skipping bendahara tests and using user token only.")
			bendahara = nil
		case errors.Is(err, smoke.ErrAlreadyLoggedIn):
			r.printer.Warn("Bendahara login skipped (already active), using user token for demo")
			bendahara = nil
		case err != nil:
			return nil, err
		}
	}

	if bendahara != nil {
		tokens[types.RoleBendahara] = bendahara.AccessToken
		if bendahara.RefreshToken != "" {
			r.printer.Info("Testing token refresh...")
			if _, err := r.client.Refresh(ctx, bendahara.RefreshToken); err != nil && !r.tolerate(err) {
				return nil, err
			}
		}
	}

	if r.cfg.CheckMe {
		r.printer.Info("Checking current user...")
		if _, err := r.client.Me(ctx, user.AccessToken); err != nil && !r.tolerate(err) {
			return nil, err
		}
	}
	return tokens, nil
}

// tolerate reports whether err is a recorded HTTP failure the run may continue past.
func (r *Runner) tolerate(err error) bool {
	var herr *smoke.HTTPError
	if r.cfg.KeepGoing && errors.As(err, &herr) {
		r.logger.Warn("Continuing after failed request", zap.String("path", herr.Path), zap.Int("status", herr.StatusCode))
		return true
	}
	return false
}

func (r *Runner) pause(ctx context.Context, kind pause.Kind, d time.Duration, message string) error {
	if d <= 0 {
		return ctx.Err()
	}
	r.printer.Info(message, d)
	r.logger.Debug("Pausing", zap.Stringer("pause", kind), zap.Duration("duration", d))
	return r.sleeper.Sleep(ctx, d)
}

func (r *Runner) recordHistory(ctx context.Context, run history.Run) {
	if r.cfg.HistoryDB == "" {
		return
	}
	// Record even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)

	store, err := history.Open(ctx, r.cfg.HistoryDB)
	if err != nil {
		r.logger.Warn("Failed to open run history", zap.String("path", r.cfg.HistoryDB), zap.Error(err))
		return
	}
	defer store.Close()

	id, err := store.Record(ctx, run)
	if err != nil {
		r.logger.Warn("Failed to record run", zap.Error(err))
		return
	}
	r.printer.Info("[HISTORY] Run %s recorded in %s", id, store.Path())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
