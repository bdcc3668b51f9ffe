package flow

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	smoke "github.com/st-keller/galacash-smoke"
	"github.com/st-keller/galacash-smoke/export"
	"github.com/st-keller/galacash-smoke/types"
)

// Reporter receives progress from flows.
type Reporter interface {
	Flow(title string)
	Section(name string)
	Done(message string)
	Saved(f export.File)
}

type nopReporter struct{}

func (nopReporter) Flow(string)       {}
func (nopReporter) Section(string)    {}
func (nopReporter) Done(string)       {}
func (nopReporter) Saved(export.File) {}

// Session is what a flow runs with.
type Session struct {
	Client      *smoke.Client
	Token       string
	SaveDir     string // exports are saved here when set
	CurrentYear int
	KeepGoing   bool // record failed requests and continue instead of aborting
	Reporter    Reporter
	Logger      *zap.Logger
}

func (s *Session) reporter() Reporter {
	if s.Reporter == nil {
		return nopReporter{}
	}
	return s.Reporter
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// get issues an authenticated GET.
func (s *Session) get(ctx context.Context, path string, params types.Params, category string) (*smoke.Response, error) {
	return s.do(ctx, smoke.Call{
		Method:   http.MethodGet,
		Path:     path,
		Token:    s.Token,
		Params:   params,
		Category: category,
	})
}

// do runs a call. With KeepGoing, HTTP status failures are swallowed (they are
// already recorded by the client) and an empty response is returned.
func (s *Session) do(ctx context.Context, call smoke.Call) (*smoke.Response, error) {
	resp, err := s.Client.Do(ctx, call)
	if err == nil {
		return resp, nil
	}

	var herr *smoke.HTTPError
	if s.KeepGoing && errors.As(err, &herr) {
		s.logger().Warn("Continuing after failed request",
			zap.String("path", call.Path),
			zap.Int("status", herr.StatusCode),
		)
		if resp == nil {
			resp = &smoke.Response{StatusCode: herr.StatusCode}
		}
		resp.Body = nil
		return resp, nil
	}
	return nil, err
}
