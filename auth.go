package smoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/st-keller/galacash-smoke/pause"
	"github.com/st-keller/galacash-smoke/types"
)

// Login authenticates with NIM and password.
//
// Tokens are read from data.accessToken/data.refreshToken, falling back to the
// accessToken/refreshToken cookies the API sets. A 409 yields ErrAlreadyLoggedIn.
// A 429 is retried on the LoginBackoff schedule; when attempts run out the
// result is ErrRateLimited. Other failures are returned as they are.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*types.Tokens, error) {
	backoff := c.opts.LoginBackoff

	for attempt := 0; ; attempt++ {
		resp, err := c.Do(ctx, Call{
			Method:   http.MethodPost,
			Path:     "/auth/login",
			JSON:     map[string]string{"nim": creds.NIM, "password": creds.Password},
			Category: "auth",
		})
		if err == nil {
			return tokensFrom(resp)
		}

		var herr *HTTPError
		if !errors.As(err, &herr) {
			return nil, err
		}

		switch herr.StatusCode {
		case http.StatusConflict:
			c.logger.Info("Login conflict, session already active", zap.String("nim", creds.NIM))
			return nil, fmt.Errorf("%w: %s", ErrAlreadyLoggedIn, creds.NIM)

		case http.StatusTooManyRequests:
			if backoff.Last(attempt) {
				c.notice("Rate limit exceeded for %s after %d attempts.", creds.NIM, attempt+1)
				return nil, fmt.Errorf("%w: %s after %d attempts", ErrRateLimited, creds.NIM, attempt+1)
			}
			delay := backoff.Delay(attempt)
			c.notice("Rate limit hit for %s. Waiting %.0f seconds and retrying (attempt %d/%d)...",
				creds.NIM, delay.Seconds(), attempt+1, backoff.Attempts)
			c.logger.Debug("Login backoff",
				zap.String("pause", pause.LoginRetry.String()),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
			)
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				return nil, err
			}

		default:
			return nil, err
		}
	}
}

// Refresh exchanges a refresh token for a new access token. The token is sent
// both in the JSON body and as the refreshToken cookie.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.Do(ctx, Call{
		Method:   http.MethodPost,
		Path:     "/auth/refresh",
		JSON:     map[string]string{"refreshToken": refreshToken},
		Cookies:  []*http.Cookie{{Name: "refreshToken", Value: refreshToken}},
		Category: "auth",
	})
	if err != nil {
		return "", err
	}

	if token, ok := types.StringAt(resp.Body, "data", "accessToken"); ok {
		return token, nil
	}
	if token, ok := resp.Cookie("accessToken"); ok {
		return token, nil
	}
	return "", fmt.Errorf("refresh: %w", ErrNoToken)
}

// Me fetches the current user's profile.
func (c *Client) Me(ctx context.Context, accessToken string) (types.Body, error) {
	resp, err := c.Get(ctx, "/auth/me", accessToken, nil, "auth")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func tokensFrom(resp *Response) (*types.Tokens, error) {
	tokens := &types.Tokens{}

	if v, ok := types.StringAt(resp.Body, "data", "accessToken"); ok {
		tokens.AccessToken = v
	} else if v, ok := resp.Cookie("accessToken"); ok {
		tokens.AccessToken = v
	}

	if v, ok := types.StringAt(resp.Body, "data", "refreshToken"); ok {
		tokens.RefreshToken = v
	} else if v, ok := resp.Cookie("refreshToken"); ok {
		tokens.RefreshToken = v
	}

	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("login: %w", ErrNoToken)
	}
	return tokens, nil
}
