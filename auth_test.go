package smoke

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/galacash-smoke/internal/fakeapi"
	"github.com/st-keller/galacash-smoke/types"
)

var student = types.Credentials{NIM: "1313600001", Password: "password123"}

func TestLoginTokensFromBody(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()

	c, _ := newTestClient(t, api.BaseURL())
	tokens, err := c.Login(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, "access-1313600001", tokens.AccessToken)
	assert.Equal(t, "refresh-1313600001", tokens.RefreshToken)

	s := c.Recorder().Snapshot()
	require.Len(t, s.Categories, 1)
	assert.Equal(t, "auth", s.Categories[0].Name)
}

func TestLoginTokensFromCookies(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.TokensInCookies(true)

	c, _ := newTestClient(t, api.BaseURL())
	tokens, err := c.Login(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, "access-1313600001", tokens.AccessToken)
	assert.Equal(t, "refresh-1313600001", tokens.RefreshToken)

	_, err = c.Get(context.Background(), "/dashboard/summary", tokens.AccessToken, nil, "dashboard")
	assert.NoError(t, err)
}

func TestLoginConflict(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.QueueLogin(student.NIM, http.StatusConflict)

	c, sleeper := newTestClient(t, api.BaseURL())
	tokens, err := c.Login(context.Background(), student)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
	assert.Equal(t, 1, api.Count("/auth/login"), "409 is not retried")
	assert.Empty(t, sleeper.without(testDelay))
}

func TestLoginRetriesRateLimit(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.QueueLogin(student.NIM, http.StatusTooManyRequests, http.StatusTooManyRequests)

	var notices []string
	c, sleeper := newTestClient(t, api.BaseURL(), WithNoticeHook(func(s string) { notices = append(notices, s) }))

	tokens, err := c.Login(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, "access-1313600001", tokens.AccessToken)

	assert.Equal(t, 3, api.Count("/auth/login"))
	assert.Equal(t, []time.Duration{15 * time.Second, 25 * time.Second}, sleeper.without(testDelay))
	require.Len(t, notices, 2)
	assert.Contains(t, notices[0], "Waiting 15 seconds")
	assert.Contains(t, notices[0], "attempt 1/3")
	assert.Contains(t, notices[1], "Waiting 25 seconds")

	s := c.Recorder().Snapshot()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Failed)
}

func TestLoginGivesUpAfterAttempts(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.QueueLogin(student.NIM, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests)

	c, sleeper := newTestClient(t, api.BaseURL())
	_, err := c.Login(context.Background(), student)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, api.Count("/auth/login"), "bounded by LoginBackoff.Attempts")
	assert.Equal(t, []time.Duration{15 * time.Second, 25 * time.Second}, sleeper.without(testDelay))
}

func TestLoginOtherErrorPropagates(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.QueueLogin(student.NIM, http.StatusUnauthorized)

	c, _ := newTestClient(t, api.BaseURL())
	_, err := c.Login(context.Background(), student)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAlreadyLoggedIn))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 1, api.Count("/auth/login"))
}

func TestRefreshBodyAndCookie(t *testing.T) {
	for _, cookies := range []bool{false, true} {
		api := fakeapi.New()
		api.TokensInCookies(cookies)

		c, _ := newTestClient(t, api.BaseURL())
		tokens, err := c.Login(context.Background(), student)
		require.NoError(t, err)

		access, err := c.Refresh(context.Background(), tokens.RefreshToken)
		require.NoError(t, err, "cookies=%v", cookies)
		assert.Equal(t, "access2-1313600001", access)

		_, err = c.Get(context.Background(), "/dashboard/summary", access, nil, "dashboard")
		assert.NoError(t, err, "refreshed token is accepted")
		api.Close()
	}
}

func TestRefreshRejected(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()

	c, _ := newTestClient(t, api.BaseURL())
	_, err := c.Refresh(context.Background(), "bogus")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestMe(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()

	c, _ := newTestClient(t, api.BaseURL())
	token := login(t, c, student.NIM)

	body, err := c.Me(context.Background(), token)
	require.NoError(t, err)
	path, ok := types.StringAt(body, "data", "path")
	assert.True(t, ok)
	assert.Equal(t, "/auth/me", path)
}
