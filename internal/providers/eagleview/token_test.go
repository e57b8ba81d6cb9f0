package eagleview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenServer(t *testing.T, calls *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-abc", "expires_in": ` + strconv.Itoa(expiresIn) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTokenProvider(srvURL string, clk clock.Clock) *TokenProvider {
	return NewTokenProvider(config.Config{
		EagleViewClientID:     "client-id",
		EagleViewClientSecret: "client-secret",
		EagleViewAuthURL:      srvURL,
	}, zap.NewNop(), clk)
}

func TestTokenCachedUntilRefreshWindow(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenServer(t, &calls, 3600)

	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	p := newTestTokenProvider(srv.URL, clk)
	ctx := context.Background()

	tok, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)
	assert.EqualValues(t, 1, calls.Load())

	// Well inside the hour: cached.
	clk.Advance(30 * time.Minute)
	_, err = p.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	// 59m30s in: within the 60s refresh window, so a new token is fetched.
	clk.Advance(29*time.Minute + 30*time.Second)
	_, err = p.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTokenErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := newTestTokenProvider(srv.URL, clock.NewFakeClock(time.Now()))
	_, err := p.Token(context.Background())
	assert.Error(t, err)
}
