package eagleview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorderStub struct {
	mu       sync.Mutex
	requests []usagedomain.RecordRequest
}

func (r *recorderStub) Record(_ context.Context, req usagedomain.RecordRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorderStub) Requests() []usagedomain.RecordRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usagedomain.RecordRequest(nil), r.requests...)
}

// staticTokens short-circuits the token exchange for client tests.
func staticTokens(clk clock.Clock) *TokenProvider {
	p := NewTokenProvider(config.Config{}, zap.NewNop(), clk)
	p.token = "static-token"
	p.expiresAt = clk.Now().Add(time.Hour)
	return p
}

func newMockModeClient(t *testing.T, clk clock.Clock) (*Client, *recorderStub) {
	t.Helper()
	rec := &recorderStub{}
	c := &Client{
		cfg:    config.Config{EagleViewMode: config.ModeMock},
		log:    zap.NewNop(),
		clock:  clk,
		usage:  rec,
		tokens: staticTokens(clk),
		client: &http.Client{},
	}
	return c, rec
}

func newLiveClient(t *testing.T, handler http.Handler, clk clock.Clock) (*Client, *recorderStub) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &recorderStub{}
	c := &Client{
		cfg:     config.Config{EagleViewMode: config.ModeLive},
		log:     zap.NewNop(),
		clock:   clk,
		usage:   rec,
		tokens:  staticTokens(clk),
		client:  srv.Client(),
		baseURL: srv.URL,
	}
	return c, rec
}

func TestPlaceOrderMockMode(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	c, rec := newMockModeClient(t, clk)

	orderID, err := c.PlaceOrder(context.Background(), "123 Main St", nil, nil, "PREMIUM")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(orderID, MockOrderPrefix))

	// Mock orders are recorded but free.
	requests := rec.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, 0.0, requests[0].CostUSD)
	assert.True(t, requests[0].Success)
}

func TestPlaceOrderUnknownReportType(t *testing.T) {
	c, _ := newMockModeClient(t, clock.NewFakeClock(time.Now()))
	_, err := c.PlaceOrder(context.Background(), "123 Main St", nil, nil, "DELUXE")
	assert.ErrorIs(t, err, ErrUnknownReportType)
}

func TestPlaceOrderLiveBillsPremium(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c, rec := newLiveClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer static-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"orderId": "EV-12345"}`))
	}), clk)

	orderID, err := c.PlaceOrder(context.Background(), "123 Main St", nil, nil, "PREMIUM")
	require.NoError(t, err)
	assert.Equal(t, "EV-12345", orderID)

	requests := rec.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, 30.0, requests[0].CostUSD)
	assert.True(t, requests[0].Success)
}

func TestPlaceOrderLiveMissingOrderID(t *testing.T) {
	c, _ := newLiveClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "accepted"}`))
	}), clock.NewFakeClock(time.Now()))

	_, err := c.PlaceOrder(context.Background(), "123 Main St", nil, nil, "BASIC")
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestPollStatusMockOrdersComplete(t *testing.T) {
	c, _ := newMockModeClient(t, clock.NewFakeClock(time.Now()))
	state, err := c.PollStatus(context.Background(), MockOrderPrefix+"1741600000")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
}

func TestPollStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   OrderState
	}{
		{"Completed", StateCompleted},
		{"InProcess", StatePending},
		{"Cancelled", StateFailed},
		{"SomethingNew", StatePending},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			c, _ := newLiveClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "` + tt.status + `"}`))
			}), clock.NewFakeClock(time.Now()))

			state, err := c.PollStatus(context.Background(), "EV-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestPollStatusNon200StaysPending(t *testing.T) {
	c, _ := newLiveClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), clock.NewFakeClock(time.Now()))

	state, err := c.PollStatus(context.Background(), "EV-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
}

func TestFetchReportMockFixture(t *testing.T) {
	c, _ := newMockModeClient(t, clock.NewFakeClock(time.Now()))
	raw, err := c.FetchReport(context.Background(), MockOrderPrefix+"1741600000")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"totalArea": 2500`)
}

func TestFetchReportErrorIsLoud(t *testing.T) {
	c, _ := newLiveClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), clock.NewFakeClock(time.Now()))

	_, err := c.FetchReport(context.Background(), "EV-1")
	assert.ErrorIs(t, err, ErrReportFetch)
}
