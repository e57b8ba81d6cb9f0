package eagleview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ProviderName = "eagleview"

	// MockOrderPrefix marks orders placed in mock mode; they never touch the
	// network and cost nothing.
	MockOrderPrefix = "MOCK-ORD-"

	costPremiumReport = 30.0
	costBasicReport   = 15.0
)

// Report product ids from the EagleView catalog.
var productIDs = map[string]int{
	"PREMIUM": 31,
	"BASIC":   32,
}

// Costs per report type, for quota dashboards and usage records.
var reportCosts = map[string]float64{
	"PREMIUM": costPremiumReport,
	"BASIC":   costBasicReport,
}

var (
	ErrMissingOrderID    = errors.New("order_response_missing_order_id")
	ErrReportFetch       = errors.New("report_fetch_failed")
	ErrUnknownReportType = errors.New("unknown_report_type")
)

// OrderState is the provider-side order status collapsed to the three values
// the reconciler acts on.
type OrderState string

const (
	StateCompleted OrderState = "COMPLETED"
	StatePending   OrderState = "PENDING"
	StateFailed    OrderState = "FAILED"
)

// API is the outbound surface toward EagleView. PollStatus is deliberately
// optimistic: transport errors and unexpected statuses report PENDING so a
// flaky poll never fails a paid order. FetchReport is the opposite — its
// errors surface loudly, since by then the provider has said the data exists.
type API interface {
	PlaceOrder(ctx context.Context, address string, lat, lng *float64, reportType string) (string, error)
	PollStatus(ctx context.Context, externalOrderID string) (OrderState, error)
	FetchReport(ctx context.Context, externalOrderID string) (json.RawMessage, error)
}

type ClientParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Usage  usagedomain.Recorder
	Tokens *TokenProvider
}

type Client struct {
	cfg    config.Config
	log    *zap.Logger
	clock  clock.Clock
	usage  usagedomain.Recorder
	tokens *TokenProvider
	client *http.Client

	baseURL string
}

func New(p ClientParam) API {
	return &Client{
		cfg:     p.Config,
		log:     p.Log.Named("eagleview"),
		clock:   p.Clock,
		usage:   p.Usage,
		tokens:  p.Tokens,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(p.Config.EagleViewBaseURL, "/"),
	}
}

// ReportCost returns the order cost for a report type, or 0 for unknown
// types.
func ReportCost(reportType string) float64 {
	return reportCosts[strings.ToUpper(reportType)]
}

type placeOrderRequest struct {
	Address          string   `json:"address"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	ProductPrimaryID int      `json:"productPrimaryId"`
}

type placeOrderResponse struct {
	OrderID string `json:"orderId"`
}

// PlaceOrder submits a measurement order. In mock mode no request leaves the
// process; the returned id carries the mock prefix and costs nothing.
func (c *Client) PlaceOrder(ctx context.Context, address string, lat, lng *float64, reportType string) (string, error) {
	reportType = strings.ToUpper(reportType)
	productID, ok := productIDs[reportType]
	if !ok {
		return "", ErrUnknownReportType
	}

	if c.cfg.IsMock() {
		orderID := fmt.Sprintf("%s%d", MockOrderPrefix, c.clock.Now().Unix())
		c.usage.Record(ctx, usagedomain.RecordRequest{
			Provider: ProviderName,
			Endpoint: "orders",
			Method:   http.MethodPost,
			CostUSD:  0,
			Address:  address,
			Success:  true,
		})
		c.log.Info("placed mock order", zap.String("order_id", orderID))
		return orderID, nil
	}

	payload, err := json.Marshal(placeOrderRequest{
		Address:          address,
		Latitude:         lat,
		Longitude:        lng,
		ProductPrimaryID: productID,
	})
	if err != nil {
		return "", err
	}

	started := c.clock.Now()
	body, statusCode, err := c.do(ctx, http.MethodPost, "/v2/orders", payload)
	success := err == nil && statusCode != nil && *statusCode == http.StatusOK
	c.record(ctx, usagedomain.RecordRequest{
		Provider:   ProviderName,
		Endpoint:   "orders",
		Method:     http.MethodPost,
		CostUSD:    reportCosts[reportType],
		Address:    address,
		StatusCode: statusCode,
		Success:    success,
		Latency:    c.clock.Now().Sub(started),
	}, err)
	if err != nil {
		return "", err
	}
	if *statusCode != http.StatusOK {
		return "", fmt.Errorf("place order returned status %d", *statusCode)
	}

	var decoded placeOrderResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	if strings.TrimSpace(decoded.OrderID) == "" {
		return "", ErrMissingOrderID
	}
	return decoded.OrderID, nil
}

type orderStatusResponse struct {
	Status string `json:"status"`
}

// Provider status strings collapsed to reconciler states. Anything not
// listed stays PENDING.
var stateByStatus = map[string]OrderState{
	"completed":  StateCompleted,
	"complete":   StateCompleted,
	"delivered":  StateCompleted,
	"failed":     StateFailed,
	"cancelled":  StateFailed,
	"canceled":   StateFailed,
	"rejected":   StateFailed,
	"inprocess":  StatePending,
	"in_process": StatePending,
	"pending":    StatePending,
	"open":       StatePending,
}

// PollStatus asks the provider where an order stands. Failures of any kind
// resolve to PENDING: the reconciler will simply try again next pass, and
// the order-timeout check caps how long that can go on.
func (c *Client) PollStatus(ctx context.Context, externalOrderID string) (OrderState, error) {
	if strings.HasPrefix(externalOrderID, MockOrderPrefix) {
		return StateCompleted, nil
	}

	started := c.clock.Now()
	body, statusCode, err := c.do(ctx, http.MethodGet, "/v2/orders/"+externalOrderID+"/status", nil)
	c.record(ctx, usagedomain.RecordRequest{
		Provider:   ProviderName,
		Endpoint:   "order_status",
		Method:     http.MethodGet,
		CostUSD:    0,
		StatusCode: statusCode,
		Success:    err == nil && statusCode != nil && *statusCode == http.StatusOK,
		Latency:    c.clock.Now().Sub(started),
	}, err)
	if err != nil {
		c.log.Warn("status poll failed, treating as pending",
			zap.String("external_order_id", externalOrderID),
			zap.Error(err),
		)
		return StatePending, nil
	}
	if *statusCode != http.StatusOK {
		c.log.Warn("status poll returned non-200, treating as pending",
			zap.String("external_order_id", externalOrderID),
			zap.Int("status_code", *statusCode),
		)
		return StatePending, nil
	}

	var decoded orderStatusResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return StatePending, nil
	}

	state, ok := stateByStatus[strings.ToLower(strings.TrimSpace(decoded.Status))]
	if !ok {
		return StatePending, nil
	}
	return state, nil
}

// FetchReport downloads the completed measurement report. Mock orders get
// the canned fixture report.
func (c *Client) FetchReport(ctx context.Context, externalOrderID string) (json.RawMessage, error) {
	if strings.HasPrefix(externalOrderID, MockOrderPrefix) {
		return json.RawMessage(mockReportPayload), nil
	}

	started := c.clock.Now()
	body, statusCode, err := c.do(ctx, http.MethodGet, "/v2/orders/"+externalOrderID+"/report", nil)
	c.record(ctx, usagedomain.RecordRequest{
		Provider:   ProviderName,
		Endpoint:   "order_report",
		Method:     http.MethodGet,
		CostUSD:    0,
		StatusCode: statusCode,
		Success:    err == nil && statusCode != nil && *statusCode == http.StatusOK,
		Latency:    c.clock.Now().Sub(started),
	}, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportFetch, err)
	}
	if *statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrReportFetch, *statusCode)
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, *int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &resp.StatusCode, err
	}
	return body, &resp.StatusCode, nil
}

func (c *Client) record(ctx context.Context, req usagedomain.RecordRequest, callErr error) {
	if callErr != nil {
		msg := callErr.Error()
		req.ErrorMessage = &msg
	}
	c.usage.Record(ctx, req)
}
