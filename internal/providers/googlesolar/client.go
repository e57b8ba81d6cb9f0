// Package googlesolar wraps the Google Geocoding and Solar APIs that back the
// free instant-estimate tier.
package googlesolar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/smallbiznis/rooflens/internal/config"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ProviderName = "google_solar"

	geocodeURL  = "https://maps.googleapis.com/maps/api/geocode/json"
	insightsURL = "https://solar.googleapis.com/v1/buildingInsights:findClosest"

	// Published per-request pricing, recorded against every call.
	costGeocode  = 0.005
	costInsights = 0.01
)

var (
	ErrNotConfigured    = errors.New("google_api_key_not_configured")
	ErrAddressNotFound  = errors.New("address_not_found")
	ErrBuildingNotFound = errors.New("building_not_found")
	ErrPermissionDenied = errors.New("solar_api_permission_denied")
)

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
}

// API is the outbound surface, an interface so the estimator can be tested
// without network access.
type API interface {
	Geocode(ctx context.Context, address string) (*GeocodeResult, error)
	BuildingInsights(ctx context.Context, lat, lng float64) (json.RawMessage, error)
}

type ClientParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Usage  usagedomain.Recorder
}

type Client struct {
	cfg    config.Config
	log    *zap.Logger
	usage  usagedomain.Recorder
	client *http.Client

	// Endpoint bases, overridable in tests.
	geocodeBase  string
	insightsBase string
}

func New(p ClientParam) API {
	return &Client{
		cfg:          p.Config,
		log:          p.Log.Named("googlesolar"),
		usage:        p.Usage,
		client:       &http.Client{Timeout: p.Config.GoogleTimeout},
		geocodeBase:  geocodeURL,
		insightsBase: insightsURL,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address to coordinates via the Geocoding API.
func (c *Client) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	if !c.cfg.GoogleConfigured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.cfg.GoogleAPIKey)

	started := time.Now()
	body, statusCode, err := c.get(ctx, c.geocodeBase+"?"+params.Encode())
	c.record(ctx, usagedomain.RecordRequest{
		Provider:   ProviderName,
		Endpoint:   "geocode",
		Method:     http.MethodGet,
		CostUSD:    costGeocode,
		Address:    address,
		StatusCode: statusCode,
		Success:    err == nil && statusCode != nil && *statusCode == http.StatusOK,
		Latency:    time.Since(started),
	}, err)
	if err != nil {
		return nil, err
	}

	var decoded geocodeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	switch decoded.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrAddressNotFound
	default:
		return nil, fmt.Errorf("geocode failed with status %s", decoded.Status)
	}
	if len(decoded.Results) == 0 {
		return nil, ErrAddressNotFound
	}

	first := decoded.Results[0]
	return &GeocodeResult{
		Latitude:         first.Geometry.Location.Lat,
		Longitude:        first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
	}, nil
}

// BuildingInsights fetches the closest building's solar insights. The raw
// payload is returned untouched so callers can persist it for later
// re-normalization.
func (c *Client) BuildingInsights(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	if !c.cfg.GoogleConfigured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("location.latitude", fmt.Sprintf("%.6f", lat))
	params.Set("location.longitude", fmt.Sprintf("%.6f", lng))
	params.Set("key", c.cfg.GoogleAPIKey)

	started := time.Now()
	body, statusCode, err := c.get(ctx, c.insightsBase+"?"+params.Encode())
	success := err == nil && statusCode != nil && *statusCode == http.StatusOK
	c.record(ctx, usagedomain.RecordRequest{
		Provider:   ProviderName,
		Endpoint:   "buildingInsights",
		Method:     http.MethodGet,
		CostUSD:    costInsights,
		StatusCode: statusCode,
		Success:    success,
		Latency:    time.Since(started),
	}, err)
	if err != nil {
		return nil, err
	}

	switch *statusCode {
	case http.StatusOK:
		return json.RawMessage(body), nil
	case http.StatusNotFound:
		return nil, ErrBuildingNotFound
	case http.StatusForbidden:
		return nil, ErrPermissionDenied
	default:
		return nil, fmt.Errorf("solar api returned status %d", *statusCode)
	}
}

// get performs the request and always returns the body and status when a
// response arrived, leaving status interpretation to the caller.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, *int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
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
