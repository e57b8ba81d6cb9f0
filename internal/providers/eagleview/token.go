// Package eagleview wraps the EagleView ordering API that backs the paid
// verified-measurement tier, plus its mock stand-in for development.
package eagleview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"go.uber.org/zap"
)

// refreshWindow forces a refresh when the cached token is within this margin
// of expiry, so a token never dies mid-request.
const refreshWindow = 60 * time.Second

// TokenProvider caches the OAuth2 client-credentials token and refreshes it
// under lock, so concurrent callers never race duplicate refreshes.
type TokenProvider struct {
	cfg    config.Config
	log    *zap.Logger
	clock  clock.Clock
	client *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(cfg config.Config, log *zap.Logger, clk clock.Clock) *TokenProvider {
	return &TokenProvider{
		cfg:    cfg,
		log:    log.Named("eagleview.token"),
		clock:  clk,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, refreshing if the cached one is absent
// or inside the refresh window.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.token != "" && now.Before(p.expiresAt.Add(-refreshWindow)) {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.EagleViewAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.cfg.EagleViewClientID, p.cfg.EagleViewClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	p.token = decoded.AccessToken
	p.expiresAt = now.Add(time.Duration(decoded.ExpiresIn) * time.Second)
	p.log.Debug("refreshed access token", zap.Time("expires_at", p.expiresAt))
	return p.token, nil
}
