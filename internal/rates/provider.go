package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider returns a full rate table for a base currency in a single call.
// Each rate is the number of units of the keyed currency per one unit of base.
type Provider interface {
	LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, base string) (map[string]decimal.Decimal, error)

func (f ProviderFunc) LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	return f(ctx, base)
}

// HTTPProvider talks to an exchangerate-api compatible endpoint:
// GET {BaseURL}/{APIKey}/latest/{base}.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type latestResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// NewHTTPProvider creates a provider with a pooled client and the given
// overall request timeout.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (p *HTTPProvider) LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if p.BaseURL == "" {
		return nil, errors.New("rate provider URL not configured")
	}
	endpoint := fmt.Sprintf("%s/%s/latest/%s", p.BaseURL, url.PathEscape(p.APIKey), url.PathEscape(base))
	if p.APIKey == "" {
		endpoint = fmt.Sprintf("%s/latest/%s", p.BaseURL, url.PathEscape(base))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rate provider returned %s", resp.Status)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rate table: %w", err)
	}
	if body.Result == "error" {
		return nil, fmt.Errorf("rate provider error: %s", body.ErrorType)
	}
	if len(body.ConversionRates) == 0 {
		return nil, errors.New("rate provider returned an empty table")
	}
	return body.ConversionRates, nil
}
