package iprisk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/geo"
)

// VPNAPIClient queries vpnapi.io for VPN, proxy, Tor and relay signals
type VPNAPIClient struct {
	apiKey  string
	baseURL string
	http    *retryablehttp.Client
}

// NewVPNAPIClient creates a client from cfg. Retries are limited to one so
// the lookup stays inside the resolver timeout.
func NewVPNAPIClient(cfg config.IPRiskConfig) *VPNAPIClient {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 1
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 500 * time.Millisecond
	hc.HTTPClient.Timeout = cfg.Timeout
	// request URLs carry the API key
	hc.Logger = nil
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &VPNAPIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
	}
}

type vpnapiResponse struct {
	IP       string         `json:"ip"`
	Security Signals        `json:"security"`
	Location vpnapiLocation `json:"location"`
}

type vpnapiLocation struct {
	City      string     `json:"city"`
	Region    string     `json:"region"`
	Country   string     `json:"country"`
	Latitude  coordinate `json:"latitude"`
	Longitude coordinate `json:"longitude"`
	TimeZone  string     `json:"time_zone"`
}

// coordinate accepts both "51.5074" and 51.5074
type coordinate struct {
	value *float64
}

func (c *coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %q: %w", data, err)
	}
	c.value = &v
	return nil
}

func (c *VPNAPIClient) Analyze(ctx context.Context, ip string) (Result, error) {
	if c.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.apiKey))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create vpnapi request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return Result{}, fmt.Errorf("vpnapi request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("vpnapi returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload vpnapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("failed to decode vpnapi response: %w", err)
	}

	result := Result{
		IsRisky:  payload.Security.Any(),
		Signals:  payload.Security,
		Location: payload.Location.toLocation(),
	}
	if result.IsRisky {
		result.RiskReason = payload.Security.Reason()
	}
	return result, nil
}

func (l vpnapiLocation) toLocation() *geo.Location {
	loc := &geo.Location{
		Country:   l.Country,
		City:      l.City,
		Timezone:  l.TimeZone,
		Latitude:  l.Latitude.value,
		Longitude: l.Longitude.value,
		Source:    geo.SourceOracle,
	}
	if loc.IsEmpty() {
		return nil
	}
	return loc
}
