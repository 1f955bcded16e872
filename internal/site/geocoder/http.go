// Package geocoder resolves facility addresses through a local-search style
// HTTP API (query string in, region names and x/y coordinates out).
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/verdant/internal/config"
	"github.com/smallbiznis/verdant/internal/site/domain"
)

// Client calls the configured address search endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// New returns an HTTP client when an endpoint is configured and a Noop
// geocoder otherwise.
func New(cfg config.Config) domain.Geocoder {
	if strings.TrimSpace(cfg.Geocoder.Endpoint) == "" {
		return Noop{}
	}
	return NewClient(cfg.Geocoder.Endpoint, cfg.Geocoder.APIKey, &http.Client{Timeout: 5 * time.Second})
}

func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

type searchResponse struct {
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
	Documents []document `json:"documents"`
}

type document struct {
	X       string `json:"x"`
	Y       string `json:"y"`
	Address *struct {
		Region1 string `json:"region_1depth_name"`
		Region2 string `json:"region_2depth_name"`
	} `json:"address"`
	RoadAddress *struct {
		Region1 string `json:"region_1depth_name"`
		Region2 string `json:"region_2depth_name"`
	} `json:"road_address"`
}

func (c *Client) Geocode(ctx context.Context, address string) (*domain.GeoResult, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", address)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "KakaoAK "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding API returned HTTP %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if body.Meta.TotalCount == 0 || len(body.Documents) == 0 {
		return nil, nil
	}

	doc := body.Documents[0]
	out := &domain.GeoResult{}
	switch {
	case doc.Address != nil:
		out.Province, out.District = doc.Address.Region1, doc.Address.Region2
	case doc.RoadAddress != nil:
		out.Province, out.District = doc.RoadAddress.Region1, doc.RoadAddress.Region2
	}
	if out.Province == "" || out.District == "" {
		return nil, nil
	}
	out.Longitude = parseCoord(doc.X)
	out.Latitude = parseCoord(doc.Y)
	return out, nil
}

func parseCoord(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

// Noop finds nothing, leaving resolution to the address-text fallback.
type Noop struct{}

func (Noop) Geocode(context.Context, string) (*domain.GeoResult, error) { return nil, nil }
