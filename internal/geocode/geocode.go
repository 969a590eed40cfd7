// Package geocode resolves free-form addresses through a JSON HTTP
// endpoint. Resolution is best-effort by contract: callers treat a nil
// result as "use synthetic coordinates", never as a failed operation.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"curbly/internal/config"
	"curbly/internal/domain"
	"curbly/internal/models"

	"github.com/rs/zerolog"
)

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zerolog.Logger
}

func NewClient(cfg config.GeocoderConfig, logger *zerolog.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

type geocodeResponse struct {
	FullAddress string  `json:"full_address"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Geocode resolves an address. Returns (nil, nil) when the endpoint knows
// nothing about the address, and ErrBackendUnavailable when it cannot be
// reached at all.
func (c *Client) Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error) {
	if c.endpoint == "" {
		return nil, nil
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("geocoder endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", address)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Unavailablef("geocoder request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 500:
		return nil, domain.Unavailablef("geocoder returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geocoder response: %w", err)
	}
	if body.Lat == 0 && body.Lng == 0 {
		return nil, nil
	}

	return &domain.GeocodeResult{
		FullAddress: body.FullAddress,
		Coordinates: models.LatLng{Lat: body.Lat, Lng: body.Lng},
	}, nil
}
