package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
)

const (
	DefaultIPLocateURL = "https://ipapi.co/json/"
	DefaultIPTimeout   = 5 * time.Second
)

var errNoProviders = errors.New("no location provider configured")

// IP locates the user from the public address of the machine. Requests are
// not retried.
type IP struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewIP returns an IP provider. Zero values select the defaults.
func NewIP(url, userAgent string, timeout time.Duration) *IP {
	if url == "" {
		url = DefaultIPLocateURL
	}
	if timeout <= 0 {
		timeout = DefaultIPTimeout
	}
	return &IP{url: url, userAgent: userAgent, client: &http.Client{Timeout: timeout}}
}

func (*IP) Name() string { return string(domain.MethodIP) }

type ipResponse struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

func (p *IP) Locate(ctx context.Context) (domain.UserLocation, error) {
	loc, err := p.locate(ctx)
	if err != nil {
		return domain.UserLocation{}, domain.NewError(domain.KindLookup, "ip location", err)
	}
	return loc, nil
}

func (p *IP) locate(ctx context.Context) (domain.UserLocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return domain.UserLocation{}, fmt.Errorf("build request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.UserLocation{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.UserLocation{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.UserLocation{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Error {
		return domain.UserLocation{}, fmt.Errorf("service error: %s", body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return domain.UserLocation{}, errors.New("response has no coordinates")
	}
	if err := geo.ValidCoordinate(*body.Latitude, *body.Longitude); err != nil {
		return domain.UserLocation{}, err
	}

	var parts []string
	for _, s := range []string{body.City, body.Region, body.CountryName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return domain.UserLocation{
		Coordinate: domain.Coordinate{Latitude: *body.Latitude, Longitude: *body.Longitude},
		Address:    strings.Join(parts, ", "),
		Method:     domain.MethodIP,
	}, nil
}
