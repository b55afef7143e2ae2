// Package location acquires the user's starting position.
package location

import (
	"context"
	"io"
	"log/slog"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
)

// Provider resolves the user's position.
type Provider interface {
	Name() string
	Locate(ctx context.Context) (domain.UserLocation, error)
}

// Fixed always returns the configured position.
type Fixed struct {
	Location domain.UserLocation
}

// NewFixed returns a provider for (lat, lon) tagged as the fallback method.
func NewFixed(lat, lon float64, address string) Fixed {
	return Fixed{Location: domain.UserLocation{
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		Address:    address,
		Method:     domain.MethodFallback,
	}}
}

func (Fixed) Name() string { return string(domain.MethodFallback) }

func (f Fixed) Locate(context.Context) (domain.UserLocation, error) {
	if err := geo.ValidCoordinate(f.Location.Latitude, f.Location.Longitude); err != nil {
		return domain.UserLocation{}, domain.NewError(domain.KindLookup, "fixed location", err)
	}
	return f.Location, nil
}

// Chain tries providers in order and returns the first position found.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain builds a chain over providers.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Chain{providers: providers, logger: logger.With("component", "location")}
}

func (c *Chain) Name() string { return "chain" }

// Locate returns the first successful provider's answer. The last error is
// returned when every provider fails.
func (c *Chain) Locate(ctx context.Context) (domain.UserLocation, error) {
	var lastErr error = domain.NewError(domain.KindLookup, "locate user", errNoProviders)
	for _, p := range c.providers {
		loc, err := p.Locate(ctx)
		if err == nil {
			c.logger.Info("location acquired", "provider", p.Name(), "latitude", loc.Latitude, "longitude", loc.Longitude)
			return loc, nil
		}
		if ctx.Err() != nil {
			return domain.UserLocation{}, ctx.Err()
		}
		c.logger.Warn("location provider failed", "provider", p.Name(), "kind", domain.KindLookup, "error", err)
		lastErr = err
	}
	return domain.UserLocation{}, lastErr
}
