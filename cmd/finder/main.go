package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/app"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/config"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/location"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/logging"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/render"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		lat       = flag.Float64("lat", math.NaN(), "latitude to search from (skips location detection)")
		lon       = flag.Float64("lon", math.NaN(), "longitude to search from (skips location detection)")
		limit     = flag.Int("limit", 0, "number of pharmacies to list (defaults to MAX_RESULTS)")
		mapFile   = flag.String("map", render.DefaultMapFile, "where to write the interactive map; empty disables it")
		noBrowser = flag.Bool("no-browser", false, "skip browser geolocation and never open the map")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging).With("component", "finder-cli")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Searching for the nearest pharmacies...")
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("unable to open graph store", "backend", cfg.Graph.Backend, "error", err)
		fmt.Fprintln(os.Stderr, "Unable to connect to the graph store. Check your configuration.")
		return 1
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	comps := app.NewComponents(backend.Store, cfg, logger, nil)
	finder := comps.Finder

	user, err := locate(ctx, cfg, logger, *lat, *lon, *noBrowser)
	if err != nil {
		logger.Error("no usable location", "error", err)
		return 1
	}
	if user.Address == "" {
		user.Address = finder.Address(ctx, user.Latitude, user.Longitude)
	}

	answer, err := finder.Nearest(ctx, user, *limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted by user")
			return 130
		}
		logger.Error("search failed", "kind", domain.KindOf(err), "error", err)
		fmt.Fprintf(os.Stderr, "An error occurred: %v\n", err)
		return 1
	}

	if err := render.Console(os.Stdout, answer.User, answer.Results); err != nil {
		logger.Error("writing report failed", "error", err)
		return 1
	}

	if *mapFile != "" && len(answer.Results) > 0 {
		if err := writeMap(ctx, finder, answer, *mapFile, !*noBrowser); err != nil {
			logger.Warn("map not written", "error", err)
		}
	}
	return 0
}

// locate picks the user's position: explicit flags first, then the browser,
// the IP lookup service and finally the configured default.
func locate(ctx context.Context, cfg config.Config, logger *slog.Logger, lat, lon float64, noBrowser bool) (domain.UserLocation, error) {
	if !math.IsNaN(lat) || !math.IsNaN(lon) {
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return domain.UserLocation{}, errors.New("both -lat and -lon are required")
		}
		return domain.UserLocation{
			Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
			Method:     domain.MethodManual,
		}, nil
	}

	fmt.Println("Detecting your location...")
	var providers []location.Provider
	if !noBrowser {
		fmt.Println("Open your browser to allow location access...")
		providers = append(providers, location.NewBrowser(location.BrowserOptions{
			Addr:    net.JoinHostPort("localhost", strconv.Itoa(cfg.Location.BrowserPort)),
			Timeout: cfg.Location.BrowserTimeout,
			Logger:  logger,
		}))
	}
	providers = append(providers,
		location.NewIP(cfg.Location.IPLocateURL, cfg.Geocoder.UserAgent, cfg.Location.IPTimeout),
		location.NewFixed(cfg.Location.DefaultLatitude, cfg.Location.DefaultLongitude, cfg.Location.DefaultAddress),
	)
	return location.NewChain(logger, providers...).Locate(ctx)
}

func writeMap(ctx context.Context, finder *service.Finder, answer service.Answer, path string, open bool) error {
	closest, _ := answer.Closest()
	route, err := finder.Route(ctx, answer, closest)
	if err != nil {
		return err
	}
	if err := render.WriteMapFile(path, render.MapData{User: answer.User, Results: answer.Results, Route: route}); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fmt.Printf("\nInteractive map created: %s\n", abs)
	if open {
		fmt.Println("Opening the map in your browser...")
		if err := location.OpenBrowser("file://" + abs); err != nil {
			fmt.Printf("Could not open the map automatically: %v\nYou can open it manually: %s\n", err, abs)
		}
	}
	return nil
}
