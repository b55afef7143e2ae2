package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
)

const (
	DefaultBrowserAddr    = "localhost:8899"
	DefaultBrowserTimeout = 30 * time.Second
)

// ErrBrowserTimeout is returned when no position is posted in time.
var ErrBrowserTimeout = errors.New("timed out waiting for browser location")

// Browser serves a page that asks the browser for its HTML5 geolocation and
// posts it back.
type Browser struct {
	addr    string
	timeout time.Duration
	open    func(url string) error
	logger  *slog.Logger
}

// BrowserOptions configures a Browser provider.
type BrowserOptions struct {
	Addr    string
	Timeout time.Duration
	// Open launches the page; it defaults to the system browser.
	Open   func(url string) error
	Logger *slog.Logger
}

// NewBrowser returns a browser provider.
func NewBrowser(opts BrowserOptions) *Browser {
	if opts.Addr == "" {
		opts.Addr = DefaultBrowserAddr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBrowserTimeout
	}
	if opts.Open == nil {
		opts.Open = OpenBrowser
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Browser{addr: opts.Addr, timeout: opts.Timeout, open: opts.Open, logger: opts.Logger.With("component", "location")}
}

func (*Browser) Name() string { return string(domain.MethodBrowser) }

type browserPosition struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
}

// Locate serves the page, opens it and waits for the position. The wait is
// bounded by the configured timeout and ctx.
func (b *Browser) Locate(ctx context.Context) (domain.UserLocation, error) {
	loc, err := b.locate(ctx)
	if err != nil {
		return domain.UserLocation{}, domain.NewError(domain.KindLookup, "browser location", err)
	}
	return loc, nil
}

func (b *Browser) locate(ctx context.Context) (domain.UserLocation, error) {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return domain.UserLocation{}, fmt.Errorf("listen on %s: %w", b.addr, err)
	}

	received := make(chan domain.Coordinate, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, locationPage)
	})
	mux.HandleFunc("POST /location", func(w http.ResponseWriter, r *http.Request) {
		var pos browserPosition
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&pos); err != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		if pos.Latitude == nil || pos.Longitude == nil || geo.ValidCoordinate(*pos.Latitude, *pos.Longitude) != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		select {
		case received <- domain.Coordinate{Latitude: *pos.Latitude, Longitude: *pos.Longitude}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Warn("location page server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	url := "http://" + ln.Addr().String()
	b.logger.Info("open the page to share your location", "url", url)
	if err := b.open(url); err != nil {
		b.logger.Warn("could not open browser", "url", url, "error", err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case c := <-received:
		return domain.UserLocation{Coordinate: c, Method: domain.MethodBrowser}, nil
	case <-timer.C:
		return domain.UserLocation{}, ErrBrowserTimeout
	case <-ctx.Done():
		return domain.UserLocation{}, ctx.Err()
	}
}

// OpenBrowser opens url with the platform default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

const locationPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Get My Location</title>
</head>
<body>
  <h1>Please allow location access</h1>
  <script>
    navigator.geolocation.getCurrentPosition(function(pos) {
      fetch("/location", {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        body: JSON.stringify({
          latitude: pos.coords.latitude,
          longitude: pos.coords.longitude,
          accuracy: pos.coords.accuracy
        })
      }).then(function() {
        document.body.innerHTML = "<h2>Position saved. You can close this page.</h2>";
      });
    }, function() {
      document.body.innerHTML = "<h2>Unable to detect your position.</h2>";
    });
  </script>
</body>
</html>
`
