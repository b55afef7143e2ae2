package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Graph    GraphConfig    `yaml:"graph"`
	Search   SearchConfig   `yaml:"search"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Location LocationConfig `yaml:"location"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MetricsEnabled    bool          `yaml:"metricsEnabled"`
	AllowedOriginsCSV string        `yaml:"allowedOrigins"`
}

// GraphConfig describes connectivity to the graph store.
type GraphConfig struct {
	// Backend is "neo4j" or "memory".
	Backend        string `yaml:"backend"`
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxConnections int    `yaml:"maxConnections"`
	// DatasetPath seeds the memory backend and is watched for changes.
	DatasetPath string `yaml:"dataset"`
	BatchSize   int    `yaml:"batchSize"`
}

// SearchConfig tunes the nearest pharmacy search.
type SearchConfig struct {
	Place      string `yaml:"place"`
	MaxResults int    `yaml:"maxResults"`
	MaxHops    int    `yaml:"maxHops"`
}

// GeocoderConfig configures reverse geocoding and its cache.
type GeocoderConfig struct {
	URL          string        `yaml:"url"`
	UserAgent    string        `yaml:"userAgent"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheEnabled bool          `yaml:"cacheEnabled"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
}

// LocationConfig configures how the user's position is acquired.
type LocationConfig struct {
	IPLocateURL      string        `yaml:"ipLocateURL"`
	IPTimeout        time.Duration `yaml:"ipTimeout"`
	BrowserPort      int           `yaml:"browserPort"`
	BrowserTimeout   time.Duration `yaml:"browserTimeout"`
	DefaultLatitude  float64       `yaml:"defaultLatitude"`
	DefaultLongitude float64       `yaml:"defaultLongitude"`
	DefaultAddress   string        `yaml:"defaultAddress"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	Colored       bool   `yaml:"colored"`
	IncludeCaller bool   `yaml:"includeCaller"`
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphBackend     = "neo4j"
	defaultGraphURI         = "bolt://localhost:7687"
	defaultGraphUser        = "neo4j"
	defaultGraphDatabase    = "pharmaciegraph"
	defaultGraphMaxSessions = 10
	defaultBatchSize        = 1000
	defaultPlace            = "Fès, Maroc"
	defaultMaxResults       = 5
	defaultMaxHops          = 100
	defaultGeocoderURL      = "https://nominatim.openstreetmap.org/reverse"
	defaultUserAgent        = "PharmacyFinder/1.0"
	defaultLookupTimeout    = 5 * time.Second
	defaultCacheTTL         = 24 * time.Hour
	defaultIPLocateURL      = "https://ipapi.co/json/"
	defaultBrowserPort      = 8899
	defaultBrowserTimeout   = 30 * time.Second
	defaultLatitude         = 34.0349
	defaultLongitude        = -4.9764
	defaultAddress          = "Fès, Morocco (fixed position)"
)

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            defaultHost,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Graph: GraphConfig{
			Backend:        defaultGraphBackend,
			URI:            defaultGraphURI,
			Database:       defaultGraphDatabase,
			Username:       defaultGraphUser,
			MaxConnections: defaultGraphMaxSessions,
			BatchSize:      defaultBatchSize,
		},
		Search: SearchConfig{
			Place:      defaultPlace,
			MaxResults: defaultMaxResults,
			MaxHops:    defaultMaxHops,
		},
		Geocoder: GeocoderConfig{
			URL:          defaultGeocoderURL,
			UserAgent:    defaultUserAgent,
			Timeout:      defaultLookupTimeout,
			CacheEnabled: true,
			CacheTTL:     defaultCacheTTL,
		},
		Location: LocationConfig{
			IPLocateURL:      defaultIPLocateURL,
			IPTimeout:        defaultLookupTimeout,
			BrowserPort:      defaultBrowserPort,
			BrowserTimeout:   defaultBrowserTimeout,
			DefaultLatitude:  defaultLatitude,
			DefaultLongitude: defaultLongitude,
			DefaultAddress:   defaultAddress,
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by CONFIG_FILE and environment variables, in increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Host = valueOrDefault("SERVER_HOST", cfg.HTTP.Host)
	port, err := parsePort("SERVER_PORT", cfg.HTTP.Port)
	if err != nil {
		return err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"GEOCODER_TIMEOUT", &cfg.Geocoder.Timeout},
		{"CACHE_TTL", &cfg.Geocoder.CacheTTL},
		{"IPLOCATE_TIMEOUT", &cfg.Location.IPTimeout},
		{"BROWSER_LOCATION_TIMEOUT", &cfg.Location.BrowserTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.target = parsed
		}
	}

	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", cfg.HTTP.MetricsEnabled)
	cfg.HTTP.AllowedOriginsCSV = valueOrDefault("SERVER_ALLOWED_ORIGINS", cfg.HTTP.AllowedOriginsCSV)

	cfg.Graph.Backend = strings.ToLower(valueOrDefault("GRAPH_BACKEND", cfg.Graph.Backend))
	cfg.Graph.URI = valueOrDefault("NEO4J_URI", cfg.Graph.URI)
	cfg.Graph.Database = valueOrDefault("NEO4J_DATABASE", cfg.Graph.Database)
	cfg.Graph.Username = valueOrDefault("NEO4J_USER", cfg.Graph.Username)
	cfg.Graph.Password = valueOrDefault("NEO4J_PASSWORD", cfg.Graph.Password)
	cfg.Graph.MaxConnections = parseIntWithDefault("GRAPH_MAX_CONNECTIONS", cfg.Graph.MaxConnections)
	cfg.Graph.DatasetPath = valueOrDefault("GRAPH_DATASET", cfg.Graph.DatasetPath)
	cfg.Graph.BatchSize = parseIntWithDefault("IMPORT_BATCH_SIZE", cfg.Graph.BatchSize)

	cfg.Search.Place = valueOrDefault("DEFAULT_PLACE", cfg.Search.Place)
	cfg.Search.MaxResults = parseIntWithDefault("MAX_RESULTS", cfg.Search.MaxResults)
	cfg.Search.MaxHops = parseIntWithDefault("SEARCH_MAX_HOPS", cfg.Search.MaxHops)

	cfg.Geocoder.URL = valueOrDefault("GEOCODER_URL", cfg.Geocoder.URL)
	cfg.Geocoder.UserAgent = valueOrDefault("GEOCODER_USER_AGENT", cfg.Geocoder.UserAgent)
	cfg.Geocoder.CacheEnabled = parseBoolWithDefault("CACHE_ENABLED", cfg.Geocoder.CacheEnabled)

	cfg.Location.IPLocateURL = valueOrDefault("IPLOCATE_URL", cfg.Location.IPLocateURL)
	cfg.Location.BrowserPort = parseIntWithDefault("BROWSER_LOCATION_PORT", cfg.Location.BrowserPort)
	cfg.Location.DefaultLatitude = parseFloatWithDefault("DEFAULT_LATITUDE", cfg.Location.DefaultLatitude)
	cfg.Location.DefaultLongitude = parseFloatWithDefault("DEFAULT_LONGITUDE", cfg.Location.DefaultLongitude)
	cfg.Location.DefaultAddress = valueOrDefault("DEFAULT_ADDRESS", cfg.Location.DefaultAddress)

	cfg.Logging.Level = valueOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = valueOrDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Colored = parseBoolWithDefault("LOG_COLOR", cfg.Logging.Colored)
	cfg.Logging.IncludeCaller = parseBoolWithDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller)
	return nil
}

// Validate rejects settings the rest of the application cannot work with.
func (c Config) Validate() error {
	switch c.Graph.Backend {
	case "neo4j":
		if c.Graph.URI == "" {
			return errors.New("NEO4J_URI is required for the neo4j backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown graph backend %q", c.Graph.Backend)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("MAX_RESULTS must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxHops <= 0 {
		return fmt.Errorf("SEARCH_MAX_HOPS must be positive, got %d", c.Search.MaxHops)
	}
	if c.Graph.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.Graph.BatchSize)
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseFloatWithDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
