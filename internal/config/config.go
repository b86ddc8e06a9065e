package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// NominatimConfig configures the geocoding client.
type NominatimConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateRPS      float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	CountryCodes string  `yaml:"country_codes" mapstructure:"country_codes"`
}

// OverpassConfig configures the POI search client.
type OverpassConfig struct {
	URL     string  `yaml:"url" mapstructure:"url"`
	RateRPS float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// PlacesConfig configures the place-storage API client.
type PlacesConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// EngineConfig tunes the discovery engine.
type EngineConfig struct {
	ZoomThreshold     int `yaml:"zoom_threshold" mapstructure:"zoom_threshold"`
	POILimit          int `yaml:"poi_limit" mapstructure:"poi_limit"`
	CityDebounceMs    int `yaml:"city_debounce_ms" mapstructure:"city_debounce_ms"`
	POIDebounceMs     int `yaml:"poi_debounce_ms" mapstructure:"poi_debounce_ms"`
	RefreshDebounceMs int `yaml:"refresh_debounce_ms" mapstructure:"refresh_debounce_ms"`
	SearchDebounceMs  int `yaml:"search_debounce_ms" mapstructure:"search_debounce_ms"`
}

// CityDebounce returns the city resolution debounce as a duration.
func (c EngineConfig) CityDebounce() time.Duration {
	return time.Duration(c.CityDebounceMs) * time.Millisecond
}

// POIDebounce returns the POI fetch debounce as a duration.
func (c EngineConfig) POIDebounce() time.Duration {
	return time.Duration(c.POIDebounceMs) * time.Millisecond
}

// RefreshDebounce returns the saved-place refresh debounce as a duration.
func (c EngineConfig) RefreshDebounce() time.Duration {
	return time.Duration(c.RefreshDebounceMs) * time.Millisecond
}

// SearchDebounce returns the text-search debounce as a duration.
func (c EngineConfig) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMs) * time.Millisecond
}

// RetryConfig tunes retries against the place-storage API.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BreakerConfig tunes the circuit breaker guarding the place-storage API.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAPENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.rate_rps", 1.0)
	v.SetDefault("nominatim.country_codes", "es")
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.rate_rps", 0.5)
	v.SetDefault("places.base_url", "http://localhost:8081")
	v.SetDefault("engine.zoom_threshold", 15)
	v.SetDefault("engine.poi_limit", 180)
	v.SetDefault("engine.city_debounce_ms", 450)
	v.SetDefault("engine.poi_debounce_ms", 500)
	v.SetDefault("engine.refresh_debounce_ms", 400)
	v.SetDefault("engine.search_debounce_ms", 350)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 300)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required to run. Errors are collected so a
// misconfigured deployment reports everything wrong at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}
	if c.Nominatim.BaseURL == "" {
		problems = append(problems, "nominatim.base_url is required")
	}
	if c.Overpass.URL == "" {
		problems = append(problems, "overpass.url is required")
	}
	if c.Places.BaseURL == "" {
		problems = append(problems, "places.base_url is required")
	}
	if c.Engine.ZoomThreshold < 1 || c.Engine.ZoomThreshold > 19 {
		problems = append(problems, "engine.zoom_threshold must be between 1 and 19")
	}
	if c.Engine.POILimit < 1 || c.Engine.POILimit > 1000 {
		problems = append(problems, "engine.poi_limit must be between 1 and 1000")
	}
	if c.Nominatim.RateRPS <= 0 {
		problems = append(problems, "nominatim.rate_rps must be > 0")
	}
	if c.Overpass.RateRPS <= 0 {
		problems = append(problems, "overpass.rate_rps must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
