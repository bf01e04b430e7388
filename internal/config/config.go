package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ModelConfig configures the weighted overlay.
type ModelConfig struct {
	Weights     map[string]float64 `yaml:"weights" mapstructure:"weights"`
	CellSize    float64            `yaml:"cell_size" mapstructure:"cell_size"`
	AOIBufferM  float64            `yaml:"aoi_buffer_m" mapstructure:"aoi_buffer_m"`
	MaxPixels   int64              `yaml:"max_pixels" mapstructure:"max_pixels"`
	Percentiles []float64          `yaml:"percentiles" mapstructure:"percentiles"`
}

// SourcesConfig names the input datasets. Each entry is a local path or an
// http(s)/ftp URL.
type SourcesConfig struct {
	Elevation       string `yaml:"elevation" mapstructure:"elevation"`
	LandCover       string `yaml:"land_cover" mapstructure:"land_cover"`
	WaterOccurrence string `yaml:"water_occurrence" mapstructure:"water_occurrence"`
	Roads           string `yaml:"roads" mapstructure:"roads"`
	DefaultAOI      string `yaml:"default_aoi" mapstructure:"default_aoi"`
	CacheDir        string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	FTPTimeoutSecs int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	Refresh        bool   `yaml:"refresh" mapstructure:"refresh"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentAOIs int `yaml:"max_concurrent_aois" mapstructure:"max_concurrent_aois"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleRunMinutes      int     `yaml:"stale_run_minutes" mapstructure:"stale_run_minutes"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDSLIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("model.weights", map[string]float64{
		"slope":      0.45,
		"roughness":  0.15,
		"land_cover": 0.20,
		"dist_water": 0.10,
		"dist_road":  0.10,
	})
	v.SetDefault("model.cell_size", 30.0)
	v.SetDefault("model.aoi_buffer_m", 1000.0)
	v.SetDefault("model.max_pixels", 1_000_000_000)
	v.SetDefault("model.percentiles", []float64{10, 25, 50, 75, 90})
	v.SetDefault("sources.cache_dir", ".landslide-cache")
	v.SetDefault("fetch.user_agent", "landslide-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.ftp_timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "landslide.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("batch.max_concurrent_aois", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_run_minutes", 60)

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

// Validate checks the settings a command needs. mode is one of run, batch,
// serve, runs or fetch.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkModel := func() {
		if c.Model.CellSize <= 0 || math.IsNaN(c.Model.CellSize) || math.IsInf(c.Model.CellSize, 0) {
			errs = append(errs, "model.cell_size must be > 0")
		}
		if c.Model.AOIBufferM < 0 {
			errs = append(errs, "model.aoi_buffer_m must be >= 0")
		}
		for _, p := range c.Model.Percentiles {
			if p < 0 || p > 100 {
				errs = append(errs, "model.percentiles must be within 0..100")
				break
			}
		}
	}
	checkSources := func() {
		if c.Sources.Elevation == "" {
			errs = append(errs, "sources.elevation is required")
		}
		if c.Sources.LandCover == "" {
			errs = append(errs, "sources.land_cover is required")
		}
		if c.Sources.WaterOccurrence == "" {
			errs = append(errs, "sources.water_occurrence is required")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	checkBatch := func() {
		if c.Batch.MaxConcurrentAOIs < 1 || c.Batch.MaxConcurrentAOIs > 64 {
			errs = append(errs, "batch.max_concurrent_aois must be between 1 and 64")
		}
	}

	switch mode {
	case "run":
		checkModel()
		checkSources()
	case "batch":
		checkModel()
		checkSources()
		checkBatch()
	case "serve":
		checkModel()
		checkSources()
		checkStore()
		checkBatch()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxBodyBytes <= 0 {
			errs = append(errs, "server.max_body_bytes must be > 0")
		}
		if c.Monitoring.Enabled && (c.Monitoring.FailureRateThreshold <= 0 || c.Monitoring.FailureRateThreshold > 1) {
			errs = append(errs, "monitoring.failure_rate_threshold must be within (0, 1]")
		}
	case "runs":
		checkStore()
	case "fetch":
		checkSources()
		if c.Sources.CacheDir == "" {
			errs = append(errs, "sources.cache_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
