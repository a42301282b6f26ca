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
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Driver DriverConfig `yaml:"driver" mapstructure:"driver"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DriverConfig configures the browser-automation sidecar connection.
type DriverConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Source      string `yaml:"source" mapstructure:"source"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// Timeout returns the sidecar request timeout.
func (d DriverConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSecs) * time.Second
}

// IngestConfig configures run behavior.
type IngestConfig struct {
	// ExtractionsPerSecond paces extraction calls against the sidecar.
	ExtractionsPerSecond float64 `yaml:"extractions_per_second" mapstructure:"extractions_per_second"`
	// PausePollMillis is how often a paused run rechecks the control signal.
	PausePollMillis int `yaml:"pause_poll_millis" mapstructure:"pause_poll_millis"`
	// MaxItems caps how many results a run processes; zero means all.
	MaxItems int `yaml:"max_items" mapstructure:"max_items"`
}

// PausePoll returns the pause poll interval.
func (i IngestConfig) PausePoll() time.Duration {
	return time.Duration(i.PausePollMillis) * time.Millisecond
}

// ServerConfig configures the HTTP control surface.
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
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "jobscout.db")
	v.SetDefault("driver.base_url", "http://localhost:9515")
	v.SetDefault("driver.source", "glassdoor")
	v.SetDefault("driver.timeout_secs", 60)
	v.SetDefault("driver.retries", 3)
	v.SetDefault("ingest.extractions_per_second", 0.5)
	v.SetDefault("ingest.pause_poll_millis", 200)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
