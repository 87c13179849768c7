package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/petroflow/internal/model"
	"github.com/seantiz/petroflow/internal/targets"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "petroflow.db"
	defaultMaxConcurrent = 4
	defaultCacheTTL      = 30 * time.Minute
	defaultMaxRetries    = 3

	envListenAddr    = "PETROFLOW_LISTEN_ADDR"
	envDBPath        = "PETROFLOW_DB_PATH"
	envLogLevel      = "PETROFLOW_LOG_LEVEL"
	envMaxConcurrent = "PETROFLOW_MAX_CONCURRENT"
	envCacheTTL      = "PETROFLOW_CACHE_TTL"
	envMaxRetries    = "PETROFLOW_MAX_RETRIES"
	envAutoRecovery  = "PETROFLOW_AUTO_RECOVERY"
	envOTelEndpoint  = "PETROFLOW_OTEL_ENDPOINT"
	envExportDir     = "PETROFLOW_EXPORT_DIR"
	envConfigFile    = "PETROFLOW_CONFIG_FILE"
)

// Config holds application configuration. Values come from defaults, then
// an optional YAML file, then environment variables.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	DBPath        string        `yaml:"db_path"`
	LogLevel      slog.Level    `yaml:"-"`
	LogLevelName  string        `yaml:"log_level"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	MaxRetries    int           `yaml:"max_retries"`
	AutoRecovery  bool          `yaml:"auto_recovery"`
	OTelEndpoint  string        `yaml:"otel_endpoint"`
	ExportDir     string        `yaml:"export_dir"`

	// Analysis defaults applied to requests that omit them.
	Parameters  model.CalculationParameters `yaml:"parameters"`
	Cutoffs     model.Cutoffs               `yaml:"cutoffs"`
	Perforation targets.PerforationOptions  `yaml:"perforation"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		MaxConcurrent: defaultMaxConcurrent,
		CacheTTL:      defaultCacheTTL,
		MaxRetries:    defaultMaxRetries,
		AutoRecovery:  true,
		Parameters:    model.DefaultParameters(),
		Cutoffs:       model.DefaultCutoffs(),
		Perforation:   targets.DefaultPerforationOptions(),
	}
}

// Load reads the optional YAML file named by PETROFLOW_CONFIG_FILE, then
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(envConfigFile))
}

// LoadFile is Load with an explicit file path. An empty path skips the
// file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if cfg.LogLevelName != "" {
			cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	cfg.Parameters = cfg.Parameters.WithDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
		cfg.LogLevelName = v
	}
	if v := os.Getenv(envOTelEndpoint); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv(envExportDir); v != "" {
		cfg.ExportDir = v
	}

	var errs []error
	if v := os.Getenv(envMaxConcurrent); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envMaxConcurrent, err))
		}
		cfg.MaxConcurrent = n
	}
	if v := os.Getenv(envMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envMaxRetries, err))
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv(envCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envCacheTTL, err))
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv(envAutoRecovery); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envAutoRecovery, err))
		}
		cfg.AutoRecovery = b
	}
	return errors.Join(errs...)
}

func (c Config) validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
	}
	if c.Parameters.MatrixDensity == c.Parameters.FluidDensity {
		errs = append(errs, errors.New("parameters: matrix and fluid density must differ"))
	}
	return errors.Join(errs...)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
