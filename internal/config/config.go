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

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	ShutdownTimeout    Duration `yaml:"shutdown_timeout"`
	StatsInterval      Duration `yaml:"stats_interval"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// DatabaseConfig contains database settings.
// Path is used by the sqlite driver, DSN by postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"-"` // env-only, may carry credentials
}

// LLMConfig contains settings for the hosted completion endpoint.
type LLMConfig struct {
	APIKey     string   `yaml:"-"` // env-only, never in YAML
	BaseURL    string   `yaml:"base_url"`
	Model      string   `yaml:"model"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// SynthesisConfig contains rule synthesis pipeline settings.
type SynthesisConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	FallbackDiscount    float64 `yaml:"fallback_discount"`
	FallbackEntityLimit int     `yaml:"fallback_entity_limit"`
	MaxFormulaDepth     int     `yaml:"max_formula_depth"`
	AbortOnStoreError   bool    `yaml:"abort_on_store_error"`
}

// ArchiveConfig contains S3-compatible run report storage settings.
// An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → .env → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabaseConfig loads configuration the same way as Load but validates
// only the database section. Used by CLI commands that never reach the
// completion endpoint or the HTTP server.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	cfg, err := load()
	if err != nil {
		return DatabaseConfig{}, err
	}

	if err := cfg.Database.validate(); err != nil {
		return DatabaseConfig{}, err
	}

	return cfg.Database, nil
}

func load() (*Config, error) {
	cfg := newDefaults()

	// Load .env first so LICENSEIQ_CONFIG_PATH can come from it too.
	if err := loadDotEnv(getEnv("LICENSEIQ_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	configPath := getEnv("LICENSEIQ_CONFIG_PATH", "config/licenseiq.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(5 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
			StatsInterval:   Duration(time.Minute),
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/licenseiq.db",
		},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			Timeout:    Duration(60 * time.Second),
			MaxRetries: 0,
		},
		Synthesis: SynthesisConfig{
			ConfidenceThreshold: 0.70,
			FallbackDiscount:    0.8,
			FallbackEntityLimit: 20,
			MaxFormulaDepth:     32,
			AbortOnStoreError:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parsing env file: %w", err)
	}
	return nil
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("LICENSEIQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LICENSEIQ_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LICENSEIQ_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LICENSEIQ_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LICENSEIQ_STATS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.StatsInterval = Duration(d)
		}
	}
	if v := os.Getenv("LICENSEIQ_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORSAllowedOrigins = splitList(v)
	}

	// Database
	if v := os.Getenv("LICENSEIQ_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LICENSEIQ_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}

	// LLM (OPENAI_API_KEY is industry convention; the explicit key wins)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LICENSEIQ_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LICENSEIQ_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LICENSEIQ_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LICENSEIQ_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("LICENSEIQ_LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}

	// Synthesis
	if v := os.Getenv("LICENSEIQ_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Synthesis.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("LICENSEIQ_FALLBACK_DISCOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Synthesis.FallbackDiscount = f
		}
	}
	if v := os.Getenv("LICENSEIQ_FALLBACK_ENTITY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Synthesis.FallbackEntityLimit = n
		}
	}
	if v := os.Getenv("LICENSEIQ_MAX_FORMULA_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Synthesis.MaxFormulaDepth = n
		}
	}
	if v := os.Getenv("LICENSEIQ_ABORT_ON_STORE_ERROR"); v != "" {
		cfg.Synthesis.AbortOnStoreError = v == "true" || v == "1"
	}

	// Archive
	if v := os.Getenv("LICENSEIQ_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("LICENSEIQ_S3_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("LICENSEIQ_S3_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("LICENSEIQ_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}
	if v := os.Getenv("LICENSEIQ_S3_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("LICENSEIQ_S3_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}

	// Auth
	if v := os.Getenv("LICENSEIQ_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("LICENSEIQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LICENSEIQ_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (LICENSEIQ_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Server.StatsInterval <= 0 {
		return errors.New("server.stats_interval must be positive")
	}

	if c.Synthesis.ConfidenceThreshold < 0 || c.Synthesis.ConfidenceThreshold > 1 {
		return fmt.Errorf("synthesis.confidence_threshold must be between 0 and 1, got %v", c.Synthesis.ConfidenceThreshold)
	}
	if c.Synthesis.FallbackDiscount <= 0 || c.Synthesis.FallbackDiscount > 1 {
		return fmt.Errorf("synthesis.fallback_discount must be in (0, 1], got %v", c.Synthesis.FallbackDiscount)
	}
	if c.Synthesis.FallbackEntityLimit <= 0 {
		return errors.New("synthesis.fallback_entity_limit must be positive")
	}
	if c.Synthesis.MaxFormulaDepth <= 0 {
		return errors.New("synthesis.max_formula_depth must be positive")
	}

	// Dev mode bypasses API key validation
	if os.Getenv("LICENSEIQ_DEV_MODE") == "true" {
		return nil
	}

	if c.LLM.APIKey == "" {
		return errors.New("LICENSEIQ_LLM_API_KEY or OPENAI_API_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("LICENSEIQ_API_KEY is required")
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if d.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", d.Driver)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated env value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
