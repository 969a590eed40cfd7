package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Notify     NotifyConfig     `yaml:"notify"`
	Google     GoogleConfig     `yaml:"google"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`

	// PropertiesFile points at a YAML seed of host properties loaded at
	// startup (see cmd/api).
	PropertiesFile string `yaml:"properties_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type StoreConfig struct {
	// Backend selects the primary document store: redis or memory.
	Backend string `yaml:"backend"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type DispatchConfig struct {
	RadiusMiles float64 `yaml:"radius_miles"`
}

type GeocoderConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	// DefaultLat/DefaultLng anchor the jittered fallback coordinates used
	// when an address cannot be resolved.
	DefaultLat    float64 `yaml:"default_lat"`
	DefaultLng    float64 `yaml:"default_lng"`
	JitterDegrees float64 `yaml:"jitter_degrees"`
}

type NotifyConfig struct {
	Backend    string `yaml:"backend"` // log or telegram
	BotToken   string `yaml:"bot_token"`
	OpsChatID  int64  `yaml:"ops_chat_id"`
	Debug      bool   `yaml:"debug"`
	SilentMode bool   `yaml:"silent_mode"`
}

type GoogleConfig struct {
	CredentialsFile   string `yaml:"credentials_file"`
	JobsSpreadsheetID string `yaml:"jobs_spreadsheet_id"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config, expanding ${ENV} references after overlaying
// a .env file when one exists.
func Load(configPath string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address is required for the redis store backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return errors.New("archive path is required when archive is enabled")
	}

	if c.Notify.Backend == "telegram" && c.Notify.BotToken == "" {
		return errors.New("telegram notifier requires a bot token")
	}

	if c.Dispatch.RadiusMiles < 0 {
		return errors.New("radius_miles must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "curbly"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Dispatch.RadiusMiles == 0 {
		c.Dispatch.RadiusMiles = 10
	}
	if c.Geocoder.JitterDegrees == 0 {
		c.Geocoder.JitterDegrees = 0.01
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = "log"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
