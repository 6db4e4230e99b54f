package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	// RateLimit caps template generation and analysis requests
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// EnvFile is loaded into the process environment before overrides are applied
	EnvFile string `yaml:"env_file"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Name string `yaml:"name"` // reported by the health endpoint
	Seed bool   `yaml:"seed"` // insert demo data into an empty store on start
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`          // empty = no auth
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // default: 1MB
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // default: 1MB
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig serves the API over HTTPS, from files or via ACME
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// Enabled reports whether the API should serve HTTPS
func (t TLSConfig) Enabled() bool {
	return t.ACME.Enabled || t.CertFile != ""
}

// ACMEConfig contains Let's Encrypt settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"` // default: certs
	HTTPAddr string   `yaml:"http_addr"` // HTTP-01 challenge listener, default: :80
}

// DatabaseConfig selects and configures the data store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, bolt
	Path   string `yaml:"path"`   // ":memory:" keeps SQLite data in memory
}

// AIConfig configures the generative text provider
type AIConfig struct {
	Provider string        `yaml:"provider"` // gemini, groq, none
	APIKey   string        `yaml:"api_key"`
	Models   []string      `yaml:"models"` // tried in order
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MailerConfig contains SMTP delivery settings for launched campaigns
type MailerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Addr               string        `yaml:"addr"`     // host:port of the submission server
	Security           string        `yaml:"security"` // none, starttls, tls
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	From               string        `yaml:"from"`
	FromName           string        `yaml:"from_name"`
	Hostname           string        `yaml:"hostname"` // EHLO name
	BaseURL            string        `yaml:"base_url"` // public URL of this server, used in tracking links
	LandingURL         string        `yaml:"landing_url"`
	Timeout            time.Duration `yaml:"timeout"`
	DKIM               DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// RateLimitConfig contains AI request quotas
type RateLimitConfig struct {
	Enabled   bool         `yaml:"enabled"`
	Global    *LimitValues `yaml:"global,omitempty"`     // shared by all clients
	PerClient *LimitValues `yaml:"per_client,omitempty"` // keyed by client IP
}

// LimitValues contains rate limit values. Zero means unlimited.
type LimitValues struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
	RequestsPerDay  int `yaml:"requests_per_day"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Supported values
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"

	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderNone   = "none"

	SecurityNone     = "none"
	SecuritySTARTTLS = "starttls"
	SecurityTLS      = "tls"
)

// Load loads configuration from a YAML file. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv loads the env file and applies environment overrides
func (c *Config) applyEnv() error {
	envFile := c.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	if v := os.Getenv("PHISHDRILL_LISTEN_ADDR"); v != "" {
		c.API.ListenAddr = v
	}
	if v := os.Getenv("PHISHDRILL_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("PHISHDRILL_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("PHISHDRILL_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PHISHDRILL_SMTP_PASSWORD"); v != "" {
		c.Mailer.Password = v
	}

	// Provider keys, named the way the providers document them
	gemini := os.Getenv("GEMINI_API_KEY")
	groq := os.Getenv("GROQ_API_KEY")
	if c.AI.Provider == "" {
		switch {
		case gemini != "":
			c.AI.Provider = ProviderGemini
		case groq != "":
			c.AI.Provider = ProviderGroq
		}
	}
	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case ProviderGemini:
			c.AI.APIKey = gemini
		case ProviderGroq:
			c.AI.APIKey = groq
		}
	}

	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "phishdrill"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":3000"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 1 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		// Generation and launch with delivery block the request
		c.API.WriteTimeout = 120 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.API.TLS.ACME.Enabled {
		if c.API.TLS.ACME.CacheDir == "" {
			c.API.TLS.ACME.CacheDir = "certs"
		}
		if c.API.TLS.ACME.HTTPAddr == "" {
			c.API.TLS.ACME.HTTPAddr = ":80"
		}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		if c.Database.Driver == DriverBolt {
			c.Database.Path = "phishdrill.bolt"
		} else {
			c.Database.Path = ":memory:"
		}
	}

	if c.AI.Provider == "" {
		c.AI.Provider = ProviderNone
	}
	if len(c.AI.Models) == 0 {
		switch c.AI.Provider {
		case ProviderGemini:
			c.AI.Models = []string{"gemini-flash-latest", "gemini-pro-latest", "gemini-2.0-flash"}
		case ProviderGroq:
			c.AI.Models = []string{"llama-3.3-70b-versatile"}
		}
	}
	if c.AI.BaseURL == "" && c.AI.Provider == ProviderGroq {
		c.AI.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60 * time.Second
	}

	if c.Mailer.Security == "" {
		c.Mailer.Security = SecuritySTARTTLS
	}
	if c.Mailer.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Mailer.Hostname = hostname
	}
	if c.Mailer.Timeout == 0 {
		c.Mailer.Timeout = 30 * time.Second
	}
	if c.Mailer.DKIM.Selector == "" {
		c.Mailer.DKIM.Selector = "default"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverBolt:
		if c.Database.Path == ":memory:" {
			return fmt.Errorf("database.path must be a file when driver is bolt")
		}
	default:
		return fmt.Errorf("invalid database.driver: %s (must be sqlite or bolt)", c.Database.Driver)
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	switch c.AI.Provider {
	case ProviderNone:
	case ProviderGemini, ProviderGroq:
		if c.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when provider is %s", c.AI.Provider)
		}
	default:
		return fmt.Errorf("invalid ai.provider: %s (must be gemini, groq, or none)", c.AI.Provider)
	}

	if err := c.validateMailer(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// validateMailer validates SMTP delivery configuration
func (c *Config) validateMailer() error {
	m := c.Mailer
	if !m.Enabled {
		return nil
	}

	if m.Addr == "" {
		return fmt.Errorf("mailer.addr is required when mailer is enabled")
	}
	if m.From == "" {
		return fmt.Errorf("mailer.from is required when mailer is enabled")
	}
	if m.BaseURL == "" {
		return fmt.Errorf("mailer.base_url is required when mailer is enabled")
	}

	switch m.Security {
	case SecurityNone, SecuritySTARTTLS, SecurityTLS:
	default:
		return fmt.Errorf("invalid mailer.security: %s (must be none, starttls, or tls)", m.Security)
	}

	if m.DKIM.Enabled {
		if m.DKIM.Domain == "" {
			return fmt.Errorf("mailer.dkim.domain is required when DKIM is enabled")
		}
		if m.DKIM.KeyFile == "" {
			return fmt.Errorf("mailer.dkim.key_file is required when DKIM is enabled")
		}
	}

	return nil
}

// validateRateLimit rejects negative quotas
func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}

	for name, v := range map[string]*LimitValues{"global": c.RateLimit.Global, "per_client": c.RateLimit.PerClient} {
		if v == nil {
			continue
		}
		if v.RequestsPerHour < 0 || v.RequestsPerDay < 0 {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
	}

	return nil
}

// validateTLS validates API HTTPS settings
func (c *Config) validateTLS() error {
	t := c.API.TLS

	if t.ACME.Enabled {
		if t.CertFile != "" {
			return fmt.Errorf("api.tls.cert_file and api.tls.acme are mutually exclusive")
		}
		if len(t.ACME.Domains) == 0 {
			return fmt.Errorf("api.tls.acme.domains is required when ACME is enabled")
		}
		return nil
	}

	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("api.tls.cert_file and api.tls.key_file must be set together")
	}

	return nil
}
