package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultUserAgent is sent on side-channel requests and matches the browser the site expects.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config is the root configuration for jepx.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"    yaml:"site"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Fetch   FetchConfig   `mapstructure:"fetch"   yaml:"fetch"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// SiteConfig locates the market-data website.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"      yaml:"base_url"      validate:"required,url"`
	CSVReadPath string `mapstructure:"csv_read_path" yaml:"csv_read_path" validate:"required"`
}

// BrowserConfig controls the headless browser session.
type BrowserConfig struct {
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	Visible           bool          `mapstructure:"visible"            yaml:"visible"`
	SlowMotion        time.Duration `mapstructure:"slow_motion"        yaml:"slow_motion"        validate:"gte=0"`
	WindowSize        string        `mapstructure:"window_size"        yaml:"window_size"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"    yaml:"element_timeout"    validate:"gt=0"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"   yaml:"download_timeout"   validate:"gt=0"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"       yaml:"settle_delay"       validate:"gte=0"`
}

// FetchConfig controls the direct-fetch side channel.
type FetchConfig struct {
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent" validate:"required"`
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout"    validate:"gt=0"`
	// TLSInsecure disables certificate verification for the market-data host only.
	TLSInsecure      bool  `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	CloudflareBypass bool  `mapstructure:"cloudflare_bypass" yaml:"cloudflare_bypass"`
	MinBodyBytes     int   `mapstructure:"min_body_bytes"    yaml:"min_body_bytes"    validate:"gte=0"`
	MaxBodySize      int64 `mapstructure:"max_body_size"     yaml:"max_body_size"     validate:"gt=0"`
}

// StorageConfig controls where artifacts are written.
type StorageConfig struct {
	OutputPath string `mapstructure:"output_path" yaml:"output_path" validate:"required"`
	Overwrite  bool   `mapstructure:"overwrite"   yaml:"overwrite"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// TracingConfig selects where request spans are exported.
type TracingConfig struct {
	// Exporter is "none", "stdout" (stderr, pretty JSON) or "otlp" (OTLP over HTTP).
	Exporter string `mapstructure:"exporter" yaml:"exporter" validate:"oneof=none stdout otlp"`
	// Endpoint is the OTLP collector URL; empty uses the OTEL_EXPORTER_OTLP_* environment.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:     "https://www.jepx.jp/",
			CSVReadPath: "js/csv_read.php",
		},
		Browser: BrowserConfig{
			SlowMotion:        50 * time.Millisecond,
			ElementTimeout:    10 * time.Second,
			NavigationTimeout: 30 * time.Second,
			DownloadTimeout:   60 * time.Second,
			SettleDelay:       2 * time.Second,
		},
		Fetch: FetchConfig{
			UserAgent:    DefaultUserAgent,
			Timeout:      30 * time.Second,
			TLSInsecure:  true,
			MinBodyBytes: 100,
			MaxBodySize:  50 * 1024 * 1024, // 50MB
		},
		Storage: StorageConfig{
			OutputPath: "csv",
			Overwrite:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}
