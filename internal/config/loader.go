package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags are
// applied by the caller afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("JEPX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("jepx")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".jepx"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is fine unless it was asked for explicitly.
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides are picked up
// for keys absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.csv_read_path", cfg.Site.CSVReadPath)

	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.visible", cfg.Browser.Visible)
	v.SetDefault("browser.slow_motion", cfg.Browser.SlowMotion)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.element_timeout", cfg.Browser.ElementTimeout)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.download_timeout", cfg.Browser.DownloadTimeout)
	v.SetDefault("browser.settle_delay", cfg.Browser.SettleDelay)

	v.SetDefault("fetch.user_agent", cfg.Fetch.UserAgent)
	v.SetDefault("fetch.timeout", cfg.Fetch.Timeout)
	v.SetDefault("fetch.tls_insecure", cfg.Fetch.TLSInsecure)
	v.SetDefault("fetch.cloudflare_bypass", cfg.Fetch.CloudflareBypass)
	v.SetDefault("fetch.min_body_bytes", cfg.Fetch.MinBodyBytes)
	v.SetDefault("fetch.max_body_size", cfg.Fetch.MaxBodySize)

	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.overwrite", cfg.Storage.Overwrite)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
}
