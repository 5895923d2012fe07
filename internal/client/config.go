package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fxhedz/internal/domain"
)

// Config configures the client runtime
type Config struct {
	BaseURL          string          `mapstructure:"base_url"`
	Platform         domain.Platform `mapstructure:"platform"`
	TelegramChatID   string          `mapstructure:"telegram_chat_id"`
	SnapshotInterval time.Duration   `mapstructure:"snapshot_interval"`
	DetailInterval   time.Duration   `mapstructure:"detail_interval"`
	VerifyInterval   time.Duration   `mapstructure:"verify_interval"`
	RequestTimeout   time.Duration   `mapstructure:"request_timeout"`
	Instruments      []string        `mapstructure:"instruments"`
	StatePath        string          `mapstructure:"state_path"`
}

// DefaultConfig returns the polling cadence of the dashboard
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8080",
		Platform:         domain.PlatformAndroid,
		SnapshotInterval: 2500 * time.Millisecond,
		DetailInterval:   6 * time.Second,
		VerifyInterval:   60 * time.Second,
		RequestTimeout:   20 * time.Second,
		Instruments:      append([]string(nil), domain.TrackedInstruments...),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Platform == "" {
		c.Platform = d.Platform
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = d.SnapshotInterval
	}
	if c.DetailInterval <= 0 {
		c.DetailInterval = d.DetailInterval
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = d.VerifyInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if len(c.Instruments) == 0 {
		c.Instruments = d.Instruments
	}
}

// LoadConfig reads the "client" section of an optional config file and
// FXHEDZ_CLIENT_* environment variables over the defaults
func LoadConfig(path string) (Config, error) {
	d := DefaultConfig()

	v := viper.New()
	v.SetDefault("client.base_url", d.BaseURL)
	v.SetDefault("client.platform", string(d.Platform))
	v.SetDefault("client.telegram_chat_id", "")
	v.SetDefault("client.snapshot_interval", d.SnapshotInterval)
	v.SetDefault("client.detail_interval", d.DetailInterval)
	v.SetDefault("client.verify_interval", d.VerifyInterval)
	v.SetDefault("client.request_timeout", d.RequestTimeout)
	v.SetDefault("client.instruments", d.Instruments)
	v.SetDefault("client.state_path", "")

	v.SetEnvPrefix("fxhedz")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalKey("client", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling client config: %w", err)
	}
	cfg.Platform = domain.ParsePlatform(string(cfg.Platform))
	cfg.applyDefaults()
	return cfg, nil
}
