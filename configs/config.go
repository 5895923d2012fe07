package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fxhedz/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Authority AuthorityConfig `mapstructure:"authority"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	OpsPort   int    `mapstructure:"ops_port"`
	Env       string `mapstructure:"env"`
	PublicURL string `mapstructure:"public_url"`
}

// AuthorityConfig selects and configures the subscription authority
type AuthorityConfig struct {
	Mode    string        `mapstructure:"mode"` // "remote", "postgres" or "memory"
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SignalsConfig holds upstream signal settings
type SignalsConfig struct {
	URL            string        `mapstructure:"url"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	StreamRecheck  time.Duration `mapstructure:"stream_recheck"`
	PreviewPair    string        `mapstructure:"preview_pair"`
	PreviewTTL     time.Duration `mapstructure:"preview_ttl"`
	PreviewCandles int           `mapstructure:"preview_candles"`
}

// AuthConfig holds token and OAuth settings
type AuthConfig struct {
	Secret             string        `mapstructure:"secret"`
	AccessTTL          time.Duration `mapstructure:"access_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`
	GoogleClientID     string        `mapstructure:"google_client_id"`
	GoogleClientSecret string        `mapstructure:"google_client_secret"`
	CookieSecure       bool          `mapstructure:"cookie_secure"`
}

// PolicyConfig holds the local authority policy
type PolicyConfig struct {
	MaxDevices int `mapstructure:"max_devices"`
	TrialDays  int `mapstructure:"trial_days"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// TelegramConfig holds the operations chat settings
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Authority modes
const (
	AuthorityRemote   = "remote"
	AuthorityPostgres = "postgres"
	AuthorityMemory   = "memory"
)

// legacy environment names accepted alongside the derived ones
var envAliases = map[string][]string{
	"server.port":               {"PORT"},
	"server.env":                {"GO_ENV"},
	"authority.url":             {"GAS_AUTH_URL"},
	"authority.secret":          {"GAS_SECRET"},
	"signals.url":               {"GAS_SIGNAL_URL"},
	"auth.secret":               {"FXHEDZ_SECRET"},
	"auth.google_client_id":     {"GOOGLE_CLIENT_ID"},
	"auth.google_client_secret": {"GOOGLE_CLIENT_SECRET"},
	"database.url":              {"DATABASE_URL"},
	"telegram.bot_token":        {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":          {"TELEGRAM_CHAT_ID"},
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			OpsPort: 9090,
			Env:     "development",
		},
		Authority: AuthorityConfig{
			Mode:    AuthorityRemote,
			Timeout: 15 * time.Second,
		},
		Signals: SignalsConfig{
			StreamInterval: 2500 * time.Millisecond,
			StreamRecheck:  time.Minute,
			PreviewPair:    "XAUUSD",
			PreviewTTL:     10 * time.Second,
			PreviewCandles: 40,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 14 * 24 * time.Hour,
		},
		Policy: PolicyConfig{
			MaxDevices: domain.MaxDevicesPerAccount,
			TrialDays:  14,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads .env, an optional config file and the environment, in that order of precedence
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Defaults())

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, aliases := range envAliases {
		names := append([]string{strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.ops_port", d.Server.OpsPort)
	v.SetDefault("server.env", d.Server.Env)
	v.SetDefault("server.public_url", d.Server.PublicURL)

	v.SetDefault("authority.mode", d.Authority.Mode)
	v.SetDefault("authority.url", d.Authority.URL)
	v.SetDefault("authority.secret", d.Authority.Secret)
	v.SetDefault("authority.timeout", d.Authority.Timeout)

	v.SetDefault("signals.url", d.Signals.URL)
	v.SetDefault("signals.stream_interval", d.Signals.StreamInterval)
	v.SetDefault("signals.stream_recheck", d.Signals.StreamRecheck)
	v.SetDefault("signals.preview_pair", d.Signals.PreviewPair)
	v.SetDefault("signals.preview_ttl", d.Signals.PreviewTTL)
	v.SetDefault("signals.preview_candles", d.Signals.PreviewCandles)

	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.access_ttl", d.Auth.AccessTTL)
	v.SetDefault("auth.refresh_ttl", d.Auth.RefreshTTL)
	v.SetDefault("auth.google_client_id", d.Auth.GoogleClientID)
	v.SetDefault("auth.google_client_secret", d.Auth.GoogleClientSecret)
	v.SetDefault("auth.cookie_secure", d.Auth.CookieSecure)

	v.SetDefault("policy.max_devices", d.Policy.MaxDevices)
	v.SetDefault("policy.trial_days", d.Policy.TrialDays)

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("telegram.bot_token", d.Telegram.BotToken)
	v.SetDefault("telegram.chat_id", d.Telegram.ChatID)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.OpsPort < 0 || c.Server.OpsPort > 65535 || c.Server.OpsPort == c.Server.Port {
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("ops_port must differ from port and be within 0-65535, got %d", c.Server.OpsPort))
	}

	if len(c.Auth.Secret) < 16 {
		return domain.WrapError(domain.ErrConfigMissing,
			fmt.Errorf("auth.secret (FXHEDZ_SECRET) must be at least 16 characters"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("refresh_ttl (%s) must exceed access_ttl (%s)", c.Auth.RefreshTTL, c.Auth.AccessTTL))
	}

	switch c.Authority.Mode {
	case AuthorityRemote:
		if c.Authority.URL == "" {
			return domain.WrapError(domain.ErrConfigMissing,
				fmt.Errorf("authority.url (GAS_AUTH_URL) required when authority mode is remote"))
		}
	case AuthorityPostgres:
		if c.Database.URL == "" {
			return domain.WrapError(domain.ErrConfigMissing,
				fmt.Errorf("database.url required when authority mode is postgres"))
		}
	case AuthorityMemory:
	default:
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("unknown authority mode: %s", c.Authority.Mode))
	}

	if c.Signals.URL == "" {
		return domain.WrapError(domain.ErrConfigMissing,
			fmt.Errorf("signals.url (GAS_SIGNAL_URL) is required"))
	}
	if c.Signals.StreamInterval <= 0 || c.Signals.StreamRecheck <= 0 || c.Signals.PreviewTTL < 0 {
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("signal intervals must be positive"))
	}

	if c.Policy.MaxDevices < 1 || c.Policy.TrialDays < 0 {
		return domain.WrapError(domain.ErrConfigInvalid,
			fmt.Errorf("max_devices must be >= 1 and trial_days >= 0"))
	}

	return nil
}
