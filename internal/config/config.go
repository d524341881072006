package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/test7679/gold-rate-alert/internal/logging"
)

// ErrMissingCredential marks a configuration without the notification credentials.
var ErrMissingCredential = errors.New("missing notification credential")

// ListSeparator separates list values given as a single string, e.g. GOLDRATE_SOURCE_ITEM_SELECTORS.
const ListSeparator = ";"

// State backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	State    StateConfig    `mapstructure:"state"`
	Database DatabaseConfig `mapstructure:"database"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes the rate page and how it is rendered.
type SourceConfig struct {
	URL               string        `mapstructure:"url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	WaitSelector      string        `mapstructure:"wait_selector"`
	ItemSelectors     []string      `mapstructure:"item_selectors"`
	UserAgent         string        `mapstructure:"user_agent"`
	ChromePath        string        `mapstructure:"chrome_path"`
	Headless          bool          `mapstructure:"headless"`
	DebugDir          string        `mapstructure:"debug_dir"`
}

// TelegramConfig holds the bot credentials and endpoint.
type TelegramConfig struct {
	BotToken  string        `mapstructure:"bot_token"`
	ChatID    string        `mapstructure:"chat_id"`
	APIBase   string        `mapstructure:"api_base"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ParseMode string        `mapstructure:"parse_mode"`
}

// NotifyConfig shapes the outgoing message.
type NotifyConfig struct {
	Title      string `mapstructure:"title"`
	Timezone   string `mapstructure:"timezone"`
	TimeFormat string `mapstructure:"time_format"`
}

// StateConfig selects where the last notified rate lives.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	// LockKey is the postgres advisory lock guarding overlapping runs; 0 disables it.
	LockKey int64 `mapstructure:"lock_key"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("GOLDRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindCredentials(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindCredentials also accepts the bare TELEGRAM_* names used by most bot deployments.
func bindCredentials(v *viper.Viper) error {
	if err := v.BindEnv("telegram.bot_token", "GOLDRATE_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return fmt.Errorf("bind telegram.bot_token: %w", err)
	}
	if err := v.BindEnv("telegram.chat_id", "GOLDRATE_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"); err != nil {
		return fmt.Errorf("bind telegram.chat_id: %w", err)
	}
	if err := v.BindEnv("database.dsn", "GOLDRATE_DATABASE_DSN", "DATABASE_URL"); err != nil {
		return fmt.Errorf("bind database.dsn: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goldrate")
	v.SetDefault("app.environment", "production")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("source.url", "https://www.khazanajewellery.com/")
	v.SetDefault("source.navigation_timeout", "60s")
	v.SetDefault("source.settle_delay", "6s")
	v.SetDefault("source.wait_selector", `//*[contains(text(), "Gold Price")]`)
	v.SetDefault("source.item_selectors", []string{"li a"})
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("source.headless", true)
	v.SetDefault("source.debug_dir", ".")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "15s")
	v.SetDefault("telegram.parse_mode", "")

	v.SetDefault("notify.title", "KHAZANA METAL RATES")
	v.SetDefault("notify.timezone", "Asia/Kolkata")
	v.SetDefault("notify.time_format", "02-01-2006 03:04 PM")

	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "last_rate.json")
	v.SetDefault("state.lock_key", int64(0x676f6c64))

	v.SetDefault("database.max_open_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.connect_timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToListHookFunc(),
		)
	}
}

// stringToListHookFunc splits env-provided lists on ';' because CSS selector groups use ','.
func stringToListHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		var out []string
		for _, part := range strings.Split(data.(string), ListSeparator) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return fmt.Errorf("source.url must be set")
	}
	if c.Source.NavigationTimeout <= 0 {
		return fmt.Errorf("source.navigation_timeout must be greater than zero")
	}
	if c.Source.SettleDelay < 0 {
		return fmt.Errorf("source.settle_delay cannot be negative")
	}
	if c.Telegram.Timeout <= 0 {
		return fmt.Errorf("telegram.timeout must be greater than zero")
	}
	switch strings.ToUpper(c.Telegram.ParseMode) {
	case "", "HTML":
	default:
		return fmt.Errorf("telegram.parse_mode must be empty or HTML, got %q", c.Telegram.ParseMode)
	}
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("notify.timezone: %w", err)
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state.path must be set for the file backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend must be %q or %q", BackendFile, BackendPostgres)
	}
	return nil
}

// RequireNotifier reports missing bot credentials. Runs that notify call it before any work.
func (c *Config) RequireNotifier() error {
	var missing []string
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		missing = append(missing, "telegram.bot_token (TELEGRAM_BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		missing = append(missing, "telegram.chat_id (TELEGRAM_CHAT_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}
