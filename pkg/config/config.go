package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Permission PermissionConfig `mapstructure:"permission"`
	Spool      SpoolConfig      `mapstructure:"spool"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Email      EmailConfig      `mapstructure:"email"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, sqlite or postgres
	Path     string         `mapstructure:"path"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
}

type ClassifierConfig struct {
	SenderTokens    []string        `mapstructure:"sender_tokens"`
	Keywords        []string        `mapstructure:"keywords"`
	CurrencyMarkers []string        `mapstructure:"currency_markers"`
	AmountHeuristic AmountHeuristic `mapstructure:"amount_heuristic"`
}

// AmountHeuristic switches the currency-amount pattern on per path.
type AmountHeuristic struct {
	Retrieval bool `mapstructure:"retrieval"`
	Live      bool `mapstructure:"live"`
}

type RetrievalConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	DefaultDays  int `mapstructure:"default_days"`
}

type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Limit    int           `mapstructure:"limit"`
	Replay   bool          `mapstructure:"replay"`
}

type ReconcileConfig struct {
	Window    time.Duration `mapstructure:"window"`
	Retention time.Duration `mapstructure:"retention"`
}

type PermissionConfig struct {
	Mode string `mapstructure:"mode"` // granted, denied or prompt
}

type SpoolConfig struct {
	Dir string `mapstructure:"dir"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type EmailConfig struct {
	Addr     string   `mapstructure:"addr"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type OpenAIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionPrompt  = "prompt"
)

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "mmssms.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.table", "sms_inbox")

	v.SetDefault("classifier.amount_heuristic.retrieval", false)
	v.SetDefault("classifier.amount_heuristic.live", true)

	v.SetDefault("retrieval.default_limit", 100)
	v.SetDefault("retrieval.default_days", 30)

	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", 30*time.Second)
	v.SetDefault("poller.limit", 100)
	v.SetDefault("poller.replay", false)

	v.SetDefault("reconcile.window", 10*time.Minute)
	v.SetDefault("reconcile.retention", 24*time.Hour)

	v.SetDefault("permission.mode", PermissionPrompt)

	v.SetDefault("openai.enabled", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 10*time.Second)
}

// LoadConfig reads the YAML file at path, layered over defaults and
// environment variables. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support: STORE_DRIVER overrides store.driver.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.Table = config.Store.Postgres.Table
		config.Store.Postgres = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if password := v.GetString("SMTP_PASSWORD"); password != "" {
		config.Email.Password = password
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path: required for sqlite"))
	}
	switch c.Permission.Mode {
	case PermissionGranted, PermissionDenied, PermissionPrompt:
	default:
		errs = append(errs, fmt.Errorf("permission.mode: unknown mode %q", c.Permission.Mode))
	}
	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key: required when openai is enabled"))
	}
	return errors.Join(errs...)
}
