// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	CallbackPath   string        `yaml:"callback_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// per order and action
	ActionLimit  int           `yaml:"action_limit"`
	ActionWindow time.Duration `yaml:"action_window"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // transaction cache expiry
	// DisableTransactionCache turns the read-through transaction cache off.
	DisableTransactionCache bool `yaml:"disable_transaction_cache"`
}

// MethodConfig overrides the card type lock for one payment method instance.
type MethodConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CardTypeLock string `yaml:"cardtypelock"`
}

type GatewayConfig struct {
	Driver      string        `yaml:"driver"` // coolpay|memory
	APIKey      string        `yaml:"api_key"`
	PrivateKey  string        `yaml:"private_key"`
	BaseURL     string        `yaml:"base_url"`
	APIVersion  string        `yaml:"api_version"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`

	Language     string `yaml:"language"`
	Currency     string `yaml:"currency"`
	CurrencyAuto bool   `yaml:"currency_auto"`

	Autocapture        bool `yaml:"autocapture"`
	AutocaptureVirtual bool `yaml:"autocapture_virtual"`
	Autofee            bool `yaml:"autofee"`
	CaptureOnComplete  bool `yaml:"capture_on_complete"`

	CardTypeLock              string   `yaml:"cardtypelock"`
	BrandingID                string   `yaml:"branding_id"`
	GoogleAnalyticsTrackingID string   `yaml:"google_analytics_tracking_id"`
	TextOnStatement           string   `yaml:"text_on_statement"`
	SubscriptionDescription   string   `yaml:"subscription_description"`
	CustomVariables           []string `yaml:"custom_variables"` // customer_email|customer_phone|browser_useragent|shipping_method

	ContinueURL string `yaml:"continue_url"`
	CancelURL   string `yaml:"cancel_url"`

	ShopName    string `yaml:"shop_name"`
	ShopVersion string `yaml:"shop_version"`

	// shop price format used for operator entered amounts
	PriceDecimalSeparator  string `yaml:"price_decimal_separator"`
	PriceThousandSeparator string `yaml:"price_thousand_separator"`

	Methods map[string]MethodConfig `yaml:"methods"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SchedulerConfig struct {
	RenewalInterval time.Duration `yaml:"renewal_interval"`
	Workers         int           `yaml:"workers"`
	Batch           int           `yaml:"batch"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

const (
	DefaultBaseURL    = "https://api.coolpay.com/"
	DefaultAPIVersion = "v10"
	DefaultCacheTTL   = 7 * 24 * time.Hour
)

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML bytes, applies defaults and validates required keys.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.CallbackPath == "" {
		cfg.HTTP.CallbackPath = "/callback"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Admin.ActionLimit <= 0 {
		cfg.Admin.ActionLimit = 5
	}
	if cfg.Admin.ActionWindow <= 0 {
		cfg.Admin.ActionWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.Gateway.BaseURL, "/") {
		cfg.Gateway.BaseURL += "/"
	}
	if cfg.Gateway.Driver == "" {
		cfg.Gateway.Driver = "coolpay"
	}
	if cfg.Gateway.APIVersion == "" {
		cfg.Gateway.APIVersion = DefaultAPIVersion
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Gateway.Language == "" {
		cfg.Gateway.Language = "en"
	}
	if cfg.Gateway.SubscriptionDescription == "" {
		cfg.Gateway.SubscriptionDescription = "woocommerce-subscription"
	}
	if cfg.Gateway.PriceDecimalSeparator == "" {
		cfg.Gateway.PriceDecimalSeparator = "."
	}
	if cfg.Gateway.ShopName == "" {
		cfg.Gateway.ShopName = "coolpay-gateway"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "coolpay.callbacks"
	}
	if cfg.Scheduler.RenewalInterval <= 0 {
		cfg.Scheduler.RenewalInterval = 5 * time.Minute
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.Batch <= 0 {
		cfg.Scheduler.Batch = 50
	}

	// Minimal validation
	if cfg.Gateway.APIKey == "" {
		return nil, errors.New("gateway.api_key is required")
	}
	if cfg.Gateway.PrivateKey == "" {
		return nil, errors.New("gateway.private_key is required")
	}
	if !cfg.Gateway.CurrencyAuto && cfg.Gateway.Currency == "" {
		return nil, errors.New("gateway.currency is required when gateway.currency_auto is off")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultCacheTTL
	}
	return d
}
