/**
 * @description
 * This package handles the configuration management for the payment-service. It uses
 * the Viper library to read configuration from environment variables and an optional
 * .env file, then normalises the values the rest of the service relies on.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	LedgerDriverFile     = "file"
	LedgerDriverPostgres = "postgres"
)

// Config holds all the configuration variables for the payment-service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	LedgerDriver             string `mapstructure:"LEDGER_DRIVER"`
	LedgerPath               string `mapstructure:"LEDGER_PATH"`
	CatalogPath              string `mapstructure:"CATALOG_PATH"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	StripeSecretKey          string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret      string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBaseURL         string `mapstructure:"STRIPE_API_BASE_URL"`
	JWTSecret                string `mapstructure:"JWT_SECRET"`
	ProviderTimeoutSeconds   int    `mapstructure:"PROVIDER_TIMEOUT_SECONDS"`
	DefaultCurrency          string `mapstructure:"DEFAULT_CURRENCY"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	IntentRateLimitPerMinute int    `mapstructure:"INTENT_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	PaymentEventsExchange    string `mapstructure:"PAYMENT_EVENTS_EXCHANGE"`
	PendingSweepSchedule     string `mapstructure:"PENDING_SWEEP_SCHEDULE"`
	PendingSweepAfterMinutes int    `mapstructure:"PENDING_SWEEP_AFTER_MINUTES"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// ProviderTimeout is the bound applied to every outbound provider call.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// PendingSweepAfter is the age after which a pending record is re-checked at the provider.
func (c Config) PendingSweepAfter() time.Duration {
	return time.Duration(c.PendingSweepAfterMinutes) * time.Minute
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	out := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LEDGER_DRIVER", LedgerDriverFile)
	viper.SetDefault("LEDGER_PATH", "data/payments.json")
	viper.SetDefault("PROVIDER_TIMEOUT_SECONDS", 15)
	viper.SetDefault("DEFAULT_CURRENCY", "usd")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payments:rate_limit")
	viper.SetDefault("INTENT_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("PAYMENT_EVENTS_EXCHANGE", "payments.events")
	viper.SetDefault("PENDING_SWEEP_SCHEDULE", "@every 5m")
	viper.SetDefault("PENDING_SWEEP_AFTER_MINUTES", 30)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("LEDGER_DRIVER")
	_ = viper.BindEnv("LEDGER_PATH", "LEDGER_PATH", "PAYMENTS_FILE")
	_ = viper.BindEnv("CATALOG_PATH", "CATALOG_PATH", "PRODUCTS_FILE")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY", "STRIPE_API_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("PROVIDER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("INTENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("PENDING_SWEEP_SCHEDULE")
	_ = viper.BindEnv("PENDING_SWEEP_AFTER_MINUTES")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.LedgerDriver = strings.ToLower(strings.TrimSpace(config.LedgerDriver))
	switch config.LedgerDriver {
	case LedgerDriverFile, LedgerDriverPostgres:
	case "":
		config.LedgerDriver = LedgerDriverFile
	default:
		log.Printf("level=warn component=config msg=\"unknown ledger driver; falling back to file\" driver=%q", config.LedgerDriver)
		config.LedgerDriver = LedgerDriverFile
	}
	if strings.TrimSpace(config.LedgerPath) == "" {
		config.LedgerPath = "data/payments.json"
	}
	config.CatalogPath = strings.TrimSpace(config.CatalogPath)

	config.StripeSecretKey = strings.TrimSpace(config.StripeSecretKey)
	config.StripeWebhookSecret = strings.TrimSpace(config.StripeWebhookSecret)
	config.StripeAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.StripeAPIBaseURL), "/")

	config.DefaultCurrency = strings.ToLower(strings.TrimSpace(config.DefaultCurrency))
	if len(config.DefaultCurrency) != 3 {
		if config.DefaultCurrency != "" {
			log.Printf("level=warn component=config msg=\"invalid DEFAULT_CURRENCY; using usd\" value=%q", config.DefaultCurrency)
		}
		config.DefaultCurrency = "usd"
	}

	if config.ProviderTimeoutSeconds <= 0 {
		config.ProviderTimeoutSeconds = 15
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payments:rate_limit"
	}
	if config.IntentRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative intent rate limit configured; disabling\" value=%d", config.IntentRateLimitPerMinute)
		config.IntentRateLimitPerMinute = 0
	}

	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	if strings.TrimSpace(config.PaymentEventsExchange) == "" {
		config.PaymentEventsExchange = "payments.events"
	}

	config.PendingSweepSchedule = strings.TrimSpace(config.PendingSweepSchedule)
	// An empty env var falls through to the default, so "off" disables the sweep.
	if strings.EqualFold(config.PendingSweepSchedule, "off") {
		config.PendingSweepSchedule = ""
	}
	if config.PendingSweepAfterMinutes <= 0 {
		config.PendingSweepAfterMinutes = 30
	}

	return
}
