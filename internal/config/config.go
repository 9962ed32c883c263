/**
 * @description
 * Configuration management for the storefront-service. Settings come from
 * environment variables (optionally seeded from a local .env by main) via viper.
 */
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort             string        `mapstructure:"SERVER_PORT"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	RedisURL               string        `mapstructure:"REDIS_URL"`
	RedisKeyPrefix         string        `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL            string        `mapstructure:"RABBITMQ_URL"`
	SubscriptionExchange   string        `mapstructure:"SUBSCRIPTION_EVENTS_EXCHANGE"`
	SubscriptionQueue      string        `mapstructure:"SUBSCRIPTION_EVENTS_QUEUE"`
	SubscriptionRoutingKey string        `mapstructure:"SUBSCRIPTION_EVENTS_ROUTING_KEY"`
	ClerkIssuer            string        `mapstructure:"CLERK_ISSUER"`
	ClerkJWKSURL           string        `mapstructure:"CLERK_JWKS_URL"`
	ClerkAudience          string        `mapstructure:"CLERK_AUDIENCE"`
	ClerkPublishableKey    string        `mapstructure:"CLERK_PUBLISHABLE_KEY"`
	StripeSecretKey        string        `mapstructure:"STRIPE_SECRET_KEY"`
	CheckoutSuccessURL     string        `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL      string        `mapstructure:"CHECKOUT_CANCEL_URL"`
	CatalogCacheTTL        time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	CatalogRefreshSchedule string        `mapstructure:"CATALOG_REFRESH_SCHEDULE"`
	CatalogRenderTimeout   time.Duration `mapstructure:"CATALOG_RENDER_TIMEOUT"`
	AllowedOrigins         []string      `mapstructure:"-"`
	// LiveAllowedOrigins admits cross-origin live view connections. Empty means same host only.
	LiveAllowedOrigins     []string      `mapstructure:"-"`
}

var envKeys = []string{
	"SERVER_PORT",
	"PORT",
	"DATABASE_URL",
	"REDIS_URL",
	"REDIS_KEY_PREFIX",
	"RABBITMQ_URL",
	"SUBSCRIPTION_EVENTS_EXCHANGE",
	"SUBSCRIPTION_EVENTS_QUEUE",
	"SUBSCRIPTION_EVENTS_ROUTING_KEY",
	"CLERK_ISSUER",
	"CLERK_JWKS_URL",
	"CLERK_AUDIENCE",
	"CLERK_PUBLISHABLE_KEY",
	"STRIPE_SECRET_KEY",
	"CHECKOUT_SUCCESS_URL",
	"CHECKOUT_CANCEL_URL",
	"CATALOG_CACHE_TTL",
	"CATALOG_REFRESH_SCHEDULE",
	"CATALOG_RENDER_TIMEOUT",
	"ALLOWED_ORIGINS",
	"LIVE_ALLOWED_ORIGINS",
}

// LoadConfig reads configuration from environment variables and validates it.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8085")
	viper.SetDefault("REDIS_KEY_PREFIX", "storefront")
	viper.SetDefault("SUBSCRIPTION_EVENTS_EXCHANGE", "subscription_events")
	viper.SetDefault("SUBSCRIPTION_EVENTS_QUEUE", "storefront_service.subscription_status")
	viper.SetDefault("SUBSCRIPTION_EVENTS_ROUTING_KEY", "subscription.status.changed")
	viper.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:8085/dashboard-paid")
	viper.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:8085/#pricing")
	viper.SetDefault("CATALOG_CACHE_TTL", "5m")
	viper.SetDefault("CATALOG_REFRESH_SCHEDULE", "@every 5m")
	viper.SetDefault("CATALOG_RENDER_TIMEOUT", "3s")
	viper.SetDefault("ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("LIVE_ALLOWED_ORIGINS", "")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode configuration: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}
	config.AllowedOrigins = splitList(viper.GetString("ALLOWED_ORIGINS"))
	config.LiveAllowedOrigins = splitList(viper.GetString("LIVE_ALLOWED_ORIGINS"))

	config.ClerkIssuer = strings.TrimSuffix(strings.TrimSpace(config.ClerkIssuer), "/")
	if strings.TrimSpace(config.ClerkJWKSURL) == "" && config.ClerkIssuer != "" {
		config.ClerkJWKSURL = config.ClerkIssuer + "/.well-known/jwks.json"
	}

	err = config.validate()
	return
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.StripeSecretKey) == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.ClerkIssuer == "" {
		missing = append(missing, "CLERK_ISSUER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.CatalogCacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be positive, got %s", c.CatalogCacheTTL)
	}
	if c.CatalogRenderTimeout <= 0 {
		return fmt.Errorf("CATALOG_RENDER_TIMEOUT must be positive, got %s", c.CatalogRenderTimeout)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
