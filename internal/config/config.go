package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	Env  string `env:"ENV" envDefault:"production"`
	Port string `env:"PORT" envDefault:"8080"`

	JWTSecret string `env:"JWT_SECRET,required"`

	DB        DBConfig
	Numbering NumberingConfig
	Fanout    FanoutConfig
	Twilio    TwilioConfig
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"carewire"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"carewire"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	TimeZone string `env:"DB_TIMEZONE" envDefault:"UTC"`
}

// DSN builds the Postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode, c.TimeZone,
	)
}

// NumberingConfig controls phone normalization and virtual number synthesis.
type NumberingConfig struct {
	// CallingCode is assumed for numbers that arrive without a country code.
	CallingCode string `env:"DEFAULT_CALLING_CODE" envDefault:"1"`
	// Prefix is the area code + exchange that synthesized virtual numbers
	// share, without the calling code (e.g. "910444").
	Prefix string `env:"VIRTUAL_NUMBER_PREFIX" envDefault:"910444"`
	// SuffixDigits is the length of the random subscriber suffix.
	SuffixDigits int `env:"VIRTUAL_NUMBER_SUFFIX_DIGITS" envDefault:"4"`
	// MaxAttempts bounds the collision-retry loop during allocation.
	MaxAttempts int `env:"ALLOCATION_MAX_ATTEMPTS" envDefault:"100"`
}

// FanoutConfig controls outbound message dispatch.
type FanoutConfig struct {
	// MaxConcurrency caps the number of in-flight gateway calls per send.
	MaxConcurrency int `env:"FANOUT_MAX_CONCURRENCY" envDefault:"8"`
	// DeliveryTimeout bounds each individual gateway call.
	DeliveryTimeout time.Duration `env:"FANOUT_DELIVERY_TIMEOUT" envDefault:"15s"`
}

// TwilioConfig holds SMS gateway credentials.
type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	BaseURL    string `env:"TWILIO_BASE_URL" envDefault:"https://api.twilio.com"`
	// WebhookURL is the public URL of the inbound webhook, needed to verify
	// provider signatures.
	WebhookURL string `env:"TWILIO_WEBHOOK_URL"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
