package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"roulette"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"roulette"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"roulette"`

	// In-memory mode skips Postgres entirely (local dev and tests).
	MemoryStore bool `env:"MEMORY_STORE" envDefault:"false"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry string `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"3200"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Round engine
	BettingDurationSeconds  int   `env:"BETTING_DURATION_SECONDS" envDefault:"15"`
	SpinningDurationSeconds int   `env:"SPINNING_DURATION_SECONDS" envDefault:"5"`
	ResultsDurationSeconds  int   `env:"RESULTS_DURATION_SECONDS" envDefault:"3"`
	MinStake                int64 `env:"MIN_STAKE" envDefault:"10"`
	MaxStake                int64 `env:"MAX_STAKE" envDefault:"10000"`
	InitialBalance          int64 `env:"INITIAL_BALANCE" envDefault:"5000"`
	SubscriberQueueDepth    int   `env:"SUBSCRIBER_QUEUE_DEPTH" envDefault:"64"`
	BetRequestDeadlineSecs  int   `env:"BET_REQUEST_DEADLINE_SECONDS" envDefault:"5"`
	HeartbeatSeconds        int   `env:"HEARTBEAT_SECONDS" envDefault:"15"`
	BetRateLimitPerSecond   int   `env:"BET_RATE_LIMIT" envDefault:"10"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if !c.AllowInsecureDefaults {
		if c.JWTSecret == "change-me-in-production" {
			return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
		}
	}
	if c.MinStake <= 0 || c.MaxStake < c.MinStake {
		return fmt.Errorf("invalid stake bounds [%d, %d]", c.MinStake, c.MaxStake)
	}
	if c.BettingDurationSeconds <= 0 || c.SpinningDurationSeconds <= 0 || c.ResultsDurationSeconds <= 0 {
		return fmt.Errorf("phase durations must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// BettingDuration returns the betting window as a duration.
func (c *Config) BettingDuration() time.Duration {
	return time.Duration(c.BettingDurationSeconds) * time.Second
}

// SpinningDuration returns the spin animation window as a duration.
func (c *Config) SpinningDuration() time.Duration {
	return time.Duration(c.SpinningDurationSeconds) * time.Second
}

// ResultsDuration returns the results window as a duration.
func (c *Config) ResultsDuration() time.Duration {
	return time.Duration(c.ResultsDurationSeconds) * time.Second
}

// BetRequestDeadline returns the per-request deadline for bet submissions.
func (c *Config) BetRequestDeadline() time.Duration {
	return time.Duration(c.BetRequestDeadlineSecs) * time.Second
}

// Heartbeat returns the stream idle heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
