package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/joiedevivre/jasmine/pkg/normalizers"
)

// minPhoneKeyLength is the shortest phone key that still identifies a
// subscriber; shorter keys would group unrelated numbers.
const minPhoneKeyLength = 8

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"jasmine"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs  bool   `env:"PRETTY_LOGS" env-default:"false"`

	HTTP      HTTPConfig
	DB        DBConfig
	Migration MigrationConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Graph     GraphConfig
	Tracing   TracingConfig
	Detection DetectionConfig
	Cascade   CascadeConfig

	StartupMaxAttempts int `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
}

type HTTPConfig struct {
	Port            int           `env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type DBConfig struct {
	Driver          string        `env:"DB_DRIVER" env-default:"postgres"`
	Host            string        `env:"DB_HOST" env-default:"localhost"`
	Port            string        `env:"DB_PORT" env-default:"5432"`
	User            string        `env:"DB_USER" env-default:"postgres"`
	Password        string        `env:"DB_PASSWORD" env-default:"postgres"`
	Name            string        `env:"DB_NAME" env-default:"joiedevivre"`
	SSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

type MigrationConfig struct {
	Enabled      bool   `env:"MIGRATIONS_ENABLED" env-default:"true"`
	FolderPath   string `env:"MIGRATIONS_PATH" env-default:"db/pg"`
	Version      uint   `env:"MIGRATIONS_VERSION" env-default:"0"`
	Force        int    `env:"MIGRATIONS_FORCE" env-default:"0"`
	AutoRollback bool   `env:"MIGRATIONS_AUTO_ROLLBACK" env-default:"false"`
}

type AuthConfig struct {
	OIDCEnabled  bool   `env:"OIDC_ENABLED" env-default:"false"`
	OIDCIssuer   string `env:"OIDC_ISSUER"`
	OIDCClientID string `env:"OIDC_CLIENT_ID"`
}

type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"jasmine.events"`
}

type GraphConfig struct {
	Enabled  bool   `env:"GRAPH_ENABLED" env-default:"false"`
	URI      string `env:"NEO4J_URI" env-default:"bolt://localhost:7687"`
	Username string `env:"NEO4J_USERNAME" env-default:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE" env-default:"neo4j"`
}

type TracingConfig struct {
	Exporter string        `env:"TRACING_EXPORTER" env-default:"none"`
	Protocol string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	Endpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	Insecure bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	Timeout  time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`
}

type DetectionConfig struct {
	EnrichmentConcurrency    int     `env:"ENRICHMENT_CONCURRENCY" env-default:"8"`
	EnrichmentQueriesPerSec  float64 `env:"ENRICHMENT_QUERIES_PER_SECOND" env-default:"0"`
	FuzzyNameMatchingEnabled bool    `env:"FUZZY_NAME_MATCHING_ENABLED" env-default:"false"`
	FuzzyNameThreshold       float64 `env:"FUZZY_NAME_THRESHOLD" env-default:"0.92"`
	MinPhoneKeyLength        int     `env:"MIN_PHONE_KEY_LENGTH" env-default:"8"`
}

type CascadeConfig struct {
	Transactional   bool          `env:"CASCADE_TRANSACTIONAL" env-default:"false"`
	ConfirmationTTL time.Duration `env:"CASCADE_CONFIRMATION_TTL" env-default:"15m"`
	LockingEnabled  bool          `env:"LOCKING_ENABLED" env-default:"false"`
	LockTTL         time.Duration `env:"LOCK_TTL" env-default:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.OIDCEnabled && (c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "") {
		return errors.New("OIDC_ISSUER and OIDC_CLIENT_ID are required when OIDC_ENABLED is set")
	}
	if c.Cascade.LockingEnabled && !c.Redis.Enabled {
		return errors.New("LOCKING_ENABLED requires REDIS_ENABLED")
	}
	if c.Detection.EnrichmentConcurrency < 1 {
		return fmt.Errorf("ENRICHMENT_CONCURRENCY must be at least 1, got %d", c.Detection.EnrichmentConcurrency)
	}
	if c.Detection.FuzzyNameThreshold <= 0 || c.Detection.FuzzyNameThreshold > 1 {
		return fmt.Errorf("FUZZY_NAME_THRESHOLD must be in (0, 1], got %v", c.Detection.FuzzyNameThreshold)
	}
	// keys are cut to PhoneKeyLength, so a longer minimum would match nothing
	if n := c.Detection.MinPhoneKeyLength; n < minPhoneKeyLength || n > normalizers.PhoneKeyLength {
		return fmt.Errorf("MIN_PHONE_KEY_LENGTH must be in [%d, %d], got %d", minPhoneKeyLength, normalizers.PhoneKeyLength, n)
	}
	return nil
}
