package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"clover-api"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3004"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (review ledger). Empty host keeps the ledger in memory.
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Graph database (alias projection). Empty host disables projection.
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:""`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaImportTopic     string   `env:"KAFKA_IMPORT_TOPIC" env-default:"import-batches"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	KafkaMaxAttempts     int      `env:"KAFKA_MAX_ATTEMPTS" env-default:"5"`
	KafkaRetryBackoffMs  int      `env:"KAFKA_RETRY_BACKOFF_MS" env-default:"500"`
	KafkaOutputTopic     string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"resolution-events"`
	KafkaProducerEnabled bool     `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeoutMs  int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	OTLPProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`

	// Resolution defaults
	SimilarityThreshold    float64 `env:"RESOLUTION_SIMILARITY_THRESHOLD" env-default:"0.85"`
	PossibleMatchThreshold float64 `env:"RESOLUTION_POSSIBLE_MATCH_THRESHOLD" env-default:"0.65"`
	NonMatchThreshold      float64 `env:"RESOLUTION_NON_MATCH_THRESHOLD" env-default:"0.3"`
	MinScore               float64 `env:"RESOLUTION_MIN_SCORE" env-default:"0.5"`
	MaxBlockSize           int     `env:"RESOLUTION_MAX_BLOCK_SIZE" env-default:"0"`
	Workers                int     `env:"RESOLUTION_WORKERS" env-default:"4"`
	MatchingRulesPath      string  `env:"MATCHING_RULES_PATH" env-default:""`
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

// ResolutionConfig builds the service-wide thresholds and validates them
func (c *Config) ResolutionConfig() (models.ResolutionConfig, error) {
	cfg := models.DefaultResolutionConfig()
	cfg.SimilarityThreshold = c.SimilarityThreshold
	cfg.PossibleMatchThreshold = c.PossibleMatchThreshold
	cfg.NonMatchThreshold = c.NonMatchThreshold
	cfg.MinScore = c.MinScore
	cfg.MaxBlockSize = c.MaxBlockSize
	cfg.Workers = c.Workers

	if err := rules.ValidateConfig(cfg); err != nil {
		return models.ResolutionConfig{}, err
	}
	return cfg, nil
}

// MatchingRules returns the startup rule list: the JSON or YAML file at
// MatchingRulesPath when set, the default rules otherwise
func (c *Config) MatchingRules() ([]models.MatchingRule, error) {
	if c.MatchingRulesPath == "" {
		return rules.DefaultRules(), nil
	}
	return rules.LoadFile(c.MatchingRulesPath)
}

func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseHost != ""
}

func (c *Config) GraphEnabled() bool {
	return c.GraphDBHost != ""
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migrations() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}
