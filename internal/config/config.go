// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the scorer and streamer
// binaries.
type Config struct {
	// Server settings
	Port        string
	MetricsAddr string
	LogLevel    string

	// Model artifacts
	ModelDir string

	// Scoring
	MaxWorkers   int
	BatchWorkers int

	// Persistence: Redis when set, JSON files in ModelDir otherwise
	RedisAddr string

	// Narrative analysis (optional)
	OpenAIAPIKey     string
	OpenAIFraudModel string
	OpenAIAMLModel   string

	// Training trigger
	TrainCommand string

	// Kafka streaming
	KafkaBrokers    string
	KafkaGroupID    string
	TopicRaw        string
	TopicScored     string
	TopicAlerts     string
	TopicMetrics    string
	ScoringURL      string
	ScoreTimeout    time.Duration
	PollTimeout     time.Duration
	MetricsInterval int
}

const (
	DefaultPort            = "8000"
	DefaultMetricsAddr     = ":9090"
	DefaultLogLevel        = "info"
	DefaultModelDir        = "models"
	DefaultMaxWorkers      = 4
	DefaultGroupID         = "fraud_detection_group"
	DefaultTopicRaw        = "transactions_raw"
	DefaultTopicScored     = "transactions_scored"
	DefaultTopicAlerts     = "fraud_alerts"
	DefaultTopicMetrics    = "model_metrics"
	DefaultScoringURL      = "http://localhost:8000"
	DefaultScoreTimeout    = 5 * time.Second
	DefaultPollTimeout     = time.Second
	DefaultMetricsInterval = 100
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		MetricsAddr:      getEnv("METRICS_ADDR", DefaultMetricsAddr),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		ModelDir:         getEnv("MODEL_DIR", DefaultModelDir),
		MaxWorkers:       getEnvInt("MAX_WORKERS", DefaultMaxWorkers),
		BatchWorkers:     getEnvInt("BATCH_WORKERS", DefaultMaxWorkers),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIFraudModel: getEnv("OPENAI_MODEL_FRAUD", "gpt-4o-mini"),
		OpenAIAMLModel:   getEnv("OPENAI_MODEL_AML", "gpt-4o-mini"),
		TrainCommand:     os.Getenv("TRAIN_COMMAND"),
		KafkaBrokers:     getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"),
		KafkaGroupID:     getEnv("KAFKA_CONSUMER_GROUP", DefaultGroupID),
		TopicRaw:         getEnv("KAFKA_TOPIC_RAW", DefaultTopicRaw),
		TopicScored:      getEnv("KAFKA_TOPIC_SCORED", DefaultTopicScored),
		TopicAlerts:      getEnv("KAFKA_TOPIC_ALERTS", DefaultTopicAlerts),
		TopicMetrics:     getEnv("KAFKA_TOPIC_METRICS", DefaultTopicMetrics),
		ScoringURL:       getEnv("ML_SERVICE_URL", DefaultScoringURL),
		ScoreTimeout:     getEnvDuration("SCORE_TIMEOUT", DefaultScoreTimeout),
		PollTimeout:      getEnvDuration("POLL_TIMEOUT", DefaultPollTimeout),
		MetricsInterval:  getEnvInt("METRICS_INTERVAL", DefaultMetricsInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("MODEL_DIR is required")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive")
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be positive")
	}
	return nil
}

// TrainArgs splits the configured training command into the executable and
// its arguments.
func (c *Config) TrainArgs() (string, []string) {
	fields := strings.Fields(c.TrainCommand)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
