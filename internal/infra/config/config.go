package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env              string
	HTTPAddr         string
	StorageMode      string
	MongoURI         string
	MongoDB          string
	KafkaBrokers     []string
	KafkaTopicPrefix string
	SessionTTL       time.Duration
	ItemFixtures     string
	UserFixtures     string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", "memory")),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "garagesale"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		ItemFixtures:     getEnv("ITEM_FIXTURES", ""),
		UserFixtures:     getEnv("USER_FIXTURES", ""),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	sessionTTL, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = sessionTTL

	switch cfg.StorageMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_MODE: %q", cfg.StorageMode)
	}
	return cfg, nil
}

// ClientConfig holds the settings of the terminal client.
type ClientConfig struct {
	BaseURL           string
	Email             string
	Password          string
	ChatPollInterval  time.Duration
	InboxPollInterval time.Duration
}

// LoadClient parses the terminal client's configuration from the environment.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Email:    os.Getenv("API_EMAIL"),
		Password: os.Getenv("API_PASSWORD"),
	}
	chatPoll, err := parseDurationEnv("CHAT_POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.ChatPollInterval = chatPoll

	inboxPoll, err := parseDurationEnv("INBOX_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.InboxPollInterval = inboxPoll

	if cfg.Email == "" || cfg.Password == "" {
		return ClientConfig{}, fmt.Errorf("API_EMAIL and API_PASSWORD are required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
