package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// Endpoint overrides the account endpoint, e.g. for a local S3 emulator.
	Endpoint string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// Platforms holds API base URLs. Empty values use each platform's public API.
type Platforms struct {
	FacebookURL     string
	InstagramURL    string
	ThreadsURL      string
	TwitterURL      string
	TelegramURL     string
	YouTubeEndpoint string
}

type Config struct {
	Port                 string
	LogLevel             string
	GoogleClientID       string
	GoogleClientSecret   string
	PostgresURI          string
	DatabaseName         string
	RedisURI             string
	FrontendURL          string
	R2                   R2
	Kafka                Kafka
	Platforms            Platforms
	SecretKey            string
	CookieName           string
	ThreadSegmentDelay   time.Duration
	SchedulerInterval    time.Duration
	SchedulerBatchSize   int
	StalePublishingAfter time.Duration
	StaleSweepInterval   time.Duration
	WorkerConcurrency    int
}

func LoadConfig() *Config {
	return &Config{
		Port:               getEnv("PORT", "8000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		DatabaseName:       getEnv("DATABASE_NAME", ""),
		RedisURI:           getEnv("REDIS_URI", ""),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
		},
		Kafka: Kafka{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "publishflow.deliveries"),
		},
		Platforms: Platforms{
			FacebookURL:     getEnv("FACEBOOK_API_URL", ""),
			InstagramURL:    getEnv("INSTAGRAM_API_URL", ""),
			ThreadsURL:      getEnv("THREADS_API_URL", ""),
			TwitterURL:      getEnv("TWITTER_API_URL", ""),
			TelegramURL:     getEnv("TELEGRAM_API_URL", ""),
			YouTubeEndpoint: getEnv("YOUTUBE_API_URL", ""),
		},
		SecretKey:            getEnv("SECRET_KEY", ""),
		CookieName:           getEnv("COOKIE_NAME", ""),
		ThreadSegmentDelay:   getEnvDuration("THREAD_SEGMENT_DELAY", 35*time.Second),
		SchedulerInterval:    getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerBatchSize:   getEnvInt("SCHEDULER_BATCH_SIZE", 100),
		StalePublishingAfter: getEnvDuration("STALE_PUBLISHING_AFTER", 15*time.Minute),
		StaleSweepInterval:   getEnvDuration("STALE_SWEEP_INTERVAL", 5*time.Minute),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
