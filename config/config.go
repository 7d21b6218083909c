package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AWS        AWSConfig
	Classifier ClassifierConfig
	Detection  DetectionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/drowsyguard?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	SoundsBucket         string
	ExportsBucket        string
	PresignExpireMinutes int
}

// ClassifierConfig holds the external model service settings.
type ClassifierConfig struct {
	URL        string
	TimeoutSec int
}

// DetectionConfig holds the frame-analysis pipeline defaults. Per-user
// settings can override the trigger threshold and confidence floor.
type DetectionConfig struct {
	SmoothingWindow  int
	MinBoxSize       float64
	MaxBoxFrac       float64
	TriggerFrames    int
	CooldownSec      int
	IdleTimeoutSec   int
	SweepIntervalSec int
	MinConfidence    float64
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/drowsyguard?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "drowsyguard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SoundsBucket:         getEnv("AWS_S3_SOUNDS_BUCKET", "drowsyguard-sounds"),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", "drowsyguard-exports"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Classifier: ClassifierConfig{
			URL:        getEnv("CLASSIFIER_URL", "http://localhost:5001"),
			TimeoutSec: getEnvInt("CLASSIFIER_TIMEOUT_SEC", 5),
		},
		Detection: DetectionConfig{
			SmoothingWindow:  getEnvInt("DETECTION_SMOOTHING_WINDOW", 3),
			MinBoxSize:       getEnvFloat("DETECTION_MIN_BOX_SIZE", 40),
			MaxBoxFrac:       getEnvFloat("DETECTION_MAX_BOX_FRAC", 0.8),
			TriggerFrames:    getEnvInt("DETECTION_TRIGGER_FRAMES", 3),
			CooldownSec:      getEnvInt("DETECTION_COOLDOWN_SEC", 10),
			IdleTimeoutSec:   getEnvInt("DETECTION_IDLE_TIMEOUT_SEC", 300),
			SweepIntervalSec: getEnvInt("DETECTION_SWEEP_INTERVAL_SEC", 60),
			MinConfidence:    getEnvFloat("DETECTION_MIN_CONFIDENCE", 0.5),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
