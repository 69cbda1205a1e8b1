package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	S3       S3Config
	Model    ModelConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type S3Config struct {
	Bucket   string
	Region   string
	ModelKey string
	Disabled bool
}

type ModelConfig struct {
	// Local path the serving process keeps the active checkpoint at.
	LocalPath string
	// Directory the trainer writes checkpoints into.
	CheckpointDir string
	// Trainer YAML overrides for hyperparameters; empty means defaults.
	TrainConfigPath string
	// Serving API base URL the trainer pings after uploading a new model.
	ServingURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("invalid redis database")
		}
		redisDB = parsed
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Pawgram Recommend API"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "pawgram"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		S3: S3Config{
			Bucket:   getEnv("AWS_S3_BUCKET_NAME", ""),
			Region:   getEnv("AWS_REGION", "ap-northeast-1"),
			ModelKey: getEnv("MODEL_S3_KEY", "models/latest.model"),
			Disabled: getEnv("MODEL_S3_DISABLED", "") == "true",
		},
		Model: ModelConfig{
			LocalPath:       getEnv("MODEL_LOCAL_PATH", "models/latest.model"),
			CheckpointDir:   getEnv("MODEL_CHECKPOINT_DIR", "models/checkpoints"),
			TrainConfigPath: getEnv("TRAIN_CONFIG_PATH", ""),
			ServingURL:      getEnv("SERVING_URL", "http://localhost:8080"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if !cfg.S3.Disabled && cfg.S3.Bucket == "" {
		return nil, errors.New("missing s3 bucket name")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}
