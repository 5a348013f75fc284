package config

import (
	"errors"
	"os"
)

// Config holds every environment-driven setting the server reads.
type Config struct {
	Port       string
	MongoURI   string
	MongoDB    string
	RedisAddr  string // empty disables the cross-instance event bridge
	CORSOrigin string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       getEnvOrDefault("PORT", "5000"),
		MongoURI:   getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:    getEnvOrDefault("MONGO_DB", "codehub"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		CORSOrigin: getEnvOrDefault("CORS_ORIGIN", "*"),
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MongoURI == "" {
		return errors.New("MONGO_URI must not be empty")
	}
	if cfg.MongoDB == "" {
		return errors.New("MONGO_DB must not be empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
