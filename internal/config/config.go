package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs to start.
type Config struct {
	DatabaseURL string
	ServerAddr  string
}

// Load reads an optional .env file and then the environment. A missing
// .env is fine (containers usually pass variables directly).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] no .env file found, reading configuration from the environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return &Config{
		DatabaseURL: dsn,
		ServerAddr:  withDefault(os.Getenv("SERVER_ADDR"), ":8080"),
	}, nil
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
