package config // package config loads application configuration from environment variables

import (
	"errors"
	"io/fs"
	"log" // log is used to report configuration errors and halt execution
	"os"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration.  Each field corresponds to an
// environment variable.  Component specific settings (Kafka, admission timing,
// broker, cache, rate limit) live in their own loaders in this package.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign visitor access credentials
	AdminKeyHash string // bcrypt hash of the admin key (empty disables admin routes)
	LogLevel     string // debug, info, warn, error
	LogFormat    string // json or text
}

// LoadDotEnv reads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: ignoring unreadable .env: %v", err)
	}
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AdminKeyHash: os.Getenv("ADMIN_KEY_HASH"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogFormat:    envStr("LOG_FORMAT", "json"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
