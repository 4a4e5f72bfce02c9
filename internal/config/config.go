// Package config loads server settings from flags, the environment and an
// optional dotenv file. Flags win over the environment, which wins over the
// dotenv file, which wins over defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether enough is set to talk to a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type EmailConfig struct {
	PostmarkToken string
	FromAddress   string
}

type Config struct {
	Addr        string
	DBPath      string
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
	TrustProxy  bool
	BaseURL     string
	BlobDir     string
	S3          S3Config
	Email       EmailConfig
}

// Load parses args (without the program name) and the environment.
func Load(args []string) (*Config, error) {
	flags := flag.NewFlagSet("hearth", flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file to load if it exists")
	addr := flags.String("addr", "", "listen address (HEARTH_ADDR)")
	dbPath := flags.String("db", "", "SQLite database path (HEARTH_DB_PATH)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (HEARTH_LOG_LEVEL)")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := &Config{
		Addr:        firstNonEmpty(*addr, getEnv("HEARTH_ADDR", ":8080")),
		DBPath:      firstNonEmpty(*dbPath, getEnv("HEARTH_DB_PATH", "hearth.db")),
		JWTSecret:   os.Getenv("HEARTH_JWT_SECRET"),
		LogLevel:    firstNonEmpty(*logLevel, getEnv("HEARTH_LOG_LEVEL", "info")),
		LogFormat:   getEnv("HEARTH_LOG_FORMAT", "text"),
		CORSOrigins: splitList(getEnv("HEARTH_CORS_ORIGINS", "*")),
		BaseURL:     strings.TrimRight(getEnv("HEARTH_BASE_URL", "http://localhost:8080"), "/"),
		BlobDir:     getEnv("HEARTH_BLOB_DIR", "data/blobs"),
		S3: S3Config{
			Endpoint:  os.Getenv("HEARTH_S3_ENDPOINT"),
			Bucket:    os.Getenv("HEARTH_S3_BUCKET"),
			Region:    getEnv("HEARTH_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("HEARTH_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HEARTH_S3_SECRET_KEY"),
		},
		Email: EmailConfig{
			PostmarkToken: os.Getenv("HEARTH_POSTMARK_TOKEN"),
			FromAddress:   getEnv("HEARTH_FROM_EMAIL", "hearth@localhost"),
		},
	}

	ttl, err := time.ParseDuration(getEnv("HEARTH_TOKEN_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTH_TOKEN_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, errors.New("HEARTH_TOKEN_TTL must be positive")
	}
	cfg.TokenTTL = ttl

	trust, err := strconv.ParseBool(getEnv("HEARTH_TRUST_PROXY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTH_TRUST_PROXY: %w", err)
	}
	cfg.TrustProxy = trust

	if cfg.JWTSecret == "" {
		return nil, errors.New("HEARTH_JWT_SECRET required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
