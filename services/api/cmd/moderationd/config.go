package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type config struct {
	HTTPAddr       string
	DatabaseDSN    string
	NATSURL        string
	OTLPEndpoint   string
	LedgerSecret   string
	Location       *time.Location
	PolicyFile     string
	RetentionDays  int
	SweepInterval  time.Duration
	RequestTimeout time.Duration

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string

	SigningKey    string
	SigningPubKey string
}

func loadConfig() (config, error) {
	cfg := config{
		HTTPAddr:       getEnv("MODGUARD_HTTP_ADDR", ":8080"),
		DatabaseDSN:    os.Getenv("MODGUARD_DB_DSN"),
		NATSURL:        getEnv("MODGUARD_NATS_URL", "nats://127.0.0.1:4222"),
		OTLPEndpoint:   getEnv("MODGUARD_OTLP_ENDPOINT", "http://127.0.0.1:4318"),
		LedgerSecret:   os.Getenv("MODGUARD_LEDGER_SECRET"),
		PolicyFile:     os.Getenv("MODGUARD_POLICY_FILE"),
		RetentionDays:  getEnvInt("MODGUARD_RETENTION_DAYS", 365),
		SweepInterval:  time.Duration(getEnvInt("MODGUARD_SWEEP_MINUTES", 15)) * time.Minute,
		RequestTimeout: time.Duration(getEnvInt("MODGUARD_REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,

		S3Endpoint:  os.Getenv("MODGUARD_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("MODGUARD_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("MODGUARD_S3_SECRET_KEY"),
		S3Region:    getEnv("MODGUARD_S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("MODGUARD_S3_BUCKET", "modguard"),

		SigningKey:    os.Getenv("MODGUARD_SIGNING_KEY"),
		SigningPubKey: os.Getenv("MODGUARD_SIGNING_PUB"),
	}

	if cfg.DatabaseDSN == "" {
		return config{}, fmt.Errorf("MODGUARD_DB_DSN is required")
	}
	if cfg.LedgerSecret == "" {
		return config{}, fmt.Errorf("MODGUARD_LEDGER_SECRET is required")
	}
	if cfg.RetentionDays <= 0 {
		return config{}, fmt.Errorf("MODGUARD_RETENTION_DAYS must be positive")
	}

	tz := getEnv("MODGUARD_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return config{}, fmt.Errorf("invalid MODGUARD_TIMEZONE: %q", tz)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
