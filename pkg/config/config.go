// Package config resolves calsync settings from the environment.
//
// An optional .env file in the working directory is loaded first; variables
// already set in the process environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/daviddao/calsync/pkg/push"
)

// Defaults.
const (
	DefaultAddr         = ":8080"
	DefaultDataPath     = "data/events.json"
	DefaultVAPIDSubject = "mailto:admin@example.com"
	DefaultRedisChannel = "calsync:changes"
	DefaultLogLevel     = "info"
)

// Config holds every process setting.
type Config struct {
	Addr         string
	DataPath     string
	StoreKind    string // "file", "sqlite", or "" to infer from DataPath
	VAPID        push.Credentials
	RedisURL     string // empty disables change notices
	RedisChannel string
	CORSOrigins  []string
	LogLevel     string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv reads the process environment only.
func FromEnv() *Config {
	return &Config{
		Addr:      envOr("CALSYNC_ADDR", DefaultAddr),
		DataPath:  envOr("CALSYNC_DATA", DefaultDataPath),
		StoreKind: envOr("CALSYNC_STORE", ""),
		VAPID: push.Credentials{
			PublicKey:  envOr("VAPID_PUBLIC_KEY", ""),
			PrivateKey: envOr("VAPID_PRIVATE_KEY", ""),
			Subject:    envOr("VAPID_SUBJECT", DefaultVAPIDSubject),
		},
		RedisURL:     envOr("CALSYNC_REDIS_URL", ""),
		RedisChannel: envOr("CALSYNC_REDIS_CHANNEL", DefaultRedisChannel),
		CORSOrigins:  splitList(envOr("CALSYNC_CORS_ORIGINS", "*")),
		LogLevel:     envOr("CALSYNC_LOG_LEVEL", DefaultLogLevel),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
