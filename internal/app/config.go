package app

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env       string
	HTTPAddr  string
	CORSAllow []string

	StoreDriver string // "redis" or "memory" (memory is single-instance, dev only)

	RedisAddr string // host:port
	RedisDB   int

	RoomTTL time.Duration // idle lifetime of a room's fields
}

func LoadConfig() Config {
	cfg := Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		StoreDriver: getEnv("STORE_DRIVER", "redis"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
	}
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RoomTTL = time.Duration(getEnvInt("ROOM_TTL_SECONDS", 100)) * time.Second
	// CORS allowlist
	allow := getEnv("CORS_ALLOW", "http://localhost:3000")
	cfg.CORSAllow = splitCSV(allow)
	log.Printf("config: %+v\n", cfg)
	return cfg
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses an int env var with a fallback
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		var i int
		_, _ = fmt.Sscanf(v, "%d", &i)
		if i > 0 {
			return i
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
