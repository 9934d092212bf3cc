package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Server
	ListenAddr     string
	AllowedOrigins []string

	// Rooms
	AllowedRooms []string
	GlobeRooms   []string
	SendBuffer   int
	MsgRate      float64
	MsgBurst     int

	// Redis presence mirror, disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel string
	LogFile  string
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		AllowedRooms: splitList(getEnv("ALLOWED_ROOMS", "sol-system,proxima-system,globe")),
		GlobeRooms:   splitList(getEnv("GLOBE_ROOMS", "globe")),
		SendBuffer:   parseIntOr(getEnv("SEND_BUFFER", "256"), 256),
		MsgRate:      parseFloatOr(getEnv("MSG_RATE", "120"), 120),
		MsgBurst:     parseIntOr(getEnv("MSG_BURST", "240"), 240),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseIntOr(getEnv("REDIS_DB", "0"), 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
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

func parseIntOr(str string, fallback int) int {
	i, err := strconv.Atoi(str)
	if err != nil {
		log.Warn().Str("value", str).Int("default", fallback).Msg("invalid integer in config")
		return fallback
	}
	return i
}

func parseFloatOr(str string, fallback float64) float64 {
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		log.Warn().Str("value", str).Float64("default", fallback).Msg("invalid number in config")
		return fallback
	}
	return f
}
