// Package config centralizes environment-driven configuration for the
// example server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kestrelhq/admission/pkg/admission"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Engine EngineConfig
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	// Addr is empty when the redis event sink is disabled.
	Addr     string
	Password string
	DB       int
}

type EngineConfig struct {
	// TierOverrides replace the stock policy of individual operation
	// classes; classes not listed keep their defaults.
	TierOverrides map[admission.Operation]admission.WindowConfig
	// SweepInterval is how often idle keys are evicted. Zero disables the
	// sweeper.
	SweepInterval time.Duration
	// SweepMaxIdle is how long a key may sit idle before eviction.
	SweepMaxIdle time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}

	redisCfg, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	engineCfg, err := buildEngineConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{Server: server, Redis: redisCfg, Engine: engineCfg}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return RedisConfig{}, nil
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildEngineConfig() (EngineConfig, error) {
	sweepMinutes, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_MINUTES", "10"))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}
	idleHours, err := strconv.Atoi(getEnv("SWEEP_MAX_IDLE_HOURS", "24"))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid SWEEP_MAX_IDLE_HOURS: %w", err)
	}

	overrides, err := buildTierOverrides()
	if err != nil {
		return EngineConfig{}, err
	}

	return EngineConfig{
		TierOverrides: overrides,
		SweepInterval: time.Duration(sweepMinutes) * time.Minute,
		SweepMaxIdle:  time.Duration(idleHours) * time.Hour,
	}, nil
}

// buildTierOverrides parses TIERS, a comma-separated list of
// OPERATION:MAX_ATTEMPTS:WINDOW_SECONDS items, for example
// "search:60:60,create:5:900".
func buildTierOverrides() (map[admission.Operation]admission.WindowConfig, error) {
	raw := strings.TrimSpace(os.Getenv("TIERS"))
	if raw == "" {
		return map[admission.Operation]admission.WindowConfig{}, nil
	}

	defaults := admission.DefaultTierConfigs()
	overrides := make(map[admission.Operation]admission.WindowConfig)

	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tier override must follow OPERATION:MAX_ATTEMPTS:WINDOW_SECONDS: %s", item)
		}

		op := admission.Operation(strings.TrimSpace(parts[0]))
		base, ok := defaults[op]
		if !ok {
			return nil, fmt.Errorf("unknown operation class in TIERS: %s", parts[0])
		}
		max, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid max attempts for %s: %w", op, err)
		}
		windowSeconds, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid window seconds for %s: %w", op, err)
		}

		base.MaxAttempts = max
		base.Window = time.Duration(windowSeconds) * time.Second
		overrides[op] = base
	}

	return overrides, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
