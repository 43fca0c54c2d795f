package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           int
	DatabaseDriver string // "pgx" or "sqlite"
	DatabaseURL    string
	DataDir        string // rtp.yaml and game_math.json live here
	JWTSecret      string
	TokenTTL       time.Duration
	GatewaySecret  string // empty disables the deposit postback endpoint
	RedisAddr      string // empty uses in-process locks
	RedisPassword  string
	LogLevel       string
	LogFormat      string

	BetRate  float64 // bet requests per second per user
	BetBurst int

	ReconcileInterval  time.Duration // 0 disables the scheduled run
	ReconcileTolerance int64         // minor units
	ReconcileWorkers   int

	CrashMaxRound time.Duration
	CrashSweep    time.Duration
}

func Load() *Config {
	port := envInt("PORT", 0)
	if port <= 0 {
		port = 8080
	}
	driver := os.Getenv("DATABASE_DRIVER")
	dbURL := os.Getenv("DATABASE_URL")
	if driver == "" {
		// A postgres URL implies pgx; anything else is a SQLite path.
		driver = "sqlite"
		if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
			driver = "pgx"
		}
	}
	return &Config{
		Port:               port,
		DatabaseDriver:     driver,
		DatabaseURL:        dbURL,
		DataDir:            envString("DATA_DIR", "data"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           envDuration("TOKEN_TTL", 24*time.Hour),
		GatewaySecret:      os.Getenv("GATEWAY_SECRET"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		LogLevel:           envString("LOG_LEVEL", "info"),
		LogFormat:          envString("LOG_FORMAT", "json"),
		BetRate:            envFloat("BET_RATE", 10),
		BetBurst:           envInt("BET_BURST", 20),
		ReconcileInterval:  envDuration("RECONCILE_INTERVAL", 24*time.Hour),
		ReconcileTolerance: int64(envInt("RECONCILE_TOLERANCE", 1)),
		ReconcileWorkers:   envInt("RECONCILE_WORKERS", 4),
		CrashMaxRound:      envDuration("CRASH_MAX_ROUND", 10*time.Minute),
		CrashSweep:         envDuration("CRASH_SWEEP", 5*time.Second),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or plain seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
