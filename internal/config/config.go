package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Record store
	StoreURL           string
	StoreTimeout       time.Duration
	StoreRateLimit     float64 // req/sec
	StoreRateBurst     int
	StoreMaxConcurrent int

	// Catalog
	CapacityUnit string

	// Session
	SessionMaxAge int
	ConfirmTTL    time.Duration
	CookieDomain  string
	CookieSecure  bool

	// Rate Limit (req/min/user)
	RateLimitGeneral  int
	RateLimitCheckout int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// DevStoreConfig は開発用レコードストアの設定を保持する。
type DevStoreConfig struct {
	Port        string
	DatabaseURL string // 空の場合はメモリバックエンドを使用する
	SeedFile    string // 空の場合は組み込みのシードデータを使用する
	LogLevel    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、またはSTORE_URLが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StoreURL = os.Getenv("STORE_URL")
	if cfg.StoreURL == "" {
		missing = append(missing, "STORE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	u, err := url.Parse(cfg.StoreURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("STORE_URL must be an absolute http(s) URL: %q", cfg.StoreURL)
	}

	// Optional fields with defaults
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 10*time.Second)
	cfg.StoreRateLimit = getEnvFloat("STORE_RATE_LIMIT", 20)
	cfg.StoreRateBurst = getEnvInt("STORE_RATE_BURST", 20)
	cfg.StoreMaxConcurrent = getEnvInt("STORE_MAX_CONCURRENT", 8)
	cfg.CapacityUnit = getEnvString("CAPACITY_UNIT", "Mbps")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ConfirmTTL = getEnvDuration("CONFIRM_TTL", 5*time.Minute)
	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCheckout = getEnvInt("RATE_LIMIT_CHECKOUT", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// LoadDevStore は開発用レコードストアの設定を環境変数から読み込む。
// 必須項目はない。
func LoadDevStore() *DevStoreConfig {
	return &DevStoreConfig{
		Port:        getEnvString("DEVSTORE_PORT", "3001"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SeedFile:    os.Getenv("DEVSTORE_SEED"),
		LogLevel:    getEnvString("LOG_LEVEL", "info"),
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
