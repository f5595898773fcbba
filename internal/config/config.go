package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Auth
	// AuthServiceURLが空の場合はプロセス内の認証サービスで
	// セッションを解決する。設定された場合はHTTP経由で解決する。
	AuthServiceURL string
	SessionMaxAge  int

	// RPC
	RPCTimeout  time.Duration
	BatchWindow time.Duration

	// Rate Limit
	RateLimitRPC int

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("BASE_URL is not a valid URL: %w", err)
	}

	cfg.AuthServiceURL = os.Getenv("AUTH_SERVICE_URL")
	if cfg.AuthServiceURL != "" {
		if _, err := url.ParseRequestURI(cfg.AuthServiceURL); err != nil {
			return nil, fmt.Errorf("AUTH_SERVICE_URL is not a valid URL: %w", err)
		}
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RPCTimeout = getEnvDuration("RPC_TIMEOUT", 10*time.Second)
	cfg.BatchWindow = getEnvDuration("BATCH_WINDOW", 10*time.Millisecond)
	cfg.RateLimitRPC = getEnvInt("RATE_LIMIT_RPC", 120)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
