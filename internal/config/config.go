// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// minSecretLength は本番環境で許容する AUTH_SECRET の最小バイト数です。
	minSecretLength = 32
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	AuthSecret      string // セッショントークン署名用の秘密鍵
	AppPasswordHash string // bcryptでハッシュ化された管理者パスワード

	// サーバー設定
	AppEnv  string // 実行環境 (development, production)
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ログイン試行制限
	LoginLimitRedisURL string        // 空ならプロセス内メモリで管理
	LoginMaxAttempts   int           // ロックまでの失敗回数
	LoginWindow        time.Duration // 失敗回数を数える期間
	LoginLockDuration  time.Duration // ロック期間

	// 運用設定
	LogLevel       string // debug, info, warn, error
	MetricsEnabled bool   // /metrics を公開するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AuthSecret:      getEnv("AUTH_SECRET", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),

		AppEnv:  strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		LoginLimitRedisURL: getEnv("LOGIN_LIMIT_REDIS_URL", ""),
		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:        time.Duration(getEnvAsInt("LOGIN_WINDOW_MINUTES", 15)) * time.Minute,
		LoginLockDuration:  time.Duration(getEnvAsInt("LOGIN_LOCK_MINUTES", 10)) * time.Minute,

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
	}

	// 本番環境では Gin も release モードに揃える
	if config.IsProduction() {
		config.GinMode = "release"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// IsProduction は本番環境で動作しているかを返します。
// Cookie の Secure 属性はこの値から決まります。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction || c.GinMode == "release"
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}

	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.LoginWindow <= 0 || c.LoginLockDuration <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES and LOGIN_LOCK_MINUTES must be positive")
	}

	// ローカル開発では認証設定は任意（ログイン時に 500 を返す）
	if c.IsProduction() {
		if c.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is required in production")
		}
		if len(c.AuthSecret) < minSecretLength {
			return fmt.Errorf("AUTH_SECRET must be at least %d bytes", minSecretLength)
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in production")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
