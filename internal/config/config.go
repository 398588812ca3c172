// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AccessProfiles map[string]string // プロファイル名 → bcryptハッシュ化されたアクセスパスワード
	SessionSecret  string            // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize int64 // 単一ファイルの最大サイズ（バイト）
	MaxPages    int   // 単一ファイルの最大ページ数

	// ジョブ設定
	JobsDir             string // ジョブレコードの保存ディレクトリ
	WorkDir             string // ジョブ作業領域（入力・成果物）のルート
	JobRetentionHours   int    // ジョブレコードの保持時間（時間）
	SweepIntervalMinute int    // 掃除処理の実行間隔（分）

	// 解析設定
	ChunkSize       int    // テキストチャンクの最大文字数
	MaxContextChars int    // 全文のまま問い合わせる文字数の上限
	GPTModel        string // 既定のGPTモデル
	EmbeddingModel  string // 埋め込み生成モデル

	// 外部サービス
	CacheRedisURL  string // 埋め込みキャッシュ用Redis接続URL（空なら無効）
	SendGridAPIKey string // 結果メール送信用APIキー（空なら送信しない）
	MailFrom       string // 結果メールの送信元アドレス
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AccessProfiles: parseAccessProfiles(getEnv("ACCESS_PROFILES", "")),
		SessionSecret:  getEnv("SESSION_SECRET", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		MaxPages:    getEnvAsInt("MAX_PAGES", 2000),

		JobsDir:             getEnv("JOBS_DIR", ".jobs"),
		WorkDir:             getEnv("WORK_DIR", filepath.Join(os.TempDir(), "policy-reader")),
		JobRetentionHours:   getEnvAsInt("JOB_RETENTION_HOURS", 24),
		SweepIntervalMinute: getEnvAsInt("SWEEP_INTERVAL_MINUTES", 60),

		ChunkSize:       getEnvAsInt("CHUNK_SIZE", 200),
		MaxContextChars: getEnvAsInt("MAX_CONTEXT_CHARS", 25000),
		GPTModel:        getEnv("GPT_MODEL", "gpt-4.1"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		CacheRedisURL:  getEnv("CACHE_REDIS_URL", ""),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		MailFrom:       getEnv("MAIL_FROM", ""),
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

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if len(c.AccessProfiles) == 0 {
			return fmt.Errorf("ACCESS_PROFILES is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.SendGridAPIKey != "" && c.MailFrom == "" {
			return fmt.Errorf("MAIL_FROM is required when SENDGRID_API_KEY is set")
		}
	}
	if c.JobRetentionHours <= 0 {
		return fmt.Errorf("JOB_RETENTION_HOURS must be positive")
	}
	return nil
}

// APIKeyForProfile はアクセスプロファイルに対応するOpenAI APIキーを返します。
// OPENAI_APIKEY_<PROFILE> が無ければ共通の OPENAI_APIKEY を使います。
func (c *Config) APIKeyForProfile(profile string) string {
	if profile != "" {
		normalized := strings.ToUpper(strings.ReplaceAll(profile, "-", "_"))
		if key := os.Getenv("OPENAI_APIKEY_" + normalized); key != "" {
			return key
		}
	}
	return os.Getenv("OPENAI_APIKEY")
}

// parseAccessProfiles は "name:bcrypt-hash" のカンマ区切りを解析します。
func parseAccessProfiles(raw string) map[string]string {
	profiles := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, hash, ok := strings.Cut(pair, ":")
		if !ok || name == "" || hash == "" {
			continue
		}
		profiles[strings.TrimSpace(name)] = strings.TrimSpace(hash)
	}
	return profiles
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

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
