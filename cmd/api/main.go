// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/policy-reader/internal/analyze"
	"github.com/yourusername/policy-reader/internal/auth"
	"github.com/yourusername/policy-reader/internal/config"
	"github.com/yourusername/policy-reader/internal/gpt"
	"github.com/yourusername/policy-reader/internal/jobs"
	"github.com/yourusername/policy-reader/internal/mail"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// ジョブ基盤の構築
	jobStore, err := jobs.NewStore(cfg.JobsDir)
	if err != nil {
		log.Fatalf("Failed to create job store: %v", err)
	}
	jobManager, err := jobs.NewManager(jobStore, log.Default())
	if err != nil {
		log.Fatalf("Failed to create job manager: %v", err)
	}
	jobRunner := jobs.NewRunner(jobManager, log.Default())

	// 解析サービスの構築
	analyzeService := analyze.NewService(cfg, setupEmbeddingCache(cfg), setupMailer(cfg), log.Default())

	// ルーティングの設定
	setupRoutes(router, cfg, jobManager, jobRunner, analyzeService)

	// 掃除ループとサーバーの起動（SIGINT / SIGTERM で順次停止）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retention := time.Duration(cfg.JobRetentionHours) * time.Hour
	interval := time.Duration(cfg.SweepIntervalMinute) * time.Minute
	jobs.NewSweeper(jobManager, retention, interval, log.Default()).Start(ctx)

	addr := ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

// setupEmbeddingCache は埋め込みキャッシュ用のRedis接続を返します。
// 未設定ならキャッシュなしで動作します。
func setupEmbeddingCache(cfg *config.Config) *gpt.Cache {
	if cfg.CacheRedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.CacheRedisURL)
	if err != nil {
		log.Printf("Invalid CACHE_REDIS_URL, embeddings cache disabled: %v", err)
		return nil
	}
	ttl := time.Duration(cfg.JobRetentionHours) * time.Hour
	return gpt.NewCache(redis.NewClient(opt), ttl)
}

// setupMailer は結果メール送信用の Sender を返します。APIキー未設定なら
// 送信しない無効状態になります。
func setupMailer(cfg *config.Config) *mail.Sender {
	return mail.NewSender(cfg.SendGridAPIKey, cfg.MailFrom, log.Default())
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "policy-reader-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, jobManager *jobs.Manager, jobRunner *jobs.Runner, analyzeService *analyze.Service) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)
	scheduler := &analyzeScheduler{
		manager: jobManager,
		runner:  jobRunner,
		service: analyzeService,
	}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.POST("/analyze", analyze.AnalyzeHandler(analyzeService, scheduler, auth.ContextProfileKey))
			protected.GET("/jobs", jobListHandler(jobManager))
			protected.GET("/jobs/:id", jobStatusHandler(jobManager))
			protected.GET("/jobs/:id/download", jobDownloadHandler(jobManager, analyzeService))
		}
	}
}
