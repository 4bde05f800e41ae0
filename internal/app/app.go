// Package app はコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/datanet/internal/auth"
	"github.com/hitoshi/datanet/internal/catalog"
	"github.com/hitoshi/datanet/internal/config"
	"github.com/hitoshi/datanet/internal/database"
	"github.com/hitoshi/datanet/internal/devstore"
	"github.com/hitoshi/datanet/internal/handler"
	"github.com/hitoshi/datanet/internal/logger"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/security"
	"github.com/hitoshi/datanet/internal/storefront"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで作り直す
	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで停止する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandDevStore, CommandMigrate:
		dcfg := config.LoadDevStore()
		log := logger.SetupDefault(w, logger.ParseLevel(dcfg.LogLevel))
		log.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("backend", backendName(dcfg)),
		)
		if cmd == CommandMigrate {
			return runMigrate(dcfg, log)
		}
		return runDevStore(ctx, dcfg, log)
	default:
		cfg, log, err := Init(w)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		log.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
			slog.String("store_url", cfg.StoreURL),
		)
		return runServe(ctx, cfg, log)
	}
}

// bff はBFFサーバーの構成要素。
type bff struct {
	handler  http.Handler
	sessions *storefront.Manager
	limiter  *middleware.RateLimiter
}

// newBFF はレコードストアクライアントからルーターまでの依存関係を組み立てる。
func newBFF(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) *bff {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. レコードストアクライアント
	httpClient := &http.Client{Timeout: cfg.StoreTimeout}
	storeLimiter := rate.NewLimiter(rate.Limit(cfg.StoreRateLimit), cfg.StoreRateBurst)
	client := storeclient.NewClient(httpClient, log, cfg.StoreURL, storeLimiter, collector)

	// 3. リポジトリ
	users := repository.NewRemoteUserRepo(client)
	packages := repository.NewRemotePackageRepo(client)
	carts := repository.NewRemoteCartRepo(client)
	transactions := repository.NewRemoteTransactionRepo(client)

	// 4. ドメインサービス
	normalizer := catalog.NewNormalizer(cfg.CapacityUnit)
	sessions := storefront.NewManager(storefront.Deps{
		Auth:          auth.NewService(users, log),
		Packages:      packages,
		Sanitizer:     security.NewTextSanitizer(),
		Normalizer:    normalizer,
		Carts:         carts,
		Transactions:  transactions,
		Metrics:       collector,
		Logger:        log,
		MaxConcurrent: cfg.StoreMaxConcurrent,
		ConfirmTTL:    cfg.ConfirmTTL,
		IdleTimeout:   time.Duration(cfg.SessionMaxAge) * time.Second,
	})

	// 5. ルーター
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCheckout), log)
	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:          sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Normalizer: normalizer,
		Gatherer:   reg,
		Logger:     log,
	})

	return &bff{handler: router, sessions: sessions, limiter: limiter}
}

// runServe はBFFサーバーモードで起動し、ctxがキャンセルされるまで待つ。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := newBFF(cfg, log, reg)
	defer b.limiter.Stop()

	// 期限切れセッションの掃除
	go b.sessions.Run(ctx, time.Minute)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      b.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ConfirmTTL + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, log, "API server")
}

// runDevStore は開発用レコードストアを起動する。
// DATABASE_URLが設定されていればPostgreSQL、なければメモリをバックエンドにする。
func runDevStore(ctx context.Context, cfg *config.DevStoreConfig, log *slog.Logger) error {
	repo, closeRepo, err := openRecordRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	seed, err := devstore.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}
	n, err := devstore.Apply(ctx, repo, seed)
	if err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	log.Info("seed applied", slog.Int("record_count", n))

	router := devstore.NewRouter(devstore.NewServer(repo, log),
		middleware.NewRecoveryMiddleware(log),
		middleware.NewLoggingMiddleware(log),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, log, "dev record store")
}

// openRecordRepo は設定に応じたレコードリポジトリを開く。戻り値の関数で閉じる。
func openRecordRepo(ctx context.Context, cfg *config.DevStoreConfig) (repository.RecordRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		return repository.NewMemoryRecordRepo(), func() {}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return repository.NewPostgresRecordRepo(db), func() { db.Close() }, nil
}

// serveUntilDone はサーバーを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, log *slog.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info(name + " stopped gracefully")
	return nil
}

// runMigrate は開発用レコードストアのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.DevStoreConfig, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(status.Version)),
		slog.Bool("changed", status.Changed),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func backendName(cfg *config.DevStoreConfig) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
