// Package app はサブコマンドの解析と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/hitoshi/seedman/internal/admission"
	"github.com/hitoshi/seedman/internal/agent"
	"github.com/hitoshi/seedman/internal/catalog"
	"github.com/hitoshi/seedman/internal/config"
	"github.com/hitoshi/seedman/internal/database"
	"github.com/hitoshi/seedman/internal/handler"
	"github.com/hitoshi/seedman/internal/logger"
	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/prune"
	"github.com/hitoshi/seedman/internal/report"
	"github.com/hitoshi/seedman/internal/repository"
	"github.com/hitoshi/seedman/internal/security"
	"github.com/hitoshi/seedman/internal/worker/acquire"
	"github.com/hitoshi/seedman/internal/worker/sample"
)

// daemonStartupDelay はデーモン起動から初回取得サイクルまでの遅延。
// エージェントとデータベースの起動完了を待つ。
const daemonStartupDelay = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, rest, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("METRICS_PORT")
		if port == "" {
			port = "9090"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("catalog_type", cfg.CatalogType),
	)

	switch cmd {
	case CommandAcquire:
		return runAcquire(cfg, rest)
	case CommandSample:
		return runSample(cfg)
	case CommandEvict:
		return runEvict(cfg, rest)
	case CommandReport:
		return runReport(w, cfg, rest)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runDaemon(cfg, rest)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newAgentClient はエージェントへ認証済みのクライアントを生成する。
// 認証失敗はFatalErrorとして呼び出し元に伝播する。
func newAgentClient(ctx context.Context, cfg *config.Config) (*agent.Client, error) {
	options := agent.AddOptions{
		UploadLimitBytes:   cfg.AgentUploadLimitKB * 1024,
		DownloadLimitBytes: cfg.AgentDownloadLimitKB * 1024,
		Category:           cfg.AgentCategory,
	}
	return agent.NewClient(ctx, cfg.AgentURL, cfg.AgentUsername, cfg.AgentPassword, options, slog.Default())
}

// newSiteClient は設定のカタログ種別に応じたSiteClientを生成する。
func newSiteClient(cfg *config.Config) catalog.SiteClient {
	guard := security.NewSSRFGuard()
	sanitizer := security.NewNameSanitizer()

	if cfg.CatalogType == config.CatalogTypeRSS {
		return catalog.NewRSSClient(
			cfg.CatalogRSSURL, guard, sanitizer,
			cfg.CatalogRatePerSec, cfg.DescriptorMaxSize, slog.Default(),
		)
	}
	return catalog.NewMTeamClient(
		cfg.CatalogAPIBase, cfg.CatalogAPIKey, guard, sanitizer,
		cfg.CatalogRatePerSec, cfg.DescriptorMaxSize, slog.Default(),
	)
}

// newAcquireCycle は取得サイクルの全依存関係をワイヤリングする。
func newAcquireCycle(cfg *config.Config, db *sql.DB, agentClient *agent.Client, collector metrics.MetricsCollector) *acquire.Cycle {
	torrentRepo := repository.NewPostgresTorrentRepo(db)

	filter := acquire.NewFilter(acquire.FilterConfig{
		MinSizeBytes:      cfg.FilterMinSizeBytes(),
		MaxSizeBytes:      cfg.FilterMaxSizeBytes(),
		MinFreeRemaining:  cfg.FilterMinFreeRemaining(),
		MinSeeders:        cfg.FilterMinSeeders,
		MinLeechSeedRatio: cfg.FilterMinLeechRatio,
	}, torrentRepo, collector, slog.Default())

	verifier := admission.NewVerifier(agentClient, slog.Default())
	pruner := prune.NewPruner(agentClient, torrentRepo, collector, slog.Default())

	return acquire.NewCycle(
		newSiteClient(cfg), filter, verifier, agentClient, torrentRepo, pruner,
		collector, slog.Default(),
		acquire.Config{
			QuotaBytes:   cfg.DiskQuotaBytes(),
			AdmitTimeout: cfg.AdmitTimeout,
		},
	)
}

// runAcquire は取得サイクルを1回だけ実行する。
func runAcquire(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("acquire", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "追加と退避を行わず、計画のみログ出力する")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	agentClient, err := newAgentClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("agent login failed: %w", err)
	}

	cycle := newAcquireCycle(cfg, db, agentClient, metrics.Nop{})
	return cycle.RunOnce(ctx, *dryRun)
}

// runSample は観測サイクルを1回だけ実行する。
func runSample(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	agentClient, err := newAgentClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("agent login failed: %w", err)
	}

	torrentRepo := repository.NewPostgresTorrentRepo(db)
	statRepo := repository.NewPostgresStatRepo(db)
	sampler := sample.NewSampler(agentClient, &sampleStore{torrentRepo, statRepo}, metrics.Nop{}, slog.Default())

	return sampler.RunOnce(ctx)
}

// runEvict は退避計画を算出して実行する。
func runEvict(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("evict", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "削除を行わず、退避計画のみログ出力する")
	reserveBytes := fs.Int64("reserve-bytes", 0, "クォータから追加で確保しておく容量（バイト）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	agentClient, err := newAgentClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("agent login failed: %w", err)
	}

	torrentRepo := repository.NewPostgresTorrentRepo(db)
	pruner := prune.NewPruner(agentClient, torrentRepo, metrics.Nop{}, slog.Default())

	plan, err := pruner.Run(ctx, *reserveBytes, cfg.DiskQuotaBytes(), *dryRun)
	if err != nil {
		return err
	}

	slog.Info("eviction completed",
		slog.Int64("deficit_bytes", plan.DeficitBytes),
		slog.Int64("freed_bytes", plan.FreedBytes()),
		slog.Int("victims", len(plan.Victims)),
		slog.Bool("dry_run", *dryRun),
	)
	return nil
}

// runReport は期間指定の転送量レポートをwに出力する。
func runReport(w io.Writer, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("report-transfer", pflag.ContinueOnError)
	startStr := fs.String("start", "", "集計期間の開始時刻（RFC3339）")
	endStr := fs.String("end", "", "集計期間の終了時刻（RFC3339）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start, end, err := report.ParseWindow(*startStr, *endStr)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	torrentRepo := repository.NewPostgresTorrentRepo(db)
	statRepo := repository.NewPostgresStatRepo(db)
	analyzer := report.NewAnalyzer(&reportStore{statRepo, torrentRepo})

	entries, err := analyzer.Report(context.Background(), start, end)
	if err != nil {
		return err
	}

	// 転送量の多い順に表示する
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DownloadedDelta > entries[j].DownloadedDelta
	})

	return report.RenderTable(w, entries)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runDaemon は取得・観測サイクルを常駐実行する。
// あわせてヘルスチェックとPrometheusメトリクスのHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runDaemon(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("daemon", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "追加と退避を行わず、計画のみログ出力する")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agentClient, err := newAgentClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("agent login failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	cycle := newAcquireCycle(cfg, db, agentClient, collector)

	torrentRepo := repository.NewPostgresTorrentRepo(db)
	statRepo := repository.NewPostgresStatRepo(db)
	sampler := sample.NewSampler(agentClient, &sampleStore{torrentRepo, statRepo}, collector, slog.Default())

	router := handler.NewRouter(&handler.RouterDeps{
		DB:       db,
		Gatherer: registry,
		Logger:   slog.Default(),
	})
	server := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down daemon...")
		cancel()
	}()

	go func() {
		slog.Info("metrics server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("daemon starting",
		slog.Duration("acquire_interval", cfg.AcquireInterval),
		slog.Duration("sample_interval", cfg.SampleInterval),
		slog.Bool("dry_run", *dryRun),
	)

	// 観測サイクルをバックグラウンドで起動
	go sampler.Start(ctx, cfg.SampleInterval)

	// 取得サイクルをメインgoroutineで実行（ブロッキング）
	cycle.Start(ctx, cfg.AcquireInterval, daemonStartupDelay, *dryRun)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// デーモンの /health エンドポイントにHTTPリクエストを送り、結果を返す。
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

// sampleStore は観測サイクルが必要とする2つのリポジトリを束ねる。
type sampleStore struct {
	*repository.PostgresTorrentRepo
	*repository.PostgresStatRepo
}

// reportStore は転送量集計が必要とする2つのリポジトリを束ねる。
type reportStore struct {
	*repository.PostgresStatRepo
	*repository.PostgresTorrentRepo
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
