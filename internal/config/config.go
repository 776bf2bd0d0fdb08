// Package config はアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// カタログクライアントの種別。
const (
	// CatalogTypeMTeam はMTeam系JSON APIを使用する。
	CatalogTypeMTeam = "mteam"
	// CatalogTypeRSS はトラッカーのRSSフィードを使用する。
	CatalogTypeRSS = "rss"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Download agent (qBittorrent WebAPI)
	AgentURL             string
	AgentUsername        string
	AgentPassword        string
	AgentCategory        string
	AgentUploadLimitKB   int64 // 追加するトレントのアップロード速度上限（KB/s、0で無制限）
	AgentDownloadLimitKB int64

	// Catalog
	CatalogType       string
	CatalogAPIBase    string
	CatalogAPIKey     string
	CatalogRSSURL     string
	CatalogRatePerSec float64 // カタログへの呼び出しレート上限（回/秒）
	DescriptorMaxSize int64   // .torrent記述子の最大サイズ（バイト）

	// Quota
	DiskQuotaMB int64 // 0で無制限

	// Candidate filter
	FilterMaxSizeMB     int64
	FilterMinSizeMB     int64
	FilterMinFreeHours  float64
	FilterMinSeeders    int
	FilterMinLeechRatio float64

	// Cycle
	AcquireInterval time.Duration
	SampleInterval  time.Duration
	AdmitTimeout    time.Duration

	// Metrics server (daemon mode)
	MetricsPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AgentURL = os.Getenv("AGENT_URL")
	if cfg.AgentURL == "" {
		missing = append(missing, "AGENT_URL")
	}

	cfg.AgentUsername = os.Getenv("AGENT_USERNAME")
	if cfg.AgentUsername == "" {
		missing = append(missing, "AGENT_USERNAME")
	}

	cfg.AgentPassword = os.Getenv("AGENT_PASSWORD")
	if cfg.AgentPassword == "" {
		missing = append(missing, "AGENT_PASSWORD")
	}

	// カタログ種別によって必須項目が変わる
	cfg.CatalogType = getEnvString("CATALOG_TYPE", CatalogTypeMTeam)
	switch cfg.CatalogType {
	case CatalogTypeMTeam:
		cfg.CatalogAPIBase = os.Getenv("CATALOG_API_BASE")
		if cfg.CatalogAPIBase == "" {
			missing = append(missing, "CATALOG_API_BASE")
		}
		cfg.CatalogAPIKey = os.Getenv("CATALOG_API_KEY")
		if cfg.CatalogAPIKey == "" {
			missing = append(missing, "CATALOG_API_KEY")
		}
	case CatalogTypeRSS:
		cfg.CatalogRSSURL = os.Getenv("CATALOG_RSS_URL")
		if cfg.CatalogRSSURL == "" {
			missing = append(missing, "CATALOG_RSS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown CATALOG_TYPE: %q (allowed: %s, %s)",
			cfg.CatalogType, CatalogTypeMTeam, CatalogTypeRSS)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AgentCategory = getEnvString("AGENT_CATEGORY", "")
	cfg.AgentUploadLimitKB = getEnvInt64("AGENT_UPLOAD_LIMIT_KB", 0)
	cfg.AgentDownloadLimitKB = getEnvInt64("AGENT_DOWNLOAD_LIMIT_KB", 0)

	cfg.CatalogRatePerSec = getEnvFloat("CATALOG_RATE_PER_SEC", 2.0)
	cfg.DescriptorMaxSize = getEnvInt64("DESCRIPTOR_MAX_SIZE", 10485760)

	cfg.DiskQuotaMB = getEnvInt64("DISK_QUOTA_MB", 204800)

	cfg.FilterMaxSizeMB = getEnvInt64("FILTER_MAX_SIZE_MB", 0)
	cfg.FilterMinSizeMB = getEnvInt64("FILTER_MIN_SIZE_MB", 0)
	cfg.FilterMinFreeHours = getEnvFloat("FILTER_MIN_FREE_HOURS", 24)
	cfg.FilterMinSeeders = getEnvInt("FILTER_MIN_SEEDERS", 1)
	cfg.FilterMinLeechRatio = getEnvFloat("FILTER_MIN_LEECH_RATIO", 0)

	cfg.AcquireInterval = getEnvDuration("ACQUIRE_INTERVAL", 6*time.Hour)
	cfg.SampleInterval = getEnvDuration("SAMPLE_INTERVAL", time.Minute)
	cfg.AdmitTimeout = getEnvDuration("ADMIT_TIMEOUT", 20*time.Second)

	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// DiskQuotaBytes はディスククォータをバイト単位で返す。0は無制限。
func (c *Config) DiskQuotaBytes() int64 {
	return c.DiskQuotaMB * 1024 * 1024
}

// FilterMaxSizeBytes は候補フィルタのサイズ上限をバイト単位で返す。0は無制限。
func (c *Config) FilterMaxSizeBytes() int64 {
	return c.FilterMaxSizeMB * 1024 * 1024
}

// FilterMinSizeBytes は候補フィルタのサイズ下限をバイト単位で返す。0は無制限。
func (c *Config) FilterMinSizeBytes() int64 {
	return c.FilterMinSizeMB * 1024 * 1024
}

// FilterMinFreeRemaining はフリー残り時間の下限をDurationで返す。
func (c *Config) FilterMinFreeRemaining() time.Duration {
	return time.Duration(c.FilterMinFreeHours * float64(time.Hour))
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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
