package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	Env         string
	Port        string
	DatabaseURL string

	// 向量服务
	HFToken             string
	EmbeddingAPIURL     string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	// 种子数据
	SeedDatasetPath string
	SeedOnStart     bool

	// 搜索缓存
	SearchCacheSize int
	SearchCacheTTL  time.Duration

	// 向量回填任务
	BackfillInterval  time.Duration
	BackfillBatchSize int
	BackfillEvery     time.Duration // 服务端定时回填周期，0 表示关闭

	LogLevel  string
	LogFormat string
}

// DefaultEmbeddingAPIURL all-MiniLM-L6-v2 特征提取接口，输出 384 维向量
const DefaultEmbeddingAPIURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2"

// Load 加载配置
func Load() *Config {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbUser := getEnv("DB_USER", "postgres")
		dbPass := getEnv("DB_PASSWORD", "postgres")
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbName := getEnv("DB_NAME", "kshows")
		dbSSL := getEnv("DB_SSLMODE", "disable")

		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)
	}

	env := getEnv("APP_ENV", "development")
	logFormat := "console"
	if env == "production" {
		logFormat = "json"
	}

	return &Config{
		Env:         env,
		Port:        getEnv("PORT", "5005"),
		DatabaseURL: dbURL,

		HFToken:             os.Getenv("HF_TOKEN"),
		EmbeddingAPIURL:     getEnv("EMBEDDING_API_URL", DefaultEmbeddingAPIURL),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		EmbeddingTimeout:    getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),

		SeedDatasetPath: getEnv("SEED_DATASET_PATH", "korean_tv_series_in_english.json"),
		SeedOnStart:     getEnvBool("SEED_ON_START", true),

		SearchCacheSize: getEnvInt("SEARCH_CACHE_SIZE", 1000),
		SearchCacheTTL:  getEnvDuration("SEARCH_CACHE_TTL", 5*time.Minute),

		BackfillInterval:  getEnvDuration("BACKFILL_INTERVAL", time.Second),
		BackfillBatchSize: getEnvInt("BACKFILL_BATCH_SIZE", 100),
		BackfillEvery:     getEnvDuration("BACKFILL_EVERY", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", logFormat),
	}
}

// Validate 检查必填项
func (c *Config) Validate() error {
	if c.HFToken == "" {
		return fmt.Errorf("HF_TOKEN 未设置")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS 必须为正数: %d", c.EmbeddingDimensions)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}
