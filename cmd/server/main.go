package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/user/kshows/internal/config"
	"github.com/user/kshows/internal/handler"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/middleware"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/repository"
	"github.com/user/kshows/internal/router"
	"github.com/user/kshows/internal/service"
	"github.com/user/kshows/internal/utils"
)

func main() {
	// 加载环境变量
	envErr := godotenv.Load()

	// 加载配置
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if envErr != nil {
		logging.Info().Msg("未找到 .env 文件，使用系统环境变量")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("配置无效")
	}

	// 初始化数据库
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("数据库连接失败")
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := repository.Migrate(db, cfg.EmbeddingDimensions); err != nil {
		logging.Fatal().Err(err).Msg("数据库迁移失败")
	}

	// 初始化仓库
	repos := repository.NewRepositories(db)

	// 向量服务，连续失败后熔断
	hf := utils.NewHuggingFaceClient(cfg.EmbeddingAPIURL, cfg.HFToken, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout)
	embedder := utils.NewBreakerEmbedder(hf)

	catalog := service.NewCatalogService(repos.Show)
	search := service.NewSearchService(repos.Show, utils.NewSearchCache[[]model.ShowSummary](cfg.SearchCacheSize, cfg.SearchCacheTTL))
	recommendation := service.NewRecommendationService(repos.Show, embedder)
	// 导入前缓存的空结果在导入后失效
	catalog.OnSeeded(search.Purge)

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 中间件
	r.Use(middleware.Logger())
	r.Use(middleware.Security())
	r.Use(middleware.CORS())

	// 初始化 Handler
	h := handler.NewHandler(cfg, catalog, search, recommendation)

	// 启动定时回填任务
	if cfg.BackfillEvery > 0 {
		backfill := service.NewEmbeddingBackfill(repos.Show, embedder, cfg.BackfillInterval, cfg.BackfillBatchSize)
		scheduler := service.NewBackfillScheduler(backfill, cfg.BackfillEvery)
		scheduler.Start(context.Background())
		defer scheduler.Stop()
	}

	// 注册路由
	router.RegisterRoutes(r, h)

	// 配置 HTTP 服务器
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.EmbeddingTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		logging.Info().Str("port", cfg.Port).Msgf("服务器启动于 http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("正在关闭服务器...")

	// 5 秒超时上下文用于关闭过程
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("服务器强制关闭")
		return
	}

	logging.Info().Msg("服务器已退出")
}
