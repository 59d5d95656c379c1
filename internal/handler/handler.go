package handler

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/user/kshows/internal/config"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/service"
)

// Catalog 目录读写
type Catalog interface {
	EnsureSeeded(ctx context.Context, datasetPath string) (service.SeedReport, error)
	TopPopular(ctx context.Context, n int) ([]model.ShowSummary, error)
	Show(ctx context.Context, id uuid.UUID) (*model.ShowDetail, error)
}

// Searcher 关键词搜索
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.ShowSummary, error)
}

// Recommender 相似推荐
type Recommender interface {
	SimilarTo(ctx context.Context, id uuid.UUID) ([]model.SimilarShow, error)
}

// Handler HTTP 处理器
type Handler struct {
	Config         *config.Config
	Catalog        Catalog
	SearchService  Searcher
	Recommendation Recommender

	// seeded 首次导入检查成功后置位，之后列表请求不再加锁计数
	seeded atomic.Bool
}

// NewHandler 创建处理器
func NewHandler(cfg *config.Config, catalog Catalog, search Searcher, rec Recommender) *Handler {
	return &Handler{
		Config:         cfg,
		Catalog:        catalog,
		SearchService:  search,
		Recommendation: rec,
	}
}

// queryInt 解析整数查询参数，缺省或非法时返回 0
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
