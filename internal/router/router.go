package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/user/kshows/internal/handler"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== JSON API ====================
	api := r.Group("/api")
	{
		api.GET("/shows", h.TopShows)
		api.GET("/shows/search", h.SearchShows)
		api.GET("/shows/:id", h.ShowDetail)
		api.GET("/shows/:id/similar", h.SimilarShows)
	}
}
