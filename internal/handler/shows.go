package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/service"
	"github.com/user/kshows/internal/utils"
)

// TopShows 热门剧集列表，首次访问时导入种子数据
func (h *Handler) TopShows(c *gin.Context) {
	ctx := c.Request.Context()

	if h.Config.SeedOnStart && !h.seeded.Load() {
		// 导入失败不阻断列表，已有数据照常返回
		if _, err := h.Catalog.EnsureSeeded(ctx, h.Config.SeedDatasetPath); err != nil {
			logging.Error().Err(err).Msg("[Handler] 种子数据导入失败")
		} else {
			h.seeded.Store(true)
		}
	}

	shows, err := h.Catalog.TopPopular(ctx, queryInt(c, "limit"))
	if err != nil {
		utils.InternalServerError(c, "剧集列表暂时不可用")
		return
	}
	utils.Success(c, shows)
}

// SearchShows 关键词搜索
func (h *Handler) SearchShows(c *gin.Context) {
	results, err := h.SearchService.Search(c.Request.Context(), c.Query("q"), queryInt(c, "limit"))
	if err != nil {
		utils.InternalServerError(c, "搜索服务暂时不可用")
		return
	}
	utils.Success(c, results)
}

// ShowDetail 剧集详情
func (h *Handler) ShowDetail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.NotFound(c, "剧集不存在")
		return
	}

	detail, err := h.Catalog.Show(c.Request.Context(), id)
	switch {
	case errors.Is(err, service.ErrShowNotFound):
		utils.NotFound(c, "剧集不存在")
	case err != nil:
		utils.InternalServerError(c, "")
	default:
		utils.Success(c, detail)
	}
}

// SimilarShows 基于简介语义的相似推荐
func (h *Handler) SimilarShows(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.NotFound(c, "剧集不存在")
		return
	}

	results, err := h.Recommendation.SimilarTo(c.Request.Context(), id)
	switch {
	case errors.Is(err, service.ErrShowNotFound):
		utils.NotFound(c, "剧集不存在")
	case err != nil:
		// 上游错误细节只记在服务端日志
		utils.InternalServerError(c, "相似推荐暂时不可用")
	default:
		utils.Success(c, results)
	}
}
