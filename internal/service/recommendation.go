package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/metrics"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/repository"
)

const (
	DefaultNumCandidates = 100
	DefaultSimilarLimit  = 5
)

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore 向量检索存储
type VectorStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.ShowRow, error)
	NearestNeighbors(ctx context.Context, vec []float32, q repository.VectorQuery) ([]model.ShowRow, error)
}

// RecommendationService 语义相似推荐
type RecommendationService struct {
	store         VectorStore
	embedder      Embedder
	numCandidates int
	limit         int
}

// NewRecommendationService 创建推荐服务
func NewRecommendationService(store VectorStore, embedder Embedder) *RecommendationService {
	return &RecommendationService{
		store:         store,
		embedder:      embedder,
		numCandidates: DefaultNumCandidates,
		limit:         DefaultSimilarLimit,
	}
}

// SemanticSearch 对 queryText 做向量检索，结果中不含 excludeID
// 排除发生在近邻阶段之后，结果可能少于 limit 条
func (s *RecommendationService) SemanticSearch(ctx context.Context, queryText string, excludeID uuid.UUID) ([]model.SimilarShow, error) {
	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		logging.Error().Err(err).Str("exclude_id", excludeID.String()).Msg("[RecommendationService] 生成查询向量失败")
		metrics.SearchRequests.WithLabelValues("semantic", "error").Inc()
		return nil, ErrSearchFailed
	}

	rows, err := s.store.NearestNeighbors(ctx, vec, repository.VectorQuery{
		NumCandidates: s.numCandidates,
		Limit:         s.limit,
		ExcludeID:     excludeID,
	})
	if err != nil {
		logging.Error().Err(err).Str("exclude_id", excludeID.String()).Msg("[RecommendationService] 向量检索失败")
		metrics.SearchRequests.WithLabelValues("semantic", "error").Inc()
		return nil, ErrSearchFailed
	}

	results := make([]model.SimilarShow, 0, len(rows))
	for _, row := range rows {
		if row.ID == excludeID {
			continue
		}
		results = append(results, model.SimilarShow{
			ShowSummary: SanitizeSummary(row),
			Similarity:  toPercent(SanitizeFloat(row.Score)),
		})
	}

	metrics.SearchRequests.WithLabelValues("semantic", "ok").Inc()
	return results, nil
}

// SimilarTo 以某部剧的简介为查询推荐相似剧集
func (s *RecommendationService) SimilarTo(ctx context.Context, id uuid.UUID) ([]model.SimilarShow, error) {
	row, err := s.store.FindByID(ctx, id)
	if err != nil {
		logging.Error().Err(err).Str("id", id.String()).Msg("[RecommendationService] 查询剧集失败")
		return nil, ErrSearchFailed
	}
	if row == nil {
		return nil, ErrShowNotFound
	}
	// 空文本的向量没有意义
	if !row.Overview.Valid || strings.TrimSpace(row.Overview.String) == "" {
		return []model.SimilarShow{}, nil
	}
	return s.SemanticSearch(ctx, row.Overview.String, row.ID)
}

// toPercent 原生分数 [0,1] 映射到 [0,100]，仅用于展示
func toPercent(score float64) float64 {
	p := score * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
