package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/metrics"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/utils"
)

const (
	// MinQueryLength 触发搜索的最少字符数
	MinQueryLength     = 2
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// KeywordStore 关键词检索存储
type KeywordStore interface {
	SearchKeyword(ctx context.Context, query string, limit int) ([]model.ShowRow, error)
}

// SearchService 关键词搜索服务
type SearchService struct {
	store KeywordStore
	cache *utils.SearchCache[[]model.ShowSummary]
}

// NewSearchService 创建搜索服务，cache 可为 nil
func NewSearchService(store KeywordStore, cache *utils.SearchCache[[]model.ShowSummary]) *SearchService {
	return &SearchService{
		store: store,
		cache: cache,
	}
}

// Search 在名称、原名、简介中做不区分大小写的子串搜索
// 查询过短时直接返回空列表，不访问数据库
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]model.ShowSummary, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		metrics.SearchRequests.WithLabelValues("keyword", "empty").Inc()
		return []model.ShowSummary{}, nil
	}
	limit = clampLimit(limit, DefaultSearchLimit, MaxSearchLimit)

	key := fmt.Sprintf("%d:%s", limit, strings.ToLower(query))
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			metrics.SearchRequests.WithLabelValues("keyword", "cached").Inc()
			return cached, nil
		}
	}

	rows, err := s.store.SearchKeyword(ctx, query, limit)
	if err != nil {
		logging.Error().Err(err).Str("query", query).Msg("[SearchService] 关键词搜索失败")
		metrics.SearchRequests.WithLabelValues("keyword", "error").Inc()
		return nil, ErrSearchFailed
	}

	results := sanitizeSummaries(rows)
	if len(results) > limit {
		results = results[:limit]
	}
	if s.cache != nil {
		s.cache.Set(key, results)
	}

	metrics.SearchRequests.WithLabelValues("keyword", "ok").Inc()
	return results, nil
}

// Purge 清空搜索缓存
func (s *SearchService) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
