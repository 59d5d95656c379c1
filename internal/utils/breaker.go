package utils

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/metrics"
)

// Embedder 文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BreakerEmbedder 熔断包装：上游持续失败时快速返回错误，不会返回兜底向量
type BreakerEmbedder struct {
	next Embedder
	cb   *gobreaker.CircuitBreaker[[]float32]
}

// NewBreakerEmbedder 连续失败 5 次后熔断 30 秒
func NewBreakerEmbedder(next Embedder) *BreakerEmbedder {
	metrics.EmbeddingBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "embedding-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("[Embedding] 熔断状态变化")
			metrics.EmbeddingBreakerState.Set(float64(to))
		},
	})

	return &BreakerEmbedder{next: next, cb: cb}
}

// Embed 经熔断器调用下游
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.cb.Execute(func() ([]float32, error) {
		return b.next.Embed(ctx, text)
	})
}
