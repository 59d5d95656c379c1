package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/metrics"
	"github.com/user/kshows/internal/model"
	"golang.org/x/time/rate"
)

// BackfillStore 向量回填存储
type BackfillStore interface {
	ListMissingEmbedding(ctx context.Context, after uuid.UUID, limit int) ([]model.ShowRow, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) (bool, error)
}

// BackfillReport 回填结果
type BackfillReport struct {
	Scanned  int
	Embedded int
	Skipped  int // 无简介，或已被其他进程写入
	Failed   int
}

// EmbeddingBackfill 为缺少向量的剧集逐条生成向量
// 严格串行，调用间隔由 limiter 控制，避免触发上游限流
type EmbeddingBackfill struct {
	store     BackfillStore
	embedder  Embedder
	limiter   *rate.Limiter
	batchSize int
}

// NewEmbeddingBackfill interval <= 0 表示不限速
func NewEmbeddingBackfill(store BackfillStore, embedder Embedder, interval time.Duration, batchSize int) *EmbeddingBackfill {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EmbeddingBackfill{
		store:     store,
		embedder:  embedder,
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: batchSize,
	}
}

// Run 扫描全部缺少向量的记录；单条失败记录日志后继续
// 按 id 游标翻页，失败的记录不会被重复扫描，可安全中断后重跑
func (b *EmbeddingBackfill) Run(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	cursor := uuid.Nil

	for {
		rows, err := b.store.ListMissingEmbedding(ctx, cursor, b.batchSize)
		if err != nil {
			return report, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			cursor = row.ID
			report.Scanned++

			if err := b.process(ctx, row, &report); err != nil {
				// 只有 ctx 取消会走到这里
				return report, err
			}
		}

		if len(rows) < b.batchSize {
			break
		}
	}

	logging.Info().
		Int("scanned", report.Scanned).
		Int("embedded", report.Embedded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("[EmbeddingBackfill] 向量回填完成")
	return report, nil
}

func (b *EmbeddingBackfill) process(ctx context.Context, row model.ShowRow, report *BackfillReport) error {
	name := row.Name.String
	if !row.Overview.Valid || strings.TrimSpace(row.Overview.String) == "" {
		logging.Info().Str("name", name).Msg("[EmbeddingBackfill] 无简介，跳过")
		report.Skipped++
		metrics.BackfillRecords.WithLabelValues("skipped").Inc()
		return nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	vec, err := b.embedder.Embed(ctx, row.Overview.String)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error().Err(err).Str("name", name).Msg("[EmbeddingBackfill] 生成向量失败")
		report.Failed++
		metrics.BackfillRecords.WithLabelValues("failed").Inc()
		return nil
	}

	updated, err := b.store.SetEmbedding(ctx, row.ID, vec)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error().Err(err).Str("name", name).Msg("[EmbeddingBackfill] 写入向量失败")
		report.Failed++
		metrics.BackfillRecords.WithLabelValues("failed").Inc()
		return nil
	}
	if !updated {
		report.Skipped++
		metrics.BackfillRecords.WithLabelValues("skipped").Inc()
		return nil
	}

	logging.Debug().Str("name", name).Msg("[EmbeddingBackfill] 向量已写入")
	report.Embedded++
	metrics.BackfillRecords.WithLabelValues("embedded").Inc()
	return nil
}
