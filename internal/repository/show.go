package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/user/kshows/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedLockKey 种子导入使用的 advisory lock 键
const SeedLockKey int64 = 0x6b73686f7773

var summaryColumns = []string{
	"id", "tmdb_id", "name", "original_name", "poster_path", "overview", "first_air_date", "vote_average",
}

var detailColumns = append(append([]string{}, summaryColumns...),
	"backdrop_path", "origin_country", "original_language", "adult", "genre_ids",
	"popularity", "vote_count", "overview_embedding IS NOT NULL AS has_embedding",
)

// nearestSQL 先做近邻检索，再在外层排除源记录
const nearestSQL = `
SELECT id, tmdb_id, name, original_name, poster_path, overview, first_air_date, vote_average, score
FROM (
	SELECT id, tmdb_id, name, original_name, poster_path, overview, first_air_date, vote_average,
	       1 - (overview_embedding <=> ?) / 2 AS score
	FROM shows
	WHERE overview_embedding IS NOT NULL
	ORDER BY overview_embedding <=> ?
	LIMIT ?
) AS nearest
WHERE id <> ?
ORDER BY score DESC`

// VectorQuery 近邻查询参数
type VectorQuery struct {
	NumCandidates int
	Limit         int
	ExcludeID     uuid.UUID
}

// SeedWriter 导入事务内可用的操作
type SeedWriter interface {
	Count(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, shows []model.Show) (int64, error)
}

type ShowRepository struct {
	db *gorm.DB
}

func NewShowRepository(db *gorm.DB) *ShowRepository {
	return &ShowRepository{db: db}
}

// EscapeLike 转义 LIKE 通配符，使用户输入只作为字面子串匹配
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Count 记录总数
func (r *ShowRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Show{}).Count(&n).Error
	return n, err
}

// WithSeedLock 在持有 advisory lock 的事务中执行 fn
// 锁随事务结束释放，多个进程同时导入时会串行化
func (r *ShowRepository) WithSeedLock(ctx context.Context, fn func(w SeedWriter) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", SeedLockKey).Error; err != nil {
			return fmt.Errorf("获取导入锁失败: %w", err)
		}
		return fn(&ShowRepository{db: tx})
	})
}

// InsertBatch 批量插入，tmdb_id 冲突的记录直接跳过
// 在事务内调用时使用 savepoint，失败不会影响外层事务
func (r *ShowRepository) InsertBatch(ctx context.Context, shows []model.Show) (int64, error) {
	if len(shows) == 0 {
		return 0, nil
	}
	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tmdb_id"}},
			DoNothing: true,
		}).Create(&shows)
		inserted = result.RowsAffected
		return result.Error
	})
	return inserted, err
}

// TopPopular 按热度倒序取前 n 条
func (r *ShowRepository) TopPopular(ctx context.Context, n int) ([]model.ShowRow, error) {
	var rows []model.ShowRow
	err := r.db.WithContext(ctx).Model(&model.Show{}).
		Select(summaryColumns).
		Order("popularity DESC").
		Limit(n).
		Scan(&rows).Error
	return rows, err
}

// SearchKeyword 在名称、原名、简介中做不区分大小写的子串匹配
func (r *ShowRepository) SearchKeyword(ctx context.Context, query string, limit int) ([]model.ShowRow, error) {
	pattern := "%" + EscapeLike(query) + "%"

	var rows []model.ShowRow
	err := r.db.WithContext(ctx).Model(&model.Show{}).
		Select(summaryColumns).
		Where("name ILIKE ? OR original_name ILIKE ? OR overview ILIKE ?", pattern, pattern, pattern).
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// FindByID 根据内部 ID 查找，不存在时返回 nil, nil
func (r *ShowRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ShowRow, error) {
	var rows []model.ShowRow
	err := r.db.WithContext(ctx).Model(&model.Show{}).
		Select(detailColumns).
		Where("id = ?", id).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// NearestNeighbors 基于 HNSW 索引的近似近邻查询
// score 为 1 - 余弦距离/2，取值 [0, 1]
func (r *ShowRepository) NearestNeighbors(ctx context.Context, vec []float32, q VectorQuery) ([]model.ShowRow, error) {
	v := pgvector.NewVector(vec)

	var rows []model.ShowRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SET 不支持绑定参数
		if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", q.NumCandidates)).Error; err != nil {
			return err
		}
		return tx.Raw(nearestSQL, v, v, q.Limit, q.ExcludeID).Scan(&rows).Error
	})
	return rows, err
}

// ListMissingEmbedding 按 id 升序取 after 之后尚无向量的记录
func (r *ShowRepository) ListMissingEmbedding(ctx context.Context, after uuid.UUID, limit int) ([]model.ShowRow, error) {
	var rows []model.ShowRow
	err := r.db.WithContext(ctx).Model(&model.Show{}).
		Select("id", "name", "overview").
		Where("overview_embedding IS NULL AND id > ?", after).
		Order("id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// SetEmbedding 写入向量，仅当该记录尚无向量时生效
func (r *ShowRepository) SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Show{}).
		Where("id = ? AND overview_embedding IS NULL", id).
		Update("overview_embedding", pgvector.NewVector(vec))
	return result.RowsAffected > 0, result.Error
}

// HasVectorIndex 检查向量索引是否存在
func (r *ShowRepository) HasVectorIndex(ctx context.Context) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Raw("SELECT count(*) FROM pg_indexes WHERE tablename = ? AND indexname = ?", "shows", VectorIndexName).
		Scan(&n).Error
	return n > 0, err
}
