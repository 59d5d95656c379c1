package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/patrickmn/go-cache"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/metrics"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTopPopular = 20
	seedBatchSize     = 100
)

// CatalogStore 列表与导入存储
type CatalogStore interface {
	WithSeedLock(ctx context.Context, fn func(w repository.SeedWriter) error) error
	TopPopular(ctx context.Context, n int) ([]model.ShowRow, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.ShowRow, error)
}

// SeedRecord 种子数据集中的一条记录
type SeedRecord struct {
	ID               int64    `json:"id" validate:"required,gt=0"`
	Name             string   `json:"name" validate:"required"`
	OriginalName     string   `json:"original_name"`
	Overview         string   `json:"overview"`
	FirstAirDate     string   `json:"first_air_date"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	OriginCountry    []string `json:"origin_country"`
	OriginalLanguage string   `json:"original_language"`
	Adult            bool     `json:"adult"`
	GenreIDs         []int64  `json:"genre_ids"`
	Popularity       float64  `json:"popularity" validate:"gte=0"`
	VoteAverage      float64  `json:"vote_average" validate:"gte=0,lte=10"`
	VoteCount        int64    `json:"vote_count" validate:"gte=0"`
}

// SeedFailure 未能导入的记录
type SeedFailure struct {
	Index  int    `json:"index"`
	TMDBID int64  `json:"tmdb_id,omitempty"`
	Reason string `json:"reason"`
}

// SeedReport 导入结果
type SeedReport struct {
	Seeded     bool          `json:"seeded"`   // false 表示表中已有数据，未执行导入
	Existing   int64         `json:"existing"` // 导入前的记录数
	Inserted   int64         `json:"inserted"`
	Duplicates int64         `json:"duplicates"`
	Failures   []SeedFailure `json:"failures,omitempty"`
}

// CatalogService 目录导入与读取
type CatalogService struct {
	store    CatalogStore
	validate *validator.Validate
	cache    *cache.Cache
	sf       singleflight.Group
	onSeeded []func()
}

// NewCatalogService 创建目录服务
func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{
		store:    store,
		validate: validator.New(),
		cache:    cache.New(time.Minute, 5*time.Minute),
	}
}

// OnSeeded 注册导入成功后的回调，用于清理其他缓存
func (s *CatalogService) OnSeeded(fn func()) {
	s.onSeeded = append(s.onSeeded, fn)
}

// LoadDataset 读取并校验数据集，逐条解码，坏记录进入 failures 而不是中断整体
func (s *CatalogService) LoadDataset(path string) ([]SeedRecord, []SeedFailure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据集失败: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("数据集不是 JSON 数组: %w", err)
	}

	records := make([]SeedRecord, 0, len(raws))
	var failures []SeedFailure
	for i, raw := range raws {
		var rec SeedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			failures = append(failures, SeedFailure{Index: i, Reason: err.Error()})
			continue
		}
		if err := s.ValidateSeedRecord(rec); err != nil {
			failures = append(failures, SeedFailure{Index: i, TMDBID: rec.ID, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, failures, nil
}

// ValidateSeedRecord 结构化校验，返回字段级错误
func (s *CatalogService) ValidateSeedRecord(rec SeedRecord) error {
	err := s.validate.Struct(rec)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("字段 %s 校验失败: %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return err
}

// EnsureSeeded 表为空时从数据集导入；已有数据时不做任何事
// 同进程内并发调用合并为一次，跨进程由数据库 advisory lock 串行化
func (s *CatalogService) EnsureSeeded(ctx context.Context, datasetPath string) (SeedReport, error) {
	// 合并的调用不随首个请求取消
	seedCtx := context.WithoutCancel(ctx)
	v, err, _ := s.sf.Do("seed", func() (interface{}, error) {
		return s.seed(seedCtx, datasetPath)
	})
	if err != nil {
		return SeedReport{}, err
	}
	return v.(SeedReport), nil
}

func (s *CatalogService) seed(ctx context.Context, datasetPath string) (SeedReport, error) {
	var report SeedReport

	err := s.store.WithSeedLock(ctx, func(w repository.SeedWriter) error {
		n, err := w.Count(ctx)
		if err != nil {
			return fmt.Errorf("统计记录数失败: %w", err)
		}
		report.Existing = n
		if n > 0 {
			return nil
		}

		records, failures, err := s.LoadDataset(datasetPath)
		if err != nil {
			return err
		}
		report.Seeded = true
		report.Failures = failures
		metrics.SeedRecords.WithLabelValues("invalid").Add(float64(len(failures)))

		for start := 0; start < len(records); start += seedBatchSize {
			end := min(start+seedBatchSize, len(records))
			s.insertBatch(ctx, w, records[start:end], start, &report)
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Str("dataset", datasetPath).Msg("[CatalogService] 导入失败")
		return SeedReport{}, err
	}

	if report.Seeded {
		s.cache.Flush()
		for _, fn := range s.onSeeded {
			fn()
		}
		logging.Info().
			Int64("inserted", report.Inserted).
			Int64("duplicates", report.Duplicates).
			Int("failures", len(report.Failures)).
			Msg("[CatalogService] 种子数据导入完成")
	}
	return report, nil
}

// insertBatch 整批插入失败时逐条重试，单条失败只记录不中断
func (s *CatalogService) insertBatch(ctx context.Context, w repository.SeedWriter, batch []SeedRecord, offset int, report *SeedReport) {
	shows := make([]model.Show, len(batch))
	for i, rec := range batch {
		shows[i] = rec.toShow()
	}

	inserted, err := w.InsertBatch(ctx, shows)
	if err == nil {
		report.Inserted += inserted
		report.Duplicates += int64(len(shows)) - inserted
		metrics.SeedRecords.WithLabelValues("inserted").Add(float64(inserted))
		metrics.SeedRecords.WithLabelValues("duplicate").Add(float64(int64(len(shows)) - inserted))
		return
	}

	logging.Warn().Err(err).Int("offset", offset).Msg("[CatalogService] 批量插入失败，逐条重试")
	for i, show := range shows {
		n, err := w.InsertBatch(ctx, []model.Show{show})
		switch {
		case err != nil:
			report.Failures = append(report.Failures, SeedFailure{Index: offset + i, TMDBID: show.TMDBID, Reason: err.Error()})
			metrics.SeedRecords.WithLabelValues("failed").Inc()
		case n == 0:
			report.Duplicates++
			metrics.SeedRecords.WithLabelValues("duplicate").Inc()
		default:
			report.Inserted++
			metrics.SeedRecords.WithLabelValues("inserted").Inc()
		}
	}
}

// TopPopular 按热度倒序返回前 n 条
func (s *CatalogService) TopPopular(ctx context.Context, n int) ([]model.ShowSummary, error) {
	if n <= 0 {
		n = DefaultTopPopular
	}
	key := fmt.Sprintf("top:%d", n)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]model.ShowSummary), nil
	}

	rows, err := s.store.TopPopular(ctx, n)
	if err != nil {
		logging.Error().Err(err).Int("n", n).Msg("[CatalogService] 读取热门列表失败")
		return nil, ErrCatalogUnavailable
	}

	results := sanitizeSummaries(rows)
	s.cache.SetDefault(key, results)
	return results, nil
}

// Show 详情，不存在返回 ErrShowNotFound
func (s *CatalogService) Show(ctx context.Context, id uuid.UUID) (*model.ShowDetail, error) {
	row, err := s.store.FindByID(ctx, id)
	if err != nil {
		logging.Error().Err(err).Str("id", id.String()).Msg("[CatalogService] 查询剧集失败")
		return nil, ErrCatalogUnavailable
	}
	if row == nil {
		return nil, ErrShowNotFound
	}
	detail := Sanitize(*row)
	return &detail, nil
}

func (r SeedRecord) toShow() model.Show {
	return model.Show{
		TMDBID:           r.ID,
		Name:             r.Name,
		OriginalName:     r.OriginalName,
		Overview:         r.Overview,
		FirstAirDate:     r.FirstAirDate,
		PosterPath:       r.PosterPath,
		BackdropPath:     r.BackdropPath,
		OriginCountry:    pq.StringArray(r.OriginCountry),
		OriginalLanguage: r.OriginalLanguage,
		Adult:            r.Adult,
		GenreIDs:         pq.Int64Array(r.GenreIDs),
		Popularity:       r.Popularity,
		VoteAverage:      r.VoteAverage,
		VoteCount:        r.VoteCount,
	}
}
