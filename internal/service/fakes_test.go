package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/user/kshows/internal/model"
	"github.com/user/kshows/internal/repository"
)

// memoryStore 内存版 ShowRepository，覆盖 service 层用到的全部接口
type memoryStore struct {
	mu    sync.Mutex
	shows []model.Show

	keywordCalls int
	nnCalls      int
	insertCalls  int
	lastVector   repository.VectorQuery

	searchErr error
	topErr    error
	findErr   error
	nnErr     error
	listErr   error
	setErr    error

	// nnRows 非 nil 时直接作为近邻结果返回
	nnRows []model.ShowRow
	// failTMDB 中的 tmdb_id 会让所在批次插入失败
	failTMDB map[int64]bool
}

func newMemoryStore(shows ...model.Show) *memoryStore {
	s := &memoryStore{failTMDB: map[int64]bool{}}
	for _, show := range shows {
		if show.ID == uuid.Nil {
			show.ID = uuid.New()
		}
		s.shows = append(s.shows, show)
	}
	return s
}

func toRow(s model.Show) model.ShowRow {
	return model.ShowRow{
		ID:               s.ID,
		TMDBID:           sql.NullInt64{Int64: s.TMDBID, Valid: true},
		Name:             sql.NullString{String: s.Name, Valid: true},
		OriginalName:     sql.NullString{String: s.OriginalName, Valid: true},
		Overview:         sql.NullString{String: s.Overview, Valid: true},
		FirstAirDate:     sql.NullString{String: s.FirstAirDate, Valid: true},
		PosterPath:       sql.NullString{String: s.PosterPath, Valid: true},
		BackdropPath:     sql.NullString{String: s.BackdropPath, Valid: true},
		OriginCountry:    s.OriginCountry,
		OriginalLanguage: sql.NullString{String: s.OriginalLanguage, Valid: true},
		Adult:            sql.NullBool{Bool: s.Adult, Valid: true},
		GenreIDs:         s.GenreIDs,
		Popularity:       sql.NullFloat64{Float64: s.Popularity, Valid: true},
		VoteAverage:      sql.NullFloat64{Float64: s.VoteAverage, Valid: true},
		VoteCount:        sql.NullInt64{Int64: s.VoteCount, Valid: true},
		HasEmbedding:     sql.NullBool{Bool: s.OverviewEmbedding != nil, Valid: true},
	}
}

func (m *memoryStore) SearchKeyword(ctx context.Context, query string, limit int) ([]model.ShowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keywordCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	q := strings.ToLower(query)
	var rows []model.ShowRow
	for _, s := range m.shows {
		if len(rows) == limit {
			break
		}
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.OriginalName), q) ||
			strings.Contains(strings.ToLower(s.Overview), q) {
			rows = append(rows, toRow(s))
		}
	}
	return rows, nil
}

func (m *memoryStore) TopPopular(ctx context.Context, n int) ([]model.ShowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topErr != nil {
		return nil, m.topErr
	}
	sorted := append([]model.Show(nil), m.shows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Popularity > sorted[j].Popularity })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	rows := make([]model.ShowRow, 0, len(sorted))
	for _, s := range sorted {
		rows = append(rows, toRow(s))
	}
	return rows, nil
}

func (m *memoryStore) FindByID(ctx context.Context, id uuid.UUID) (*model.ShowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, s := range m.shows {
		if s.ID == id {
			row := toRow(s)
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) NearestNeighbors(ctx context.Context, vec []float32, q repository.VectorQuery) ([]model.ShowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nnCalls++
	m.lastVector = q
	if m.nnErr != nil {
		return nil, m.nnErr
	}
	return m.nnRows, nil
}

// WithSeedLock 与数据库事务一致：ctx 已取消时直接失败
func (m *memoryStore) WithSeedLock(ctx context.Context, fn func(w repository.SeedWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m)
}

func (m *memoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.shows)), nil
}

// InsertBatch 与数据库一致：批次中有一条失败则整批回滚
func (m *memoryStore) InsertBatch(ctx context.Context, shows []model.Show) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	for _, s := range shows {
		if m.failTMDB[s.TMDBID] {
			return 0, errors.New("violates check constraint")
		}
	}
	seen := map[int64]bool{}
	for _, s := range m.shows {
		seen[s.TMDBID] = true
	}
	var inserted int64
	for _, s := range shows {
		if seen[s.TMDBID] {
			continue
		}
		seen[s.TMDBID] = true
		s.ID = uuid.New()
		m.shows = append(m.shows, s)
		inserted++
	}
	return inserted, nil
}

func (m *memoryStore) ListMissingEmbedding(ctx context.Context, after uuid.UUID, limit int) ([]model.ShowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var missing []model.Show
	for _, s := range m.shows {
		if s.OverviewEmbedding == nil && bytes.Compare(s.ID[:], after[:]) > 0 {
			missing = append(missing, s)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return bytes.Compare(missing[i].ID[:], missing[j].ID[:]) < 0 })
	if len(missing) > limit {
		missing = missing[:limit]
	}
	rows := make([]model.ShowRow, 0, len(missing))
	for _, s := range missing {
		rows = append(rows, toRow(s))
	}
	return rows, nil
}

func (m *memoryStore) SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	for i := range m.shows {
		if m.shows[i].ID == id {
			if m.shows[i].OverviewEmbedding != nil {
				return false, nil
			}
			v := pgvector.NewVector(vec)
			m.shows[i].OverviewEmbedding = &v
			return true, nil
		}
	}
	return false, nil
}

// mockEmbedder 通过函数字段注入行为
type mockEmbedder struct {
	mu        sync.Mutex
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	texts     []string
}

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *mockEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}
