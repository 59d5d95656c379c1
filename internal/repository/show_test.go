package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/kshows/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db, mock
}

var summaryRowColumns = []string{
	"id", "tmdb_id", "name", "original_name", "poster_path", "overview", "first_air_date", "vote_average",
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"kingdom", "kingdom"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
		{".*(", ".*("},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeLike(tt.in), tt.in)
	}
}

func TestSearchKeyword(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "shows" WHERE name ILIKE $1 OR original_name ILIKE $2 OR overview ILIKE $3 LIMIT $4`)).
		WithArgs(`%50\%%`, `%50\%%`, `%50\%%`, 10).
		WillReturnRows(sqlmock.NewRows(summaryRowColumns).
			AddRow(id.String(), 1, "50% Off", "", "/p.jpg", "", "2020-01-01", 7.5))

	rows, err := repo.SearchKeyword(context.Background(), "50%", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "50% Off", rows[0].Name.String)
	assert.Equal(t, 7.5, rows[0].VoteAverage.Float64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopPopular(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "shows" ORDER BY popularity DESC LIMIT $1`)).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(summaryRowColumns).
			AddRow(uuid.New().String(), 1, "A", "", "", "", "", 8.0).
			AddRow(uuid.New().String(), 2, "B", "", "", "", "", nil))

	rows, err := repo.TopPopular(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, rows[1].VoteAverage.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "shows" WHERE id = $1 LIMIT $2`)).
		WithArgs(id, 1).
		WillReturnRows(sqlmock.NewRows(summaryRowColumns))

	row, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	mock.ExpectQuery(`FROM "shows"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestNearestNeighbors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	exclude := uuid.New()
	other := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL hnsw.ef_search = 100")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)ORDER BY overview_embedding <=> \$2\s+LIMIT \$3\s+\) AS nearest\s+WHERE id <> \$4`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 5, exclude).
		WillReturnRows(sqlmock.NewRows(append(summaryRowColumns, "score")).
			AddRow(other.String(), 2, "Signal", "시그널", "", "detectives", "2016-01-22", 8.6, 0.91))
	mock.ExpectCommit()

	rows, err := repo.NearestNeighbors(context.Background(), []float32{0.1, 0.2}, VectorQuery{
		NumCandidates: 100,
		Limit:         5,
		ExcludeID:     exclude,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, other, rows[0].ID)
	assert.InDelta(t, 0.91, rows[0].Score.Float64, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEmbeddingOnlyWhenMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "shows" SET "overview_embedding"=$1 WHERE id = $2 AND overview_embedding IS NULL`)).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.SetEmbedding(context.Background(), id, []float32{1, 0})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndHasVectorIndex(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "shows"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM pg_indexes WHERE tablename = $1 AND indexname = $2`)).
		WithArgs("shows", VectorIndexName).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	ok, err := repo.HasVectorIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMissingEmbedding(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE overview_embedding IS NULL AND id > $1 ORDER BY id LIMIT $2`)).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "overview"}).AddRow(id.String(), "Kingdom", "plague"))

	rows, err := repo.ListMissingEmbedding(context.Background(), uuid.Nil, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "plague", rows[0].Overview.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSeedLockInsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(SeedLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "shows"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`SAVEPOINT sp`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// 第二条 tmdb_id 冲突，RETURNING 只返回插入的一行
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "shows"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("tmdb_id") DO NOTHING RETURNING "id"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
	mock.ExpectCommit()

	var inserted int64
	err := repo.WithSeedLock(context.Background(), func(w SeedWriter) error {
		n, err := w.Count(context.Background())
		if err != nil {
			return err
		}
		assert.Zero(t, n)

		inserted, err = w.InsertBatch(context.Background(), []model.Show{
			{TMDBID: 1, Name: "Kingdom"},
			{TMDBID: 1, Name: "Kingdom again"},
		})
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchFailureRollsBackToSavepoint(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(SeedLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SAVEPOINT sp`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "shows"`)).
		WillReturnError(errors.New("value too long"))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT sp`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var batchErr error
	err := repo.WithSeedLock(context.Background(), func(w SeedWriter) error {
		_, batchErr = w.InsertBatch(context.Background(), []model.Show{{TMDBID: 2, Name: "Signal"}})
		// 批次失败不影响外层事务
		return nil
	})
	require.NoError(t, err)
	assert.Error(t, batchErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
