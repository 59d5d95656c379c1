package model

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Show 剧集模型（来自种子数据集，overview_embedding 由回填任务写入）
type Show struct {
	ID                uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TMDBID            int64            `json:"tmdb_id" gorm:"column:tmdb_id;uniqueIndex;not null"`
	Name              string           `json:"name"`
	OriginalName      string           `json:"original_name"`
	Overview          string           `json:"overview"`
	FirstAirDate      string           `json:"first_air_date"`
	PosterPath        string           `json:"poster_path"`
	BackdropPath      string           `json:"backdrop_path"`
	OriginCountry     pq.StringArray   `json:"origin_country" gorm:"type:text[]"`
	OriginalLanguage  string           `json:"original_language"`
	Adult             bool             `json:"adult"`
	GenreIDs          pq.Int64Array    `json:"genre_ids" gorm:"column:genre_ids;type:bigint[]"`
	Popularity        float64          `json:"popularity" gorm:"index"`
	VoteAverage       float64          `json:"vote_average"`
	VoteCount         int64            `json:"vote_count"`
	OverviewEmbedding *pgvector.Vector `json:"-" gorm:"type:vector(384)"`
}

// TableName 表名
func (Show) TableName() string {
	return "shows"
}

// ShowRow 查询结果原始行，所有列都可能为 NULL，只在 service 层内使用
type ShowRow struct {
	ID               uuid.UUID
	TMDBID           sql.NullInt64 `gorm:"column:tmdb_id"`
	Name             sql.NullString
	OriginalName     sql.NullString
	Overview         sql.NullString
	FirstAirDate     sql.NullString
	PosterPath       sql.NullString
	BackdropPath     sql.NullString
	OriginCountry    pq.StringArray
	OriginalLanguage sql.NullString
	Adult            sql.NullBool
	GenreIDs         pq.Int64Array `gorm:"column:genre_ids"`
	Popularity       sql.NullFloat64
	VoteAverage      sql.NullFloat64
	VoteCount        sql.NullInt64
	HasEmbedding     sql.NullBool
	Score            sql.NullFloat64
}

// ShowSummary 列表/搜索结果投影
type ShowSummary struct {
	ID           string  `json:"id"`
	TMDBID       int64   `json:"tmdb_id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	PosterPath   string  `json:"poster_path"`
	Overview     string  `json:"overview"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
}

// SimilarShow 语义相似结果，Similarity 为 0-100
type SimilarShow struct {
	ShowSummary
	Similarity float64 `json:"similarity"`
}

// ShowDetail 详情页投影（不含向量）
type ShowDetail struct {
	ShowSummary
	BackdropPath     string   `json:"backdrop_path"`
	OriginCountry    []string `json:"origin_country"`
	OriginalLanguage string   `json:"original_language"`
	Adult            bool     `json:"adult"`
	GenreIDs         []int64  `json:"genre_ids"`
	Popularity       float64  `json:"popularity"`
	VoteCount        int64    `json:"vote_count"`
	HasEmbedding     bool     `json:"has_embedding"`
}
