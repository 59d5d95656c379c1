package service

import (
	"database/sql"
	"math"
	"strings"

	"github.com/user/kshows/internal/model"
)

// 去掉尖括号，转义 & 和引号；Replacer 一次扫描，不会重复转义
var textReplacer = strings.NewReplacer(
	"<", "",
	">", "",
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#39;",
)

// SanitizeText 文本字段清洗，NULL 视为空串
// 不等同于完整的 HTML 清洗
func SanitizeText(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return textReplacer.Replace(s.String)
}

// SanitizeFloat NULL、NaN、Inf 都归零
func SanitizeFloat(f sql.NullFloat64) float64 {
	if !f.Valid || math.IsNaN(f.Float64) || math.IsInf(f.Float64, 0) {
		return 0
	}
	return f.Float64
}

// SanitizeInt NULL 归零
func SanitizeInt(n sql.NullInt64) int64 {
	if !n.Valid {
		return 0
	}
	return n.Int64
}

// SanitizeSummary 清洗为列表/搜索投影
func SanitizeSummary(row model.ShowRow) model.ShowSummary {
	return model.ShowSummary{
		ID:           row.ID.String(),
		TMDBID:       SanitizeInt(row.TMDBID),
		Name:         SanitizeText(row.Name),
		OriginalName: SanitizeText(row.OriginalName),
		PosterPath:   SanitizeText(row.PosterPath),
		Overview:     SanitizeText(row.Overview),
		FirstAirDate: SanitizeText(row.FirstAirDate),
		VoteAverage:  SanitizeFloat(row.VoteAverage),
	}
}

// Sanitize 清洗完整记录
func Sanitize(row model.ShowRow) model.ShowDetail {
	countries := make([]string, 0, len(row.OriginCountry))
	for _, c := range row.OriginCountry {
		countries = append(countries, textReplacer.Replace(c))
	}
	genres := make([]int64, 0, len(row.GenreIDs))
	genres = append(genres, row.GenreIDs...)

	return model.ShowDetail{
		ShowSummary:      SanitizeSummary(row),
		BackdropPath:     SanitizeText(row.BackdropPath),
		OriginCountry:    countries,
		OriginalLanguage: SanitizeText(row.OriginalLanguage),
		Adult:            row.Adult.Valid && row.Adult.Bool,
		GenreIDs:         genres,
		Popularity:       SanitizeFloat(row.Popularity),
		VoteCount:        SanitizeInt(row.VoteCount),
		HasEmbedding:     row.HasEmbedding.Valid && row.HasEmbedding.Bool,
	}
}

func sanitizeSummaries(rows []model.ShowRow) []model.ShowSummary {
	out := make([]model.ShowSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, SanitizeSummary(row))
	}
	return out
}
