package repository

import (
	"fmt"
	"time"

	"github.com/user/kshows/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// VectorIndexName 向量索引名称
const VectorIndexName = "overview_vector_index"

// InitDB 初始化数据库连接
func InitDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Migrate 建表并创建 pgvector 扩展与 HNSW 索引
func Migrate(db *gorm.DB, dimensions int) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("创建 vector 扩展失败: %w", err)
	}
	if err := db.AutoMigrate(&model.Show{}); err != nil {
		return fmt.Errorf("迁移 shows 表失败: %w", err)
	}
	// 模型上写死了 384 维，配置不同时以配置为准
	if dimensions > 0 && dimensions != 384 {
		stmt := fmt.Sprintf("ALTER TABLE shows ALTER COLUMN overview_embedding TYPE vector(%d)", dimensions)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("调整向量维度失败: %w", err)
		}
	}
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON shows USING hnsw (overview_embedding vector_cosine_ops)", VectorIndexName)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("创建向量索引失败: %w", err)
	}
	return nil
}

// Repositories 仓库集合
type Repositories struct {
	DB   *gorm.DB
	Show *ShowRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:   db,
		Show: NewShowRepository(db),
	}
}
